// Package trustpilot is the review platform adapter. Replying to a review is
// a write and therefore gated like any other state-changing operation.
package trustpilot

import (
	"encoding/json"

	"omnigate/pkg/providers"
)

type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) ID() string { return "trustpilot" }

func (Adapter) DefaultScopes() []string { return []string{"business-units.read", "reviews.respond"} }

var ops = map[string]providers.OpSpec{
	"review_list": {
		Name:     "review_list",
		Method:   "GET",
		Endpoint: "/v1/business-units/{business_unit_id}/reviews",
		Params: func(args providers.Args) map[string]string {
			params := map[string]string{}
			if v, ok := args["stars"].(string); ok {
				params["stars"] = v
			}
			return params
		},
		Normalize: func(raw json.RawMessage) (json.RawMessage, error) {
			var payload struct {
				Reviews json.RawMessage `json:"reviews"`
			}
			if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Reviews) == 0 {
				return raw, nil
			}
			return payload.Reviews, nil
		},
	},
	"review_reply": {
		Name:     "review_reply",
		Method:   "POST",
		Endpoint: "/v1/private/reviews/{review_id}/reply",
		Body: func(args providers.Args) (json.RawMessage, error) {
			msg, _ := args["message"].(string)
			return json.Marshal(map[string]string{"message": msg})
		},
	},
}

func (Adapter) Op(name string) (providers.OpSpec, bool) {
	spec, ok := ops[name]
	return spec, ok
}

func (Adapter) Operations() []string { return providers.OpNames(ops) }
