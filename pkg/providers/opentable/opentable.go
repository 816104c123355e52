// Package opentable is the restaurant booking adapter.
package opentable

import "omnigate/pkg/providers"

type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) ID() string { return "opentable" }

func (Adapter) DefaultScopes() []string { return []string{"reservations"} }

var ops = map[string]providers.OpSpec{
	"reservation_list": {
		Name:     "reservation_list",
		Method:   "GET",
		Endpoint: "/v2/restaurants/{restaurant_id}/reservations",
		Params: func(args providers.Args) map[string]string {
			params := map[string]string{}
			if v, ok := args["date"].(string); ok {
				params["date"] = v
			}
			return params
		},
	},
	"reservation_create": {
		Name:     "reservation_create",
		Method:   "POST",
		Endpoint: "/v2/restaurants/{restaurant_id}/reservations",
	},
	"reservation_cancel": {
		Name:     "reservation_cancel",
		Method:   "POST",
		Endpoint: "/v2/restaurants/{restaurant_id}/reservations/{reservation_id}/cancel",
	},
}

func (Adapter) Op(name string) (providers.OpSpec, bool) {
	spec, ok := ops[name]
	return spec, ok
}

func (Adapter) Operations() []string { return providers.OpNames(ops) }
