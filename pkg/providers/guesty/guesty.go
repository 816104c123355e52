// Package guesty is the property management adapter.
package guesty

import (
	"encoding/json"

	"omnigate/pkg/providers"
)

type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) ID() string { return "guesty" }

func (Adapter) DefaultScopes() []string { return []string{"listings.read", "reservations.write"} }

var ops = map[string]providers.OpSpec{
	"listing_list": {
		Name:      "listing_list",
		Method:    "GET",
		Endpoint:  "/api/v2/listings",
		Normalize: extractResults,
	},
	"booking_get": {
		Name:     "booking_get",
		Method:   "GET",
		Endpoint: "/api/v2/reservations/{reservation_id}",
	},
	"booking_update": {
		Name:     "booking_update",
		Method:   "PUT",
		Endpoint: "/api/v2/reservations/{reservation_id}",
	},
}

func (Adapter) Op(name string) (providers.OpSpec, bool) {
	spec, ok := ops[name]
	return spec, ok
}

func (Adapter) Operations() []string { return providers.OpNames(ops) }

func extractResults(raw json.RawMessage) (json.RawMessage, error) {
	var payload struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Results) == 0 {
		return raw, nil
	}
	return payload.Results, nil
}
