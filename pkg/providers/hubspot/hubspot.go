// Package hubspot is the CRM adapter. Write operations carry the contact or
// deal properties as-is; the broker maps them onto the HubSpot API.
package hubspot

import (
	"encoding/json"

	"omnigate/pkg/providers"
)

type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) ID() string { return "hubspot" }

func (Adapter) DefaultScopes() []string {
	return []string{"crm.objects.contacts.read", "crm.objects.contacts.write", "crm.objects.deals.write"}
}

var ops = map[string]providers.OpSpec{
	"contact_list": {
		Name:      "contact_list",
		Method:    "GET",
		Endpoint:  "/crm/v3/objects/contacts",
		Params:    pageParams,
		Normalize: extractResults,
	},
	"contact_get": {
		Name:     "contact_get",
		Method:   "GET",
		Endpoint: "/crm/v3/objects/contacts/{contact_id}",
	},
	"contact_create": {
		Name:     "contact_create",
		Method:   "POST",
		Endpoint: "/crm/v3/objects/contacts",
		Body:     wrapProperties,
	},
	"contact_update": {
		Name:     "contact_update",
		Method:   "PATCH",
		Endpoint: "/crm/v3/objects/contacts/{contact_id}",
		Body:     wrapProperties,
	},
	"deal_create": {
		Name:     "deal_create",
		Method:   "POST",
		Endpoint: "/crm/v3/objects/deals",
		Body:     wrapProperties,
	},
}

func (Adapter) Op(name string) (providers.OpSpec, bool) {
	spec, ok := ops[name]
	return spec, ok
}

func (Adapter) Operations() []string { return providers.OpNames(ops) }

func pageParams(args providers.Args) map[string]string {
	params := map[string]string{}
	if v, ok := args["limit"].(string); ok {
		params["limit"] = v
	}
	if v, ok := args["after"].(string); ok {
		params["after"] = v
	}
	return params
}

// wrapProperties nests the call arguments under "properties", dropping any
// routing keys that address the record rather than describe it.
func wrapProperties(args providers.Args) (json.RawMessage, error) {
	props := make(map[string]interface{}, len(args))
	for k, v := range args {
		if k == "contact_id" {
			continue
		}
		props[k] = v
	}
	return json.Marshal(map[string]interface{}{"properties": props})
}

func extractResults(raw json.RawMessage) (json.RawMessage, error) {
	var payload struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Results) == 0 {
		return raw, nil
	}
	return payload.Results, nil
}
