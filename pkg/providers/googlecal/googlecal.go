// Package googlecal is the Google Calendar adapter.
package googlecal

import (
	"encoding/json"

	"omnigate/pkg/providers"
)

type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) ID() string { return "googlecal" }

func (Adapter) DefaultScopes() []string {
	return []string{"https://www.googleapis.com/auth/calendar.events"}
}

var ops = map[string]providers.OpSpec{
	"events_list": {
		Name:     "events_list",
		Method:   "GET",
		Endpoint: "/calendar/v3/calendars/{calendar_id}/events",
		Params: func(args providers.Args) map[string]string {
			params := map[string]string{"singleEvents": "true", "orderBy": "startTime"}
			if v, ok := args["time_min"].(string); ok {
				params["timeMin"] = v
			}
			if v, ok := args["time_max"].(string); ok {
				params["timeMax"] = v
			}
			return params
		},
		Normalize: extractItems,
	},
	"event_create": {
		Name:     "event_create",
		Method:   "POST",
		Endpoint: "/calendar/v3/calendars/{calendar_id}/events",
		Body:     eventBody,
	},
	"event_update": {
		Name:     "event_update",
		Method:   "PATCH",
		Endpoint: "/calendar/v3/calendars/{calendar_id}/events/{event_id}",
		Body:     eventBody,
	},
	"event_delete": {
		Name:     "event_delete",
		Method:   "DELETE",
		Endpoint: "/calendar/v3/calendars/{calendar_id}/events/{event_id}",
		Body: func(providers.Args) (json.RawMessage, error) {
			return nil, nil
		},
	},
}

func (Adapter) Op(name string) (providers.OpSpec, bool) {
	spec, ok := ops[name]
	return spec, ok
}

func (Adapter) Operations() []string { return providers.OpNames(ops) }

func eventBody(args providers.Args) (json.RawMessage, error) {
	body := make(map[string]interface{}, len(args))
	for k, v := range args {
		switch k {
		case "calendar_id", "event_id":
		default:
			body[k] = v
		}
	}
	return json.Marshal(body)
}

func extractItems(raw json.RawMessage) (json.RawMessage, error) {
	var payload struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Items) == 0 {
		return raw, nil
	}
	return payload.Items, nil
}
