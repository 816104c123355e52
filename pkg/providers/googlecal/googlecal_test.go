package googlecal

import (
	"encoding/json"
	"testing"

	"omnigate/pkg/providers"
)

func TestEventBodyStripsRoutingKeys(t *testing.T) {
	t.Parallel()

	spec, ok := New().Op("event_update")
	if !ok {
		t.Fatal("event_update missing")
	}
	body, err := spec.Body(providers.Args{
		"calendar_id": "primary",
		"event_id":    "evt-1",
		"summary":     "Standup",
		"start":       map[string]any{"dateTime": "2026-09-01T09:00:00Z"},
	})
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := payload["calendar_id"]; ok {
		t.Fatal("calendar_id must not appear in the event body")
	}
	if _, ok := payload["event_id"]; ok {
		t.Fatal("event_id must not appear in the event body")
	}
	if payload["summary"] != "Standup" {
		t.Fatalf("event fields missing: %v", payload)
	}
}

func TestEventDeleteHasNoBody(t *testing.T) {
	t.Parallel()

	spec, _ := New().Op("event_delete")
	body, err := spec.Body(providers.Args{"calendar_id": "primary", "event_id": "evt-1"})
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	if body != nil {
		t.Fatalf("delete must not carry a body, got %s", body)
	}
}

func TestEventsListParams(t *testing.T) {
	t.Parallel()

	spec, _ := New().Op("events_list")
	params := spec.Params(providers.Args{"time_min": "2026-09-01T00:00:00Z"})
	if params["timeMin"] != "2026-09-01T00:00:00Z" {
		t.Fatalf("timeMin missing: %v", params)
	}
	if params["singleEvents"] != "true" || params["orderBy"] != "startTime" {
		t.Fatalf("defaults missing: %v", params)
	}

	out, err := spec.Normalize(json.RawMessage(`{"items":[{"id":"evt-1"}]}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if string(out) != `[{"id":"evt-1"}]` {
		t.Fatalf("unexpected items: %s", out)
	}
}
