package hubspot

import (
	"encoding/json"
	"testing"

	"omnigate/pkg/providers"
)

func TestOperationsTable(t *testing.T) {
	t.Parallel()

	a := New()
	if a.ID() != "hubspot" {
		t.Fatalf("unexpected id: %s", a.ID())
	}
	for _, name := range []string{"contact_list", "contact_get", "contact_create", "contact_update", "deal_create"} {
		if _, ok := a.Op(name); !ok {
			t.Fatalf("operation %s missing", name)
		}
	}
	if _, ok := a.Op("contact_destroy"); ok {
		t.Fatal("unexpected operation present")
	}
}

func TestWrapPropertiesDropsRoutingKeys(t *testing.T) {
	t.Parallel()

	spec, _ := New().Op("contact_update")
	body, err := spec.Body(providers.Args{
		"contact_id": "123",
		"email":      "a@b.c",
		"firstname":  "Ada",
	})
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	var payload struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := payload.Properties["contact_id"]; ok {
		t.Fatal("contact_id must not appear in properties")
	}
	if payload.Properties["email"] != "a@b.c" || payload.Properties["firstname"] != "Ada" {
		t.Fatalf("properties missing: %v", payload.Properties)
	}
}

func TestExtractResults(t *testing.T) {
	t.Parallel()

	spec, _ := New().Op("contact_list")
	out, err := spec.Normalize(json.RawMessage(`{"results":[{"id":"1"}],"paging":{}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if string(out) != `[{"id":"1"}]` {
		t.Fatalf("unexpected normalized payload: %s", out)
	}

	// Payloads without a results envelope pass through.
	raw := json.RawMessage(`{"id":"1"}`)
	out, err = spec.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize passthrough: %v", err)
	}
	if string(out) != string(raw) {
		t.Fatalf("payload altered: %s", out)
	}
}

func TestPageParams(t *testing.T) {
	t.Parallel()

	spec, _ := New().Op("contact_list")
	params := spec.Params(providers.Args{"limit": "50", "after": "cursor", "junk": 1})
	if params["limit"] != "50" || params["after"] != "cursor" {
		t.Fatalf("unexpected params: %v", params)
	}
	if _, ok := params["junk"]; ok {
		t.Fatal("unknown args must not leak into params")
	}
}
