package providers

import (
	"errors"
	"testing"
)

func TestRegistryGet(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(testAdapter())

	a, err := reg.Get("testprov")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.ID() != "testprov" {
		t.Fatalf("unexpected adapter: %s", a.ID())
	}

	if _, err := reg.Get("nope"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestRegistryScopeOverride(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a := testAdapter()
	reg.Register(a)

	scopes := reg.ScopesFor(a)
	if len(scopes) != 1 || scopes[0] != "test.read" {
		t.Fatalf("unexpected default scopes: %v", scopes)
	}

	reg.OverrideScopes("testprov", []string{"custom.a", "custom.b"})
	scopes = reg.ScopesFor(a)
	if len(scopes) != 2 || scopes[0] != "custom.a" {
		t.Fatalf("override not applied: %v", scopes)
	}
}

func TestRegistryListIsSorted(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(fakeAdapter{id: "zeta", ops: map[string]OpSpec{"z_list": {}}})
	reg.Register(fakeAdapter{id: "alpha", ops: map[string]OpSpec{"a_list": {}}})

	out := reg.List()
	if len(out) != 2 || out[0].ID != "alpha" || out[1].ID != "zeta" {
		t.Fatalf("unexpected listing: %+v", out)
	}
	if len(out[0].Operations) != 1 || out[0].Operations[0] != "a_list" {
		t.Fatalf("operations missing: %+v", out[0])
	}
}

func TestExpandEndpoint(t *testing.T) {
	t.Parallel()

	got := expandEndpoint("/v1/items/{item_id}/notes/{note_id}", Args{"item_id": "7", "note_id": 3})
	if got != "/v1/items/7/notes/3" {
		t.Fatalf("unexpected expansion: %s", got)
	}
	if got := expandEndpoint("/v1/items", Args{"item_id": "7"}); got != "/v1/items" {
		t.Fatalf("plain endpoint altered: %s", got)
	}
}
