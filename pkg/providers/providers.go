// Package providers defines the contract every integration adapter implements
// and the Gate that funnels all adapter traffic through the connection guard,
// the policy classifier, the approval queue and the audit log. Adapters stay
// declarative; none of them carries its own safety logic.
package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrUnknownOperation    = errors.New("unknown operation for provider")
	ErrMissingConnectionID = errors.New("connection has no external connection id")
	ErrInvalidArgs         = errors.New("operation arguments must be a JSON object")
	ErrNotApproved         = errors.New("approval request is not approved")
)

// Args are the decoded operation arguments.
type Args map[string]interface{}

// OpSpec declares one operation of an adapter: how to address the provider
// API through the broker and how to normalize the response. The zero hooks
// give sensible defaults, so most read operations declare only Name, Method
// and Endpoint.
type OpSpec struct {
	Name     string
	Method   string
	Endpoint string // may contain {arg} placeholders filled from Args

	// Params builds query parameters; nil sends none.
	Params func(Args) map[string]string
	// Body builds the request body for writes; nil forwards the raw args.
	Body func(Args) (json.RawMessage, error)
	// Normalize extracts the collection/record the caller needs from the
	// raw broker payload; nil returns the payload as-is.
	Normalize func(json.RawMessage) (json.RawMessage, error)
}

// Adapter is the shape every integration module implements.
type Adapter interface {
	ID() string
	DefaultScopes() []string
	Op(name string) (OpSpec, bool)
	Operations() []string
}

// expandEndpoint substitutes {key} placeholders from args.
func expandEndpoint(endpoint string, args Args) string {
	if !strings.Contains(endpoint, "{") {
		return endpoint
	}
	out := endpoint
	for k, v := range args {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return out
}

// OpNames returns the sorted operation names of a spec table; adapters use it
// to implement Operations without repeating themselves.
func OpNames(ops map[string]OpSpec) []string {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
