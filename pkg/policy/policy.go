// Package policy decides which adapter operations are writes and whether a
// write must be gated behind a human approval. The classification is a single
// name heuristic applied uniformly to every provider, so no adapter carries
// its own gating rules.
package policy

import "strings"

// writeTokens are operation-name fragments that indicate a state-changing call.
var writeTokens = []string{
	"create", "update", "set", "write", "send", "post", "put",
	"patch", "delete", "remove", "tag", "modify", "cancel", "reply",
	"add", "upload", "publish", "confirm", "book", "assign",
}

// Classifier is pure and performs no I/O. RequireApproval mirrors the global
// WRITE_REQUIRES_APPROVAL switch.
type Classifier struct {
	RequireApproval bool
}

// IsWrite reports whether the operation name denotes a state-changing call.
// Matching is case-insensitive and token-based, e.g. "contact_create",
// "SendMessage" and "events.delete" all classify as writes.
func (c Classifier) IsWrite(operation string) bool {
	name := strings.ToLower(strings.TrimSpace(operation))
	if name == "" {
		return false
	}
	for _, tok := range writeTokens {
		if containsToken(name, tok) {
			return true
		}
	}
	return false
}

// RequiresApproval reports whether the operation must be parked in the
// approval queue before it may reach the network.
func (c Classifier) RequiresApproval(operation string) bool {
	if !c.RequireApproval {
		return false
	}
	return c.IsWrite(operation)
}

// containsToken is a plain substring match; "updates_feed" flags as a write,
// which is intended. The token set errs on the side of gating.
func containsToken(name, tok string) bool {
	return strings.Contains(name, tok)
}
