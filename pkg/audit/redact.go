package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// sensitiveKeys are parameter names whose values never appear in clear text
// in audit records or approval previews.
var sensitiveKeys = []string{
	"password", "secret", "token", "api_key", "apikey", "authorization",
	"card", "cvv", "iban", "ssn", "credential",
}

// IsSensitiveKey reports whether a parameter name counts as sensitive.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// RedactParams rewrites a JSON parameter object, replacing the values of
// sensitive keys with a salted hash. Non-object payloads and invalid JSON
// are replaced wholesale by their hash rather than stored raw.
func RedactParams(raw json.RawMessage, salt []byte) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		payload := map[string]interface{}{
			"params_hash":     hashBytes(raw, salt),
			"redaction_error": "invalid_json",
		}
		b, _ := json.Marshal(payload)
		return b
	}
	for k, v := range params {
		if !IsSensitiveKey(k) {
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			params[k] = "sha256:" + hashBytes(nil, salt)
			continue
		}
		params[k] = "sha256:" + hashBytes(b, salt)
	}
	b, _ := json.Marshal(params)
	return b
}

// RedactValue returns the display form of one parameter value for previews.
func RedactValue(key string, value interface{}, salt []byte) string {
	b, _ := json.Marshal(value)
	if IsSensitiveKey(key) {
		return "sha256:" + hashBytes(b, salt)[:12]
	}
	return strings.Trim(string(b), `"`)
}

func hashBytes(b []byte, salt []byte) string {
	h := sha256.New()
	if len(salt) > 0 {
		_, _ = h.Write(salt)
	}
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
