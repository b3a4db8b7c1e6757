// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package logger

import (
	"strings"
)

// sensitiveKeys are field names whose values never reach log output.
// Matched case-insensitively.
var sensitiveKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"access_token":  true,
	"jwt":           true,
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
	"secret":        true,
	"session_key":   true,
	"credentials":   true,
}

const redactedValue = "[REDACTED]"

// IsSensitiveKey reports whether key names a field that must be redacted.
func IsSensitiveKey(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// SanitizeField returns value, or a placeholder when key is sensitive.
func SanitizeField(key string, value interface{}) interface{} {
	if IsSensitiveKey(key) {
		return redactedValue
	}
	return value
}

// SanitizeMap returns a copy of m with sensitive values redacted.
func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = SanitizeField(k, v)
	}
	return result
}

// SanitizeKeysAndValues redacts sensitive values in a zap-style alternating
// key/value list. The input slice is not modified.
func SanitizeKeysAndValues(kv []interface{}) []interface{} {
	var out []interface{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || !IsSensitiveKey(key) {
			continue
		}
		if out == nil {
			out = make([]interface{}, len(kv))
			copy(out, kv)
		}
		out[i+1] = redactedValue
	}
	if out == nil {
		return kv
	}
	return out
}
