package logger

import (
	"log/slog"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// sensitiveKeys are attribute keys whose values never reach a log
// sink. Matching is case-insensitive on the full key.
var sensitiveKeys = map[string]struct{}{
	"password": {},
	"secret":   {},
	"token":    {},
}

// redactSensitive replaces the value of sensitive attributes.
func redactSensitive(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redactedPlaceholder)
	}
	return a
}
