package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// publicKeys never carry secrets and are logged verbatim by MaskField.
var publicKeys = map[string]struct{}{
	"driver":   {},
	"endpoint": {},
	"listen":   {},
	"network":  {},
}

// MaskField logs value under key, redacted unless the key is known to be
// public. Empty values pass through so missing settings stay visible.
func MaskField(key, value string) slog.Attr {
	if _, public := publicKeys[strings.ToLower(strings.TrimSpace(key))]; public || strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskDSN strips credentials from a database DSN. URL style DSNs keep their
// scheme, user and host; key=value DSNs keep every key except password.
func MaskDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return dsn
	}
	if parsed, err := url.Parse(dsn); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "REDACTED")
		}
		return parsed.String()
	}
	fields := strings.Fields(dsn)
	for i, field := range fields {
		key, _, found := strings.Cut(field, "=")
		if found && strings.EqualFold(key, "password") {
			fields[i] = key + "=" + RedactedValue
		}
	}
	return strings.Join(fields, " ")
}
