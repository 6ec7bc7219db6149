package log

import (
	"strings"
)

// Key fragments whose values are masked before any log sink sees them.
// Matching is case-insensitive substring matching, so user_password and
// MYSQL_DSN both hit.
var secretKeyFragments = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api-key",
	"token", "access_token", "refresh_token",
	"secret", "auth", "authorization",
	"credential", "private_key", "privatekey",
	"dsn", "connection_string",
}

// SanitizeField masks the value when the key names a secret or a contact
// address. Values under non-sensitive keys pass through untouched.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	// Contact addresses keep their domain so logs stay debuggable
	if strings.Contains(lowerKey, "email") || strings.Contains(lowerKey, "mail") ||
		strings.Contains(lowerKey, "contact") {
		return sanitizeEmail(value)
	}

	for _, fragment := range secretKeyFragments {
		if strings.Contains(lowerKey, fragment) {
			return sanitizeToken(value)
		}
	}

	return value
}

// sanitizeToken masks secret values showing only first 4 and last 4 characters
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		// For short strings, mask everything except first and last char
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}

	// For longer strings, show first 4 and last 4
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// sanitizeEmail masks an address showing first 3 characters + @domain
func sanitizeEmail(value string) string {
	parts := strings.Split(value, "@")
	if len(parts) != 2 {
		// Not an address, mask everything
		return strings.Repeat("*", len(value))
	}

	localPart := parts[0]
	domain := parts[1]

	if len(localPart) <= 3 {
		// Short local part, show first char only
		if len(localPart) == 0 {
			return "@" + domain
		}
		return string(localPart[0]) + strings.Repeat("*", len(localPart)-1) + "@" + domain
	}

	return localPart[:3] + "***@" + domain
}
