package auth

import (
	"net/http"
	"net/url"
	"strings"
)

// CORS values sent on every dashboard response
const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "POST, OPTIONS"
	wildcardOrigin   = "*"
)

// NormalizeOrigin reduces an origin or URL to scheme://host[:port].
// Values that do not parse as absolute URLs only lose trailing slashes.
// ok is false for a blank value.
func NormalizeOrigin(value string) (origin string, ok bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	if trimmed == wildcardOrigin {
		return wildcardOrigin, true
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(trimmed, "/"), true
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	port := parsed.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}

	return scheme + "://" + host, true
}

// ResolveAllowedOrigin decides the Access-Control-Allow-Origin value for a
// request. An empty or wildcard allow-list admits any origin. Without a
// request origin the first allowed origin is used. ok is false when the
// request origin is not allowed.
func ResolveAllowedOrigin(requestOrigin string, allowedOrigins []string) (string, bool) {
	normalized := make([]string, 0, len(allowedOrigins))
	for _, allowed := range allowedOrigins {
		if origin, ok := NormalizeOrigin(allowed); ok {
			normalized = append(normalized, origin)
		}
	}

	if len(normalized) == 0 || contains(normalized, wildcardOrigin) {
		if requestOrigin == "" {
			return wildcardOrigin, true
		}
		return requestOrigin, true
	}

	if requestOrigin == "" {
		return normalized[0], true
	}

	origin, ok := NormalizeOrigin(requestOrigin)
	if !ok || !contains(normalized, origin) {
		return "", false
	}

	return requestOrigin, true
}

// ApplyCORS writes the CORS headers for requestOrigin onto h
func ApplyCORS(h http.Header, requestOrigin string, allowedOrigins []string) {
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	if origin, ok := ResolveAllowedOrigin(requestOrigin, allowedOrigins); ok {
		h.Set("Access-Control-Allow-Origin", origin)
	}
	h.Add("Vary", "Origin")
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
