package discord

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind tags errors raised by this package
const ErrorKind = "discord"

// Caller-facing messages for each upstream failure class
const (
	MessageAccessFailed = "Discord access failed. Verify FOLLOW_MANAGER_DISCORD_BOT_TOKEN, FOLLOW_MANAGER_DISCORD_GUILD_ID, and bot permissions."
	MessageRateLimited  = "Discord rate limit reached. Retry shortly."
)

// RequestError is returned for every non-2xx Discord response.
// ResponseBody is for logs only and must not reach end users.
type RequestError struct {
	Kind         string
	Status       int
	Path         string
	ResponseBody string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("discord API returned status %d for %s", e.Status, e.Path)
}

// MapStatus classifies an upstream status code into the message and status
// returned to callers. Both the live and sync boundaries go through it.
func MapStatus(status int) (string, int) {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return MessageAccessFailed, http.StatusBadRequest
	case http.StatusTooManyRequests:
		return MessageRateLimited, http.StatusTooManyRequests
	default:
		return fmt.Sprintf("Discord API error (%d).", status), http.StatusBadGateway
	}
}

// MapError applies MapStatus to a *RequestError anywhere in err's chain.
// Any other failure (transport, decoding) maps to fallback with 502.
func MapError(err error, fallback string) (string, int) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return MapStatus(reqErr.Status)
	}
	return fallback, http.StatusBadGateway
}
