// Package auth decides whether a caller may read or refresh the follow
// inventory: origin checks, bearer token verification and the user allow-list.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Sentinel causes carried by *GateError
var (
	ErrMissingBearer    = errors.New("missing bearer token")
	ErrNotAllowed       = errors.New("caller is not in the allow-list")
	ErrOriginNotAllowed = errors.New("origin is not allowed")
	ErrNotServiceRole   = errors.New("credential does not carry the service role")
)

// GateError is a rejection with the status and message returned to the caller
type GateError struct {
	Status  int
	Message string
	Err     error
}

func (e *GateError) Error() string {
	return e.Message + ": " + e.Err.Error()
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// Gate guards the dashboard read boundaries
type Gate struct {
	verifier       Verifier
	allowedUsers   map[string]struct{}
	allowedOrigins []string
	logger         *zap.Logger
}

// NewGate creates a gate that admits verified callers listed in allowedUserIDs
func NewGate(verifier Verifier, allowedUserIDs, allowedOrigins []string, logger *zap.Logger) *Gate {
	users := make(map[string]struct{}, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		users[id] = struct{}{}
	}

	return &Gate{
		verifier:       verifier,
		allowedUsers:   users,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// ApplyCORS writes the CORS headers for a request from requestOrigin
func (g *Gate) ApplyCORS(h http.Header, requestOrigin string) {
	ApplyCORS(h, requestOrigin, g.allowedOrigins)
}

// CheckOrigin rejects a browser origin outside the allow-list.
// Requests without an Origin header are not browser requests and pass.
func (g *Gate) CheckOrigin(requestOrigin string) error {
	if requestOrigin == "" {
		return nil
	}
	if _, ok := ResolveAllowedOrigin(requestOrigin, g.allowedOrigins); !ok {
		g.logger.Warn("rejected request origin", zap.String("origin", requestOrigin))
		return &GateError{Status: http.StatusForbidden, Message: "Origin is not allowed.", Err: ErrOriginNotAllowed}
	}
	return nil
}

// Authorize verifies the bearer token in authHeader and checks the allow-list
func (g *Gate) Authorize(ctx context.Context, authHeader string) (*Identity, error) {
	token, ok := BearerToken(authHeader)
	if !ok {
		return nil, &GateError{Status: http.StatusUnauthorized, Message: "Missing bearer token.", Err: ErrMissingBearer}
	}

	identity, err := g.verifier.Verify(ctx, token)
	if err != nil {
		g.logger.Info("bearer token rejected", zap.Error(err))
		return nil, &GateError{Status: http.StatusUnauthorized, Message: "Unauthorized.", Err: err}
	}

	if _, ok := g.allowedUsers[identity.UserID]; !ok {
		g.logger.Warn("caller not in allow-list", zap.String("user_id", identity.UserID))
		return nil, &GateError{Status: http.StatusForbidden, Message: "Forbidden.", Err: ErrNotAllowed}
	}

	return identity, nil
}

// ServiceGuard admits only tokens carrying the service role
type ServiceGuard struct {
	verifier *JWTVerifier
	role     string
	logger   *zap.Logger
}

// NewServiceGuard creates a guard for role, verifying tokens with verifier
func NewServiceGuard(verifier *JWTVerifier, role string, logger *zap.Logger) *ServiceGuard {
	return &ServiceGuard{verifier: verifier, role: role, logger: logger}
}

// Authorize rejects every header that is not a valid token with the service role
func (s *ServiceGuard) Authorize(ctx context.Context, authHeader string) error {
	forbidden := &GateError{Status: http.StatusForbidden, Message: "Forbidden.", Err: ErrNotServiceRole}

	token, ok := BearerToken(authHeader)
	if !ok {
		return forbidden
	}

	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.logger.Warn("service token rejected", zap.Error(err))
		return forbidden
	}
	if identity.Role != s.role {
		s.logger.Warn("service token has wrong role", zap.String("role", identity.Role))
		return forbidden
	}

	return nil
}
