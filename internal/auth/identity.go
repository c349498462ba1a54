package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/followmanager/internal/discord"
)

// ErrInvalidToken is returned when a bearer token cannot be verified
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified caller behind a bearer token
type Identity struct {
	UserID string
	Role   string
}

// Verifier turns a bearer token into an Identity
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Claims are the JWT claims the service reads
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 tokens signed with a shared secret
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier for tokens signed with secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks the token signature and expiry and returns its subject and
// role. Tokens without an exp claim are rejected.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return &Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

// CurrentUserFetcher resolves a Discord OAuth2 access token to its user
type CurrentUserFetcher interface {
	GetCurrentUser(ctx context.Context, accessToken string) (*discord.User, error)
}

// DiscordVerifier treats the bearer token as a Discord OAuth2 access token.
// The caller's identity is their Discord user id.
type DiscordVerifier struct {
	users  CurrentUserFetcher
	logger *zap.Logger
}

// NewDiscordVerifier creates a verifier backed by GET /users/@me
func NewDiscordVerifier(users CurrentUserFetcher, logger *zap.Logger) *DiscordVerifier {
	return &DiscordVerifier{users: users, logger: logger}
}

// Verify resolves the token against Discord
func (v *DiscordVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	user, err := v.users.GetCurrentUser(ctx, token)
	if err != nil {
		v.logger.Debug("discord token verification failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: discord returned no user id", ErrInvalidToken)
	}

	return &Identity{UserID: user.ID}, nil
}
