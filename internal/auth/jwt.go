package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/parley/internal/chat"
	"google.golang.org/grpc/metadata"
)

// MetadataKey is the gRPC metadata key carrying the bearer token.
const MetadataKey = "authorization"

const issuer = "parleyd"

var errNoSecret = errors.New("token secret is empty")

// Verifier issues and checks HS256 identity tokens. The token subject is
// the identity id.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errNoSecret
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Issue signs a token for identityID valid for ttl.
func (v *Verifier) Issue(identityID string, ttl time.Duration) (string, error) {
	if identityID == "" {
		return "", fmt.Errorf("issue token: %w", chat.ErrUnknownParticipant)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   identityID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify checks a token and returns its identity id. Every failure wraps
// chat.ErrNotAuthenticated.
func (v *Verifier) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", chat.ErrNotAuthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", chat.ErrNotAuthenticated)
	}
	return claims.Subject, nil
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>"
// header value.
func ParseBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: malformed authorization header", chat.ErrNotAuthenticated)
	}
	return strings.TrimSpace(token), nil
}

// FromIncomingContext authenticates a gRPC call from its metadata.
func (v *Verifier) FromIncomingContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", fmt.Errorf("%w: no metadata", chat.ErrNotAuthenticated)
	}
	values := md.Get(MetadataKey)
	if len(values) == 0 {
		return "", fmt.Errorf("%w: missing %s", chat.ErrNotAuthenticated, MetadataKey)
	}
	token, err := ParseBearer(values[0])
	if err != nil {
		return "", err
	}
	return v.Verify(token)
}

// WithToken attaches a bearer token to an outgoing gRPC context.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataKey, "Bearer "+token)
}
