package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
)

const DefaultCacheTTL = time.Minute

// AuthError rejects a connection or request before any session state exists.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

var (
	ErrNoToken        = &AuthError{Reason: "no token"}
	ErrInvalidToken   = &AuthError{Reason: "invalid token"}
	ErrInvalidPayload = &AuthError{Reason: "invalid payload"}
)

// Identity is what a verified token resolves to.
type Identity struct {
	UserID   string
	Username string
}

// claims covers both shapes the identity service has been observed to
// sign: "userId" and the older "id". Normalized once in identity().
type claims struct {
	UserID   string `json:"userId"`
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (c *claims) identity() (Identity, error) {
	id := c.UserID
	if id == "" {
		id = c.ID
	}
	if id == "" {
		return Identity{}, ErrInvalidPayload
	}
	return Identity{UserID: id, Username: c.Username}, nil
}

type Config struct {
	Secret   string
	CacheTTL time.Duration
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// Verifier checks bearer tokens issued by the external identity service.
// Issuance, refresh and revocation live there; this side only verifies
// signature and expiry and extracts the subject.
type Verifier struct {
	Config
	verified geche.Geche[string, Identity]
	now      func() time.Time
}

func NewVerifier(ctx context.Context, config Config) (*Verifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{
		Config:   config,
		verified: geche.NewMapTTLCache[string, Identity](ctx, config.CacheTTL, time.Minute),
		now:      time.Now,
	}, nil
}

// Verify resolves a bearer token to an Identity. Recently verified
// tokens are served from a short-lived cache; the TTL is kept well below
// token expiry so a cached hit cannot outlive the token meaningfully.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}

	if id, err := v.verified.Get(token); err == nil {
		return id, nil
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(v.Secret), nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	id, err := c.identity()
	if err != nil {
		return Identity{}, err
	}

	v.verified.Set(token, id)
	return id, nil
}
