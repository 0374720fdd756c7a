package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(context.Background(), Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	v.now = func() time.Time { return time.Unix(1700000000, 0) }
	return v
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestVerifier(t *testing.T) {
	v := newTestVerifier(t)
	exp := jwt.NewNumericDate(time.Unix(1700000000, 0).Add(time.Hour))

	t.Run("ValidToken", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"userId": "u1", "username": "alice", "exp": exp})

		id, err := v.Verify(token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if id.UserID != "u1" || id.Username != "alice" {
			t.Errorf("unexpected identity: %+v", id)
		}

		// Cached second verification.
		if _, err := v.Verify(token); err != nil {
			t.Errorf("cached Verify failed: %v", err)
		}
	})

	t.Run("LegacyIDClaim", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"id": "u2", "username": "bob", "exp": exp})

		id, err := v.Verify(token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if id.UserID != "u2" {
			t.Errorf("expected u2, got %s", id.UserID)
		}
	})

	t.Run("NoToken", func(t *testing.T) {
		if _, err := v.Verify(""); !errors.Is(err, ErrNoToken) {
			t.Errorf("expected ErrNoToken, got %v", err)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		if _, err := v.Verify("garbage"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("WrongSignature", func(t *testing.T) {
		token := signToken(t, "other-secret", jwt.MapClaims{"userId": "u1", "exp": exp})
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		expired := jwt.NewNumericDate(time.Unix(1700000000, 0).Add(-time.Hour))
		token := signToken(t, testSecret, jwt.MapClaims{"userId": "u1", "exp": expired})
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("MissingSubject", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"username": "nobody", "exp": exp})
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("expected ErrInvalidPayload, got %v", err)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty secret must be rejected")
	}

	cfg = Config{Secret: "s"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.CacheTTL != DefaultCacheTTL {
		t.Errorf("expected default TTL, got %v", cfg.CacheTTL)
	}
}
