package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/shopfloor/coupon-engine/internal/domain/auth"
)

// apiKeyHeader carries the raw API key on write requests.
const apiKeyHeader = "api_key"

// Security authenticates write requests via HMAC-SHA256 hashed API keys.
type Security struct {
	keys   auth.Repository
	pepper []byte
}

// NewSecurity creates a Security with the given API key repository and
// HMAC pepper.
func NewSecurity(keys auth.Repository, pepper []byte) *Security {
	return &Security{keys: keys, pepper: pepper}
}

// WithSecurity guards the mutating endpoints with API key authentication.
func WithSecurity(s *Security) Option {
	return func(h *Handler) {
		h.security = s
	}
}

// protect wraps next so it only runs for requests presenting a valid key.
// A nil Security leaves next open.
func (s *Security) protect(next http.HandlerFunc) http.HandlerFunc {
	if s == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" || !s.authenticate(r.Context(), key) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "a valid API key is required")
			return
		}
		next(w, r)
	}
}

// authenticate computes the HMAC-SHA256 of the presented key, looks it up
// in the repository, and performs a constant-time comparison to prevent
// timing attacks.
func (s *Security) authenticate(ctx context.Context, key string) bool {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := s.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return false
	}

	// The stored hash could differ from what we computed if the repository
	// returns a stale or wrong row.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(hash, stored) == 1
}
