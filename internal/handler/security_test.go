package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shopfloor/coupon-engine/internal/domain/auth"
	"github.com/shopfloor/coupon-engine/internal/domain/checkout"
	"github.com/shopfloor/coupon-engine/internal/domain/coupon"
)

type memKeys map[string]*auth.Key

func (m memKeys) FindByHash(_ context.Context, hash string) (*auth.Key, error) {
	k, ok := m[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return k, nil
}

func hashKey(pepper, key string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newSecuredServer(t *testing.T, store *memStore, pepper string, keys memKeys) *httptest.Server {
	t.Helper()
	engine := coupon.NewEngine(store, memGroups{}, memResolver("DE"), memResolver("retail"), nil)
	h := New(store, engine, checkout.NewService(engine, &memOrders{}),
		WithSecurity(NewSecurity(keys, []byte(pepper))),
	)

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postWithKey(t *testing.T, srv *httptest.Server, path, apiKey, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPIKeyAuth(t *testing.T) {
	const pepper = "test-pepper"
	keys := memKeys{
		hashKey(pepper, "valid-key"): {
			ID:      "default",
			KeyHash: hashKey(pepper, "valid-key"),
			Name:    "test key",
		},
	}
	store := newMemStore()
	srv := newSecuredServer(t, store, pepper, keys)

	couponBody := `{"code":"AUTH10","type":"order","rules":{"operation":"percent_off","amount":10}}`

	t.Run("missing key", func(t *testing.T) {
		resp := postWithKey(t, srv, "/api/coupons", "", couponBody)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown key", func(t *testing.T) {
		resp := postWithKey(t, srv, "/api/coupons", "wrong-key", couponBody)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid key", func(t *testing.T) {
		resp := postWithKey(t, srv, "/api/coupons", "valid-key", couponBody)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("orders require key", func(t *testing.T) {
		resp := postWithKey(t, srv, "/api/orders", "", `{"user_id":"u1","items":[]}`)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("read endpoints stay open", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/api/coupons/AUTH10")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestAPIKeyAuth_StaleStoredHash(t *testing.T) {
	const pepper = "test-pepper"
	// The lookup matches but the stored hash differs from the computed one.
	keys := memKeys{
		hashKey(pepper, "valid-key"): {
			ID:      "default",
			KeyHash: hashKey(pepper, "some-other-key"),
			Name:    "stale key",
		},
	}
	srv := newSecuredServer(t, newMemStore(), pepper, keys)

	resp := postWithKey(t, srv, "/api/coupons", "valid-key",
		`{"code":"AUTH10","type":"order","rules":{"operation":"percent_off","amount":10}}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
