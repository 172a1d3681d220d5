package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockValidator struct {
	claims *Claims
	err    error
	token  string
}

func (m *mockValidator) ValidateToken(tokenString string) (*Claims, error) {
	m.token = tokenString
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

func protectedHandler(t *testing.T, wantClaims bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := ClaimsFromContext(r.Context())
		assert.Equal(t, wantClaims, ok)
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_Disabled(t *testing.T) {
	middleware := RequireAuth(&mockValidator{}, false, zap.NewNop())
	handler := middleware(protectedHandler(t, false))

	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_ValidToken(t *testing.T) {
	validator := &mockValidator{claims: &Claims{Email: "teacher@school.example"}}
	middleware := RequireAuth(validator, true, zap.NewNop())
	handler := middleware(protectedHandler(t, true))

	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	req.Header.Set("Authorization", "Bearer token-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "token-123", validator.token)
}

func TestRequireAuth_MissingToken(t *testing.T) {
	middleware := RequireAuth(&mockValidator{}, true, zap.NewNop())
	handler := middleware(protectedHandler(t, true))

	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	middleware := RequireAuth(&mockValidator{err: errors.New("expired")}, true, zap.NewNop())
	handler := middleware(protectedHandler(t, true))

	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
