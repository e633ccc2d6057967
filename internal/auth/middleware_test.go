package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/records-collector/internal/apperror"
)

type fakeResolver struct {
	users map[string]string // token → user ID
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id, ok := f.users[token]
	if !ok {
		return "", apperror.Unauthorized("Could not validate credentials")
	}
	return id, nil
}

// echoUserID writes the user ID that RequireAuth placed in the context.
var echoUserID = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFromContext(r.Context())
	_, _ = w.Write([]byte(id))
})

func serve(t *testing.T, resolver IdentityResolver, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	RequireAuth(resolver)(echoUserID).ServeHTTP(rr, req)
	return rr
}

func TestRequireAuth_ValidToken(t *testing.T) {
	resolver := &fakeResolver{users: map[string]string{"good": "user-1"}}

	rr := serve(t, resolver, "Bearer good")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-1", rr.Body.String())
}

func TestRequireAuth_SchemeIsCaseInsensitive(t *testing.T) {
	resolver := &fakeResolver{users: map[string]string{"good": "user-1"}}

	rr := serve(t, resolver, "bearer good")

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireAuth_Rejections(t *testing.T) {
	resolver := &fakeResolver{users: map[string]string{"good": "user-1"}}

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"unknown token", "Bearer bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, resolver, tt.header)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, "unauthorized", body["error"])
		})
	}
}

func TestRequireAuth_InactiveUser(t *testing.T) {
	resolver := &fakeResolver{err: apperror.Forbidden("Inactive user")}

	rr := serve(t, resolver, "Bearer whatever")

	assert.Equal(t, http.StatusForbidden, rr.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "Inactive user", body["message"])
}

func TestUserIDFromContext_Empty(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = UserIDFromContext(WithUserID(context.Background(), ""))
	assert.False(t, ok)
}

func TestRequireAuth_ResolverFailureIsServerError(t *testing.T) {
	resolver := &fakeResolver{err: fmt.Errorf("loading user u1: %w", errors.New("sqlite: database is locked"))}

	rr := serve(t, resolver, "Bearer whatever")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, rr.Header().Get("WWW-Authenticate"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "internal_error", body["error"])
	assert.NotContains(t, body["message"], "sqlite")
}
