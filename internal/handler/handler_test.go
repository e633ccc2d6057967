package handler

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/auth"
	"github.com/sakif/records-collector/internal/discogs"
	"github.com/sakif/records-collector/internal/oauthstate"
	"github.com/sakif/records-collector/internal/repository/sqlite"
	"github.com/sakif/records-collector/internal/service"
)

// stubCatalog hands out fixed tokens and a single-page collection.
type stubCatalog struct {
	releases []discogs.CollectionItem
	pageErr  error
}

func (s *stubCatalog) RequestToken(context.Context) (discogs.Token, error) {
	return discogs.Token{Token: "req-token", Secret: "req-secret"}, nil
}

func (s *stubCatalog) AuthorizationURL(rt string) (string, error) {
	return "https://discogs.test/oauth/authorize?oauth_token=" + rt, nil
}

func (s *stubCatalog) AccessToken(context.Context, discogs.Token, string) (discogs.Token, error) {
	return discogs.Token{Token: "access", Secret: "secret"}, nil
}

func (s *stubCatalog) Identity(context.Context, discogs.Token) (*discogs.Identity, error) {
	return &discogs.Identity{ID: 7, Username: "digger"}, nil
}

func (s *stubCatalog) CollectionReleases(context.Context, discogs.Token, string) iter.Seq2[discogs.CollectionItem, error] {
	return func(yield func(discogs.CollectionItem, error) bool) {
		for _, item := range s.releases {
			if !yield(item, nil) {
				return
			}
		}
		if s.pageErr != nil {
			yield(discogs.CollectionItem{}, s.pageErr)
		}
	}
}

type testAPI struct {
	router  http.Handler
	catalog *stubCatalog
}

// newTestAPI wires real services over an in-memory database behind a chi
// router with the production route layout.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-key", "HS256", time.Minute)
	require.NoError(t, err)
	box, err := auth.NewSecretBox("handler-test-encryption-key")
	require.NoError(t, err)

	catalog := &stubCatalog{}
	authSvc := service.NewAuthService(db.Users(), tokens, auth.NewPasswordServiceForTest(), logger)
	recordSvc := service.NewRecordService(db, logger)
	discogsSvc := service.NewDiscogsService(db, catalog, box, oauthstate.New(time.Minute, 10), logger)

	authH := NewAuthHandler(authSvc, logger)
	recordH := NewRecordHandler(recordSvc, logger)
	discogsH := NewDiscogsHandler(discogsSvc, authSvc, logger)

	r := chi.NewRouter()
	r.Get("/health", NewHealthHandler(db, logger).HandleHealth)
	r.Post("/auth/register", authH.HandleRegister)
	r.Post("/auth/login", authH.HandleLogin)
	r.Get("/discogs/callback", discogsH.HandleCallback)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authSvc))
		r.Get("/auth/me", authH.HandleMe)
		r.Post("/records", recordH.HandleCreate)
		r.Get("/records", recordH.HandleList)
		r.Get("/records/{id}", recordH.HandleGet)
		r.Put("/records/{id}", recordH.HandleUpdate)
		r.Delete("/records/{id}", recordH.HandleDelete)
		r.Get("/discogs/status", discogsH.HandleStatus)
		r.Get("/discogs/connect", discogsH.HandleConnect)
		r.Post("/discogs/import", discogsH.HandleImport)
		r.Post("/discogs/disconnect", discogsH.HandleDisconnect)
	})

	return &testAPI{router: r, catalog: catalog}
}

func (a *testAPI) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// signup registers username and returns a bearer token for it.
func (a *testAPI) signup(t *testing.T, username string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/register",
		`{"email":"`+username+`@example.com","username":"`+username+`","password":"password123"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.login(t, username, "password123")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	return tok.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) ErrorResponse {
	t.Helper()
	assert.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, kind, body.Error)
	return body
}

// ─── Auth ───────────────────────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/register",
		`{"email":"alice@example.com","username":"alice","password":"password123"}`, "")

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, false, body["discogs_connected"])
	assert.NotContains(t, body, "password_hash")
	assert.NotContains(t, body, "password")
}

func TestRegister_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    string
		message string
	}{
		{"bad email", `{"email":"nope","username":"alice","password":"password123"}`, "validation_error", "email must be a valid email address"},
		{"short username", `{"email":"a@example.com","username":"al","password":"password123"}`, "validation_error", "username must be at least 3 characters"},
		{"short password", `{"email":"a@example.com","username":"alice","password":"short"}`, "validation_error", "password must be at least 8 characters"},
		{"not json", `{`, "validation_error", "Invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			rec := api.do(t, http.MethodPost, "/auth/register", tt.body, "")
			body := assertError(t, rec, http.StatusBadRequest, tt.kind)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestRegister_DuplicateIsBadRequest(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "alice")

	rec := api.do(t, http.MethodPost, "/auth/register",
		`{"email":"alice@example.com","username":"other","password":"password123"}`, "")

	body := assertError(t, rec, http.StatusBadRequest, "conflict")
	assert.Equal(t, "Email already registered", body.Message)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "alice")

	rec := api.login(t, "alice", "password123")
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decodeBody[TokenResponse](t, rec)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)

	rec = api.login(t, "alice", "wrong-password")
	body := assertError(t, rec, http.StatusUnauthorized, "unauthorized")
	assert.Equal(t, "Incorrect username or password", body.Message)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = api.login(t, "", "password123")
	assertError(t, rec, http.StatusBadRequest, "validation_error")
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup(t, "alice")

	rec := api.do(t, http.MethodGet, "/auth/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeBody[map[string]any](t, rec)["username"])

	rec = api.do(t, http.MethodGet, "/auth/me", "", "")
	assertError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = api.do(t, http.MethodGet, "/auth/me", "", "garbage")
	assertError(t, rec, http.StatusUnauthorized, "unauthorized")
}

// ─── Records ────────────────────────────────────────────────────────────────

type recordBody struct {
	ID                  string   `json:"id"`
	UserID              string   `json:"user_id"`
	Title               string   `json:"title"`
	Artist              string   `json:"artist"`
	ReleaseYear         *int     `json:"release_year"`
	MediaCondition      *string  `json:"media_condition"`
	PurchasePrice       *float64 `json:"purchase_price"`
	ImportedFromDiscogs bool     `json:"imported_from_discogs"`
	DiscogsID           *string  `json:"discogs_id"`
	AddedAt             string   `json:"added_at"`
	UpdatedAt           *string  `json:"updated_at"`
}

func TestRecordsCRUD(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup(t, "alice")

	rec := api.do(t, http.MethodPost, "/records",
		`{"title":"Blue Train","artist":"John Coltrane","release_year":1957,"purchase_price":0}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[recordBody](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.AddedAt)
	assert.Nil(t, created.UpdatedAt)
	assert.False(t, created.ImportedFromDiscogs)
	require.NotNil(t, created.PurchasePrice)
	assert.Zero(t, *created.PurchasePrice)

	rec = api.do(t, http.MethodGet, "/records/"+created.ID, "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Blue Train", decodeBody[recordBody](t, rec).Title)

	rec = api.do(t, http.MethodPut, "/records/"+created.ID, `{"media_condition":"VG+","title":null}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[recordBody](t, rec)
	assert.Equal(t, "Blue Train", updated.Title, "null leaves the field unchanged")
	assert.Equal(t, "VG+", *updated.MediaCondition)
	assert.NotNil(t, updated.UpdatedAt)

	rec = api.do(t, http.MethodGet, "/records", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]recordBody](t, rec), 1)

	rec = api.do(t, http.MethodDelete, "/records/"+created.ID, "", token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/records/"+created.ID, "", token)
	body := assertError(t, rec, http.StatusNotFound, "not_found")
	assert.Equal(t, "Record with id "+created.ID+" not found", body.Message)
}

func TestRecords_Validation(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup(t, "alice")

	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{"artist":"A"}`},
		{"year out of range", `{"title":"T","artist":"A","release_year":1899}`},
		{"negative price", `{"title":"T","artist":"A","purchase_price":-1}`},
		{"title too long", `{"title":"` + strings.Repeat("x", 256) + `","artist":"A"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/records", tt.body, token)
			assertError(t, rec, http.StatusBadRequest, "validation_error")
		})
	}

	rec := api.do(t, http.MethodGet, "/records?limit=lots", "", token)
	assertError(t, rec, http.StatusBadRequest, "validation_error")
}

func TestRecords_EmptyListIsArray(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup(t, "alice")

	rec := api.do(t, http.MethodGet, "/records?skip=5&limit=2", "", token)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRecords_ForeignRecordIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signup(t, "alice")
	bob := api.signup(t, "bob")

	rec := api.do(t, http.MethodPost, "/records", `{"title":"Mine","artist":"A"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[recordBody](t, rec).ID

	assertError(t, api.do(t, http.MethodGet, "/records/"+id, "", bob), http.StatusNotFound, "not_found")
	assertError(t, api.do(t, http.MethodPut, "/records/"+id, `{"title":"x"}`, bob), http.StatusNotFound, "not_found")
	assertError(t, api.do(t, http.MethodDelete, "/records/"+id, "", bob), http.StatusNotFound, "not_found")

	rec = api.do(t, http.MethodGet, "/records", "", bob)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

// ─── Discogs ────────────────────────────────────────────────────────────────

func TestDiscogsFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup(t, "alice")
	api.catalog.releases = []discogs.CollectionItem{
		{ID: 11, BasicInformation: discogs.BasicInformation{Title: "Giant Steps", Year: 1960,
			Artists: []discogs.ArtistRef{{Name: "John Coltrane"}}}},
		{ID: 12, BasicInformation: discogs.BasicInformation{Title: "", Year: 1999}},
	}

	rec := api.do(t, http.MethodGet, "/discogs/status", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":false,"discogs_username":null,"connected_at":null,"last_sync":null}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/discogs/import", "", token)
	body := assertError(t, rec, http.StatusBadRequest, "bad_request")
	assert.Equal(t, "Discogs account not connected. Use /discogs/connect first.", body.Message)

	rec = api.do(t, http.MethodGet, "/discogs/connect", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://discogs.test/oauth/authorize?oauth_token=req-token",
		decodeBody[ConnectResponse](t, rec).AuthorizeURL)

	rec = api.do(t, http.MethodGet, "/discogs/callback?oauth_token=req-token&oauth_verifier=v", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, CallbackResponse{Message: "Successfully connected to Discogs", DiscogsUsername: "digger"},
		decodeBody[CallbackResponse](t, rec))

	rec = api.do(t, http.MethodGet, "/auth/me", "", token)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["discogs_connected"])

	rec = api.do(t, http.MethodPost, "/discogs/import", "", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t,
		`{"created":1,"updated":0,"errors":1,"message":"Import complete: 1 created, 0 updated, 1 errors"}`,
		rec.Body.String())

	rec = api.do(t, http.MethodGet, "/discogs/status", "", token)
	status := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, status["connected"])
	assert.Equal(t, "digger", status["discogs_username"])
	assert.NotNil(t, status["last_sync"])

	rec = api.do(t, http.MethodPost, "/discogs/disconnect", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Discogs account disconnected"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/discogs/disconnect", "", token)
	body = assertError(t, rec, http.StatusBadRequest, "bad_request")
	assert.Equal(t, "Discogs account not connected", body.Message)

	rec = api.do(t, http.MethodGet, "/records", "", token)
	assert.Len(t, decodeBody[[]recordBody](t, rec), 1, "records survive disconnect")
}

func TestDiscogsCallback_Errors(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/discogs/callback?oauth_token=x", "", "")
	assertError(t, rec, http.StatusBadRequest, "validation_error")

	rec = api.do(t, http.MethodGet, "/discogs/callback?oauth_token=unknown&oauth_verifier=v", "", "")
	body := assertError(t, rec, http.StatusBadRequest, "bad_request")
	assert.Equal(t, "Invalid or expired OAuth request", body.Message)
}

func TestDiscogsImport_PageFailureIsServerError(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup(t, "alice")
	api.do(t, http.MethodGet, "/discogs/connect", "", token)
	rec := api.do(t, http.MethodGet, "/discogs/callback?oauth_token=req-token&oauth_verifier=v", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	api.catalog.pageErr = errors.New("discogs: 502 Bad Gateway")
	rec = api.do(t, http.MethodPost, "/discogs/import", "", token)

	body := assertError(t, rec, http.StatusInternalServerError, "import_failed")
	assert.True(t, strings.HasPrefix(body.Message, "Import failed: "), body.Message)
}

func TestDiscogsRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/discogs/status"},
		{http.MethodGet, "/discogs/connect"},
		{http.MethodPost, "/discogs/import"},
		{http.MethodPost, "/discogs/disconnect"},
		{http.MethodGet, "/records"},
	} {
		rec := api.do(t, route.method, route.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
}

// ─── Health & errors ────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantMsg    string
	}{
		{"validation", apperror.ValidationFailed("title", "title is required"), http.StatusBadRequest, "validation_error", "title is required"},
		{"bad request", apperror.BadRequest("nope"), http.StatusBadRequest, "bad_request", "nope"},
		{"conflict", apperror.Conflict("email", "Email already registered"), http.StatusBadRequest, "conflict", "Email already registered"},
		{"upstream", apperror.Upstream("Failed to complete OAuth: boom", errors.New("boom")), http.StatusBadRequest, "upstream_error", "Failed to complete OAuth: boom"},
		{"unauthorized", apperror.Unauthorized("who"), http.StatusUnauthorized, "unauthorized", "who"},
		{"forbidden", apperror.Forbidden("Inactive user"), http.StatusForbidden, "forbidden", "Inactive user"},
		{"not found", apperror.NotFound("Record", "x"), http.StatusNotFound, "not_found", "Record with id x not found"},
		{"import failed", apperror.ImportFailed(errors.New("boom")), http.StatusInternalServerError, "import_failed", "Import failed: boom"},
		{"import failed wrapping not found", apperror.ImportFailed(apperror.NotFound("User", "u1")), http.StatusInternalServerError, "import_failed", "Import failed: User with id u1 not found"},
		{"unknown", errors.New("sqlite: table users is locked"), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantKind, body.Error)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}
