package handler

import (
	"log/slog"
	"net/http"

	"github.com/dghubble/oauth1"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/service"
)

// DiscogsHandler drives the Discogs account link and collection import.
//
// HANDLER RESPONSIBILITIES:
//   - HandleStatus     → report whether the caller is linked
//   - HandleConnect    → start the OAuth1 handshake, return the authorize URL
//   - HandleCallback   → Discogs redirects here; finish the handshake
//   - HandleImport     → pull the whole collection into the caller's records
//   - HandleDisconnect → forget the stored token pair
//
// HandleCallback is the only unauthenticated route: the browser arrives from
// Discogs without our bearer token, so the pending request token identifies
// the user instead.
type DiscogsHandler struct {
	discogs *service.DiscogsService
	users   *service.AuthService
	logger  *slog.Logger
}

func NewDiscogsHandler(discogs *service.DiscogsService, users *service.AuthService, logger *slog.Logger) *DiscogsHandler {
	return &DiscogsHandler{discogs: discogs, users: users, logger: logger}
}

// ConnectResponse carries the URL the client must open to approve access.
type ConnectResponse struct {
	AuthorizeURL string `json:"authorize_url"`
}

// CallbackResponse confirms a completed link.
type CallbackResponse struct {
	Message         string `json:"message"`
	DiscogsUsername string `json:"discogs_username"`
}

// ImportResponse is the outcome of one import run.
type ImportResponse struct {
	service.ImportResult
	Message string `json:"message"`
}

// HandleStatus reports the caller's link state.
//
// HTTP: GET /api/v1/discogs/status
func (h *DiscogsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.discogs.Status(user))
}

// HandleConnect starts the OAuth1 handshake.
//
// HTTP: GET /api/v1/discogs/connect → {"authorize_url": "..."}
func (h *DiscogsHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	authorizeURL, err := h.discogs.BeginConnect(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConnectResponse{AuthorizeURL: authorizeURL})
}

// HandleCallback completes the handshake.
//
// HTTP: GET /api/v1/discogs/callback?oauth_token=...&oauth_verifier=...
func (h *DiscogsHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	requestToken, verifier, err := oauth1.ParseAuthorizationCallback(r)
	if err != nil {
		writeError(w, apperror.ValidationFailed("oauth_token", "oauth_token and oauth_verifier are required"))
		return
	}

	username, err := h.discogs.CompleteCallback(r.Context(), requestToken, verifier)
	if err != nil {
		h.logger.Warn("discogs callback failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CallbackResponse{
		Message:         "Successfully connected to Discogs",
		DiscogsUsername: username,
	})
}

// HandleImport runs a full collection import.
//
// HTTP: POST /api/v1/discogs/import
// RESPONSE: {"created": 3, "updated": 1, "errors": 0, "message": "Import complete: ..."}
func (h *DiscogsHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	res, err := h.discogs.Import(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{ImportResult: res, Message: res.Message()})
}

// HandleDisconnect removes the stored Discogs credentials. Records stay.
//
// HTTP: POST /api/v1/discogs/disconnect
func (h *DiscogsHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.discogs.Disconnect(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Discogs account disconnected"})
}
