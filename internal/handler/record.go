package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/auth"
	"github.com/sakif/records-collector/internal/model"
	"github.com/sakif/records-collector/internal/service"
)

// RecordHandler exposes CRUD over the caller's own records. Every route is
// behind RequireAuth; the owner is always the authenticated user.
type RecordHandler struct {
	records *service.RecordService
	logger  *slog.Logger
}

func NewRecordHandler(records *service.RecordService, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{records: records, logger: logger}
}

type createRecordRequest struct {
	Title           string     `json:"title"            validate:"required,max=255"`
	Artist          string     `json:"artist"           validate:"required,max=255"`
	DiscogsID       *string    `json:"discogs_id"       validate:"omitempty,max=50"`
	ReleaseYear     *int       `json:"release_year"     validate:"omitempty,min=1900,max=2100"`
	Label           *string    `json:"label"            validate:"omitempty,max=255"`
	CatalogNumber   *string    `json:"catalog_number"   validate:"omitempty,max=100"`
	Genre           *string    `json:"genre"            validate:"omitempty,max=100"`
	MediaCondition  *string    `json:"media_condition"  validate:"omitempty,max=50"`
	SleeveCondition *string    `json:"sleeve_condition" validate:"omitempty,max=50"`
	Notes           *string    `json:"notes"`
	PurchasePrice   *float64   `json:"purchase_price"   validate:"omitempty,min=0"`
	PurchaseDate    *time.Time `json:"purchase_date"`
}

func (req createRecordRequest) toModel() *model.Record {
	return &model.Record{
		Title:           req.Title,
		Artist:          req.Artist,
		DiscogsID:       req.DiscogsID,
		ReleaseYear:     req.ReleaseYear,
		Label:           req.Label,
		CatalogNumber:   req.CatalogNumber,
		Genre:           req.Genre,
		MediaCondition:  req.MediaCondition,
		SleeveCondition: req.SleeveCondition,
		Notes:           req.Notes,
		PurchasePrice:   req.PurchasePrice,
		PurchaseDate:    req.PurchaseDate,
	}
}

// updateRecordRequest is a partial update: absent (or null) fields are left
// unchanged.
type updateRecordRequest struct {
	Title           *string    `json:"title"            validate:"omitempty,min=1,max=255"`
	Artist          *string    `json:"artist"           validate:"omitempty,min=1,max=255"`
	DiscogsID       *string    `json:"discogs_id"       validate:"omitempty,max=50"`
	ReleaseYear     *int       `json:"release_year"     validate:"omitempty,min=1900,max=2100"`
	Label           *string    `json:"label"            validate:"omitempty,max=255"`
	CatalogNumber   *string    `json:"catalog_number"   validate:"omitempty,max=100"`
	Genre           *string    `json:"genre"            validate:"omitempty,max=100"`
	MediaCondition  *string    `json:"media_condition"  validate:"omitempty,max=50"`
	SleeveCondition *string    `json:"sleeve_condition" validate:"omitempty,max=50"`
	Notes           *string    `json:"notes"`
	PurchasePrice   *float64   `json:"purchase_price"   validate:"omitempty,min=0"`
	PurchaseDate    *time.Time `json:"purchase_date"`
}

func (req updateRecordRequest) toPatch() model.RecordPatch {
	return model.RecordPatch{
		Title:           req.Title,
		Artist:          req.Artist,
		DiscogsID:       req.DiscogsID,
		ReleaseYear:     req.ReleaseYear,
		Label:           req.Label,
		CatalogNumber:   req.CatalogNumber,
		Genre:           req.Genre,
		MediaCondition:  req.MediaCondition,
		SleeveCondition: req.SleeveCondition,
		Notes:           req.Notes,
		PurchasePrice:   req.PurchasePrice,
		PurchaseDate:    req.PurchaseDate,
	}
}

// HandleCreate adds a record to the caller's collection.
//
// HTTP: POST /api/v1/records → 201 Record
func (h *RecordHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.records.Create(r.Context(), userID, req.toModel())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleList returns one page of the caller's records.
//
// HTTP: GET /api/v1/records?skip=0&limit=100
func (h *RecordHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	skip, err := intQuery(r, "skip", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := intQuery(r, "limit", service.DefaultListLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	recs, err := h.records.List(r.Context(), userID, skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleGet returns one record.
//
// HTTP: GET /api/v1/records/{id} → 200 | 404
//
// A record owned by someone else is reported exactly like a missing one.
func (h *RecordHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	rec, err := h.records.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT /api/v1/records/{id} → 200 | 404
func (h *RecordHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req updateRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.records.Update(r.Context(), userID, chi.URLParam(r, "id"), req.toPatch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDelete removes a record.
//
// HTTP: DELETE /api/v1/records/{id} → 204 | 404
func (h *RecordHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.records.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireUser reads the authenticated user ID, answering 401 itself when the
// route was mounted without RequireAuth.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Not authenticated"))
		return "", false
	}
	return userID, true
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
