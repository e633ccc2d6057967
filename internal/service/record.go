package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/model"
	"github.com/sakif/records-collector/internal/repository"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500

	MinReleaseYear = 1900
	MaxReleaseYear = 2100
)

// RecordService manages a user's records. Every call takes the owner's ID and
// only ever reaches that owner's rows.
type RecordService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewRecordService(store repository.Store, logger *slog.Logger) *RecordService {
	return &RecordService{store: store, logger: logger}
}

// Create stores a new record for ownerID. ID, owner and added_at are assigned
// here regardless of what the caller put in record.
func (s *RecordService) Create(ctx context.Context, ownerID string, record *model.Record) (*model.Record, error) {
	record.Title = strings.TrimSpace(record.Title)
	record.Artist = strings.TrimSpace(record.Artist)
	if err := validateRecord(record); err != nil {
		return nil, err
	}

	if err := s.store.Records(ownerID).Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("record created",
		slog.String("recordID", record.ID),
		slog.String("userID", ownerID),
	)
	return record, nil
}

// List returns one page of the owner's records in insertion order.
// A non-positive limit means DefaultListLimit; larger limits are capped.
func (s *RecordService) List(ctx context.Context, ownerID string, skip, limit int) ([]model.Record, error) {
	if skip < 0 {
		skip = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	return s.store.Records(ownerID).List(ctx, repository.ListOptions{Limit: limit, Offset: skip})
}

func (s *RecordService) Get(ctx context.Context, ownerID, id string) (*model.Record, error) {
	return s.store.Records(ownerID).Get(ctx, id)
}

// Update applies patch to the record. Read and write happen in one
// transaction so concurrent patches cannot interleave.
func (s *RecordService) Update(ctx context.Context, ownerID, id string, patch model.RecordPatch) (*model.Record, error) {
	var updated *model.Record

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		records := tx.Records(ownerID)

		record, err := records.Get(ctx, id)
		if err != nil {
			return err
		}

		patch.Apply(record)
		record.Title = strings.TrimSpace(record.Title)
		record.Artist = strings.TrimSpace(record.Artist)
		if err := validateRecord(record); err != nil {
			return err
		}

		if err := records.Update(ctx, record); err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("record updated",
		slog.String("recordID", id),
		slog.String("userID", ownerID),
	)
	return updated, nil
}

func (s *RecordService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.store.Records(ownerID).Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("record deleted",
		slog.String("recordID", id),
		slog.String("userID", ownerID),
	)
	return nil
}

// validateRecord enforces the same rules as the table's CHECK constraints,
// so callers get a validation error instead of a constraint failure.
func validateRecord(r *model.Record) error {
	if r.Title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if r.Artist == "" {
		return apperror.ValidationFailed("artist", "artist is required")
	}
	if r.ReleaseYear != nil && (*r.ReleaseYear < MinReleaseYear || *r.ReleaseYear > MaxReleaseYear) {
		return apperror.ValidationFailed("release_year",
			fmt.Sprintf("release_year must be between %d and %d", MinReleaseYear, MaxReleaseYear))
	}
	if r.PurchasePrice != nil && *r.PurchasePrice < 0 {
		return apperror.ValidationFailed("purchase_price", "purchase_price must not be negative")
	}
	return nil
}
