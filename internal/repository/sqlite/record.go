package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/model"
	"github.com/sakif/records-collector/internal/repository"
)

var _ repository.OwnedRecords = ownedRecords{}

// ownedRecords is the record repository for a single owner.
//
// OWNERSHIP:
// Every statement below carries "user_id = ?" bound to ownerID. There is no
// method that reaches a record by id alone, so a foreign record is
// indistinguishable from a missing one.
type ownedRecords struct {
	q       DBTX
	ownerID string
}

const recordColumns = `id, user_id, discogs_id, imported_from_discogs, title, artist,
	release_year, label, catalog_number, genre, media_condition, sleeve_condition,
	notes, purchase_price, purchase_date, added_at, updated_at`

// Create inserts record for the bound owner. ID, UserID and AddedAt are
// assigned here; whatever the caller put in them is overwritten.
func (r ownedRecords) Create(ctx context.Context, record *model.Record) error {
	record.ID = xid.New().String()
	record.UserID = r.ownerID
	record.AddedAt = time.Now().UTC()
	record.UpdatedAt = nil

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.DiscogsID,
		record.ImportedFromDiscogs,
		record.Title,
		record.Artist,
		record.ReleaseYear,
		record.Label,
		record.CatalogNumber,
		record.Genre,
		record.MediaCondition,
		record.SleeveCondition,
		record.Notes,
		record.PurchasePrice,
		utcPtr(record.PurchaseDate),
		record.AddedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return discogsConflict(record.DiscogsID)
		}
		return fmt.Errorf("sqlite: creating record: %w", err)
	}
	return nil
}

// Get returns apperror.ErrNotFound when the record is missing or not owned.
func (r ownedRecords) Get(ctx context.Context, id string) (*model.Record, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ? AND user_id = ?`,
		id, r.ownerID,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Record", id)
		}
		return nil, fmt.Errorf("sqlite: getting record %s: %w", id, err)
	}
	return rec, nil
}

// GetByDiscogsID looks up the owner's record imported from a given release.
func (r ownedRecords) GetByDiscogsID(ctx context.Context, discogsID string) (*model.Record, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE user_id = ? AND discogs_id = ?`,
		r.ownerID, discogsID,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrNotFound,
				Message: fmt.Sprintf("Record with discogs_id %s not found", discogsID),
			}
		}
		return nil, fmt.Errorf("sqlite: getting record by discogs_id %s: %w", discogsID, err)
	}
	return rec, nil
}

// List returns the owner's records in ascending id order. xid ids sort by
// creation time, so this is insertion order.
func (r ownedRecords) List(ctx context.Context, opts repository.ListOptions) ([]model.Record, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE user_id = ?
		 ORDER BY id ASC
		 LIMIT ? OFFSET ?`,
		r.ownerID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing records: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning record row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating record rows: %w", err)
	}

	return records, nil
}

// Update writes every mutable column of record and stamps UpdatedAt.
// Owner, AddedAt and ID are never changed.
func (r ownedRecords) Update(ctx context.Context, record *model.Record) error {
	now := time.Now().UTC()

	result, err := r.q.ExecContext(ctx,
		`UPDATE records
		 SET discogs_id = ?, imported_from_discogs = ?, title = ?, artist = ?,
		     release_year = ?, label = ?, catalog_number = ?, genre = ?,
		     media_condition = ?, sleeve_condition = ?, notes = ?,
		     purchase_price = ?, purchase_date = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		record.DiscogsID,
		record.ImportedFromDiscogs,
		record.Title,
		record.Artist,
		record.ReleaseYear,
		record.Label,
		record.CatalogNumber,
		record.Genre,
		record.MediaCondition,
		record.SleeveCondition,
		record.Notes,
		record.PurchasePrice,
		utcPtr(record.PurchaseDate),
		now,
		record.ID,
		r.ownerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return discogsConflict(record.DiscogsID)
		}
		return fmt.Errorf("sqlite: updating record %s: %w", record.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("Record", record.ID)
	}

	record.UpdatedAt = &now
	return nil
}

func (r ownedRecords) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx,
		`DELETE FROM records WHERE id = ? AND user_id = ?`,
		id, r.ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting record %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("Record", id)
	}
	return nil
}

func scanRecord(row rowScanner) (*model.Record, error) {
	var (
		rec    model.Record
		userID sql.NullString
	)
	err := row.Scan(
		&rec.ID,
		&userID,
		&rec.DiscogsID,
		&rec.ImportedFromDiscogs,
		&rec.Title,
		&rec.Artist,
		&rec.ReleaseYear,
		&rec.Label,
		&rec.CatalogNumber,
		&rec.Genre,
		&rec.MediaCondition,
		&rec.SleeveCondition,
		&rec.Notes,
		&rec.PurchasePrice,
		&rec.PurchaseDate,
		&rec.AddedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.UserID = userID.String
	return &rec, nil
}

func discogsConflict(discogsID *string) error {
	id := ""
	if discogsID != nil {
		id = *discogsID
	}
	return apperror.Conflict("discogs_id", fmt.Sprintf("Record with discogs_id %s already exists", id))
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
