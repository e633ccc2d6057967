// Package repository declares the storage contracts used by the service layer.
// The SQLite implementation lives in repository/sqlite; services only see
// these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/sakif/records-collector/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository persists accounts and their Discogs link.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	// SaveDiscogsCredentials writes username, sealed token pair and connect
	// time in one statement.
	SaveDiscogsCredentials(ctx context.Context, userID string, creds model.DiscogsCredentials) error
	// ClearDiscogsCredentials nulls the same four columns. last_discogs_sync is kept.
	ClearDiscogsCredentials(ctx context.Context, userID string) error
	TouchDiscogsSync(ctx context.Context, userID string, at time.Time) error
}

// OwnedRecords is a record repository bound to one owner. Every query it runs
// is filtered by that owner, so a record belonging to someone else behaves
// exactly like a missing one.
type OwnedRecords interface {
	Create(ctx context.Context, record *model.Record) error
	Get(ctx context.Context, id string) (*model.Record, error)
	GetByDiscogsID(ctx context.Context, discogsID string) (*model.Record, error)
	List(ctx context.Context, opts ListOptions) ([]model.Record, error)
	Update(ctx context.Context, record *model.Record) error
	Delete(ctx context.Context, id string) error
}

// Store hands out repositories over one database handle. Repositories taken
// from the Store passed to a WithinTx callback share that transaction.
type Store interface {
	Users() UserRepository
	Records(ownerID string) OwnedRecords
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
