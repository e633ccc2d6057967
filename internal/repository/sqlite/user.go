package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/model"
	"github.com/sakif/records-collector/internal/repository"
)

// compile-time check that userRepo implements repository.UserRepository
var _ repository.UserRepository = userRepo{}

type userRepo struct {
	q DBTX
}

const userColumns = `id, email, username, password_hash, is_active,
	discogs_username, discogs_access_token, discogs_access_token_secret,
	discogs_connected_at, last_discogs_sync, created_at, updated_at`

// CreateUser inserts user, assigning its ID and CreatedAt.
//
// A UNIQUE violation on email or username becomes apperror.ErrConflict with
// the same message the service uses for its pre-insert checks.
func (r userRepo) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "users.email") {
				return apperror.Conflict("email", "Email already registered")
			}
			return apperror.Conflict("username", "Username already taken")
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	return nil
}

// GetUserByID returns apperror.ErrNotFound if no user has that ID.
func (r userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

func (r userRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "User not found"}
		}
		return nil, fmt.Errorf("sqlite: getting user by username: %w", err)
	}
	return u, nil
}

func (r userRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email)
}

func (r userRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username)
}

func (r userRepo) exists(ctx context.Context, query, arg string) (bool, error) {
	var found bool
	if err := r.q.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("sqlite: checking existence: %w", err)
	}
	return found, nil
}

func (r userRepo) SaveDiscogsCredentials(ctx context.Context, userID string, creds model.DiscogsCredentials) error {
	if len(creds.Token) == 0 || len(creds.Secret) == 0 {
		return errors.New("sqlite: discogs token and secret must both be set")
	}
	return r.update(ctx, userID,
		`UPDATE users
		 SET discogs_username = ?, discogs_access_token = ?, discogs_access_token_secret = ?,
		     discogs_connected_at = ?, updated_at = ?
		 WHERE id = ?`,
		creds.Username, creds.Token, creds.Secret, creds.ConnectedAt.UTC(), time.Now().UTC(), userID,
	)
}

func (r userRepo) ClearDiscogsCredentials(ctx context.Context, userID string) error {
	return r.update(ctx, userID,
		`UPDATE users
		 SET discogs_username = NULL, discogs_access_token = NULL, discogs_access_token_secret = NULL,
		     discogs_connected_at = NULL, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), userID,
	)
}

func (r userRepo) TouchDiscogsSync(ctx context.Context, userID string, at time.Time) error {
	return r.update(ctx, userID,
		`UPDATE users SET last_discogs_sync = ? WHERE id = ?`,
		at.UTC(), userID,
	)
}

// update runs a single-row UPDATE and maps "no rows" to NotFound.
func (r userRepo) update(ctx context.Context, userID, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", userID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("User", userID)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.IsActive,
		&u.DiscogsUsername,
		&u.DiscogsAccessToken,
		&u.DiscogsAccessTokenSecret,
		&u.DiscogsConnectedAt,
		&u.LastDiscogsSync,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
