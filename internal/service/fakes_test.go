package service

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/discogs"
	"github.com/sakif/records-collector/internal/model"
	"github.com/sakif/records-collector/internal/repository"
	"github.com/sakif/records-collector/internal/repository/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestStore opens an in-memory database with the schema applied.
func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, store repository.Store, username string) *model.User {
	t.Helper()
	u := &model.User{
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "$2a$04$notarealhash",
		IsActive:     true,
	}
	require.NoError(t, store.Users().CreateUser(context.Background(), u))
	return u
}

// ─── fakeUserRepo ───────────────────────────────────────────────────────────

// fakeUserRepo is an in-memory UserRepository. The err fields, when set, are
// returned by the matching method.
type fakeUserRepo struct {
	byID map[string]*model.User

	existsErr error
	createErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[string]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if u.ID == "" {
		u.ID = "user-" + u.Username
	}
	u.CreatedAt = time.Now().UTC()
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("User", id)
	}
	return u, nil
}

func (f *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "User not found"}
}

func (f *fakeUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, u := range f.byID {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) SaveDiscogsCredentials(context.Context, string, model.DiscogsCredentials) error {
	return errors.New("not implemented")
}

func (f *fakeUserRepo) ClearDiscogsCredentials(context.Context, string) error {
	return errors.New("not implemented")
}

func (f *fakeUserRepo) TouchDiscogsSync(context.Context, string, time.Time) error {
	return errors.New("not implemented")
}

// ─── fakeCatalog ────────────────────────────────────────────────────────────

// fakeCatalog serves canned Discogs responses. pages holds the collection one
// page per slice; pageErr, if set, is yielded after failAfterPages pages.
type fakeCatalog struct {
	requestToken discogs.Token
	requestErr   error

	access    discogs.Token
	accessErr error
	// gotVerifier and gotRequest capture the last AccessToken call.
	gotVerifier string
	gotRequest  discogs.Token

	username    string
	identityErr error
	// gotIdentity captures the access token Identity was called with.
	gotIdentity discogs.Token

	pages          [][]discogs.CollectionItem
	pageErr        error
	failAfterPages int
	gotCollection  string
	// When gate is set, the first page is held until it is closed; fetching
	// is closed once the hold starts.
	gate     chan struct{}
	fetching chan struct{}
}

func (f *fakeCatalog) RequestToken(context.Context) (discogs.Token, error) {
	if f.requestErr != nil {
		return discogs.Token{}, f.requestErr
	}
	return f.requestToken, nil
}

func (f *fakeCatalog) AuthorizationURL(requestToken string) (string, error) {
	return "https://discogs.test/oauth/authorize?oauth_token=" + requestToken, nil
}

func (f *fakeCatalog) AccessToken(_ context.Context, request discogs.Token, verifier string) (discogs.Token, error) {
	f.gotRequest = request
	f.gotVerifier = verifier
	if f.accessErr != nil {
		return discogs.Token{}, f.accessErr
	}
	return f.access, nil
}

func (f *fakeCatalog) Identity(_ context.Context, access discogs.Token) (*discogs.Identity, error) {
	f.gotIdentity = access
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	return &discogs.Identity{ID: 1, Username: f.username}, nil
}

func (f *fakeCatalog) CollectionReleases(_ context.Context, _ discogs.Token, username string) iter.Seq2[discogs.CollectionItem, error] {
	f.gotCollection = username
	return func(yield func(discogs.CollectionItem, error) bool) {
		if f.gate != nil {
			close(f.fetching)
			<-f.gate
		}
		for i, page := range f.pages {
			if f.pageErr != nil && i == f.failAfterPages {
				yield(discogs.CollectionItem{}, f.pageErr)
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
		}
		if f.pageErr != nil && f.failAfterPages >= len(f.pages) {
			yield(discogs.CollectionItem{}, f.pageErr)
		}
	}
}

func release(id int64, title string, year int, artists ...string) discogs.CollectionItem {
	refs := make([]discogs.ArtistRef, 0, len(artists))
	for _, a := range artists {
		refs = append(refs, discogs.ArtistRef{Name: a})
	}
	return discogs.CollectionItem{
		ID: id,
		BasicInformation: discogs.BasicInformation{
			ID:      id,
			Title:   title,
			Year:    year,
			Artists: refs,
		},
	}
}

func ptr[T any](v T) *T { return &v }
