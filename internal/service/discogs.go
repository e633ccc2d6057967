package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/records-collector/internal/apperror"
	"github.com/sakif/records-collector/internal/auth"
	"github.com/sakif/records-collector/internal/discogs"
	"github.com/sakif/records-collector/internal/model"
	"github.com/sakif/records-collector/internal/oauthstate"
	"github.com/sakif/records-collector/internal/repository"
)

// Catalog is the part of the Discogs API the import flow needs.
// *discogs.Client implements it; tests substitute a fake.
type Catalog interface {
	RequestToken(ctx context.Context) (discogs.Token, error)
	AuthorizationURL(requestToken string) (string, error)
	AccessToken(ctx context.Context, request discogs.Token, verifier string) (discogs.Token, error)
	Identity(ctx context.Context, access discogs.Token) (*discogs.Identity, error)
	CollectionReleases(ctx context.Context, access discogs.Token, username string) iter.Seq2[discogs.CollectionItem, error]
}

var _ Catalog = (*discogs.Client)(nil)

const (
	unknownArtist = "Unknown Artist"
	unknownGenre  = "N/A"
)

// DiscogsService links accounts to Discogs and imports their collections.
//
// CONNECTION LIFECYCLE:
//
//	Disconnected ──BeginConnect──▶ Pending ──CompleteCallback──▶ Connected
//	     ▲                                                            │
//	     └─────────────────────────Disconnect─────────────────────────┘
//
// Pending authorizations live in the oauthstate.Store, not the database.
// A user with a stored access token pair is Connected.
type DiscogsService struct {
	store   repository.Store
	catalog Catalog
	box     *auth.SecretBox
	pending *oauthstate.Store
	now     func() time.Time
	logger  *slog.Logger
}

func NewDiscogsService(
	store repository.Store,
	catalog Catalog,
	box *auth.SecretBox,
	pending *oauthstate.Store,
	logger *slog.Logger,
) *DiscogsService {
	return &DiscogsService{
		store:   store,
		catalog: catalog,
		box:     box,
		pending: pending,
		now:     time.Now,
		logger:  logger,
	}
}

// Status is the connection summary returned by GET /discogs/status.
type Status struct {
	Connected       bool       `json:"connected"`
	DiscogsUsername *string    `json:"discogs_username"`
	ConnectedAt     *time.Time `json:"connected_at"`
	LastSync        *time.Time `json:"last_sync"`
}

// ImportResult counts what one import run did.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

func (r ImportResult) Message() string {
	return fmt.Sprintf("Import complete: %d created, %d updated, %d errors", r.Created, r.Updated, r.Errors)
}

// Status reports the user's connection state. It never calls Discogs.
func (s *DiscogsService) Status(user *model.User) Status {
	return Status{
		Connected:       user.HasDiscogsCredentials(),
		DiscogsUsername: user.DiscogsUsername,
		ConnectedAt:     user.DiscogsConnectedAt,
		LastSync:        user.LastDiscogsSync,
	}
}

// BeginConnect obtains a request token, remembers it for the callback and
// returns the URL the user must visit to approve access.
func (s *DiscogsService) BeginConnect(ctx context.Context, userID string) (string, error) {
	rt, err := s.catalog.RequestToken(ctx)
	if err != nil {
		s.logger.Error("discogs request token failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return "", apperror.Upstream("Failed to start Discogs authorization", err)
	}

	authorizeURL, err := s.catalog.AuthorizationURL(rt.Token)
	if err != nil {
		return "", apperror.Upstream("Failed to start Discogs authorization", err)
	}

	if err := s.pending.Put(rt.Token, rt.Secret, userID); err != nil {
		return "", apperror.Upstream("Failed to start Discogs authorization", err)
	}

	s.logger.Info("discogs authorization started", slog.String("userID", userID))
	return authorizeURL, nil
}

// CompleteCallback finishes the handshake started by BeginConnect and stores
// the sealed access token pair. It returns the linked Discogs username.
//
// The pending entry is consumed even when a later step fails, so a callback
// URL can only be used once.
func (s *DiscogsService) CompleteCallback(ctx context.Context, requestToken, verifier string) (string, error) {
	p, err := s.pending.Pop(requestToken)
	if err != nil {
		return "", apperror.BadRequest("Invalid or expired OAuth request")
	}

	users := s.store.Users()
	if _, err := users.GetUserByID(ctx, p.UserID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", &apperror.AppError{Err: apperror.ErrNotFound, Message: "User not found"}
		}
		return "", fmt.Errorf("loading user %s: %w", p.UserID, err)
	}

	access, err := s.catalog.AccessToken(ctx, discogs.Token{Token: p.RequestToken, Secret: p.RequestSecret}, verifier)
	if err != nil {
		return "", oauthFailed(err)
	}

	identity, err := s.catalog.Identity(ctx, access)
	if err != nil {
		return "", oauthFailed(err)
	}

	sealedToken, err := s.box.Encrypt(access.Token)
	if err != nil {
		return "", fmt.Errorf("sealing access token: %w", err)
	}
	sealedSecret, err := s.box.Encrypt(access.Secret)
	if err != nil {
		return "", fmt.Errorf("sealing access secret: %w", err)
	}

	err = users.SaveDiscogsCredentials(ctx, p.UserID, model.DiscogsCredentials{
		Username:    identity.Username,
		Token:       sealedToken,
		Secret:      sealedSecret,
		ConnectedAt: s.now().UTC(),
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("discogs account connected",
		slog.String("userID", p.UserID),
		slog.String("discogsUsername", identity.Username),
	)
	return identity.Username, nil
}

func oauthFailed(err error) error {
	return apperror.Upstream("Failed to complete OAuth: "+err.Error(), err)
}

// Import pulls the user's whole Discogs collection into their records.
//
// Releases already imported (same owner and Discogs id) are updated, the rest
// are created. A release that cannot be decoded, mapped or stored is counted
// in Errors and skipped. A failure to fetch a page aborts the run before
// anything is written. The collection is fetched in full before the
// transaction opens, so no database connection is held across Discogs round
// trips, and all writes commit together.
func (s *DiscogsService) Import(ctx context.Context, userID string) (ImportResult, error) {
	user, err := s.store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return ImportResult{}, err
	}
	if !user.HasDiscogsCredentials() {
		return ImportResult{}, apperror.BadRequest("Discogs account not connected. Use /discogs/connect first.")
	}

	access, err := s.openCredentials(user)
	if err != nil {
		return ImportResult{}, apperror.ImportFailed(err)
	}

	identity, err := s.catalog.Identity(ctx, access)
	if err != nil {
		return ImportResult{}, apperror.ImportFailed(err)
	}

	items, skipped, err := s.fetchCollection(ctx, userID, access, identity.Username)
	if err != nil {
		s.logger.Error("discogs import failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return ImportResult{}, apperror.ImportFailed(err)
	}

	var result ImportResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		result = ImportResult{Errors: skipped}
		records := tx.Records(userID)

		for _, item := range items {
			created, err := s.importItem(ctx, records, item)
			switch {
			case err != nil:
				result.Errors++
				s.logger.Warn("discogs release skipped",
					slog.String("userID", userID),
					slog.String("releaseID", item.ReleaseID()),
					slog.String("error", err.Error()),
				)
			case created:
				result.Created++
			default:
				result.Updated++
			}
		}

		return tx.Users().TouchDiscogsSync(ctx, userID, s.now().UTC())
	})
	if err != nil {
		s.logger.Error("discogs import failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return ImportResult{}, apperror.ImportFailed(err)
	}

	s.logger.Info("discogs import finished",
		slog.String("userID", userID),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("errors", result.Errors),
	)
	return result, nil
}

// fetchCollection drains the collection sequence. Entries that failed to
// decode are logged and counted in skipped; any other error ends the fetch.
func (s *DiscogsService) fetchCollection(ctx context.Context, userID string, access discogs.Token, username string) (items []discogs.CollectionItem, skipped int, err error) {
	for item, err := range s.catalog.CollectionReleases(ctx, access, username) {
		var itemErr *discogs.ItemError
		switch {
		case errors.As(err, &itemErr):
			skipped++
			s.logger.Warn("discogs release skipped",
				slog.String("userID", userID),
				slog.String("releaseID", itemErr.ReleaseID),
				slog.String("error", itemErr.Error()),
			)
		case err != nil:
			return nil, 0, err
		default:
			items = append(items, item)
		}
	}
	return items, skipped, nil
}

// importItem upserts one release. It reports whether a new record was created.
func (s *DiscogsService) importItem(ctx context.Context, records repository.OwnedRecords, item discogs.CollectionItem) (bool, error) {
	fields, err := recordFromRelease(item)
	if err != nil {
		return false, err
	}
	if year := item.BasicInformation.Year; year != 0 && fields.ReleaseYear == nil {
		s.logger.Warn("discogs release year out of range, importing without year",
			slog.String("releaseID", *fields.DiscogsID),
			slog.Int("year", year),
		)
	}

	existing, err := records.GetByDiscogsID(ctx, *fields.DiscogsID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return true, records.Create(ctx, fields)
	case err != nil:
		return false, err
	}

	existing.Title = fields.Title
	existing.Artist = fields.Artist
	existing.ReleaseYear = fields.ReleaseYear
	existing.Label = fields.Label
	existing.CatalogNumber = fields.CatalogNumber
	existing.Genre = fields.Genre
	existing.ImportedFromDiscogs = true
	return false, records.Update(ctx, existing)
}

// recordFromRelease maps the catalog fields of a collection item. Personal
// fields (conditions, notes, purchase data) are left for the user.
func recordFromRelease(item discogs.CollectionItem) (*model.Record, error) {
	releaseID := item.ReleaseID()
	if releaseID == "" {
		return nil, errors.New("release has no id")
	}

	info := item.BasicInformation
	title := strings.TrimSpace(info.Title)
	if title == "" {
		return nil, fmt.Errorf("release %s has no title", releaseID)
	}

	artists := make([]string, 0, len(info.Artists))
	for _, a := range info.Artists {
		if name := strings.TrimSpace(a.Name); name != "" {
			artists = append(artists, name)
		}
	}
	artist := unknownArtist
	if len(artists) > 0 {
		artist = strings.Join(artists, ", ")
	}

	genre := unknownGenre
	if len(info.Genres) > 0 {
		genre = strings.Join(info.Genres, ", ")
	}

	r := &model.Record{
		DiscogsID:           &releaseID,
		ImportedFromDiscogs: true,
		Title:               title,
		Artist:              artist,
		Genre:               &genre,
	}

	// Years outside the accepted range (e.g. pre-1900 78s) are dropped, not
	// the release.
	if info.Year >= MinReleaseYear && info.Year <= MaxReleaseYear {
		year := info.Year
		r.ReleaseYear = &year
	}

	if len(info.Labels) > 0 {
		label, catno := info.Labels[0].Name, info.Labels[0].CatNo
		r.Label = &label
		r.CatalogNumber = &catno
	}

	return r, nil
}

// Disconnect forgets the stored token pair and Discogs username. Imported
// records stay.
func (s *DiscogsService) Disconnect(ctx context.Context, userID string) error {
	users := s.store.Users()

	user, err := users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasDiscogsCredentials() {
		return apperror.BadRequest("Discogs account not connected")
	}

	if err := users.ClearDiscogsCredentials(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("discogs account disconnected", slog.String("userID", userID))
	return nil
}

func (s *DiscogsService) openCredentials(user *model.User) (discogs.Token, error) {
	token, err := s.box.Decrypt(user.DiscogsAccessToken)
	if err != nil {
		return discogs.Token{}, fmt.Errorf("opening access token: %w", err)
	}
	secret, err := s.box.Decrypt(user.DiscogsAccessTokenSecret)
	if err != nil {
		return discogs.Token{}, fmt.Errorf("opening access secret: %w", err)
	}
	return discogs.Token{Token: token, Secret: secret}, nil
}
