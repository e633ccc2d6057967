// Package model defines the data structures used throughout the application.
package model

import (
	"encoding/json"
	"time"
)

// User represents a registered collector account.
//
// DISCOGS CREDENTIALS:
// The Discogs access token and secret are stored encrypted (see auth.SecretBox)
// and never serialized. They are always written and cleared as a pair, so
// HasDiscogsCredentials is the single source of truth for "connected".
type User struct {
	ID           string     `json:"id"         db:"id"`
	Email        string     `json:"email"      db:"email"`
	Username     string     `json:"username"   db:"username"`
	PasswordHash string     `json:"-"          db:"password_hash"`
	IsActive     bool       `json:"is_active"  db:"is_active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at" db:"updated_at"`

	DiscogsUsername          *string    `json:"discogs_username" db:"discogs_username"`
	DiscogsAccessToken       []byte     `json:"-"                db:"discogs_access_token"`
	DiscogsAccessTokenSecret []byte     `json:"-"                db:"discogs_access_token_secret"`
	DiscogsConnectedAt       *time.Time `json:"-"                db:"discogs_connected_at"`
	LastDiscogsSync          *time.Time `json:"-"                db:"last_discogs_sync"`
}

// HasDiscogsCredentials reports whether an access token pair is stored.
func (u *User) HasDiscogsCredentials() bool {
	return len(u.DiscogsAccessToken) > 0 && len(u.DiscogsAccessTokenSecret) > 0
}

// MarshalJSON adds the derived discogs_connected flag to the public shape.
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	return json.Marshal(struct {
		plain
		DiscogsConnected bool `json:"discogs_connected"`
	}{
		plain:            plain(u),
		DiscogsConnected: u.HasDiscogsCredentials(),
	})
}

// DiscogsCredentials is the sealed token pair plus the remote identity it
// belongs to. Token and Secret hold ciphertext, not plaintext.
type DiscogsCredentials struct {
	Username    string
	Token       []byte
	Secret      []byte
	ConnectedAt time.Time
}
