package model

import "time"

// Record is one item in a user's collection.
//
// Optional attributes are pointers so "absent" and "zero" stay distinct in
// both JSON and SQL (nil ↔ NULL). DiscogsID is the decimal Discogs release id;
// (UserID, DiscogsID) is unique when DiscogsID is set.
type Record struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	DiscogsID           *string    `json:"discogs_id"`
	ImportedFromDiscogs bool       `json:"imported_from_discogs"`
	Title               string     `json:"title"`
	Artist              string     `json:"artist"`
	ReleaseYear         *int       `json:"release_year"`
	Label               *string    `json:"label"`
	CatalogNumber       *string    `json:"catalog_number"`
	Genre               *string    `json:"genre"`
	MediaCondition      *string    `json:"media_condition"`
	SleeveCondition     *string    `json:"sleeve_condition"`
	Notes               *string    `json:"notes"`
	PurchasePrice       *float64   `json:"purchase_price"`
	PurchaseDate        *time.Time `json:"purchase_date"`
	AddedAt             time.Time  `json:"added_at"`
	UpdatedAt           *time.Time `json:"updated_at"`
}

// RecordPatch is a partial update. A nil field means "leave unchanged";
// there is no way to clear an optional attribute through a patch.
type RecordPatch struct {
	DiscogsID       *string
	Title           *string
	Artist          *string
	ReleaseYear     *int
	Label           *string
	CatalogNumber   *string
	Genre           *string
	MediaCondition  *string
	SleeveCondition *string
	Notes           *string
	PurchasePrice   *float64
	PurchaseDate    *time.Time
}

// Apply copies every non-nil patch field onto r.
func (p RecordPatch) Apply(r *Record) {
	if p.DiscogsID != nil {
		r.DiscogsID = p.DiscogsID
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Artist != nil {
		r.Artist = *p.Artist
	}
	if p.ReleaseYear != nil {
		r.ReleaseYear = p.ReleaseYear
	}
	if p.Label != nil {
		r.Label = p.Label
	}
	if p.CatalogNumber != nil {
		r.CatalogNumber = p.CatalogNumber
	}
	if p.Genre != nil {
		r.Genre = p.Genre
	}
	if p.MediaCondition != nil {
		r.MediaCondition = p.MediaCondition
	}
	if p.SleeveCondition != nil {
		r.SleeveCondition = p.SleeveCondition
	}
	if p.Notes != nil {
		r.Notes = p.Notes
	}
	if p.PurchasePrice != nil {
		r.PurchasePrice = p.PurchasePrice
	}
	if p.PurchaseDate != nil {
		r.PurchaseDate = p.PurchaseDate
	}
}
