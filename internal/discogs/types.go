package discogs

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Token is an OAuth1 token/secret pair (request or access).
type Token struct {
	Token  string
	Secret string
}

// Identity is the response of GET /oauth/identity.
type Identity struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	ResourceURL  string `json:"resource_url"`
	ConsumerName string `json:"consumer_name"`
}

// Pagination is the paging envelope Discogs wraps list responses in.
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
	URLs    struct {
		Next string `json:"next"`
		Last string `json:"last"`
	} `json:"urls"`
}

// Releases stay raw so a malformed entry fails on its own, not the page.
type collectionPage struct {
	Pagination Pagination        `json:"pagination"`
	Releases   []json.RawMessage `json:"releases"`
}

// CollectionItem is one release instance in a user's collection folder.
type CollectionItem struct {
	ID               int64            `json:"id"`
	InstanceID       int64            `json:"instance_id"`
	FolderID         int64            `json:"folder_id"`
	Rating           int              `json:"rating"`
	DateAdded        string           `json:"date_added"`
	BasicInformation BasicInformation `json:"basic_information"`
}

// ReleaseID returns the Discogs release id as a decimal string, or "" if the
// item carries none.
func (c CollectionItem) ReleaseID() string {
	id := c.ID
	if id == 0 {
		id = c.BasicInformation.ID
	}
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

type BasicInformation struct {
	ID      int64       `json:"id"`
	Title   string      `json:"title"`
	Year    int         `json:"year"`
	Artists []ArtistRef `json:"artists"`
	Labels  []LabelRef  `json:"labels"`
	Genres  []string    `json:"genres"`
	Styles  []string    `json:"styles"`
	Formats []FormatRef `json:"formats"`
}

type ArtistRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	ANV  string `json:"anv"`
	Join string `json:"join"`
}

type LabelRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	CatNo string `json:"catno"`
}

type FormatRef struct {
	Name         string   `json:"name"`
	Qty          string   `json:"qty"`
	Descriptions []string `json:"descriptions"`
}

// APIError is returned for non-2xx responses from the Discogs API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("discogs: API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("discogs: API returned status %d", e.StatusCode)
}

// ItemError reports a collection entry that could not be decoded. The rest of
// the page is still yielded after it.
type ItemError struct {
	Page      int
	Index     int
	ReleaseID string // best effort, "" when the id itself is unreadable
	Err       error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("discogs: decoding release %d on page %d: %v", e.Index, e.Page, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// decodeItem unmarshals one raw collection entry.
func decodeItem(page, index int, raw json.RawMessage) (CollectionItem, error) {
	var item CollectionItem
	if err := json.Unmarshal(raw, &item); err != nil {
		itemErr := &ItemError{Page: page, Index: index, Err: err}
		var ids struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(raw, &ids) == nil && ids.ID != 0 {
			itemErr.ReleaseID = strconv.FormatInt(ids.ID, 10)
		}
		return CollectionItem{}, itemErr
	}
	return item, nil
}
