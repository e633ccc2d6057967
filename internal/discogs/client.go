// Package discogs is a small Discogs API client: the OAuth1 three-legged
// handshake, the authenticated identity, and paging through a user's
// collection.
//
// OAUTH 1.0a FLOW:
// 1. RequestToken: server obtains a temporary request token + secret, signed
//    with the consumer key/secret and the callback URL
// 2. AuthorizationURL: the user is sent to discogs.com to approve access
// 3. Discogs redirects to the callback with oauth_token + oauth_verifier
// 4. AccessToken: the request pair + verifier are exchanged for a long-lived
//    access token + secret
// 5. Every API call is signed with consumer + access credentials
package discogs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"
)

const (
	DefaultAPIBaseURL      = "https://api.discogs.com"
	DefaultRequestTokenURL = "https://api.discogs.com/oauth/request_token"
	DefaultAuthorizeURL    = "https://www.discogs.com/oauth/authorize"
	DefaultAccessTokenURL  = "https://api.discogs.com/oauth/access_token"
	DefaultUserAgent       = "RecCollector/1.0"
	DefaultTimeout         = 15 * time.Second
	DefaultPerPage         = 100

	// AllFolder is the collection folder that contains every release.
	AllFolder = 0
)

// Config configures a Client. Zero-valued URL, agent, timeout and page size
// fields take the Default* values.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string

	UserAgent string
	Timeout   time.Duration
	PerPage   int

	APIBaseURL      string
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
}

// Client talks to Discogs on behalf of the application and its users.
type Client struct {
	oauth     *oauth1.Config
	apiBase   string
	userAgent string
	timeout   time.Duration
	perPage   int
}

func New(cfg Config) *Client {
	c := &Client{
		apiBase:   orDefault(cfg.APIBaseURL, DefaultAPIBaseURL),
		userAgent: orDefault(cfg.UserAgent, DefaultUserAgent),
		timeout:   cfg.Timeout,
		perPage:   cfg.PerPage,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.perPage <= 0 || c.perPage > 100 {
		c.perPage = DefaultPerPage
	}

	c.oauth = &oauth1.Config{
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		CallbackURL:    cfg.CallbackURL,
		Endpoint: oauth1.Endpoint{
			RequestTokenURL: orDefault(cfg.RequestTokenURL, DefaultRequestTokenURL),
			AuthorizeURL:    orDefault(cfg.AuthorizeURL, DefaultAuthorizeURL),
			AccessTokenURL:  orDefault(cfg.AccessTokenURL, DefaultAccessTokenURL),
		},
	}
	return c
}

// RequestToken starts the handshake (leg 1).
func (c *Client) RequestToken(ctx context.Context) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	token, secret, err := c.oauth.RequestToken()
	if err != nil {
		return Token{}, fmt.Errorf("discogs: obtaining request token: %w", err)
	}
	return Token{Token: token, Secret: secret}, nil
}

// AuthorizationURL is where the user approves the request token (leg 2).
func (c *Client) AuthorizationURL(requestToken string) (string, error) {
	u, err := c.oauth.AuthorizationURL(requestToken)
	if err != nil {
		return "", fmt.Errorf("discogs: building authorization URL: %w", err)
	}
	return u.String(), nil
}

// AccessToken exchanges an approved request token and its verifier for the
// user's access token (leg 4).
func (c *Client) AccessToken(ctx context.Context, request Token, verifier string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	token, secret, err := c.oauth.AccessToken(request.Token, request.Secret, verifier)
	if err != nil {
		return Token{}, fmt.Errorf("discogs: exchanging verifier: %w", err)
	}
	return Token{Token: token, Secret: secret}, nil
}

// Identity returns the Discogs account the access token belongs to.
func (c *Client) Identity(ctx context.Context, access Token) (*Identity, error) {
	var id Identity
	if err := c.get(ctx, access, c.apiBase+"/oauth/identity", &id); err != nil {
		return nil, err
	}
	if id.Username == "" {
		return nil, fmt.Errorf("discogs: identity response has no username")
	}
	return &id, nil
}

// CollectionReleases lazily walks every page of the user's "All" folder.
//
// Pages are fetched on demand as the sequence is consumed. A failed page
// yields (zero, err) once and ends the sequence; stopping iteration early
// fetches nothing further. An entry that does not decode yields a
// *ItemError and the walk goes on with the next entry.
func (c *Client) CollectionReleases(ctx context.Context, access Token, username string) iter.Seq2[CollectionItem, error] {
	return func(yield func(CollectionItem, error) bool) {
		client := c.httpClient(ctx, access)

		for page := 1; ; page++ {
			endpoint := fmt.Sprintf("%s/users/%s/collection/folders/%d/releases?%s",
				c.apiBase,
				url.PathEscape(username),
				AllFolder,
				url.Values{
					"page":     {strconv.Itoa(page)},
					"per_page": {strconv.Itoa(c.perPage)},
				}.Encode(),
			)

			var resp collectionPage
			if err := c.do(ctx, client, endpoint, &resp); err != nil {
				yield(CollectionItem{}, fmt.Errorf("discogs: fetching collection page %d: %w", page, err))
				return
			}

			for i, raw := range resp.Releases {
				if !yield(decodeItem(page, i, raw)) {
					return
				}
			}

			if resp.Pagination.Page >= resp.Pagination.Pages || resp.Pagination.URLs.Next == "" {
				return
			}
		}
	}
}

func (c *Client) get(ctx context.Context, access Token, endpoint string, out any) error {
	return c.do(ctx, c.httpClient(ctx, access), endpoint, out)
}

// httpClient returns an *http.Client that signs every request with the
// consumer and access credentials.
func (c *Client) httpClient(ctx context.Context, access Token) *http.Client {
	client := c.oauth.Client(ctx, oauth1.NewToken(access.Token, access.Secret))
	client.Timeout = c.timeout
	return client
}

func (c *Client) do(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("discogs: creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.discogs.v2.discogs+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("discogs: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Message string `json:"message"`
		}
		if raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)); json.Unmarshal(raw, &body) == nil {
			apiErr.Message = body.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("discogs: decoding response: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
