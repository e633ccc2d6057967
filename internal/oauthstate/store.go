// Package oauthstate holds in-flight OAuth1 authorizations between the
// "connect" redirect and the provider's callback.
//
// Entries live in process memory only. Each one expires after a TTL and the
// store never holds more than a fixed number of entries; when full, the
// oldest entry is evicted to make room. An entry can be taken at most once.
package oauthstate

import (
	"container/list"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL        = 15 * time.Minute
	DefaultMaxEntries = 10_000
)

// ErrNotFound is returned by Pop for unknown, expired, or already-consumed
// request tokens. Callers cannot tell these cases apart.
var ErrNotFound = errors.New("oauthstate: request not found or expired")

// Pending is one authorization awaiting its callback.
type Pending struct {
	RequestToken  string
	RequestSecret string
	UserID        string
	CreatedAt     time.Time
}

// Store is a TTL- and size-bounded map keyed by request token.
//
// Besides the map, entries sit in a list ordered by CreatedAt (oldest at the
// front), so expiry and eviction only ever look at the front.
type Store struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	entries map[string]*list.Element
	order   *list.List // of Pending, oldest first
}

type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Store. Non-positive ttl or maxEntries fall back to the defaults.
func New(ttl time.Duration, maxEntries int, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	s := &Store{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put records a pending authorization. Putting the same request token twice
// replaces the earlier entry.
func (s *Store) Put(requestToken, requestSecret, userID string) error {
	requestToken = strings.TrimSpace(requestToken)
	if requestToken == "" {
		return errors.New("oauthstate: request token is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if el, ok := s.entries[requestToken]; ok {
		s.order.Remove(el)
		delete(s.entries, requestToken)
	}
	for s.order.Len() >= s.maxEntries {
		s.removeLocked(s.order.Front())
	}

	s.entries[requestToken] = s.order.PushBack(Pending{
		RequestToken:  requestToken,
		RequestSecret: requestSecret,
		UserID:        userID,
		CreatedAt:     now,
	})
	return nil
}

// Pop removes and returns the entry for requestToken.
func (s *Store) Pop(requestToken string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(s.now())

	el, ok := s.entries[strings.TrimSpace(requestToken)]
	if !ok {
		return Pending{}, ErrNotFound
	}
	p := el.Value.(Pending)
	s.removeLocked(el)
	return p, nil
}

// Sweep drops every expired entry and reports how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Len reports the number of live entries, expired ones included until the
// next sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for el := s.order.Front(); el != nil; el = s.order.Front() {
		if now.Sub(el.Value.(Pending).CreatedAt) < s.ttl {
			break
		}
		s.removeLocked(el)
		removed++
	}
	return removed
}

func (s *Store) removeLocked(el *list.Element) {
	p := s.order.Remove(el).(Pending)
	delete(s.entries, p.RequestToken)
}
