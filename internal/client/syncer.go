package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"navdir/internal/clock"
	"navdir/internal/domain"
)

const (
	// DefaultStaleWindow is how long after a local save a differing server
	// read is treated as stale rather than adopted.
	DefaultStaleWindow = 60 * time.Second
	// DefaultRetryDelay is the wait before re-reading after a stale read.
	DefaultRetryDelay = 2 * time.Second
)

// ConfigAPI is the part of *API the syncer needs.
type ConfigAPI interface {
	GetConfig(ctx context.Context) (*domain.Document, error)
	PutConfig(ctx context.Context, body []byte, ifMatch string) (string, error)
}

// ReloadOutcome says what Reload did with the server's answer.
type ReloadOutcome int

const (
	// ReloadAdopted means the fetched document replaced the cache.
	ReloadAdopted ReloadOutcome = iota
	// ReloadDeferred means the fetch looked stale; one retry is scheduled.
	ReloadDeferred
	// ReloadMissing means the server has no document; the cache is kept.
	ReloadMissing
)

func (o ReloadOutcome) String() string {
	switch o {
	case ReloadAdopted:
		return "adopted"
	case ReloadDeferred:
		return "deferred"
	case ReloadMissing:
		return "missing"
	}
	return "unknown"
}

// SaveResult classifies the outcome of Save.
type SaveResult int

const (
	SaveOK SaveResult = iota
	// SaveConflict means the server holds a newer document. The cache is
	// untouched; reload and retry.
	SaveConflict
	SaveFailed
)

func (r SaveResult) String() string {
	switch r {
	case SaveOK:
		return "ok"
	case SaveConflict:
		return "conflict"
	}
	return "failed"
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithStaleWindow overrides DefaultStaleWindow.
func WithStaleWindow(d time.Duration) Option {
	return func(s *Syncer) { s.staleWindow = d }
}

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Syncer) { s.retryDelay = d }
}

// WithLogger sets the logger used for background retries.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// Syncer reconciles the local cache with the server. A read that arrives
// shortly after our own save and disagrees with it is assumed to predate the
// save and is not allowed to overwrite it.
type Syncer struct {
	api         ConfigAPI
	cache       *FileCache
	clock       clock.Clock
	log         *slog.Logger
	staleWindow time.Duration
	retryDelay  time.Duration

	mu           sync.Mutex
	entry        Entry
	retryPending bool
	retries      sync.WaitGroup
}

// NewSyncer starts from whatever the cache holds. cache may be nil to keep
// state in memory only.
func NewSyncer(api ConfigAPI, cache *FileCache, c clock.Clock, opts ...Option) (*Syncer, error) {
	if c == nil {
		c = clock.Real{}
	}
	s := &Syncer{
		api:         api,
		cache:       cache,
		clock:       c,
		log:         slog.Default(),
		staleWindow: DefaultStaleWindow,
		retryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cache != nil {
		entry, err := cache.Load()
		if err != nil {
			return nil, err
		}
		if entry != nil {
			s.entry = *entry
		}
	}
	return s, nil
}

// Entry returns a copy of the current state.
func (s *Syncer) Entry() Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry
}

// Reload fetches the document and adopts it unless it looks stale. A stale
// read schedules one retry after the retry delay; ctx bounds that retry too.
func (s *Syncer) Reload(ctx context.Context) (ReloadOutcome, error) {
	doc, err := s.api.GetConfig(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return ReloadMissing, nil
	}
	if err != nil {
		return 0, err
	}

	var decoded any
	if err := json.Unmarshal(doc.Body, &decoded); err != nil || !domain.IsNavConfig(decoded) {
		return 0, fmt.Errorf("server returned an invalid document")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.likelyStaleLocked(doc.ETag) {
		s.scheduleRetryLocked(ctx)
		return ReloadDeferred, nil
	}

	next := s.entry
	next.JSON = string(doc.Body)
	next.ETag = optional(doc.ETag)
	if err := s.storeLocked(next); err != nil {
		return 0, err
	}
	return ReloadAdopted, nil
}

// Save writes doc conditionally on the cached ETag.
func (s *Syncer) Save(ctx context.Context, doc []byte) (SaveResult, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return SaveFailed, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}

	s.mu.Lock()
	ifMatch := ""
	if s.entry.ETag != nil {
		ifMatch = *s.entry.ETag
	}
	s.mu.Unlock()

	etag, err := s.api.PutConfig(ctx, compact.Bytes(), ifMatch)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return SaveConflict, err
		}
		return SaveFailed, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := Entry{JSON: compact.String(), ETag: s.entry.ETag}
	if etag != "" {
		next.ETag = optional(etag)
	}
	now := clock.NowMs(s.clock)
	next.MutatedAtMs = &now
	if err := s.storeLocked(next); err != nil {
		return SaveFailed, err
	}
	return SaveOK, nil
}

// Follow adopts entries other processes write to the shared cache until ctx
// is done.
func (s *Syncer) Follow(ctx context.Context) error {
	if s.cache == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.cache.Watch(ctx, func(e Entry) {
		s.mu.Lock()
		s.entry = e
		s.mu.Unlock()
	})
}

// Wait blocks until no retry is scheduled.
func (s *Syncer) Wait() {
	s.retries.Wait()
}

func (s *Syncer) likelyStaleLocked(fetched string) bool {
	if s.entry.MutatedAtMs == nil || s.entry.ETag == nil || fetched == "" {
		return false
	}
	if *s.entry.ETag == fetched {
		return false
	}
	age := time.Duration(clock.NowMs(s.clock)-*s.entry.MutatedAtMs) * time.Millisecond
	return age >= 0 && age < s.staleWindow
}

func (s *Syncer) scheduleRetryLocked(ctx context.Context) {
	if s.retryPending {
		return
	}
	s.retryPending = true
	s.retries.Add(1)

	timer := s.clock.After(s.retryDelay)
	go func() {
		defer s.retries.Done()

		select {
		case <-timer:
		case <-ctx.Done():
			s.mu.Lock()
			s.retryPending = false
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		s.retryPending = false
		s.mu.Unlock()

		if outcome, err := s.Reload(ctx); err != nil {
			s.log.Warn("config reload retry failed", "error", err)
		} else {
			s.log.Debug("config reload retried", "outcome", outcome.String())
		}
	}()
}

func (s *Syncer) storeLocked(next Entry) error {
	s.entry = next
	if s.cache == nil {
		return nil
	}
	return s.cache.Store(next)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
