package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"navdir/internal/clock"
	"navdir/internal/domain"
	"navdir/internal/observability"
	"navdir/internal/security"

	"github.com/google/uuid"
)

// ETag derives the weak entity tag of a stored document.
func ETag(body []byte) string {
	return `W/"` + security.HashHex(string(body)) + `"`
}

// ConfigService reads and conditionally writes the singleton configuration
// document.
type ConfigService struct {
	store     domain.KVStore
	validate  domain.DocumentValidator
	publisher domain.EventPublisher
	clock     clock.Clock
}

// NewConfigService wires the document store. store may be nil, in which case
// every call fails with domain.ErrNotConfigured. publisher may be nil.
func NewConfigService(store domain.KVStore, validate domain.DocumentValidator, publisher domain.EventPublisher, c clock.Clock) *ConfigService {
	if validate == nil {
		validate = domain.IsNavConfig
	}
	if c == nil {
		c = clock.Real{}
	}
	return &ConfigService{store: store, validate: validate, publisher: publisher, clock: c}
}

func (s *ConfigService) Configured() bool {
	return s != nil && s.store != nil
}

// Read returns the stored document exactly as persisted.
func (s *ConfigService) Read(ctx context.Context) (*domain.Document, error) {
	if !s.Configured() {
		return nil, domain.ErrNotConfigured
	}

	raw, err := s.store.Get(ctx, domain.ConfigKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	if len(raw) == 0 {
		return nil, domain.ErrNotFound
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil || !s.validate(decoded) {
		return nil, domain.ErrCorruptDocument
	}

	return &domain.Document{Body: raw, ETag: ETag(raw)}, nil
}

// Write validates body, stores its compact form and returns the new
// document. A non-blank ifMatch must equal the current ETag, otherwise a
// *domain.ConflictError carrying the current tag (nil when nothing is stored)
// is returned and nothing is written.
func (s *ConfigService) Write(ctx context.Context, username string, body []byte, ifMatch string) (*domain.Document, error) {
	if !s.Configured() {
		return nil, domain.ErrNotConfigured
	}
	log := observability.FromContext(ctx)

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil || !s.validate(decoded) {
		observability.ConfigWritesTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidDocument
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		observability.ConfigWritesTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidDocument
	}
	doc := &domain.Document{Body: compact.Bytes(), ETag: ETag(compact.Bytes())}

	ifMatch = strings.TrimSpace(ifMatch)
	check := func(current []byte, found bool) error {
		if ifMatch == "" {
			return nil
		}
		if !found || len(current) == 0 {
			return &domain.ConflictError{}
		}
		currentTag := ETag(current)
		if currentTag != ifMatch {
			return &domain.ConflictError{ETag: &currentTag}
		}
		return nil
	}

	if err := s.put(ctx, doc.Body, check); err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			observability.ConfigWritesTotal.WithLabelValues("conflict").Inc()
			log.Warn("config write rejected by precondition", "if_match", ifMatch)
			return nil, err
		}
		observability.ConfigWritesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	observability.ConfigWritesTotal.WithLabelValues("ok").Inc()
	log.Info("config document saved", "etag", doc.ETag, "bytes", len(doc.Body))

	s.publish(ctx, username, doc.ETag)
	return doc, nil
}

func (s *ConfigService) put(ctx context.Context, body []byte, check domain.PutCheck) error {
	if cs, ok := s.store.(domain.ConditionalStore); ok {
		return cs.CompareAndPut(ctx, domain.ConfigKey, body, 0, check)
	}

	current, err := s.store.Get(ctx, domain.ConfigKey)
	found := true
	if errors.Is(err, domain.ErrNotFound) {
		current, found = nil, false
	} else if err != nil {
		return err
	}
	if err := check(current, found); err != nil {
		return err
	}
	return s.store.Put(ctx, domain.ConfigKey, body, 0)
}

func (s *ConfigService) publish(ctx context.Context, username, etag string) {
	if s.publisher == nil {
		return
	}
	event := &domain.ConfigEvent{
		ID:         uuid.New().String(),
		ETag:       etag,
		Username:   username,
		OccurredAt: s.clock.Now().UTC(),
	}
	if err := s.publisher.PublishConfigEvent(ctx, event); err != nil {
		observability.FromContext(ctx).Warn("failed to publish config event", "error", err, "event_id", event.ID)
	}
}
