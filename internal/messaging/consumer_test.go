package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"navdir/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []*domain.ConfigEvent
	err    error
}

func (s *recordingSink) PublishConfigEvent(_ context.Context, event *domain.ConfigEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func TestEventConsumer_HandleRelaysEvents(t *testing.T) {
	sink := &recordingSink{}
	c := NewEventConsumer(nil, sink)

	c.handle(context.Background(), []byte(`{"id":"e1","etag":"W/\"abc\"","username":"admin","occurred_at":"2026-04-01T10:00:00Z"}`))

	require.Len(t, sink.events, 1)
	assert.Equal(t, &domain.ConfigEvent{
		ID:         "e1",
		ETag:       `W/"abc"`,
		Username:   "admin",
		OccurredAt: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	}, sink.events[0])
}

func TestEventConsumer_HandleDropsMalformed(t *testing.T) {
	sink := &recordingSink{}
	c := NewEventConsumer(nil, sink)

	for _, body := range []string{``, `not json`, `[]`, `{"id":"e1"}`} {
		c.handle(context.Background(), []byte(body))
	}
	assert.Empty(t, sink.events)
}

func TestEventConsumer_SinkFailureIsNotFatal(t *testing.T) {
	sink := &recordingSink{err: errors.New("hub stopped")}
	c := NewEventConsumer(nil, sink)

	assert.NotPanics(t, func() {
		c.handle(context.Background(), []byte(`{"id":"e1","etag":"W/\"abc\""}`))
	})
	assert.Len(t, sink.events, 1)
}
