package domain

import (
	"context"
	"time"
)

// ConfigKey is the store key of the singleton configuration document.
const ConfigKey = "nav_config_v1"

// Document is the stored configuration together with its entity tag.
type Document struct {
	Body []byte
	ETag string
}

// ConfigEvent announces a successful configuration write.
type ConfigEvent struct {
	ID         string    `json:"id"`
	ETag       string    `json:"etag"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers ConfigEvents to interested listeners.
type EventPublisher interface {
	PublishConfigEvent(ctx context.Context, event *ConfigEvent) error
}

// DocumentValidator decides whether a decoded JSON value is an acceptable
// configuration document.
type DocumentValidator func(v any) bool
