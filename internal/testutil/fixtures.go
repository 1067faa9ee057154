package testutil

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"navdir/internal/config"
	"navdir/internal/security"
)

// Fixed credentials used by handler and router tests.
const (
	AdminUsername = "admin"
	AdminPassword = "correct horse battery staple"
	SessionSecret = "test-session-secret-0123456789abcdef"
)

// BaseTime is the starting instant for manual clocks in tests.
var BaseTime = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// NewTestConfig returns a configuration with a production admin identity.
// Pass options to override specific fields.
func NewTestConfig(opts ...func(*config.Config)) *config.Config {
	cfg := &config.Config{
		Port:                 "8080",
		Environment:          "development",
		LogLevel:             "error",
		LogFormat:            "text",
		AdminUsername:        AdminUsername,
		AdminPasswordSHA256:  security.HashHex(AdminPassword),
		SessionSecret:        SessionSecret,
		StoreCleanupInterval: time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithoutAdmin clears the production admin identity.
func WithoutAdmin() func(*config.Config) {
	return func(c *config.Config) {
		c.AdminUsername = ""
		c.AdminPasswordSHA256 = ""
		c.SessionSecret = ""
	}
}

// WithDevAdmin enables the loopback development admin.
func WithDevAdmin() func(*config.Config) {
	return func(c *config.Config) {
		c.AllowDevDefaultAdmin = "true"
	}
}

// Link is one entry of a fixture category.
type Link struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Category groups fixture links.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Items []Link `json:"items"`
}

// NavOptions customises NewNavConfig.
type NavOptions struct {
	Title      string
	Categories []Category
}

// NewNavConfig returns a valid compact configuration document.
func NewNavConfig(opts ...func(*NavOptions)) []byte {
	o := &NavOptions{Title: "Links", Categories: []Category{}}
	for _, opt := range opts {
		opt(o)
	}

	doc := map[string]any{
		"site":       map[string]any{"title": o.Title},
		"categories": o.Categories,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

// WithTitle sets site.title.
func WithTitle(title string) func(*NavOptions) {
	return func(o *NavOptions) {
		o.Title = title
	}
}

// WithCategory appends a category holding one link per URL.
func WithCategory(name string, urls ...string) func(*NavOptions) {
	return func(o *NavOptions) {
		c := Category{ID: nextID("cat"), Name: name, Items: []Link{}}
		for _, u := range urls {
			c.Items = append(c.Items, Link{ID: nextID("link"), Name: u, URL: u})
		}
		o.Categories = append(o.Categories, c)
	}
}
