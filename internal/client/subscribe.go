package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"navdir/internal/domain"

	"github.com/gorilla/websocket"
)

type eventFrame struct {
	Type  string              `json:"type"`
	Event *domain.ConfigEvent `json:"event"`
}

// Subscribe streams config change events to fn until ctx is done or the
// server closes the connection. It needs a signed-in API.
func (a *API) Subscribe(ctx context.Context, fn func(domain.ConfigEvent)) error {
	header := http.Header{}
	if token := a.Session(); token != "" {
		header.Set("Cookie", (&http.Cookie{Name: SessionCookieName, Value: token}).String())
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, a.EventsURL(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read events: %w", err)
		}
		var frame eventFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == nil {
			continue
		}
		fn(*frame.Event)
	}
}

// Watch reloads s whenever the server announces a new document.
func Watch(ctx context.Context, api *API, s *Syncer, onReload func(ReloadOutcome, error)) error {
	return api.Subscribe(ctx, func(domain.ConfigEvent) {
		outcome, err := s.Reload(ctx)
		if onReload != nil {
			onReload(outcome, err)
		}
	})
}
