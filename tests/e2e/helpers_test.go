//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"navdir/internal/client"
	"navdir/internal/domain"

	"github.com/stretchr/testify/require"
)

// loginTo returns a client signed in to inst.
func loginTo(t *testing.T, inst *instance) *client.API {
	t.Helper()
	api, err := client.NewAPI(inst.server.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = api.Login(ctx, adminUsername, adminPassword)
	require.NoError(t, err, "login to instance %s", inst.name)
	return api
}

// clearLoginThrottle removes the lockout record loopback clients share.
func clearLoginThrottle(t *testing.T) {
	t.Helper()
	require.NoError(t, instanceA.store.Delete(context.Background(), "login_rate_v1:127.0.0.1"))
}

// navDocument builds a small valid document whose title makes it unique.
func navDocument(title string) []byte {
	return []byte(fmt.Sprintf(`{"site":{"title":%q},"categories":[{"id":"c1","name":"Tools","items":[{"id":"l1","name":"Go","url":"https://go.dev"}]}]}`, title))
}

// eventRecorder collects events from a live subscription.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.ConfigEvent
}

func (r *eventRecorder) add(e domain.ConfigEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) sawETag(etag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ETag == etag {
			return true
		}
	}
	return false
}

// subscribe follows config events on api until the test ends.
func subscribe(t *testing.T, api *client.API) *eventRecorder {
	t.Helper()
	rec := &eventRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = api.Subscribe(ctx, rec.add)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return rec
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
