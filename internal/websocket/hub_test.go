package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"navdir/internal/domain"
	"navdir/internal/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(ctx) }()
	t.Cleanup(cancel)
	return hub, cancel, errCh
}

func testClient(hub *Hub, username string) *Client {
	return newClient(context.Background(), hub, newMockConn(), username)
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	_, cancel, errCh := startHub(t)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestHub_BroadcastReachesEverySubscriber(t *testing.T) {
	hub, _, _ := startHub(t)
	a, b := testClient(hub, "a"), testClient(hub, "b")
	hub.Register(a)
	hub.Register(b)

	require.NoError(t, hub.Broadcast(context.Background(), []byte("ping")))

	assert.Equal(t, "ping", string(receive(t, a)))
	assert.Equal(t, "ping", string(receive(t, b)))
}

func TestHub_PublishConfigEvent(t *testing.T) {
	hub, _, _ := startHub(t)
	c := testClient(hub, "admin")
	hub.Register(c)

	event := &domain.ConfigEvent{ID: "evt-1", ETag: `W/"abc"`, Username: "admin", OccurredAt: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, hub.PublishConfigEvent(context.Background(), event))

	var msg ServerMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &msg))
	assert.Equal(t, MessageTypeConfigUpdated, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, *event, *msg.Event)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub, _, _ := startHub(t)
	c := testClient(hub, "admin")
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	select {
	case _, ok := <-c.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	hub, _, _ := startHub(t)
	before := testutil.ToFloat64(observability.ConfigEventConnectionsActive)

	slow := testClient(hub, "slow")
	hub.Register(slow)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(observability.ConfigEventConnectionsActive) == before+1
	}, time.Second, 5*time.Millisecond)

	for i := 0; i < cap(slow.send)+1; i++ {
		require.NoError(t, hub.Broadcast(context.Background(), []byte("x")))
	}

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(observability.ConfigEventConnectionsActive) == before
	}, time.Second, 5*time.Millisecond)

	for i := 0; i < cap(slow.send); i++ {
		assert.Equal(t, "x", string(receive(t, slow)))
	}
	_, ok := <-slow.send
	assert.False(t, ok)
}

func TestHub_ShutdownClosesClientsAndRejectsBroadcasts(t *testing.T) {
	hub, cancel, errCh := startHub(t)
	c := testClient(hub, "admin")
	hub.Register(c)

	cancel()
	<-errCh

	_, ok := <-c.send
	assert.False(t, ok)

	// The hub no longer drains, so fill the queue and expect an error.
	var err error
	for i := 0; i <= cap(hub.broadcast) && err == nil; i++ {
		err = hub.Broadcast(context.Background(), []byte("late"))
	}
	assert.Error(t, err)

	late := testClient(hub, "late")
	hub.Register(late)
	_, ok = <-late.send
	assert.False(t, ok, "registering on a stopped hub closes the client")
}

func TestHub_BroadcastHonoursContext(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast); i++ {
		require.NoError(t, hub.Broadcast(context.Background(), []byte("fill")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, hub.Broadcast(ctx, []byte("blocked")), context.Canceled)
}
