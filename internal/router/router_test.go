package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"navdir/internal/client"
	"navdir/internal/clock"
	"navdir/internal/config"
	"navdir/internal/domain"
	"navdir/internal/repository/memory"
	"navdir/internal/security"
	"navdir/internal/service"
	"navdir/internal/testutil"
	ws "navdir/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	store *memory.KVStore
	clock *clock.Manual
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) *testServer {
	t.Helper()
	clk := clock.NewManual(testutil.BaseTime)
	cfg := testutil.NewTestConfig(opts...)
	store := memory.NewKVStore(clk)

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub()
	go func() { _ = hub.Run(ctx) }()

	limiter := service.NewLoginLimiter(store, service.DefaultLimiterConfig(), clk)
	auth := service.NewAuthService(limiter, security.NewTokenCodec(clk), cfg.SessionTTL(), clk)
	docs := service.NewConfigService(store, domain.IsNavConfig, hub, clk)

	rt := New(Deps{
		Config:    cfg,
		Auth:      auth,
		Documents: docs,
		Hub:       hub,
		Store:     store,
		Clock:     clk,
	})
	srv := httptest.NewServer(rt)
	t.Cleanup(func() {
		srv.Close()
		rt.Close()
		cancel()
	})
	return &testServer{Server: srv, store: store, clock: clk}
}

func (s *testServer) do(t *testing.T, method, path, contentType, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func signedInAPI(t *testing.T, s *testServer) *client.API {
	t.Helper()
	api, err := client.NewAPI(s.URL)
	require.NoError(t, err)
	_, err = api.Login(context.Background(), testutil.AdminUsername, testutil.AdminPassword)
	require.NoError(t, err)
	return api
}

func TestRouter_EditingFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	anon, err := client.NewAPI(s.URL)
	require.NoError(t, err)
	_, err = anon.GetConfig(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = anon.PutConfig(ctx, testutil.NewNavConfig(), "")
	require.ErrorIs(t, err, client.ErrUnauthorized)

	alice := signedInAPI(t, s)
	bob := signedInAPI(t, s)

	who, err := alice.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.AdminUsername, who)

	e0, err := alice.PutConfig(ctx, testutil.NewNavConfig(testutil.WithTitle("v0")), "")
	require.NoError(t, err)

	e1, err := bob.PutConfig(ctx, testutil.NewNavConfig(testutil.WithTitle("v1")), e0)
	require.NoError(t, err)

	_, err = alice.PutConfig(ctx, testutil.NewNavConfig(testutil.WithTitle("v2")), e0)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, e1, *conflict.ETag)

	doc, err := anon.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, e1, doc.ETag)
	assert.Equal(t, testutil.NewNavConfig(testutil.WithTitle("v1")), doc.Body)

	require.NoError(t, alice.Logout(ctx))
	_, err = alice.PutConfig(ctx, testutil.NewNavConfig(), "")
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestRouter_GateRunsBeforeContentType(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/api/config", "text/plain", "hello", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"unauthorized"}`, readBody(t, resp))

	api := signedInAPI(t, s)
	header := http.Header{"Cookie": []string{client.SessionCookieName + "=" + api.Session()}}
	resp = s.do(t, http.MethodPut, "/api/config", "text/plain", "hello", header)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, "Expected application/json", readBody(t, resp))
}

func TestRouter_LoginRejectsNonJSON(t *testing.T) {
	s := newTestServer(t, testutil.WithoutAdmin())

	resp := s.do(t, http.MethodPost, "/api/login", "application/x-www-form-urlencoded", "username=a", nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/login", "application/json", `{"username":"a","password":"b"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"admin not configured"}`, readBody(t, resp))
}

func TestRouter_InvalidDocument(t *testing.T) {
	s := newTestServer(t)
	api := signedInAPI(t, s)
	header := http.Header{"Cookie": []string{client.SessionCookieName + "=" + api.Session()}}

	resp := s.do(t, http.MethodPut, "/api/config", "application/json", `{"site":{"title":"x"}}`, header)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"invalid config"}`, readBody(t, resp))
	assert.Zero(t, s.store.Len())
}

func TestRouter_GetConfigHeaders(t *testing.T) {
	s := newTestServer(t)
	api := signedInAPI(t, s)
	etag, err := api.PutConfig(context.Background(), testutil.NewNavConfig(), "")
	require.NoError(t, err)

	resp := s.do(t, http.MethodGet, "/api/config", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, etag, resp.Header.Get("ETag"))
	assert.Equal(t, "no-store, max-age=0", resp.Header.Get("Cache-Control"))
}

func TestRouter_SessionExpires(t *testing.T) {
	s := newTestServer(t)
	api := signedInAPI(t, s)

	s.clock.Advance(24*time.Hour + time.Second)

	who, err := api.Me(context.Background())
	require.NoError(t, err)
	assert.Empty(t, who)
	_, err = api.PutConfig(context.Background(), testutil.NewNavConfig(), "")
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestRouter_SyncerAgainstServer(t *testing.T) {
	s := newTestServer(t)
	api := signedInAPI(t, s)
	syncer, err := client.NewSyncer(api, nil, s.clock)
	require.NoError(t, err)
	ctx := context.Background()

	result, err := syncer.Save(ctx, testutil.NewNavConfig(testutil.WithTitle("mine")))
	require.NoError(t, err)
	require.Equal(t, client.SaveOK, result)

	// Another editor overwrites the document without a precondition.
	other := signedInAPI(t, s)
	_, err = other.PutConfig(ctx, testutil.NewNavConfig(testutil.WithTitle("theirs")), "")
	require.NoError(t, err)

	result, err = syncer.Save(ctx, testutil.NewNavConfig(testutil.WithTitle("mine again")))
	assert.Equal(t, client.SaveConflict, result)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRouter_EventsStream(t *testing.T) {
	s := newTestServer(t)
	listener := signedInAPI(t, s)
	writer := signedInAPI(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan domain.ConfigEvent, 4)
	go func() {
		_ = listener.Subscribe(ctx, func(e domain.ConfigEvent) { events <- e })
	}()

	var got domain.ConfigEvent
	require.Eventually(t, func() bool {
		_, err := writer.PutConfig(ctx, testutil.NewNavConfig(testutil.WithTitle(time.Now().String())), "")
		if err != nil {
			return false
		}
		select {
		case got = <-events:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 4*time.Second, 10*time.Millisecond)

	assert.Equal(t, testutil.AdminUsername, got.Username)
	assert.NotEmpty(t, got.ETag)
}

func TestRouter_Ambient(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/health/ready", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/version", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `"sources"`)

	resp = s.do(t, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "http_requests_total")

	resp = s.do(t, http.MethodGet, "/nope", "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"not found"}`, readBody(t, resp))
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.AllowedOrigins = "https://links.example" })

	header := http.Header{
		"Origin":                        []string{"https://links.example"},
		"Access-Control-Request-Method": []string{"PUT"},
	}
	resp := s.do(t, http.MethodOptions, "/api/config", "", "", header)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://links.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "If-Match")
}
