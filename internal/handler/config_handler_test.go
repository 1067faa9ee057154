package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"navdir/internal/clock"
	"navdir/internal/domain"
	"navdir/internal/middleware"
	"navdir/internal/repository/memory"
	"navdir/internal/service"
	"navdir/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type configFixture struct {
	handler   *ConfigHandler
	store     *memory.KVStore
	publisher *testutil.MockEventPublisher
}

func newConfigFixture(t *testing.T) *configFixture {
	t.Helper()
	clk := clock.NewManual(testutil.BaseTime)
	store := memory.NewKVStore(clk)
	pub := testutil.NewMockEventPublisher()
	svc := service.NewConfigService(store, domain.IsNavConfig, pub, clk)
	return &configFixture{handler: NewConfigHandler(svc, nil, nil), store: store, publisher: pub}
}

func putRequest(t *testing.T, body any, ifMatch string) *http.Request {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPut, "/api/config", body)
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	return req.WithContext(middleware.WithUsername(req.Context(), testutil.AdminUsername))
}

func TestConfigHandler_Get_NotFound(t *testing.T) {
	f := newConfigFixture(t)
	w := httptest.NewRecorder()

	f.handler.Get(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	testutil.AssertJSONError(t, w, http.StatusNotFound, "not found")
}

func TestConfigHandler_Get_ReturnsStoredBytes(t *testing.T) {
	f := newConfigFixture(t)
	stored := `{"site": {"title": "Mine"}, "categories": []}`
	require.NoError(t, f.store.Put(context.Background(), domain.ConfigKey, []byte(stored), 0))
	w := httptest.NewRecorder()

	f.handler.Get(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	testutil.AssertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, stored, w.Body.String())
	assert.Equal(t, service.ETag([]byte(stored)), w.Header().Get("ETag"))
	assert.Equal(t, "no-store, max-age=0", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestConfigHandler_Get_CorruptDocument(t *testing.T) {
	f := newConfigFixture(t)
	require.NoError(t, f.store.Put(context.Background(), domain.ConfigKey, []byte(`{"site":1}`), 0))
	w := httptest.NewRecorder()

	f.handler.Get(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	testutil.AssertJSONError(t, w, http.StatusInternalServerError, "invalid stored config")
}

func TestConfigHandler_Put_Success(t *testing.T) {
	f := newConfigFixture(t)
	doc := testutil.NewNavConfig(testutil.WithTitle("Home"), testutil.WithCategory("Tools", "https://go.dev"))
	w := httptest.NewRecorder()

	f.handler.Put(w, putRequest(t, doc, ""))

	body := testutil.AssertJSONResponse(t, w, http.StatusOK)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, testutil.AdminUsername, body["username"])
	assert.Equal(t, service.ETag(doc), w.Header().Get("ETag"))

	events := f.publisher.Published()
	require.Len(t, events, 1)
	assert.Equal(t, testutil.AdminUsername, events[0].Username)
	assert.Equal(t, service.ETag(doc), events[0].ETag)
}

func TestConfigHandler_Put_InvalidDocument(t *testing.T) {
	for _, body := range []string{`[]`, `{"site":{}}`, `{"site":{"title":"x"},"categories":[{"id":"c"}]}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			f := newConfigFixture(t)
			w := httptest.NewRecorder()

			f.handler.Put(w, putRequest(t, body, ""))

			testutil.AssertJSONError(t, w, http.StatusBadRequest, "invalid config")
			assert.Zero(t, f.store.Len())
		})
	}
}

func TestConfigHandler_Put_TooLarge(t *testing.T) {
	f := newConfigFixture(t)
	body := `{"site":{"title":"` + strings.Repeat("x", maxConfigBodyBytes) + `"},"categories":[]}`
	w := httptest.NewRecorder()

	f.handler.Put(w, putRequest(t, body, ""))

	testutil.AssertJSONError(t, w, http.StatusRequestEntityTooLarge, "config too large")
}

func TestConfigHandler_Put_Conflict(t *testing.T) {
	f := newConfigFixture(t)
	first := testutil.NewNavConfig(testutil.WithTitle("one"))
	second := testutil.NewNavConfig(testutil.WithTitle("two"))

	w := httptest.NewRecorder()
	f.handler.Put(w, putRequest(t, first, ""))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	e0 := w.Header().Get("ETag")

	w = httptest.NewRecorder()
	f.handler.Put(w, putRequest(t, second, e0))
	testutil.AssertStatusCode(t, w, http.StatusOK)
	e1 := w.Header().Get("ETag")

	w = httptest.NewRecorder()
	f.handler.Put(w, putRequest(t, testutil.NewNavConfig(testutil.WithTitle("stale")), e0))
	body := testutil.AssertJSONResponse(t, w, http.StatusConflict)
	assert.Equal(t, "conflict", body["error"])
	assert.Equal(t, e1, body["etag"])
	assert.Equal(t, e1, w.Header().Get("ETag"))

	w = httptest.NewRecorder()
	f.handler.Get(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	assert.Equal(t, string(second), w.Body.String())
}

func TestConfigHandler_Put_ConflictWithoutDocument(t *testing.T) {
	f := newConfigFixture(t)
	w := httptest.NewRecorder()

	f.handler.Put(w, putRequest(t, testutil.NewNavConfig(), `W/"gone"`))

	testutil.AssertStatusCode(t, w, http.StatusConflict)
	assert.JSONEq(t, `{"error":"conflict","etag":null}`, w.Body.String())
	assert.Empty(t, w.Header().Get("ETag"))
}

func TestConfigHandler_StoreFailures(t *testing.T) {
	svc := service.NewConfigService(testutil.NewFailingKVStore(), nil, nil, nil)
	h := NewConfigHandler(svc, nil, nil)

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	testutil.AssertJSONError(t, w, http.StatusInternalServerError, "store unavailable")

	w = httptest.NewRecorder()
	h.Put(w, putRequest(t, testutil.NewNavConfig(), ""))
	testutil.AssertJSONError(t, w, http.StatusInternalServerError, "store unavailable")
}

func TestConfigHandler_DevStoreFallback(t *testing.T) {
	cfg := testutil.NewTestConfig(testutil.WithDevAdmin())
	primary := service.NewConfigService(nil, nil, nil, nil)
	dev := service.NewConfigService(memory.NewKVStore(nil), nil, nil, nil)
	h := NewConfigHandler(primary, dev, cfg)

	t.Run("remote_request", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Get(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
		testutil.AssertJSONError(t, w, http.StatusInternalServerError, "store not configured")
	})

	t.Run("loopback_request", func(t *testing.T) {
		req := putRequest(t, testutil.NewNavConfig(), "")
		req.Host = "127.0.0.1:8080"
		req.RemoteAddr = "127.0.0.1:40000"
		w := httptest.NewRecorder()
		h.Put(w, req)
		testutil.AssertStatusCode(t, w, http.StatusOK)

		get := httptest.NewRequest(http.MethodGet, "/api/config", nil)
		get.Host = "localhost"
		get.RemoteAddr = "[::1]:40000"
		w = httptest.NewRecorder()
		h.Get(w, get)
		testutil.AssertStatusCode(t, w, http.StatusOK)
	})
}
