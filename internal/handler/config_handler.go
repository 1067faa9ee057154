package handler

import (
	"errors"
	"io"
	"net/http"

	"navdir/internal/domain"
	"navdir/internal/middleware"
	"navdir/internal/observability"
	"navdir/internal/service"
)

const maxConfigBodyBytes = 1 << 20

// DevStorePolicy decides whether the development document store may serve a
// request. *config.Config implements it.
type DevStorePolicy interface {
	DevStoreAllowed(loopback bool) bool
}

// ConfigHandler serves the configuration document.
type ConfigHandler struct {
	primary *service.ConfigService
	dev     *service.ConfigService
	policy  DevStorePolicy
}

// NewConfigHandler creates a config handler. dev and policy may be nil; when
// set, dev serves loopback requests while primary has no store.
func NewConfigHandler(primary, dev *service.ConfigService, policy DevStorePolicy) *ConfigHandler {
	return &ConfigHandler{primary: primary, dev: dev, policy: policy}
}

func (h *ConfigHandler) service(r *http.Request) *service.ConfigService {
	if h.primary.Configured() {
		return h.primary
	}
	if h.dev != nil && h.policy != nil && h.policy.DevStoreAllowed(middleware.IsLoopbackRequest(r)) {
		return h.dev
	}
	return nil
}

// Get returns the stored document byte-for-byte with its ETag.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	svc := h.service(r)
	if svc == nil {
		writeError(w, r, http.StatusInternalServerError, "store not configured")
		return
	}

	doc, err := svc.Read(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", jsonContentType)
	w.Header().Set("ETag", doc.ETag)
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

// Put replaces the document. Mount it behind middleware.RequireAdmin and
// middleware.RequireJSON.
func (h *ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	svc := h.service(r)
	if svc == nil {
		writeError(w, r, http.StatusInternalServerError, "store not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "config too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid config")
		return
	}

	username, _ := middleware.GetUsername(r.Context())
	doc, err := svc.Write(r.Context(), username, body, r.Header.Get("If-Match"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	w.Header().Set("ETag", doc.ETag)
	writeJSON(w, r, http.StatusOK, SessionResponse{OK: true, Username: username})
}

type conflictResponse struct {
	Error string  `json:"error"`
	ETag  *string `json:"etag"`
}

func (h *ConfigHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		if conflict.ETag != nil {
			w.Header().Set("ETag", *conflict.ETag)
		}
		writeJSON(w, r, http.StatusConflict, conflictResponse{Error: "conflict", ETag: conflict.ETag})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidDocument):
		writeError(w, r, http.StatusBadRequest, "invalid config")
	case errors.Is(err, domain.ErrCorruptDocument):
		observability.FromContext(r.Context()).Error("stored config failed validation")
		writeError(w, r, http.StatusInternalServerError, "invalid stored config")
	case errors.Is(err, domain.ErrNotConfigured):
		writeError(w, r, http.StatusInternalServerError, "store not configured")
	default:
		observability.FromContext(r.Context()).Error("config store failure", "error", err)
		writeError(w, r, http.StatusInternalServerError, "store unavailable")
	}
}
