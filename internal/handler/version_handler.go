package handler

import (
	"net/http"
	"strings"

	"navdir/internal/clock"
)

// Where a build attribute came from.
const (
	SourceEnv     = "env"
	SourceHeader  = "header"
	SourceRuntime = "runtime"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// BuildInfo holds the build attributes configured for the process.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

type VersionSources struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

type VersionResponse struct {
	OK        bool           `json:"ok"`
	Version   string         `json:"version"`
	Commit    string         `json:"commit"`
	BuildTime string         `json:"buildTime"`
	Sources   VersionSources `json:"sources"`
}

// VersionHandler reports build metadata. Process configuration wins over the
// x-app-version, x-app-commit and x-build-time headers a proxy may inject.
type VersionHandler struct {
	info  BuildInfo
	clock clock.Clock
}

func NewVersionHandler(info BuildInfo, c clock.Clock) *VersionHandler {
	if c == nil {
		c = clock.Real{}
	}
	return &VersionHandler{info: info, clock: c}
}

func (h *VersionHandler) Version(w http.ResponseWriter, r *http.Request) {
	var resp VersionResponse
	resp.OK = true
	resp.Version, resp.Sources.Version = pick(h.info.Version, r.Header.Get("X-App-Version"))
	resp.Commit, resp.Sources.Commit = pick(h.info.Commit, r.Header.Get("X-App-Commit"))
	resp.BuildTime, resp.Sources.BuildTime = pick(h.info.BuildTime, r.Header.Get("X-Build-Time"))
	if resp.BuildTime == "" {
		resp.BuildTime = h.clock.Now().UTC().Format(isoMillis)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func pick(configured, header string) (string, string) {
	if v := strings.TrimSpace(configured); v != "" {
		return v, SourceEnv
	}
	if v := strings.TrimSpace(header); v != "" {
		return v, SourceHeader
	}
	return "", SourceRuntime
}
