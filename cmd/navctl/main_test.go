package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navdir/internal/clock"
	"navdir/internal/domain"
	"navdir/internal/repository/memory"
	"navdir/internal/router"
	"navdir/internal/security"
	"navdir/internal/service"
	"navdir/internal/testutil"
	ws "navdir/internal/websocket"
)

type cliEnv struct {
	server  *httptest.Server
	dir     string
	cache   string
	session string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	clk := clock.Real{}
	cfg := testutil.NewTestConfig()
	store := memory.NewKVStore(clk)

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub()
	go func() { _ = hub.Run(ctx) }()

	limiter := service.NewLoginLimiter(store, service.DefaultLimiterConfig(), clk)
	rt := router.New(router.Deps{
		Config:    cfg,
		Auth:      service.NewAuthService(limiter, security.NewTokenCodec(clk), cfg.SessionTTL(), clk),
		Documents: service.NewConfigService(store, domain.IsNavConfig, hub, clk),
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

	dir := t.TempDir()
	return &cliEnv{
		server:  srv,
		dir:     dir,
		cache:   filepath.Join(dir, "cache", "config.json"),
		session: filepath.Join(dir, "session"),
	}
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(viper.New())
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{
		"--server", e.server.URL,
		"--cache", e.cache,
		"--session-file", e.session,
		"--log-level", "error",
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "not logged in\n", stdout)

	stdout, _, err = env.run(t, testutil.AdminPassword+"\n", "login", "-u", testutil.AdminUsername)
	require.NoError(t, err)
	assert.Equal(t, "logged in as admin\n", stdout)

	info, err := os.Stat(env.session)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	stdout, _, err = env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "admin\n", stdout)

	_, _, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.NoFileExists(t, env.session)
}

func TestLoginRejected(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "wrong\n", "login")
	require.EqualError(t, err, "invalid credentials")
	assert.NoFileExists(t, env.session)
}

func TestLoginPasswordFromEnv(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("NAVCTL_PASSWORD", testutil.AdminPassword)

	stdout, _, err := env.run(t, "", "login")
	require.NoError(t, err)
	assert.Equal(t, "logged in as admin\n", stdout)
}

func TestPushAndPull(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run(t, testutil.AdminPassword+"\n", "login")
	require.NoError(t, err)

	doc := testutil.NewNavConfig(testutil.WithTitle("Links"), testutil.WithCategory("Go", "https://go.dev"))
	docPath := filepath.Join(env.dir, "nav.json")
	require.NoError(t, os.WriteFile(docPath, doc, 0o644))

	stdout, _, err := env.run(t, "", "push", docPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "saved "+service.ETag(doc))

	// A second push from the same cache carries the new tag and succeeds.
	_, _, err = env.run(t, "", "push", docPath)
	require.NoError(t, err)

	require.NoError(t, os.Remove(env.cache))
	stdout, stderr, err := env.run(t, "", "pull", "-o", "-")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stderr, "adopted etag="+service.ETag(doc)), stderr)
	assert.JSONEq(t, string(doc), stdout)
}

func TestPushWithoutSession(t *testing.T) {
	env := newCLIEnv(t)
	docPath := filepath.Join(env.dir, "nav.json")
	require.NoError(t, os.WriteFile(docPath, testutil.NewNavConfig(), 0o644))

	_, _, err := env.run(t, "", "push", docPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "navctl login")
}

func TestPullWithoutDocument(t *testing.T) {
	env := newCLIEnv(t)

	_, stderr, err := env.run(t, "", "pull")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stderr, "missing etag=none"), stderr)
}

func TestHashPassword(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, "", "hash-password", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, security.HashHex("s3cret")+"\n", stdout)

	stdout, _, err = env.run(t, "s3cret\n", "hash-password", "--bcrypt")
	require.NoError(t, err)
	assert.True(t, service.IsBcryptHash(strings.TrimSpace(stdout)))

	_, _, err = env.run(t, "\n", "hash-password")
	assert.Error(t, err)
}

func TestGenSecret(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, "", "gen-secret")
	require.NoError(t, err)
	raw, err := security.DecodeBase64URL(strings.TrimSpace(stdout))
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	_, _, err = env.run(t, "", "gen-secret", "--bytes", "8")
	assert.ErrorIs(t, err, security.ErrSecretTooShort)
}
