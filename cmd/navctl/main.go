// Command navctl administers a nav server from the terminal: it logs in,
// pulls and pushes the config document and follows live updates, keeping a
// local cache in the same format the browser editor uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"navdir/internal/client"
	"navdir/internal/observability"
)

const (
	serverKey      = "server"
	cacheKey       = "cache"
	sessionFileKey = "session-file"
	logLevelKey    = "log-level"

	defaultServer = "http://127.0.0.1:8080"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(viper.New()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cliConfig resolves settings from flags, NAVCTL_* variables and defaults.
type cliConfig struct {
	v *viper.Viper
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	cfg := &cliConfig{v: v}
	cmd := &cobra.Command{
		Use:           "navctl",
		Short:         "Manage the link directory of a nav server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			observability.InitLoggerWithWriter(cmd.ErrOrStderr(), v.GetString(logLevelKey), "text")
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(serverKey, defaultServer, "nav server base URL")
	flags.String(cacheKey, defaultPath("config-cache.json"), "local config cache file")
	flags.String(sessionFileKey, defaultPath("session"), "file holding the session token")
	flags.String(logLevelKey, "warn", "log level (debug|info|warn|error)")

	v.SetEnvPrefix("NAVCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, key := range []string{serverKey, cacheKey, sessionFileKey, logLevelKey} {
		mustBindFlag(v, key, flags.Lookup(key))
	}

	cmd.AddCommand(
		newLoginCommand(cfg),
		newLogoutCommand(cfg),
		newWhoamiCommand(cfg),
		newPullCommand(cfg),
		newPushCommand(cfg),
		newWatchCommand(cfg),
		newHashPasswordCommand(),
		newGenSecretCommand(),
	)

	return cmd
}

func mustBindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func defaultPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, "navctl", name)
}

// api returns a client carrying the saved session, if any.
func (c *cliConfig) api() (*client.API, error) {
	api, err := client.NewAPI(c.v.GetString(serverKey))
	if err != nil {
		return nil, err
	}
	token, err := c.loadSession()
	if err != nil {
		return nil, err
	}
	if token != "" {
		api.SetSession(token)
	}
	return api, nil
}

func (c *cliConfig) cache() (*client.FileCache, error) {
	path := c.v.GetString(cacheKey)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return client.NewFileCache(path), nil
}

func (c *cliConfig) loadSession() (string, error) {
	raw, err := os.ReadFile(c.v.GetString(sessionFileKey))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (c *cliConfig) saveSession(token string) error {
	path := c.v.GetString(sessionFileKey)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

func (c *cliConfig) clearSession() error {
	err := os.Remove(c.v.GetString(sessionFileKey))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
