package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"navdir/internal/client"
	"navdir/internal/domain"
)

func newLoginCommand(cfg *cliConfig) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as the administrator and remember the session",
		Long:  "Sign in as the administrator. The password is read from NAVCTL_PASSWORD or, when unset, from the first line of stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := cfg.v.GetString("password")
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			api, err := cfg.api()
			if err != nil {
				return err
			}
			name, err := api.Login(cmd.Context(), username, password)
			var rle *domain.RateLimitError
			switch {
			case errors.As(err, &rle):
				return fmt.Errorf("too many failed attempts, try again %s",
					humanize.Time(time.Now().Add(time.Duration(rle.RetryAfterSeconds())*time.Second)))
			case errors.Is(err, domain.ErrInvalidCredentials):
				return errors.New("invalid credentials")
			case err != nil:
				return err
			}

			if err := cfg.saveSession(api.Session()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "admin", "administrator username")
	if err := cfg.v.BindEnv("password", "NAVCTL_PASSWORD"); err != nil {
		panic(err)
	}
	return cmd
}

func newLogoutCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the session on the server and locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := cfg.api()
			if err != nil {
				return err
			}
			if err := api.Logout(cmd.Context()); err != nil {
				return err
			}
			if err := cfg.clearSession(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the user the saved session belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := cfg.api()
			if err != nil {
				return err
			}
			name, err := api.Me(cmd.Context())
			if err != nil {
				return err
			}
			if name == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}

// describeError turns client errors into hints for the operator.
func describeError(err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		return errors.New("not logged in or session expired, run navctl login")
	}
	return err
}
