package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"navdir/internal/client"
	"navdir/internal/clock"
)

func (c *cliConfig) syncer() (*client.API, *client.Syncer, error) {
	api, err := c.api()
	if err != nil {
		return nil, nil, err
	}
	cache, err := c.cache()
	if err != nil {
		return nil, nil, err
	}
	s, err := client.NewSyncer(api, cache, clock.Real{}, client.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, err
	}
	return api, s, nil
}

func newPullCommand(cfg *cliConfig) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch the config document into the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := cfg.syncer()
			if err != nil {
				return err
			}
			outcome, err := s.Reload(cmd.Context())
			if err != nil {
				return describeError(err)
			}
			// A deferred read retries once in the background.
			s.Wait()

			entry := s.Entry()
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", outcome, describeEntry(entry))
			if output == "" {
				return nil
			}
			return writeDocument(cmd.OutOrStdout(), output, entry.JSON)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the cached document to this file (- for stdout)")
	return cmd
}

func newPushCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "push <file>",
		Short: "Save a document, refusing to overwrite newer server changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readDocument(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			_, s, err := cfg.syncer()
			if err != nil {
				return err
			}
			result, err := s.Save(cmd.Context(), body)
			switch result {
			case client.SaveOK:
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", etagOf(s.Entry()), humanize.Bytes(uint64(len(s.Entry().JSON))))
				return nil
			case client.SaveConflict:
				return errors.New("the server holds a newer document, run navctl pull and retry")
			}
			return describeError(err)
		},
	}
}

func newWatchCommand(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the local cache in step with live server updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, s, err := cfg.syncer()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			outcome, err := s.Reload(cmd.Context())
			if err != nil {
				return describeError(err)
			}
			fmt.Fprintf(out, "%s %s\n", outcome, describeEntry(s.Entry()))

			err = client.Watch(cmd.Context(), api, s, func(outcome client.ReloadOutcome, err error) {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "reload failed: %v\n", err)
					return
				}
				fmt.Fprintf(out, "%s %s\n", outcome, describeEntry(s.Entry()))
			})
			s.Wait()
			if cmd.Context().Err() != nil {
				return nil
			}
			return describeError(err)
		},
	}
}

func describeEntry(e client.Entry) string {
	desc := fmt.Sprintf("etag=%s size=%s", etagOf(e), humanize.Bytes(uint64(len(e.JSON))))
	if e.MutatedAtMs != nil {
		desc += " saved " + humanize.Time(time.UnixMilli(*e.MutatedAtMs))
	}
	return desc
}

func etagOf(e client.Entry) string {
	if e.ETag == nil {
		return "none"
	}
	return *e.ETag
}

func readDocument(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeDocument(stdout io.Writer, path, doc string) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(doc), "", "  "); err != nil {
		return fmt.Errorf("cached document is not valid JSON: %w", err)
	}
	pretty.WriteByte('\n')
	if path == "-" {
		_, err := stdout.Write(pretty.Bytes())
		return err
	}
	return os.WriteFile(path, pretty.Bytes(), 0o644)
}
