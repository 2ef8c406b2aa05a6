package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/avatarsync"
	"github.com/marmos91/avatarsync/pkg/config"
)

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var (
		retries     int
		contentType string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "upload <user-id> <image>",
		Short: "Replace a user's avatar with an image file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			file, err := readImage(args[1], contentType)
			if err != nil {
				return err
			}

			var onProgress avatar.ProgressFunc
			if !quiet {
				onProgress = progressPrinter(cmd.ErrOrStderr())
			}

			return opts.withManager(cmd.Context(), func(ctx context.Context, cfg *config.Config, mgr *avatarsync.Manager) error {
				maxRetries := retries
				if maxRetries < 0 {
					maxRetries = cfg.Retry.MaxRetries
				}

				set, err := mgr.RetryUploadAtomic(ctx, file, args[0], maxRetries, onProgress)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), set)
			})
		},
	}

	cmd.Flags().IntVar(&retries, "retries", -1, "retry budget (default retry.max_retries, 0 disables retries)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "declared content type (default: detected from the file)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")

	return cmd
}

// readImage loads path into an upload candidate. The content type is
// sniffed from the data unless declared explicitly.
func readImage(path, contentType string) (avatar.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return avatar.File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if contentType == "" {
		contentType = detectContentType(data)
	}
	return avatar.NewFile(filepath.Base(path), contentType, data), nil
}

// detectContentType returns the sniffed media type without parameters.
func detectContentType(data []byte) string {
	detected := mimetype.Detect(data).String()
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	return strings.TrimSpace(detected)
}

func progressPrinter(w io.Writer) avatar.ProgressFunc {
	return func(ev avatar.ProgressEvent) {
		if ev.CurrentFile != "" {
			fmt.Fprintf(w, "%3d%% %-10s %s (%s)\n", ev.Progress, ev.Stage, ev.Message, ev.CurrentFile)
			return
		}
		fmt.Fprintf(w, "%3d%% %-10s %s\n", ev.Progress, ev.Stage, ev.Message)
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// describeSize formats n bytes for humans, e.g. "2.1 MB".
func describeSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
