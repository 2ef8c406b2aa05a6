package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/avatarsync/pkg/avatarsync"
	"github.com/marmos91/avatarsync/pkg/config"
	"github.com/marmos91/avatarsync/pkg/validation"
)

// ErrValidate is returned when an image fails validation.
var ErrValidate = errors.New("validation failed")

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a user's current avatar URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			return opts.withManager(cmd.Context(), func(ctx context.Context, _ *config.Config, mgr *avatarsync.Manager) error {
				set := mgr.GetCurrentAvatarURLs(ctx, args[0])
				if set.IsEmpty() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s has no avatar\n", args[0])
					return nil
				}
				if err := writeYAML(cmd.OutOrStdout(), set); err != nil {
					return err
				}
				if !mgr.ValidateAvatarURLs(set) {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: avatar URL set is incomplete")
				}
				return nil
			})
		},
	}
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "validate <image>",
		Short: "Check an image against the upload rules without uploading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, logCloser, err := opts.load()
			if err != nil {
				return err
			}
			defer logCloser.Close()

			v, err := validation.New(validation.Config{
				ValidTypes: cfg.Validation.ValidTypes,
				MaxSize:    cfg.Validation.MaxSize,
			})
			if err != nil {
				return err
			}

			file, err := readImage(args[0], contentType)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s, %s (limit %s)\n", file.Name, file.ContentType,
				describeSize(file.Size), describeSize(cfg.Validation.MaxSize))

			summary := v.Summarize(file)
			for _, w := range summary.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			for _, e := range summary.Errors {
				fmt.Fprintf(out, "error: %s\n", e)
			}
			if !summary.Valid {
				return ErrValidate
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "declared content type (default: detected from the file)")

	return cmd
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <user-id> <object-key>...",
		Short: "Delete orphaned avatar objects left behind by an interrupted upload",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			return opts.withManager(cmd.Context(), func(ctx context.Context, _ *config.Config, mgr *avatarsync.Manager) error {
				mgr.EmergencyRollback(ctx, args[0], args[1:])
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d object(s) for %s\n", len(args)-1, args[0])
				return nil
			})
		},
	}
}
