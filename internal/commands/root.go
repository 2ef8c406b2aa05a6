// Package commands implements the avatarsync command line interface.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/pkg/avatarsync"
	"github.com/marmos91/avatarsync/pkg/config"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the avatarsync command tree.
func NewRootCmd(version string) *cobra.Command {
	if version == "" || version == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			version = info.Main.Version
		}
	}

	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "avatarsync",
		Short:         "Atomic avatar uploads with rollback",
		Version:       version,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/avatarsync/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (DEBUG, INFO, WARN, ERROR)")

	cmd.AddCommand(
		newUploadCmd(opts),
		newShowCmd(opts),
		newValidateCmd(opts),
		newPurgeCmd(opts),
		newConfigCmd(opts),
	)

	return cmd
}

// load reads the configuration and applies the logging settings.
func (o *rootOptions) load() (*config.Config, io.Closer, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	closer, err := configureLogging(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

// configureLogging points the logger at cfg.Output. The returned closer
// releases a log file, if one was opened.
func configureLogging(cfg config.LoggingConfig) (io.Closer, error) {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	switch cfg.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr", "":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		return f, nil
	}
	return nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// withManager loads the configuration, builds a manager and runs fn with it.
// The manager is closed and metrics are flushed when fn returns.
func (o *rootOptions) withManager(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, mgr *avatarsync.Manager) error) (err error) {
	cfg, logCloser, err := o.load()
	if err != nil {
		return err
	}
	defer logCloser.Close()

	m := config.InitializeMetrics(cfg)

	mgr, err := config.CreateManager(ctx, cfg, m)
	if err != nil {
		return err
	}
	mgr.Start()

	defer func() {
		closeErr := mgr.Close(context.WithoutCancel(ctx))
		flushErr := m.Flush()
		err = errors.Join(err, closeErr, flushErr)
	}()

	return fn(ctx, cfg, mgr)
}
