package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/avatarsync/internal/ratelimiter"
	"github.com/marmos91/avatarsync/pkg/avatarsync"
	"github.com/marmos91/avatarsync/pkg/imaging"
	"github.com/marmos91/avatarsync/pkg/metrics"
	"github.com/marmos91/avatarsync/pkg/pipeline"
	"github.com/marmos91/avatarsync/pkg/store/objects"
	"github.com/marmos91/avatarsync/pkg/txn"
	"github.com/marmos91/avatarsync/pkg/urls"
	"github.com/marmos91/avatarsync/pkg/validation"
)

// CreateManager builds the stores described by cfg and wires them into an
// avatarsync.Manager. The manager owns the stores: Manager.Close closes them.
//
// Parameters:
//   - ctx: Context for store initialization
//   - cfg: Loaded configuration
//   - m: Metrics components (nil disables metrics)
//
// Returns:
//   - *avatarsync.Manager: Ready manager (call Start to run the sweeper)
//   - error: Store creation or wiring error
func CreateManager(ctx context.Context, cfg *Config, m *MetricsResult) (*avatarsync.Manager, error) {
	if m == nil {
		m = &MetricsResult{Avatar: metrics.NewNoopAvatarMetrics(), Cache: metrics.NewNoopCacheMetrics()}
	}

	objs, err := CreateObjectStore(ctx, &cfg.Objects)
	if err != nil {
		return nil, err
	}

	var closers []io.Closer
	if c, ok := objs.(io.Closer); ok {
		closers = append(closers, c)
	}

	recs, err := CreateRecordStore(ctx, &cfg.Records)
	if err != nil {
		return nil, errors.Join(err, closeAll(closers))
	}
	if c, ok := recs.(io.Closer); ok {
		closers = append(closers, c)
	}

	components := avatarsync.Components{
		Objects: objects.Instrument(objs, m.Objects),
		Records: recs,
		Layout: objects.URLLayout{
			BaseURL: cfg.Objects.PublicBaseURL,
			Bucket:  cfg.Objects.Bucket,
		},
		Validation: validation.Config{
			ValidTypes: cfg.Validation.ValidTypes,
			MaxSize:    cfg.Validation.MaxSize,
		},
		Imaging: imaging.Config{
			ThumbnailSize: cfg.Imaging.ThumbnailSize,
			MediumSize:    cfg.Imaging.MediumSize,
			FullSize:      cfg.Imaging.FullSize,
			JPEGQuality:   cfg.Imaging.JPEGQuality,
			MaxPixels:     cfg.Imaging.MaxPixels,
		},
		Pipeline: pipeline.Config{
			KeyPrefix:   cfg.Objects.KeyPrefix,
			Concurrency: cfg.Imaging.UploadConcurrency,
		},
		StaleThreshold: cfg.Transactions.StaleThreshold,
		Sweeper: txn.SweeperConfig{
			Enabled:  cfg.Transactions.SweepEnabled,
			Interval: cfg.Transactions.SweepInterval,
		},
		MaxRetryDelay: cfg.Retry.MaxDelay,
		Metrics:       m.Avatar,
		Closers:       closers,
	}
	if cfg.Cache.Enabled {
		components.Cache = urls.NewCache(cfg.Cache.Size, cfg.Cache.TTL, urls.WithCacheMetrics(m.Cache))
	}
	if cfg.Limits.UploadsPerSecond > 0 {
		components.Limiter = ratelimiter.New(cfg.Limits.UploadsPerSecond, cfg.Limits.Burst)
	}

	mgr, err := avatarsync.NewManager(components)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create manager: %w", err), closeAll(closers))
	}
	return mgr, nil
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
