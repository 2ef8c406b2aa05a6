package config

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/avatarsync/pkg/metrics"
	promMetrics "github.com/marmos91/avatarsync/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Avatar is the collector for uploads, retries and rollbacks
	// (never nil, uses noop if disabled)
	Avatar metrics.AvatarMetrics

	// Objects instruments the object store (nil if disabled)
	Objects metrics.ObjectStoreMetrics

	// Cache is the URL cache collector (never nil)
	Cache metrics.CacheMetrics

	// textfile is where Flush writes the registry ("" disables flushing)
	textfile string
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates Prometheus-backed metrics instances
//
// If metrics are disabled:
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Avatar: metrics.NewNoopAvatarMetrics(),
			Cache:  metrics.NewNoopCacheMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Avatar:   promMetrics.NewAvatarMetrics(),
		Objects:  promMetrics.NewObjectStoreMetrics(),
		Cache:    promMetrics.NewCacheMetrics(),
		textfile: cfg.Metrics.TextfilePath,
	}
}

// Flush writes the registry to the configured textfile, for collection by
// node_exporter. It is a no-op when metrics or the textfile are disabled.
func (r *MetricsResult) Flush() error {
	if r.textfile == "" || !metrics.IsEnabled() {
		return nil
	}
	if err := prometheus.WriteToTextfile(r.textfile, metrics.GetRegistry()); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
