// Package metrics provides Prometheus metrics collection for avatarsync.
//
// All metrics are optional - if the registry is not initialized, components
// use no-op implementations. This allows the library to run with or without
// metrics collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create the Prometheus implementation
//	m := prometheus.NewAvatarMetrics()
//
//	// Or pass nil / NewNoopAvatarMetrics() for no-op behavior
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all avatarsync metrics
	// Protected by registryOnce for write-once, read-many pattern
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// It's safe to call multiple times - subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
