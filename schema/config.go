package schema

import (
	"errors"
	"strings"
	"time"
)

// ServiceConfig controls the synchronization engine.
type ServiceConfig struct {
	// StorageKey names the store entry that holds the pinned set.
	StorageKey string
	// RestoreDelay postpones restores triggered by new windows.
	RestoreDelay time.Duration
	// RestoreOnStartup enables a default-scope restore on browser startup.
	RestoreOnStartup bool
}

// DefaultStorageKey is the store entry used when none is configured.
const DefaultStorageKey = "pinnedTabs"

// DefaultRestoreDelay gives the browser's own session restore a head start.
const DefaultRestoreDelay = time.Second

// DefaultServiceConfig returns the stock engine settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		StorageKey:       DefaultStorageKey,
		RestoreDelay:     DefaultRestoreDelay,
		RestoreOnStartup: true,
	}
}

// NormalizeServiceConfig applies defaults and validates the config.
// A zero RestoreDelay is kept: it restores new windows immediately.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	cfg.StorageKey = strings.TrimSpace(cfg.StorageKey)
	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}
	if cfg.RestoreDelay < 0 {
		return ServiceConfig{}, errors.New("restore delay must not be negative")
	}
	return cfg, nil
}
