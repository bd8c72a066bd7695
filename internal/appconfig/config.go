package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/pinkeep/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string           `mapstructure:"state_dir" yaml:"state_dir"`
	Store         StoreConfig      `mapstructure:"store" yaml:"store"`
	Restore       RestoreConfig    `mapstructure:"restore" yaml:"restore"`
	HTTP          HTTPConfig       `mapstructure:"http" yaml:"http"`
	NativeHost    NativeHostConfig `mapstructure:"native_host" yaml:"native_host"`
	Bus           BusConfig        `mapstructure:"bus" yaml:"bus"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// StoreConfig selects where the pinned set is persisted.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path overrides the backend's default file under state_dir.
	Path string `mapstructure:"path" yaml:"path"`
	Key  string `mapstructure:"key" yaml:"key"`
}

// RestoreConfig controls restore timing.
type RestoreConfig struct {
	DelayMS   int  `mapstructure:"delay_ms" yaml:"delay_ms"`
	OnStartup bool `mapstructure:"on_startup" yaml:"on_startup"`
}

// HTTPConfig configures the list editor UI. An empty Addr disables it.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// NativeHostConfig describes the native messaging host registration.
type NativeHostConfig struct {
	Name            string   `mapstructure:"name" yaml:"name"`
	Description     string   `mapstructure:"description" yaml:"description"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MaxMessageBytes int      `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
}

// BusConfig sizes per-subscriber event buffers.
type BusConfig struct {
	Depth int `mapstructure:"depth" yaml:"depth"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".pinkeep", "state"),
		Store: StoreConfig{
			Backend: BackendFile,
			Path:    "",
			Key:     schema.DefaultStorageKey,
		},
		Restore: RestoreConfig{
			DelayMS:   int(schema.DefaultRestoreDelay / time.Millisecond),
			OnStartup: true,
		},
		HTTP: HTTPConfig{
			Addr:     "127.0.0.1:27487",
			BaseURL:  "",
			BasePath: "",
		},
		NativeHost: NativeHostConfig{
			Name:            "systems.pkt.pinkeep",
			Description:     "pinkeep pinned tab keeper",
			AllowedOrigins:  []string{},
			MaxMessageBytes: 4 << 20,
		},
		Bus: BusConfig{
			Depth: 256,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pinkeep", "config.yaml"), nil
}

// StorePath returns the configured store path, or the backend default under
// state_dir.
func (c Config) StorePath() string {
	if path := strings.TrimSpace(c.Store.Path); path != "" {
		return path
	}
	if c.Store.Backend == BackendSQLite {
		return filepath.Join(c.StateDir, "pins.db")
	}
	return filepath.Join(c.StateDir, "pins.json")
}

// ServiceConfig maps the file config onto the engine config.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		StorageKey:       c.Store.Key,
		RestoreDelay:     time.Duration(c.Restore.DelayMS) * time.Millisecond,
		RestoreOnStartup: c.Restore.OnStartup,
	}
}
