package appconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. PINKEEP_HTTP_ADDR.
const EnvPrefix = "PINKEEP"

var nativeHostName = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// Load reads the YAML config at path (DefaultConfigPath when empty). A
// missing file yields the defaults. PINKEEP_* variables override file values.
func Load(path string) (Config, error) {
	path, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, d := range defaultsOf(cfg) {
		v.SetDefault(d.key, d.value)
	}

	switch err := v.ReadInConfig(); {
	case err == nil:
		if err := checkVersion(v); err != nil {
			return Config{}, err
		}
	case errors.As(err, new(viper.ConfigFileNotFoundError)), errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Store.Path = expandEnv(cfg.Store.Path)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type setting struct {
	key   string
	value any
}

// defaultsOf lists every key viper must know about. Keys without a default
// are invisible to AutomaticEnv during Unmarshal.
func defaultsOf(cfg Config) []setting {
	return []setting{
		{"config_version", cfg.ConfigVersion},
		{"state_dir", cfg.StateDir},
		{"store.backend", cfg.Store.Backend},
		{"store.path", cfg.Store.Path},
		{"store.key", cfg.Store.Key},
		{"restore.delay_ms", cfg.Restore.DelayMS},
		{"restore.on_startup", cfg.Restore.OnStartup},
		{"http.addr", cfg.HTTP.Addr},
		{"http.base_url", cfg.HTTP.BaseURL},
		{"http.base_path", cfg.HTTP.BasePath},
		{"native_host.name", cfg.NativeHost.Name},
		{"native_host.description", cfg.NativeHost.Description},
		{"native_host.allowed_origins", cfg.NativeHost.AllowedOrigins},
		{"native_host.max_message_bytes", cfg.NativeHost.MaxMessageBytes},
		{"bus.depth", cfg.Bus.Depth},
	}
}

func checkVersion(v *viper.Viper) error {
	if !v.InConfig("config_version") {
		return fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
	}
	if got := v.GetInt("config_version"); got != CurrentConfigVersion {
		return fmt.Errorf("unsupported config_version %d; expected %d", got, CurrentConfigVersion)
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Store.Backend != BackendFile && c.Store.Backend != BackendSQLite {
		return fmt.Errorf("unsupported store.backend %q (want %s or %s)", c.Store.Backend, BackendFile, BackendSQLite)
	}
	if strings.TrimSpace(c.Store.Key) == "" {
		return errors.New("store.key must not be empty")
	}
	if c.Restore.DelayMS < 0 {
		return errors.New("restore.delay_ms must be >= 0")
	}
	if err := c.NativeHost.validate(); err != nil {
		return err
	}
	if c.Bus.Depth < 0 {
		return errors.New("bus.depth must be >= 0")
	}
	return c.HTTP.validate()
}

func (n NativeHostConfig) validate() error {
	if !nativeHostName.MatchString(n.Name) {
		return fmt.Errorf("native_host.name %q must be dot-separated lowercase words", n.Name)
	}
	for _, origin := range n.AllowedOrigins {
		if !strings.HasPrefix(origin, "chrome-extension://") || !strings.HasSuffix(origin, "/") {
			return fmt.Errorf("native_host.allowed_origins entry %q must look like chrome-extension://<id>/", origin)
		}
	}
	if n.MaxMessageBytes <= 0 {
		return errors.New("native_host.max_message_bytes must be > 0")
	}
	return nil
}

func (h HTTPConfig) validate() error {
	if raw := strings.TrimSpace(h.BaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("http.base_url %q needs a scheme and host, like http://127.0.0.1:27487", raw)
		}
	}
	prefix := strings.TrimSpace(h.BasePath)
	switch {
	case strings.Contains(prefix, "://"):
		return errors.New("http.base_path is a path prefix, use http.base_url for the origin")
	case strings.ContainsAny(prefix, "?#"):
		return errors.New("http.base_path must not carry a query or fragment")
	}
	return nil
}

// expandEnv substitutes $VAR and ${VAR}. UID and GID fall back to the
// process ids; unknown variables are left as written.
func expandEnv(value string) string {
	return os.Expand(value, func(name string) string {
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		switch name {
		case "UID":
			return strconv.Itoa(os.Getuid())
		case "GID":
			return strconv.Itoa(os.Getgid())
		case "":
			return ""
		}
		return "${" + name + "}"
	})
}

// WriteDefault writes the default config to path (DefaultConfigPath when
// empty) and returns where it went. An existing file is kept unless
// overwrite is set.
func WriteDefault(path string, overwrite bool) (string, error) {
	path, err := resolvePath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return "", fmt.Errorf("config already exists at %s", path)
	}
	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		return path, nil
	}
	return DefaultConfigPath()
}
