package recall

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in configuration.
const (
	BackendFile  = "file"
	BackendEtcd  = "etcd"
	BackendRedis = "redis"
)

// Config represents a recall.yaml configuration file.
// It selects the storage backend and carries that backend's connection
// settings; sections for unselected backends are ignored.
type Config struct {
	// Backend selects the storage backend: "file", "etcd", or "redis".
	// Default: "file"
	Backend string `yaml:"backend,omitempty"`

	// File configures the local snapshot backend.
	File *FileConfig `yaml:"file,omitempty"`

	// Etcd configures the etcd backend.
	Etcd *EtcdConfig `yaml:"etcd,omitempty"`

	// Redis configures the Redis backend.
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// FileConfig configures the local snapshot backend.
type FileConfig struct {
	// Path is the snapshot file location.
	// Default: "recall.json"
	Path string `yaml:"path,omitempty"`

	// FlushInterval is how often dirty state is persisted.
	// Format: Go duration string (e.g., "30s", "2m")
	// Default: 60s
	FlushInterval string `yaml:"flush_interval,omitempty"`
}

// GetPath returns the snapshot path or the default value.
func (f *FileConfig) GetPath() string {
	if f == nil || f.Path == "" {
		return "recall.json"
	}
	return f.Path
}

// GetFlushInterval parses the flush interval string and returns a duration.
// Returns the default value if not set or invalid.
func (f *FileConfig) GetFlushInterval() time.Duration {
	if f == nil || f.FlushInterval == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(f.FlushInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// EtcdConfig configures the etcd backend.
type EtcdConfig struct {
	// Endpoints lists the etcd cluster members. Required when the etcd
	// backend is selected.
	Endpoints []string `yaml:"endpoints"`

	// Namespace prefixes every key the store writes.
	// Default: "recall"
	Namespace string `yaml:"namespace,omitempty"`

	// DialTimeout bounds connection establishment.
	// Format: Go duration string (e.g., "5s")
	// Default: 5s
	DialTimeout string `yaml:"dial_timeout,omitempty"`
}

// GetDialTimeout parses the dial timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (e *EtcdConfig) GetDialTimeout() time.Duration {
	if e == nil || e.DialTimeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(e.DialTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// URL is the Redis connection string.
	// Default: "redis://localhost:6379"
	URL string `yaml:"url,omitempty"`

	// KeyPrefix namespaces every key the store writes.
	// Default: "recall"
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// GetBackend returns the selected backend name or the default value.
func (c *Config) GetBackend() string {
	if c == nil || c.Backend == "" {
		return BackendFile
	}
	return c.Backend
}

// Validate checks that the configuration names a known backend and carries
// the settings that backend requires.
func (c *Config) Validate() error {
	switch c.GetBackend() {
	case BackendFile, BackendRedis:
		return nil
	case BackendEtcd:
		if c.Etcd == nil || len(c.Etcd.Endpoints) == 0 {
			return fmt.Errorf("%w: etcd backend requires endpoints", ErrInvalidConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
}

// LoadConfig reads and parses a recall.yaml file from the given path.
// If the path is a directory, it looks for recall.yaml or recall.yml in
// that directory.
func LoadConfig(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		// Try recall.yaml first, then recall.yml
		yamlPath := filepath.Join(path, "recall.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "recall.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no recall.yaml or recall.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}
