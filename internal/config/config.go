package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the update-manager sidecar.
type Config struct {
	// ListenAddress is the address the HTTP API listens on.
	ListenAddress string `yaml:"listen_addr"`
	// ProjectDir is the working directory for sync and rebuild commands.
	ProjectDir string `yaml:"project_dir"`
	// StateFile is the path to the JSON file storing the update record.
	StateFile string `yaml:"state_file"`
	// ComposeProject is the docker compose project name used for rebuilds.
	ComposeProject string `yaml:"compose_project"`
	// Services are the compose services rebuilt during the rebuild phase.
	Services []string `yaml:"services"`
	// SyncTimeout bounds the source sync phase.
	SyncTimeout time.Duration `yaml:"sync_timeout"`
	// BuildTimeout bounds the rebuild phase.
	BuildTimeout time.Duration `yaml:"build_timeout"`
	// LeaseTTL is how long an unrefreshed lease is still considered live.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
	// LogLevel is the minimum level for log output (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// LogFile is an optional path for rotated file logging.
	LogFile string `yaml:"log_file"`
	// Secret is the shared bearer secret for POST /update. It is populated
	// from the environment at load time and is never read from or written
	// to the YAML file.
	Secret string `yaml:"-"`
}

const (
	// DefaultConfigFilename is the default filename for sidecar settings.
	DefaultConfigFilename = "update-manager-settings.yaml"

	// DefaultStateFile is the default path for the update record JSON.
	DefaultStateFile = "/status/update.json"

	// DefaultListenAddress is the default HTTP listen address.
	DefaultListenAddress = ":9090"

	// DefaultProjectDir is the default working directory for update commands.
	DefaultProjectDir = "/project"

	// DefaultComposeProject is the default docker compose project name.
	DefaultComposeProject = "moar"

	// DefaultSyncTimeout bounds the source sync phase.
	DefaultSyncTimeout = 120 * time.Second

	// DefaultBuildTimeout bounds the rebuild phase.
	DefaultBuildTimeout = 600 * time.Second

	// DefaultLeaseTTL is the grace period before an in-flight record with an
	// unrefreshed lease is treated as stale.
	DefaultLeaseTTL = 90 * time.Second

	// EnvSecret is the environment variable holding the shared secret.
	EnvSecret = "MANAGER_SECRET"

	// DefaultFilePermissions is the default file permission for files the sidecar writes.
	DefaultFilePermissions = 0o600

	// DefaultDirPermissions is the default permission for directories the sidecar creates.
	DefaultDirPermissions = 0o755
)

// DefaultServices returns the compose services rebuilt when none are configured.
func DefaultServices() []string {
	return []string{"server", "admin", "caddy"}
}

// errConfigIsNotSet is returned when a nil configuration is provided.
var errConfigIsNotSet = errors.New("configuration is not set")

// Load reads configuration from the provided path, applies defaults and picks
// up the shared secret from the environment. A missing file is not an error:
// the sidecar runs fine on defaults alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	cfg.Secret = os.Getenv(EnvSecret)

	return &cfg, nil
}

// Save writes the settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults for anything unset.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.ProjectDir == "" {
		cfg.ProjectDir = DefaultProjectDir
	}

	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFile
	}

	if cfg.ComposeProject == "" {
		cfg.ComposeProject = DefaultComposeProject
	}

	if len(cfg.Services) == 0 {
		cfg.Services = DefaultServices()
	}

	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}

	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = DefaultBuildTimeout
	}

	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}

	return nil
}
