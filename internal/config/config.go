// Package config loads and validates the deployment configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/mufancom/remote-workspace/internal/errors"
	"github.com/mufancom/remote-workspace/internal/xdg"
)

const (
	// DefaultImage is the workspace image used when a record carries no
	// override.
	DefaultImage = "makeflow/remote-workspace:latest"
	// DefaultProjectName is the compose project name.
	DefaultProjectName = "remote-workspace"
	// DefaultDeactivateAfter is the idle window after which an unconnected
	// active workspace is deactivated.
	DefaultDeactivateAfter = 2 * time.Hour
	// DefaultSweepInterval is how often the idle sweep runs.
	DefaultSweepInterval = 5 * time.Minute
)

// Duration wraps time.Duration with TOML text parsing ("30m", "2h").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// User is one person allowed to connect to the workspaces. Either PublicKey
// or PublicKeyFile must resolve to key material.
type User struct {
	Name          string `toml:"name" json:"name"`
	Email         string `toml:"email" json:"email"`
	PublicKey     string `toml:"public_key" json:"publicKey,omitempty"`
	PublicKeyFile string `toml:"public_key_file" json:"publicKeyFile,omitempty"`
}

// VolumeEntry is a compose volume or bind mount shared by every workspace
// container.
type VolumeEntry struct {
	Type   string `toml:"type" json:"type" yaml:"type"`
	Source string `toml:"source" json:"source" yaml:"source"`
	Target string `toml:"target" json:"target" yaml:"target"`
}

// VolumesConfig holds shared volume mounts.
type VolumesConfig struct {
	Shared []VolumeEntry `toml:"shared" json:"shared,omitempty"`
}

// GitServiceConfig configures one git hosting service used for pull/merge
// request lookup.
type GitServiceConfig struct {
	Type        string `toml:"type" json:"type"` // "github" or "gitlab"
	Host        string `toml:"host" json:"host,omitempty"`
	URL         string `toml:"url" json:"url,omitempty"`
	AccessToken string `toml:"access_token" json:"-"`
}

// GitConfig holds git-related configuration.
type GitConfig struct {
	// IdentityFile is the private key used for cloning during workspace
	// initialization, relative to the config file unless absolute.
	IdentityFile string             `toml:"identity_file"`
	Services     []GitServiceConfig `toml:"services"`
}

// ServerConfig holds the HTTP API bind settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Config is the static deployment configuration consumed by the daemon.
type Config struct {
	// Name is the compose project name.
	Name string `toml:"name"`
	// DataDir holds the record store, the generated compose document and the
	// per-workspace directories.
	DataDir string `toml:"data_dir"`
	// Image is the default workspace container image.
	Image string `toml:"image"`
	// DeactivateAfter is the idle timeout for active workspaces.
	DeactivateAfter Duration `toml:"deactivate_after"`
	// SweepInterval is the idle sweep tick interval.
	SweepInterval Duration `toml:"sweep_interval"`

	Server  ServerConfig  `toml:"server"`
	Users   []User        `toml:"users"`
	Git     GitConfig     `toml:"git"`
	Volumes VolumesConfig `toml:"volumes"`

	// Templates are served verbatim at GET /api/templates for the form UI.
	Templates map[string]interface{} `toml:"templates"`

	// baseDir is the directory of the loaded config file, for resolving
	// relative paths.
	baseDir string
}

// Default returns the configuration defaults applied before loading.
func Default() *Config {
	return &Config{
		Name:            DefaultProjectName,
		Image:           DefaultImage,
		DeactivateAfter: Duration(DefaultDeactivateAfter),
		SweepInterval:   Duration(DefaultSweepInterval),
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8022,
		},
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfig, "failed to read config file", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrConfig, "failed to parse config file", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfig, "failed to resolve config path", err)
	}
	cfg.baseDir = filepath.Dir(absPath)

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Name == "" {
		c.Name = DefaultProjectName
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.DeactivateAfter == 0 {
		c.DeactivateAfter = Duration(DefaultDeactivateAfter)
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = Duration(DefaultSweepInterval)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8022
	}
	if c.DataDir == "" {
		dataDir, err := xdg.DataDir()
		if err != nil {
			return errors.Wrap(errors.ErrConfig, "failed to determine data directory", err)
		}
		c.DataDir = dataDir
	} else if !filepath.IsAbs(c.DataDir) {
		c.DataDir = filepath.Join(c.baseDir, c.DataDir)
	}
	return nil
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if len(c.Users) == 0 {
		return errors.New(errors.ErrConfig, "at least one user must be configured")
	}
	for _, user := range c.Users {
		if user.Name == "" || user.Email == "" {
			return errors.New(errors.ErrConfig, "user entries require both name and email")
		}
	}
	if c.Git.IdentityFile == "" {
		return errors.New(errors.ErrConfig, "git.identity_file is required")
	}
	for _, service := range c.Git.Services {
		switch service.Type {
		case "github", "gitlab":
		default:
			return errors.New(errors.ErrConfig, "unsupported git service type %q", service.Type)
		}
	}
	return nil
}

// Identity returns the private key material used for workspace
// initialization.
func (c *Config) Identity() (string, error) {
	path := c.Git.IdentityFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrConfig, fmt.Sprintf("failed to read identity file %q", c.Git.IdentityFile), err)
	}
	return string(data), nil
}

// ResolvePath resolves a path relative to the config file directory.
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// WorkspacesDir returns the directory holding per-workspace state.
func (c *Config) WorkspacesDir() string {
	return filepath.Join(c.DataDir, "workspaces")
}

// StorePath returns the path of the flat JSON record store.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "workspaces.json")
}

// SetBaseDir overrides the directory used to resolve relative paths. Intended
// for construction without a config file, e.g. in tests.
func (c *Config) SetBaseDir(dir string) {
	c.baseDir = dir
}
