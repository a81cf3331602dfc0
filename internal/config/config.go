package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soul-sense/desktop/internal/version"
)

const (
	DefaultScheme      = "soulsense"
	DefaultSidecarName = "soul-sense-backend"
	appDirName         = "soulsense"
)

type Config struct {
	Application Application `yaml:"application"`
	Sidecar     Sidecar     `yaml:"sidecar"`
	DeepLink    DeepLink    `yaml:"deep_link" split_words:"true"`
	Updater     Updater     `yaml:"updater"`
	Telemetry   Telemetry   `yaml:"telemetry"`
	Logging     Logging     `yaml:"logging"`
	IPC         IPC         `yaml:"ipc"`
	GUI         GUI         `yaml:"gui"`
	StatePath   string      `yaml:"state_path" split_words:"true"`
	RuntimeDir  string      `yaml:"runtime_dir" split_words:"true"`
}

type Application struct {
	Name       string `yaml:"name"`
	Identifier string `yaml:"identifier"`
	Version    string `yaml:"version"`
	// Debug selects the debug startup path (log plugin at info level).
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level" split_words:"true"`
}

type Sidecar struct {
	Name         string            `yaml:"name"`
	BundleDir    string            `yaml:"bundle_dir" split_words:"true"`
	Host         string            `yaml:"host"`
	Port         int               `yaml:"port"`
	Args         []string          `yaml:"args"`
	Env          map[string]string `yaml:"env"`
	HealthPath   string            `yaml:"health_path" split_words:"true"`
	ReadyTimeout time.Duration     `yaml:"ready_timeout" split_words:"true"`
	StopTimeout  time.Duration     `yaml:"stop_timeout" split_words:"true"`
}

type DeepLink struct {
	Scheme string `yaml:"scheme"`
	// Register installs the OS-level scheme handler at startup.
	Register      bool    `yaml:"register"`
	DesktopDir    string  `yaml:"desktop_dir" split_words:"true"`
	Buffer        int     `yaml:"buffer"`
	RatePerSecond float64 `yaml:"rate_per_second" split_words:"true"`
	Burst         int     `yaml:"burst"`
}

type Updater struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint"`
	CheckInterval time.Duration `yaml:"check_interval" split_words:"true"`
	MinInterval   time.Duration `yaml:"min_interval" split_words:"true"`
}

type Telemetry struct {
	Enabled     bool    `yaml:"enabled"`
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"sample_rate" split_words:"true"`
}

type Logging struct {
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path" split_words:"true"`
}

type IPC struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type GUI struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Theme  string `yaml:"theme"`
}

var schemeRe = regexp.MustCompile(`^[a-z][a-z0-9+.-]*$`)

// Default returns the configuration used when no config file exists.
func Default() *Config {
	stateDir := defaultDir(os.UserConfigDir)
	runtimeDir := defaultDir(os.UserCacheDir)

	return &Config{
		Application: Application{
			Name:       "SoulSense",
			Identifier: "com.soulsense.app",
			Version:    version.Version,
			LogLevel:   "warn",
		},
		Sidecar: Sidecar{
			Name:         DefaultSidecarName,
			Host:         "127.0.0.1",
			Port:         8000,
			HealthPath:   "/health",
			ReadyTimeout: 30 * time.Second,
			StopTimeout:  5 * time.Second,
		},
		DeepLink: DeepLink{
			Scheme:        DefaultScheme,
			Register:      true,
			Buffer:        16,
			RatePerSecond: 5,
			Burst:         10,
		},
		Updater: Updater{
			CheckInterval: 6 * time.Hour,
			MinInterval:   time.Minute,
		},
		Telemetry: Telemetry{
			Enabled:     true,
			DSN:         version.SentryDSN,
			Environment: "production",
			SampleRate:  1.0,
		},
		Logging: Logging{
			Format: "console",
			Output: "stderr",
		},
		IPC: IPC{
			Enabled: true,
			Path:    "/ws",
		},
		GUI: GUI{
			Title:  "SoulSense",
			Width:  480,
			Height: 320,
			Theme:  "dark",
		},
		StatePath:  filepath.Join(stateDir, "state.yml"),
		RuntimeDir: runtimeDir,
	}
}

func defaultDir(base func() (string, error)) string {
	dir, err := base()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appDirName)
}

// Validate checks invariants that the schema cannot express after env overrides.
func (c *Config) Validate() error {
	if c.Sidecar.Name == "" {
		return fmt.Errorf("sidecar.name is required")
	}
	if c.Sidecar.Port < 1 || c.Sidecar.Port > 65535 {
		return fmt.Errorf("sidecar.port %d out of range", c.Sidecar.Port)
	}
	if !schemeRe.MatchString(c.DeepLink.Scheme) {
		return fmt.Errorf("deep_link.scheme %q is not a valid URL scheme", c.DeepLink.Scheme)
	}
	if c.DeepLink.Buffer < 1 {
		return fmt.Errorf("deep_link.buffer must be positive")
	}
	if c.Updater.Enabled && c.Updater.Endpoint == "" {
		return fmt.Errorf("updater.endpoint is required when the updater is enabled")
	}
	return nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
