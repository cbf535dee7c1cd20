package depot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/TheBitDrifter/bark"
	"gopkg.in/yaml.v3"
)

// Config holds global configuration for storages and schedules.
var Config config = config{
	workers:    runtime.GOMAXPROCS(0),
	maxSystems: 4096,
}

type config struct {
	workers    int
	maxSystems int
	verbose    bool
	logger     *slog.Logger
}

// SetWorkers sets the default size of a schedule's worker pool.
func (c *config) SetWorkers(n int) {
	c.workers = max(n, 1)
}

// SetMaxSystems bounds how many system and set labels one schedule may hold.
func (c *config) SetMaxSystems(n int) {
	c.maxSystems = n
}

// SetLogger replaces the logger used for failures and debug output. A nil
// logger restores the default.
func (c *config) SetLogger(l *slog.Logger) {
	c.logger = l
}

// SetVerbose promotes debug output to info level.
func (c *config) SetVerbose(v bool) {
	c.verbose = v
}

func (c *config) Workers() int {
	return c.workers
}

func (c *config) MaxSystems() int {
	return c.maxSystems
}

// Logger returns the logger set with SetLogger, or the "depot" component
// logger from bark.
func (c *config) Logger() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return bark.For("depot")
}

func (c *config) debug(msg string, args ...any) {
	level := slog.LevelDebug
	if c.verbose {
		level = slog.LevelInfo
	}
	c.Logger().Log(context.Background(), level, msg, args...)
}

type fileConfig struct {
	Workers     int    `yaml:"workers"`
	MaxSystems  int    `yaml:"max_systems"`
	Verbose     bool   `yaml:"verbose"`
	Environment string `yaml:"environment"`
	Level       string `yaml:"level"`
	AddSource   bool   `yaml:"add_source"`
}

// LoadConfig reads a YAML config file and applies it to Config.
func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig applies a YAML document to Config. Zero values leave the
// current setting alone.
//
// The logging keys configure bark's global handler, which is set up once per
// process: they only take effect when nothing has logged through bark yet.
func ParseConfig(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	level := slog.LevelInfo
	if fc.Level != "" {
		if err := level.UnmarshalText([]byte(fc.Level)); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if fc.Verbose {
		level = slog.LevelDebug
	}
	if fc.Workers > 0 {
		Config.SetWorkers(fc.Workers)
	}
	if fc.MaxSystems > 0 {
		Config.SetMaxSystems(fc.MaxSystems)
	}
	if fc.Environment != "" || fc.Level != "" || fc.AddSource {
		env := fc.Environment
		if env == "" {
			env = "development"
		}
		bark.Wake(bark.Config{Environment: env, Level: level, AddSource: fc.AddSource})
	}
	Config.SetVerbose(fc.Verbose)
	return nil
}
