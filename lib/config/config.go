// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/feed"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the master configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths   PathsConfig   `yaml:"paths"`
	Store   StoreConfig   `yaml:"store"`
	Feed    FeedConfig    `yaml:"feed"`
	Console ConsoleConfig `yaml:"console"`

	// Collections lists the collections the service serves and the
	// CLI knows how to render. A file that sets this replaces the
	// default list.
	Collections []CollectionConfig `yaml:"collections"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Store   *StoreConfig   `yaml:"store,omitempty"`
	Feed    *FeedConfig    `yaml:"feed,omitempty"`
	Console *ConsoleConfig `yaml:"console,omitempty"`
}

// PathsConfig configures directory and socket locations.
type PathsConfig struct {
	// Root is the base directory for console data.
	Root string `yaml:"root"`

	// State holds databases and collection files.
	State string `yaml:"state"`

	// Socket is the console service socket.
	Socket string `yaml:"socket"`
}

// StoreConfig selects and configures the service's backing store.
type StoreConfig struct {
	// Backend is one of sqlite, file, redis, or memory.
	Backend string `yaml:"backend"`

	SQLite SQLiteConfig `yaml:"sqlite"`
	File   FileConfig   `yaml:"file"`
	Redis  RedisConfig  `yaml:"redis"`
}

type SQLiteConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

type FileConfig struct {
	// Directory holds one <collection>.jsonc file per collection.
	Directory string `yaml:"directory"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// FeedConfig configures the subscribe stream.
type FeedConfig struct {
	// Compression is auto, none, zstd, or lz4.
	Compression string `yaml:"compression"`

	// Heartbeat is a Go duration string.
	Heartbeat string `yaml:"heartbeat"`
}

// ConsoleConfig configures the interactive console.
type ConsoleConfig struct {
	// Actor is recorded as updatedBy on bulk mutations.
	Actor string `yaml:"actor"`

	PageSize int `yaml:"page_size"`

	// SortField is the initial sort column.
	SortField string `yaml:"sort_field"`
}

// CollectionConfig describes one served collection.
type CollectionConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	OrderField string `yaml:"order_field"`
	Direction  string `yaml:"direction"`

	// Tasks, when set, overlays task statuses onto this collection.
	Tasks *TasksConfig `yaml:"tasks,omitempty"`
}

// TasksConfig names a task collection whose latest status per entity
// overrides the entity's own.
type TasksConfig struct {
	Collection  string `yaml:"collection"`
	EntityField string `yaml:"entity_field"`
	StatusField string `yaml:"status_field"`
	OrderField  string `yaml:"order_field"`
}

// Default returns the default configuration, used as the base before
// loading the config file and by the CLI when no file is given.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "console")
	state := filepath.Join(defaultRoot, "state")

	cfg := &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:   defaultRoot,
			State:  state,
			Socket: "${XDG_RUNTIME_DIR:-/tmp}/console.sock",
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
			SQLite: SQLiteConfig{
				Path:     filepath.Join(state, "console.db"),
				PoolSize: 4,
			},
			File: FileConfig{
				Directory: filepath.Join(state, "collections"),
			},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "console",
			},
		},
		Feed: FeedConfig{
			Compression: string(feed.ModeAuto),
			Heartbeat:   "30s",
		},
		Console: ConsoleConfig{
			Actor:     "${USER:-console}",
			PageSize:  10,
			SortField: entity.FieldSubmittedAt,
		},
		Collections: []CollectionConfig{
			{Name: "travel", Kind: string(entity.KindTravel), OrderField: entity.FieldSubmittedAt, Direction: string(collection.Descending)},
			{Name: "it", Kind: string(entity.KindIT), OrderField: entity.FieldSubmittedAt, Direction: string(collection.Descending)},
		},
	}
	cfg.expandVariables()
	return cfg
}

// Load loads configuration from the file named by CONSOLE_CONFIG.
// There is no fallback: an unset variable is an error.
func Load() (*Config, error) {
	configPath := os.Getenv("CONSOLE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CONSOLE_CONFIG environment variable not set; " +
			"set it to the path of your console.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The result
// is not validated; call [Config.Validate].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		override(&c.Paths.Root, overrides.Paths.Root)
		override(&c.Paths.State, overrides.Paths.State)
		override(&c.Paths.Socket, overrides.Paths.Socket)
	}

	if overrides.Store != nil {
		override(&c.Store.Backend, overrides.Store.Backend)
		override(&c.Store.SQLite.Path, overrides.Store.SQLite.Path)
		if overrides.Store.SQLite.PoolSize != 0 {
			c.Store.SQLite.PoolSize = overrides.Store.SQLite.PoolSize
		}
		override(&c.Store.File.Directory, overrides.Store.File.Directory)
		override(&c.Store.Redis.Addr, overrides.Store.Redis.Addr)
		override(&c.Store.Redis.Password, overrides.Store.Redis.Password)
		override(&c.Store.Redis.Prefix, overrides.Store.Redis.Prefix)
		if overrides.Store.Redis.DB != 0 {
			c.Store.Redis.DB = overrides.Store.Redis.DB
		}
	}

	if overrides.Feed != nil {
		override(&c.Feed.Compression, overrides.Feed.Compression)
		override(&c.Feed.Heartbeat, overrides.Feed.Heartbeat)
	}

	if overrides.Console != nil {
		override(&c.Console.Actor, overrides.Console.Actor)
		override(&c.Console.SortField, overrides.Console.SortField)
		if overrides.Console.PageSize != 0 {
			c.Console.PageSize = overrides.Console.PageSize
		}
	}
}

func override(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths and in the actor name.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CONSOLE_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["CONSOLE_ROOT"] = c.Paths.Root

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
	c.Store.SQLite.Path = expandVars(c.Store.SQLite.Path, vars)
	c.Store.File.Directory = expandVars(c.Store.File.Directory, vars)
	c.Console.Actor = expandVars(c.Console.Actor, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then the environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// HeartbeatInterval parses Feed.Heartbeat.
func (c *Config) HeartbeatInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.Feed.Heartbeat)
	if err != nil {
		return 0, fmt.Errorf("feed.heartbeat: %w", err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("feed.heartbeat must be positive, got %s", c.Feed.Heartbeat)
	}
	return interval, nil
}

// Collection returns the named collection's configuration.
func (c *Config) Collection(name string) (CollectionConfig, bool) {
	for _, candidate := range c.Collections {
		if candidate.Name == name {
			return candidate, true
		}
	}
	return CollectionConfig{}, false
}

// CollectionNames lists the configured collection names, plus any
// task collections they overlay.
func (c *Config) CollectionNames() []string {
	var names []string
	for _, candidate := range c.Collections {
		names = append(names, candidate.Name)
		if candidate.Tasks != nil && !slices.Contains(names, candidate.Tasks.Collection) {
			names = append(names, candidate.Tasks.Collection)
		}
	}
	return names
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.Socket == "" {
		errs = append(errs, errors.New("paths.socket is required"))
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, errors.New("store.sqlite.path is required for the sqlite backend"))
		}
		if c.Store.SQLite.PoolSize < 1 {
			errs = append(errs, fmt.Errorf("store.sqlite.pool_size must be at least 1, got %d", c.Store.SQLite.PoolSize))
		}
	case BackendFile:
		if c.Store.File.Directory == "" {
			errs = append(errs, errors.New("store.file.directory is required for the file backend"))
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
	case BackendMemory:
		if c.Environment == Production {
			errs = append(errs, errors.New("store.backend memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of: %v", []string{BackendSQLite, BackendFile, BackendRedis, BackendMemory}))
	}

	if _, err := feed.ParseMode(c.Feed.Compression); err != nil {
		errs = append(errs, fmt.Errorf("feed.compression: %w", err))
	}
	if _, err := c.HeartbeatInterval(); err != nil {
		errs = append(errs, err)
	}

	if c.Console.PageSize < 1 {
		errs = append(errs, fmt.Errorf("console.page_size must be at least 1, got %d", c.Console.PageSize))
	}
	if c.Environment == Production && c.Console.Actor == "" {
		errs = append(errs, errors.New("console.actor is required in production"))
	}

	if len(c.Collections) == 0 {
		errs = append(errs, errors.New("at least one collection is required"))
	}
	seen := make(map[string]bool)
	for index, candidate := range c.Collections {
		prefix := fmt.Sprintf("collections[%d]", index)
		if candidate.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if seen[candidate.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate collection %q", prefix, candidate.Name))
		}
		seen[candidate.Name] = true
		if _, err := entity.ParseKind(candidate.Kind); err != nil {
			errs = append(errs, fmt.Errorf("%s.kind: %w", prefix, err))
		}
		query := collection.Query{Collection: candidate.Name, Direction: collection.Direction(candidate.Direction)}
		if err := query.Validate(); err != nil && candidate.Name != "" {
			errs = append(errs, fmt.Errorf("%s.direction: %w", prefix, err))
		}
		if candidate.Tasks != nil && candidate.Tasks.Collection == "" {
			errs = append(errs, fmt.Errorf("%s.tasks.collection is required", prefix))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		filepath.Dir(c.Paths.Socket),
	}
	switch c.Store.Backend {
	case BackendSQLite:
		paths = append(paths, filepath.Dir(c.Store.SQLite.Path))
	case BackendFile:
		paths = append(paths, c.Store.File.Directory)
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
