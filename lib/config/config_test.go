// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("USER", "ada")
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("expected backend=sqlite, got %s", cfg.Store.Backend)
	}
	if cfg.Paths.Socket != "/run/user/1000/console.sock" {
		t.Errorf("expected socket under XDG_RUNTIME_DIR, got %s", cfg.Paths.Socket)
	}
	if cfg.Console.Actor != "ada" {
		t.Errorf("expected actor from USER, got %s", cfg.Console.Actor)
	}
	if cfg.Console.PageSize != 10 {
		t.Errorf("expected page_size=10, got %d", cfg.Console.PageSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoad_RequiresConsoleConfig(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CONSOLE_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "CONSOLE_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithConsoleConfig(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG", writeConfig(t, `
environment: staging
paths:
  root: /test/root
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
environment: staging

paths:
  root: /srv/console
  state: ${CONSOLE_ROOT}/state
  socket: ${CONSOLE_ROOT}/console.sock

store:
  backend: redis
  redis:
    addr: redis.internal:6379
    prefix: ops

feed:
  compression: lz4
  heartbeat: 10s

console:
  actor: reviewer@example.com
  page_size: 25
  sort_field: requesterName

collections:
  - name: travel
    kind: travel
    order_field: submittedAt
    direction: desc
    tasks:
      collection: tasks
      entity_field: requestId
  - name: clients
    kind: client
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.State != "/srv/console/state" || cfg.Paths.Socket != "/srv/console/console.sock" {
		t.Errorf("CONSOLE_ROOT not expanded: state=%s socket=%s", cfg.Paths.State, cfg.Paths.Socket)
	}
	if cfg.Store.Backend != BackendRedis || cfg.Store.Redis.Addr != "redis.internal:6379" || cfg.Store.Redis.Prefix != "ops" {
		t.Errorf("store = %+v", cfg.Store)
	}
	interval, err := cfg.HeartbeatInterval()
	if err != nil || interval != 10*time.Second {
		t.Errorf("HeartbeatInterval = %v, %v", interval, err)
	}
	if cfg.Console.Actor != "reviewer@example.com" || cfg.Console.PageSize != 25 {
		t.Errorf("console = %+v", cfg.Console)
	}

	if len(cfg.Collections) != 2 {
		t.Fatalf("expected the file's 2 collections to replace the defaults, got %d", len(cfg.Collections))
	}
	travel, ok := cfg.Collection("travel")
	if !ok || travel.Tasks == nil || travel.Tasks.Collection != "tasks" {
		t.Errorf("travel = %+v", travel)
	}
	if _, ok := cfg.Collection("it"); ok {
		t.Error("default it collection survived an explicit list")
	}
	if names := cfg.CollectionNames(); strings.Join(names, ",") != "travel,tasks,clients" {
		t.Errorf("CollectionNames = %v", names)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
environment: production

paths:
  root: /default/root

store:
  backend: file

console:
  actor: ops
  page_size: 10

production:
  paths:
    root: /prod/root
  store:
    backend: sqlite
    sqlite:
      path: /prod/root/console.db
  console:
    page_size: 50
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Root != "/prod/root" {
		t.Errorf("expected root=/prod/root, got %s", cfg.Paths.Root)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.SQLite.Path != "/prod/root/console.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Console.PageSize != 50 {
		t.Errorf("expected page_size=50, got %d", cfg.Console.PageSize)
	}
	if cfg.Console.Actor != "ops" {
		t.Errorf("override without actor cleared it: %q", cfg.Console.Actor)
	}
}

func TestOverridesForOtherEnvironmentsIgnored(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
environment: development
paths:
  root: /dev/root
production:
  paths:
    root: /prod/root
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Paths.Root != "/dev/root" {
		t.Errorf("expected root=/dev/root, got %s", cfg.Paths.Root)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("CONSOLE_ROOT", "/env/root")
	t.Setenv("CONSOLE_ENVIRONMENT", "staging")

	cfg, err := LoadFile(writeConfig(t, `
environment: development
paths:
  root: /file/root
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s", cfg.Environment)
	}
	if cfg.Paths.Root != "/file/root" {
		t.Errorf("expected root=/file/root from file, got %s", cfg.Paths.Root)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
	if _, err := LoadFile(writeConfig(t, "store: [unclosed")); err == nil {
		t.Error("malformed YAML: expected error")
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{"${HOME}/console", map[string]string{"HOME": "/home/user"}, "/home/user/console"},
		{"${CONSOLE_TEST_MISSING:-default}", map[string]string{}, "default"},
		{"${PRESENT:-default}", map[string]string{"PRESENT": "value"}, "value"},
		{"${A}/${B}", map[string]string{"A": "first", "B": "second"}, "first/second"},
		{"no variables here", map[string]string{}, "no variables here"},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default config", func(c *Config) {}, ""},
		{"invalid environment", func(c *Config) { c.Environment = "invalid" }, "invalid environment"},
		{"empty root path", func(c *Config) { c.Paths.Root = "" }, "paths.root"},
		{"empty socket path", func(c *Config) { c.Paths.Socket = "" }, "paths.socket"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"sqlite pool", func(c *Config) { c.Store.SQLite.PoolSize = 0 }, "pool_size"},
		{"redis address", func(c *Config) { c.Store.Backend = BackendRedis; c.Store.Redis.Addr = "" }, "store.redis.addr"},
		{"memory in production", func(c *Config) { c.Environment = Production; c.Store.Backend = BackendMemory }, "memory"},
		{"compression", func(c *Config) { c.Feed.Compression = "brotli" }, "feed.compression"},
		{"heartbeat", func(c *Config) { c.Feed.Heartbeat = "soon" }, "feed.heartbeat"},
		{"page size", func(c *Config) { c.Console.PageSize = 0 }, "console.page_size"},
		{"production actor", func(c *Config) { c.Environment = Production; c.Console.Actor = "" }, "console.actor"},
		{"no collections", func(c *Config) { c.Collections = nil }, "at least one collection"},
		{"unknown kind", func(c *Config) { c.Collections[0].Kind = "invoice" }, "collections[0].kind"},
		{"duplicate collection", func(c *Config) { c.Collections[1].Name = c.Collections[0].Name }, "duplicate"},
		{"bad direction", func(c *Config) { c.Collections[0].Direction = "sideways" }, "collections[0].direction"},
		{"tasks without collection", func(c *Config) { c.Collections[0].Tasks = &TasksConfig{} }, "tasks.collection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJoinsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Paths.Root = ""
	cfg.Console.PageSize = -1
	cfg.Feed.Compression = "gzip"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"paths.root", "console.page_size", "feed.compression"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Paths.Root = filepath.Join(tmpDir, "console")
	cfg.Paths.State = filepath.Join(cfg.Paths.Root, "state")
	cfg.Paths.Socket = filepath.Join(tmpDir, "run", "console.sock")
	cfg.Store.Backend = BackendFile
	cfg.Store.File.Directory = filepath.Join(cfg.Paths.State, "collections")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.Paths.Root, cfg.Paths.State, filepath.Dir(cfg.Paths.Socket), cfg.Store.File.Directory} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
