// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/console/cmd/console/cli"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/collection/filestore"
	"github.com/bureau-foundation/console/lib/collection/remote"
	"github.com/bureau-foundation/console/lib/config"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

// connection holds the flags every data command shares: where the
// configuration lives and which store to talk to.
type connection struct {
	ConfigPath string
	SocketPath string
	StoreDir   string
	Kind       string
	LogLevel   string
}

func (c *connection) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.ConfigPath, "config", "", "path to console.yaml (default: $CONSOLE_CONFIG, else built-in defaults)")
	flagSet.StringVar(&c.SocketPath, "socket", "", "console service socket (overrides paths.socket)")
	flagSet.StringVar(&c.StoreDir, "store-dir", "", "read and write <collection>.jsonc files in this directory instead of the service")
	flagSet.StringVar(&c.Kind, "kind", "", "entity kind for a collection missing from the configuration ("+kindNames()+")")
	flagSet.StringVar(&c.LogLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

// store is the open backend plus what is needed to release it.
type store interface {
	collection.Store
	collection.Importer
}

// session is an opened connection.
type session struct {
	config *config.Config
	store  store
	logger *slog.Logger
	close  func() error

	// remote is true when store talks to the console service.
	remote bool
	kind   string
}

// open loads the configuration and opens the store. Log records go to
// logOutput; pass io.Discard when the terminal is owned by the TUI.
func (c *connection) open(logOutput io.Writer) (*session, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, cli.Validation("--log-level: %v", err)
	}
	logger := cli.NewCommandLogger(logOutput, level)

	cfg, err := loadConfig(c.ConfigPath)
	if err != nil {
		return nil, cli.Validation("loading configuration: %v", err)
	}
	if c.SocketPath != "" {
		cfg.Paths.Socket = c.SocketPath
	}

	opened := &session{config: cfg, logger: logger, kind: c.Kind}
	if c.StoreDir != "" {
		fileStore, err := filestore.Open(c.StoreDir, logger)
		if err != nil {
			return nil, cli.Internal("opening %s: %v", c.StoreDir, err)
		}
		opened.store = fileStore
		opened.close = fileStore.Close
		return opened, nil
	}
	opened.store = remote.New(remote.Config{SocketPath: cfg.Paths.Socket, Logger: logger})
	opened.close = func() error { return nil }
	opened.remote = true
	return opened, nil
}

// loadConfig reads configPath, then CONSOLE_CONFIG, falling back to
// the defaults when neither is set.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if os.Getenv("CONSOLE_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// viewConfig builds the view model configuration for collectionName.
// A collection missing from the configuration needs --kind.
func (s *session) viewConfig(collectionName string) (viewmodel.Config, error) {
	collectionConfig, ok := s.config.Collection(collectionName)
	if !ok {
		if s.kind == "" {
			return viewmodel.Config{}, cli.NotFound("unknown collection %q", collectionName).WithHint(
				fmt.Sprintf("Configured collections: %s. Pass --kind to view one that is not configured.",
					strings.Join(s.config.CollectionNames(), ", ")))
		}
		collectionConfig = config.CollectionConfig{Name: collectionName}
	}
	kindName := collectionConfig.Kind
	if s.kind != "" {
		kindName = s.kind
	}
	kind, err := entity.ParseKind(kindName)
	if err != nil {
		return viewmodel.Config{}, cli.Validation("%v", err).WithHint("Known kinds: " + kindNames() + ".")
	}

	direction := collection.Direction(collectionConfig.Direction)
	viewConfig := viewmodel.Config{
		Collection: collectionName,
		Kind:       kind,
		OrderField: collectionConfig.OrderField,
		Direction:  direction,
		PageSize:   s.config.Console.PageSize,
		Actor:      s.config.Console.Actor,
		Logger:     s.logger,
	}
	if field := s.config.Console.SortField; field != "" {
		// The configured sort follows the store order when both name
		// the same field, so "newest first" stays newest first.
		sortDirection := collection.Ascending
		if field == collectionConfig.OrderField && direction == collection.Descending {
			sortDirection = collection.Descending
		}
		viewConfig.Sort = viewmodel.SortState{Field: field, Direction: sortDirection}
	}
	if tasks := collectionConfig.Tasks; tasks != nil {
		viewConfig.Tasks = &viewmodel.TaskOverlay{
			Collection:  tasks.Collection,
			EntityField: tasks.EntityField,
			StatusField: tasks.StatusField,
			OrderField:  tasks.OrderField,
		}
	}
	return viewConfig, nil
}

func kindNames() string {
	kinds := entity.Kinds()
	names := make([]string, len(kinds))
	for index, kind := range kinds {
		names[index] = string(kind)
	}
	return strings.Join(names, ", ")
}
