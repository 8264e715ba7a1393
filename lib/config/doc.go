// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the console
// service and CLI.
//
// Configuration is loaded from a single file named by either the
// CONSOLE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no discovery and no search path.
//
// The file may carry environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${CONSOLE_ROOT}, and ${VAR:-default} patterns are
// expanded. No environment variable overrides a config value
// directly.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Store, Feed, Console, Collections
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
