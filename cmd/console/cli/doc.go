// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-line framework for the console CLI.
//
// The central type is [Command]: a named node with optional nested
// [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function that receives the caller's context. Commands are assembled
// into a tree in cmd/console and dispatched via [Command.Execute],
// which handles flag parsing, subcommand routing, and help output.
//
// Unknown subcommands and flags get a suggestion when a known name is
// within Levenshtein distance 3 (suggest.go).
//
// Errors returned by commands can be categorized with [ToolError] so
// that main maps them to distinct exit codes; [Classify] derives the
// category from the console's own error types.
package cli
