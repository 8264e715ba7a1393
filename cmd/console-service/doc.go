// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// console-service serves request collections to consoles over a Unix
// socket.
//
// It opens the configured store (SQLite, JSONC files, Redis, or
// memory) and registers the collection actions from
// lib/collection/remote on a lib/service socket server:
//
//	status       uptime, backend, and per-collection record counts
//	list         one-shot snapshot of a collection
//	bulk-update  atomic status change across many documents
//	import       upsert whole records (the seed path)
//	subscribe    stream of snapshot frames with heartbeats
//
// Configuration comes from --config or CONSOLE_CONFIG; without either
// the development defaults apply. --socket overrides paths.socket.
package main
