// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by console package tests.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the select
// with a wall-clock fallback so a stuck subscription or stream fails
// the test instead of hanging it. They are the only place tests use a
// real timeout; everything else runs on clock.Fake.
//
// [SocketDir] returns a short /tmp directory for unix sockets, whose
// paths are capped at 108 bytes.
package testutil
