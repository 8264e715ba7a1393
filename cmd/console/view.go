// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"time"

	"github.com/bureau-foundation/console/cmd/console/cli"
	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

// defaultTimeout bounds how long one-shot commands wait for the first
// snapshot.
const defaultTimeout = 10 * time.Second

// discardRenderer drops renders. One-shot commands read the view model
// with View instead.
type discardRenderer struct{}

func (discardRenderer) PageReady([]entity.Entity, viewmodel.PageMeta) {}
func (discardRenderer) StatsReady(viewmodel.Stats) {}

// loadView activates a view model and waits for its first complete
// snapshot. The caller must Deactivate the result. A subscription
// failure before the snapshot ends the wait: a one-shot command does
// not sit through reconnect backoff.
func loadView(ctx context.Context, opened *session, viewConfig viewmodel.Config, timeout time.Duration) (*viewmodel.ViewModel, error) {
	failures := make(chan error, 1)
	viewConfig.OnError = func(err error) {
		select {
		case failures <- err:
		default:
		}
	}
	viewModel, err := viewmodel.New(opened.store, discardRenderer{}, viewConfig)
	if err != nil {
		return nil, cli.Internal("%v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ready := viewModel.Ready()
	if err := viewModel.Activate(ctx); err != nil {
		return nil, err
	}
	select {
	case <-ready:
		return viewModel, nil
	case err := <-failures:
		viewModel.Deactivate()
		return nil, err
	case <-ctx.Done():
		viewModel.Deactivate()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, cli.Transient("no snapshot of %q within %s", viewConfig.Collection, timeout).
				WithHint("Check that console-service is running, or use --store-dir for local files.")
		}
		return nil, ctx.Err()
	}
}
