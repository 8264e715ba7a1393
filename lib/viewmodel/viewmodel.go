// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package viewmodel is the live view engine behind every console
// table. One ViewModel follows one collection:
//
//	subscription snapshot -> Mirror.Replace -> Aggregate
//	                      -> Filter -> Sort -> Paginate -> Renderer
//
// User actions (filter, sort, page) rerun the tail of that chain
// against the current mirror without waiting for the store. Bulk
// mutations go to the store and show up only through the next
// snapshot; the mirror is never patched locally.
//
// Every mirror replacement and every user action runs under one
// mutex, through rendering, before the next begins, so a renderer
// never observes a half-applied state. Renderers are invoked with that
// mutex held and must not call back into the ViewModel synchronously.
package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bureau-foundation/console/lib/clock"
	"github.com/bureau-foundation/console/lib/collection"
	"github.com/bureau-foundation/console/lib/entity"
)

// Renderer draws the engine's output. Both methods may be called
// repeatedly with identical data and must not accumulate state from
// one call to the next.
type Renderer interface {
	// PageReady delivers the visible page after every recompute.
	PageReady(page []entity.Entity, meta PageMeta)

	// StatsReady delivers whole-collection statistics after every
	// mirror replacement.
	StatsReady(stats Stats)
}

// PageMeta describes the page handed to PageReady.
type PageMeta struct {
	StartIndex  int
	EndIndex    int
	TotalItems  int
	TotalPages  int
	CurrentPage int
	PageSize    int

	Sort     SortState
	Criteria Criteria

	// Selection is the set of ids chosen for bulk mutation, in
	// selection order.
	Selection []string
}

// Config parameterizes a ViewModel.
type Config struct {
	// Collection and Kind identify what is being viewed.
	Collection string
	Kind       entity.Kind

	// OrderField and Direction are the store-side ordering for the
	// initial shape of each snapshot.
	OrderField string
	Direction  collection.Direction

	// PageSize defaults to DefaultPageSize.
	PageSize int

	// Sort is the initial sort.
	Sort SortState

	// Actor is recorded as updatedBy on bulk mutations. ConfirmBulk
	// fails without it.
	Actor string

	// Tasks enables the task status overlay.
	Tasks *TaskOverlay

	// OnError receives SubscriptionError and BulkMutationError values
	// for user notification. Called from store goroutines, never with
	// the ViewModel mutex held.
	OnError func(err error)

	Clock  clock.Clock
	Logger *slog.Logger
}

// View is the most recently computed output.
type View struct {
	Window Window
	Meta   PageMeta
	Stats  Stats
}

// ViewModel owns one screen's mirror and derived state. Lifecycle is
// New, Activate, Deactivate, then discard; Activate may be called
// again after Deactivate.
type ViewModel struct {
	store    collection.Store
	renderer Renderer
	config   Config
	bulk     *BulkExecutor
	logger   *slog.Logger

	mutex sync.Mutex

	mirror       Mirror
	taskStatuses map[string]any

	criteria    Criteria
	sort        SortState
	pageSize    int
	currentPage int
	selection   []string

	view View

	// generation increments on every Activate and Deactivate.
	// Subscription callbacks carry the generation they were created
	// under and are dropped when it no longer matches, which makes
	// a callback already in flight during Deactivate harmless.
	generation  uint64
	active      bool
	unsubscribe []func()

	// ready closes once every feed of the current activation has
	// delivered its first snapshot. awaiting holds the feeds still
	// outstanding.
	ready       chan struct{}
	readyClosed bool
	awaiting    map[string]bool
}

// New creates an inactive ViewModel.
func New(store collection.Store, renderer Renderer, config Config) (*ViewModel, error) {
	if store == nil {
		return nil, errors.New("viewmodel: store is required")
	}
	if renderer == nil {
		return nil, errors.New("viewmodel: renderer is required")
	}
	if config.Collection == "" {
		return nil, errors.New("viewmodel: collection is required")
	}
	if _, err := entity.ParseKind(string(config.Kind)); err != nil {
		return nil, fmt.Errorf("viewmodel: %w", err)
	}
	if config.Tasks != nil {
		overlay := config.Tasks.withDefaults()
		if overlay.Collection == "" {
			return nil, errors.New("viewmodel: task overlay collection is required")
		}
		config.Tasks = &overlay
	}
	if config.PageSize < 1 {
		config.PageSize = DefaultPageSize
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("collection", config.Collection, "kind", string(config.Kind))

	viewModel := &ViewModel{
		store:       store,
		renderer:    renderer,
		config:      config,
		bulk:        NewBulkExecutor(store, config.Collection, config.Kind, config.Clock, logger),
		logger:      logger,
		sort:        config.Sort,
		pageSize:    config.PageSize,
		currentPage: 1,
		ready:       make(chan struct{}),
	}
	viewModel.view = View{
		Window: Paginate(nil, config.PageSize, 1),
		Stats:  Aggregate(config.Kind, nil),
	}
	return viewModel, nil
}

// Activate subscribes to the collection (and the task collection, if
// configured). An existing subscription is torn down first, so a
// ViewModel never holds two feeds for the same collection. A failure
// to subscribe is returned as a *SubscriptionError and leaves the
// ViewModel inactive with its mirror intact.
func (vm *ViewModel) Activate(ctx context.Context) error {
	vm.Deactivate()

	vm.mutex.Lock()
	vm.generation++
	generation := vm.generation
	vm.active = true
	if vm.readyClosed {
		vm.ready = make(chan struct{})
		vm.readyClosed = false
	}
	vm.awaiting = map[string]bool{vm.config.Collection: true}
	if vm.config.Tasks != nil {
		vm.awaiting[vm.config.Tasks.Collection] = true
	}
	vm.mutex.Unlock()

	query := collection.Query{
		Collection: vm.config.Collection,
		OrderField: vm.config.OrderField,
		Direction:  vm.config.Direction,
	}
	unsubscribe, err := vm.store.Subscribe(ctx, query, collection.Handler{
		OnChange: func(records []collection.Record) { vm.replace(generation, records) },
		OnError:  func(err error) { vm.subscriptionFailed(generation, vm.config.Collection, err) },
	})
	if err != nil {
		vm.Deactivate()
		return &SubscriptionError{Collection: vm.config.Collection, Err: err}
	}
	handles := []func(){unsubscribe}

	if vm.config.Tasks != nil {
		overlay := *vm.config.Tasks
		unsubscribeTasks, err := vm.store.Subscribe(ctx, overlay.query(), collection.Handler{
			OnChange: func(records []collection.Record) { vm.replaceTasks(generation, overlay, records) },
			OnError:  func(err error) { vm.subscriptionFailed(generation, overlay.Collection, err) },
		})
		if err != nil {
			unsubscribe()
			vm.Deactivate()
			return &SubscriptionError{Collection: overlay.Collection, Err: err}
		}
		handles = append(handles, unsubscribeTasks)
	}

	vm.mutex.Lock()
	if vm.generation != generation {
		// Deactivated while subscribing.
		vm.mutex.Unlock()
		for _, handle := range handles {
			handle()
		}
		return nil
	}
	vm.unsubscribe = handles
	vm.mutex.Unlock()

	vm.logger.Info("view activated", "order_field", query.OrderField)
	return nil
}

// Deactivate cancels the subscriptions. Idempotent. After it returns
// no snapshot, including one already being delivered, changes the
// mirror.
func (vm *ViewModel) Deactivate() {
	vm.mutex.Lock()
	if !vm.active {
		vm.mutex.Unlock()
		return
	}
	vm.generation++
	vm.active = false
	handles := vm.unsubscribe
	vm.unsubscribe = nil
	vm.mutex.Unlock()

	for _, handle := range handles {
		handle()
	}
	vm.logger.Info("view deactivated")
}

// Ready returns a channel that is closed once the current activation
// has delivered the first snapshot of the collection and, when the
// task overlay is configured, of the task collection. A channel taken
// before Activate belongs to the next activation.
func (vm *ViewModel) Ready() <-chan struct{} {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	return vm.ready
}

func (vm *ViewModel) markDeliveredLocked(collectionName string) {
	if vm.readyClosed || !vm.awaiting[collectionName] {
		return
	}
	delete(vm.awaiting, collectionName)
	if len(vm.awaiting) == 0 {
		close(vm.ready)
		vm.readyClosed = true
	}
}

// Active reports whether the ViewModel is subscribed.
func (vm *ViewModel) Active() bool {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	return vm.active
}

// Replace installs records as the new mirror contents and recomputes
// everything, synchronously. Subscriptions call this path; it is
// exported for feeding a ViewModel from a one-shot snapshot.
func (vm *ViewModel) Replace(records []collection.Record) {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	vm.replaceLocked(records)
}

func (vm *ViewModel) replace(generation uint64, records []collection.Record) {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	if generation != vm.generation || !vm.active {
		vm.logger.Debug("dropped snapshot from stale subscription", "records", len(records))
		return
	}
	vm.replaceLocked(records)
	vm.markDeliveredLocked(vm.config.Collection)
}

func (vm *ViewModel) replaceLocked(records []collection.Record) {
	now := vm.config.Clock.Now()
	entities := make([]entity.Entity, len(records))
	for index, record := range records {
		normalized, warnings := entity.Normalize(vm.config.Kind, record, now)
		for _, warning := range warnings {
			vm.logger.Warn("entity normalized with fallback", "id", record.ID, "error", warning)
		}
		entities[index] = normalized
	}
	vm.mirror.Replace(entities)
	vm.pruneSelectionLocked()
	vm.recomputeLocked(true)
}

func (vm *ViewModel) replaceTasks(generation uint64, overlay TaskOverlay, records []collection.Record) {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	if generation != vm.generation || !vm.active {
		return
	}
	vm.taskStatuses = overlay.taskStatuses(records)
	vm.recomputeLocked(true)
	vm.markDeliveredLocked(overlay.Collection)
}

func (vm *ViewModel) subscriptionFailed(generation uint64, collectionName string, err error) {
	vm.mutex.Lock()
	stale := generation != vm.generation || !vm.active
	vm.mutex.Unlock()
	if stale {
		return
	}

	subscriptionError := &SubscriptionError{Collection: collectionName, Err: err}
	vm.logger.Warn("subscription error, keeping last snapshot", "error", err)
	if vm.config.OnError != nil {
		vm.config.OnError(subscriptionError)
	}
}

// SetFilter replaces the criteria and returns to page 1.
func (vm *ViewModel) SetFilter(criteria Criteria) {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	vm.criteria = criteria
	vm.currentPage = 1
	vm.recomputeLocked(false)
}

// SetSort selects a sort field (toggling direction when it is already
// active) and returns to page 1.
func (vm *ViewModel) SetSort(field string) {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	vm.sort = vm.sort.Select(field)
	vm.currentPage = 1
	vm.recomputeLocked(false)
}

// SetPage navigates to page n, clamped into range. Filter, sort, and
// page size are untouched.
func (vm *ViewModel) SetPage(n int) {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	vm.currentPage = n
	vm.recomputeLocked(false)
}

// SetPageSize changes the page size and returns to page 1.
func (vm *ViewModel) SetPageSize(n int) {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	if n < 1 {
		n = DefaultPageSize
	}
	vm.pageSize = n
	vm.currentPage = 1
	vm.recomputeLocked(false)
}

// SelectForBulk replaces the bulk selection. Ids not in the mirror
// are ignored.
func (vm *ViewModel) SelectForBulk(ids []string) {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	vm.selection = uniqueIDs(ids)
	vm.pruneSelectionLocked()
	vm.recomputeLocked(false)
}

// Selection returns the current bulk selection.
func (vm *ViewModel) Selection() []string {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	return slices.Clone(vm.selection)
}

// ConfirmBulk applies status to the selection as one atomic batch.
// The mirror is not touched; the result appears with the next
// snapshot. On success the selection is cleared. On failure it is
// kept so the user can retry, the error is passed to Config.OnError,
// and it is returned.
func (vm *ViewModel) ConfirmBulk(ctx context.Context, status string) error {
	vm.mutex.Lock()
	selection := slices.Clone(vm.selection)
	vm.mutex.Unlock()

	err := vm.bulk.BulkUpdate(ctx, selection, status, vm.config.Actor)
	if err != nil {
		var mutationError *BulkMutationError
		if errors.As(err, &mutationError) && vm.config.OnError != nil {
			vm.config.OnError(mutationError)
		}
		return err
	}

	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	if slices.Equal(vm.selection, selection) {
		vm.selection = nil
	} else {
		// The user changed the selection while the write was in
		// flight; drop only what was written.
		vm.selection = slices.DeleteFunc(vm.selection, func(id string) bool {
			return slices.Contains(selection, id)
		})
	}
	vm.recomputeLocked(false)
	return nil
}

// View returns the last computed output.
func (vm *ViewModel) View() View {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	return vm.view
}

// MirrorLen returns the number of mirrored entities.
func (vm *ViewModel) MirrorLen() int {
	vm.mutex.Lock()
	defer vm.mutex.Unlock()
	return vm.mirror.Len()
}

func (vm *ViewModel) pruneSelectionLocked() {
	if len(vm.selection) == 0 {
		return
	}
	vm.selection = slices.DeleteFunc(vm.selection, func(id string) bool {
		return !vm.mirror.Contains(id)
	})
}

// recomputeLocked runs aggregate (when withStats), filter, sort,
// paginate, and render. Must be called with vm.mutex held.
func (vm *ViewModel) recomputeLocked(withStats bool) {
	effective := applyOverlay(vm.config.Kind, vm.mirror.Entities(), vm.taskStatuses)

	if withStats {
		vm.view.Stats = Aggregate(vm.config.Kind, effective)
		vm.renderer.StatsReady(vm.view.Stats)
	}

	filtered, err := Filter(vm.config.Kind, effective, vm.criteria)
	if err != nil {
		vm.logger.Debug("filter yields no results", "error", err)
	}
	sorted := Sort(filtered, vm.sort)

	window := Paginate(sorted, vm.pageSize, vm.currentPage)
	if err := window.Verify(); err != nil {
		vm.logger.Error("pagination defect, resetting to first page", "error", err)
		window = Paginate(sorted, vm.pageSize, 1)
	}
	vm.currentPage = window.CurrentPage

	meta := PageMeta{
		StartIndex:  window.StartIndex,
		EndIndex:    window.EndIndex,
		TotalItems:  window.TotalItems,
		TotalPages:  window.TotalPages,
		CurrentPage: window.CurrentPage,
		PageSize:    window.PageSize,
		Sort:        vm.sort,
		Criteria:    vm.criteria,
		Selection:   slices.Clone(vm.selection),
	}
	vm.view.Window = window
	vm.view.Meta = meta
	vm.renderer.PageReady(window.Page, meta)
}
