// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/console/lib/entity"
	"github.com/bureau-foundation/console/lib/viewmodel"
)

// Controller is the part of *viewmodel.ViewModel the model drives.
type Controller interface {
	Activate(ctx context.Context) error
	SetFilter(criteria viewmodel.Criteria)
	SetSort(field string)
	SetPage(n int)
	SetPageSize(n int)
	SelectForBulk(ids []string)
	ConfirmBulk(ctx context.Context, status string) error
}

// pageSizeStep is how much + and - change the page size.
const pageSizeStep = 5

// operationDoneMsg marks the completion of one queued controller
// operation.
type operationDoneMsg struct{}

// bulkDoneMsg reports the outcome of a ConfirmBulk.
type bulkDoneMsg struct {
	Status string
	Count  int
	Err    error
}

// Model is the bubbletea model for one collection.
type Model struct {
	ctx        context.Context
	controller Controller
	collection string
	kind       entity.Kind

	// dispatch runs controller operations in order, off the event
	// loop.
	dispatch func(func())

	styles  styles
	keys    KeyMap
	help    help.Model
	filter  textinput.Model
	columns []Column

	page  []entity.Entity
	meta  viewmodel.PageMeta
	stats viewmodel.Stats

	// loaded is false until the first page arrives.
	loaded bool
	cursor int

	// wanted tracks what the user has asked for (selection,
	// criteria, sort, page, page size) ahead of the view model. It
	// resyncs from meta whenever no queued operation is outstanding,
	// so fast key presses build on each other instead of on a stale
	// render.
	wanted   viewmodel.PageMeta
	inflight int

	// pendingBulk is the status of an in-flight ConfirmBulk, or "".
	pendingBulk string

	statusMessage  string
	statusLevel    slog.Level
	statusSequence uint64

	width  int
	height int
}

// NewModel creates a model that drives controller. renderer fixes the
// output and color profile the styles are built for.
func NewModel(ctx context.Context, controller Controller, collectionName string, kind entity.Kind, renderer *lipgloss.Renderer, theme Theme) Model {
	filter := textinput.New()
	filter.Prompt = "/ "
	filter.Placeholder = "search"
	filter.CharLimit = 120

	helpModel := help.New()
	helpModel.Styles.ShortKey = renderer.NewStyle().Foreground(theme.NormalText)
	helpModel.Styles.ShortDesc = renderer.NewStyle().Foreground(theme.HelpText)
	helpModel.Styles.FullKey = helpModel.Styles.ShortKey
	helpModel.Styles.FullDesc = helpModel.Styles.ShortDesc

	return Model{
		ctx:        ctx,
		controller: controller,
		dispatch:   newDispatcher(ctx).push,
		collection: collectionName,
		kind:       kind,
		styles:     newStyles(renderer, theme),
		keys:       DefaultKeyMap,
		help:       helpModel,
		filter:     filter,
		columns:    Columns(kind),
		stats:      viewmodel.Aggregate(kind, nil),
		meta:       viewmodel.PageMeta{CurrentPage: 1, TotalPages: 1},
		wanted:     viewmodel.PageMeta{CurrentPage: 1, TotalPages: 1},
	}
}

// Init activates the view model. Activation runs as a command so that
// the first render finds the program already reading messages.
func (model Model) Init() tea.Cmd {
	controller, ctx := model.controller, model.ctx
	return func() tea.Msg {
		if err := controller.Activate(ctx); err != nil {
			return errorMsg{Err: err}
		}
		return nil
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.help.Width = message.Width
		model.filter.Width = max(10, message.Width/3)
		return model, nil

	case pageMsg:
		model.page = message.Page
		model.meta = message.Meta
		if model.inflight == 0 {
			model.syncFromMeta()
		}
		model.loaded = true
		model.cursor = min(max(model.cursor, 0), max(len(model.page)-1, 0))
		return model, nil

	case operationDoneMsg:
		model.inflight = max(0, model.inflight-1)
		if model.inflight == 0 {
			model.syncFromMeta()
		}
		return model, nil

	case statsMsg:
		model.stats = message.Stats
		return model, nil

	case errorMsg:
		return model.setStatus(slog.LevelError, message.Err.Error())

	case bulkDoneMsg:
		model.pendingBulk = ""
		if message.Err != nil {
			return model.setStatus(slog.LevelError, describeBulkError(message.Err))
		}
		return model.setStatus(slog.LevelInfo, fmt.Sprintf("%s %d %s", pastTense(message.Status), message.Count, plural(message.Count)))

	case logRecordMsg:
		return model.setStatus(message.Level, message.Summary)

	case logRecordFadeMsg:
		if message.Sequence == model.statusSequence {
			model.statusMessage = ""
		}
		return model, nil

	case tea.KeyMsg:
		if model.filter.Focused() {
			return model.handleFilterKeys(message)
		}
		return model.handleKeys(message)
	}
	return model, nil
}

func (model Model) handleKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.page)-1 {
			model.cursor++
		}

	case key.Matches(message, model.keys.Toggle):
		if model.cursor >= len(model.page) {
			return model, nil
		}
		id := model.page[model.cursor].ID
		selection := slices.Clone(model.wanted.Selection)
		if index := slices.Index(selection, id); index >= 0 {
			selection = slices.Delete(selection, index, index+1)
		} else {
			selection = append(selection, id)
		}
		model.wanted.Selection = selection
		if model.cursor < len(model.page)-1 {
			model.cursor++
		}
		cmd := model.call(func(c Controller) { c.SelectForBulk(selection) })
		return model, cmd

	case key.Matches(message, model.keys.Approve):
		return model.confirmBulk(entity.StatusApproved)

	case key.Matches(message, model.keys.Deny):
		return model.confirmBulk(entity.StatusDenied)

	case key.Matches(message, model.keys.Sort):
		field := nextSortField(SortFields(model.kind), model.wanted.Sort.Field)
		model.wanted.Sort = model.wanted.Sort.Select(field)
		model.wanted.CurrentPage = 1
		cmd := model.call(func(c Controller) { c.SetSort(field) })
		return model, cmd

	case key.Matches(message, model.keys.Reverse):
		if model.wanted.Sort.Field == "" {
			return model, nil
		}
		field := model.wanted.Sort.Field
		model.wanted.Sort = model.wanted.Sort.Select(field)
		model.wanted.CurrentPage = 1
		cmd := model.call(func(c Controller) { c.SetSort(field) })
		return model, cmd

	case key.Matches(message, model.keys.NextPage):
		if model.wanted.CurrentPage < model.wanted.TotalPages {
			target := model.wanted.CurrentPage + 1
			model.wanted.CurrentPage = target
			model.cursor = 0
			cmd := model.call(func(c Controller) { c.SetPage(target) })
			return model, cmd
		}

	case key.Matches(message, model.keys.PrevPage):
		if model.wanted.CurrentPage > 1 {
			target := model.wanted.CurrentPage - 1
			model.wanted.CurrentPage = target
			model.cursor = 0
			cmd := model.call(func(c Controller) { c.SetPage(target) })
			return model, cmd
		}

	case key.Matches(message, model.keys.Grow):
		size := model.pageSize() + pageSizeStep
		model.wanted.PageSize = size
		model.wanted.CurrentPage = 1
		cmd := model.call(func(c Controller) { c.SetPageSize(size) })
		return model, cmd

	case key.Matches(message, model.keys.Shrink):
		size := max(pageSizeStep, model.pageSize()-pageSizeStep)
		if size == model.pageSize() {
			return model, nil
		}
		model.wanted.PageSize = size
		model.wanted.CurrentPage = 1
		cmd := model.call(func(c Controller) { c.SetPageSize(size) })
		return model, cmd

	case key.Matches(message, model.keys.StatusFilter):
		criteria := model.wanted.Criteria
		criteria.StatusKey = nextStatus(model.kind.Spec().Statuses, criteria.StatusKey)
		model.wanted.Criteria = criteria
		model.wanted.CurrentPage = 1
		model.cursor = 0
		cmd := model.call(func(c Controller) { c.SetFilter(criteria) })
		return model, cmd

	case key.Matches(message, model.keys.TextFilter):
		model.filter.SetValue(model.wanted.Criteria.Text)
		model.filter.CursorEnd()
		cmd := model.filter.Focus()
		return model, cmd

	case key.Matches(message, model.keys.ClearFilter):
		if model.wanted.Criteria.IsZero() {
			return model, nil
		}
		model.filter.SetValue("")
		model.wanted.Criteria = viewmodel.Criteria{}
		model.wanted.CurrentPage = 1
		model.cursor = 0
		cmd := model.call(func(c Controller) { c.SetFilter(viewmodel.Criteria{}) })
		return model, cmd

	case key.Matches(message, model.keys.Help):
		model.help.ShowAll = !model.help.ShowAll
	}
	return model, nil
}

// handleFilterKeys edits the text filter, applying it as the user
// types. Enter keeps the text; Esc discards it.
func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch message.Type {
	case tea.KeyEnter:
		model.filter.Blur()
		return model, nil
	case tea.KeyEsc:
		model.filter.Blur()
		model.filter.SetValue("")
		criteria := model.wanted.Criteria
		criteria.Text = ""
		model.wanted.Criteria = criteria
		model.wanted.CurrentPage = 1
		cmd := model.call(func(c Controller) { c.SetFilter(criteria) })
		return model, cmd
	case tea.KeyCtrlC:
		return model, tea.Quit
	}

	previous := model.filter.Value()
	var inputCmd tea.Cmd
	model.filter, inputCmd = model.filter.Update(message)
	if model.filter.Value() == previous {
		return model, inputCmd
	}
	criteria := model.wanted.Criteria
	criteria.Text = model.filter.Value()
	model.wanted.Criteria = criteria
	model.wanted.CurrentPage = 1
	model.cursor = 0
	cmd := model.call(func(c Controller) { c.SetFilter(criteria) })
	return model, tea.Batch(inputCmd, cmd)
}

func (model Model) confirmBulk(status string) (tea.Model, tea.Cmd) {
	if model.pendingBulk != "" {
		return model, nil
	}
	if len(model.wanted.Selection) == 0 {
		return model.setStatus(slog.LevelWarn, "nothing selected: mark rows with space first")
	}
	model.pendingBulk = status
	controller, ctx, count := model.controller, model.ctx, len(model.wanted.Selection)
	result := make(chan error, 1)
	model.dispatch(func() { result <- controller.ConfirmBulk(ctx, status) })
	return model, func() tea.Msg {
		select {
		case err := <-result:
			return bulkDoneMsg{Status: status, Count: count, Err: err}
		case <-ctx.Done():
			return nil
		}
	}
}

// call queues a controller operation. The resulting render arrives
// as a pageMsg; the returned command reports completion. Callers must
// return the updated model, whose inflight count includes the call.
func (model *Model) call(operation func(Controller)) tea.Cmd {
	model.inflight++
	controller, ctx := model.controller, model.ctx
	done := make(chan struct{})
	model.dispatch(func() {
		defer close(done)
		operation(controller)
	})
	return func() tea.Msg {
		select {
		case <-done:
		case <-ctx.Done():
		}
		return operationDoneMsg{}
	}
}

func (model *Model) syncFromMeta() {
	model.wanted = model.meta
	model.wanted.Selection = slices.Clone(model.meta.Selection)
}

func (model Model) setStatus(level slog.Level, text string) (tea.Model, tea.Cmd) {
	model.statusSequence++
	model.statusMessage = text
	model.statusLevel = level
	sequence := model.statusSequence
	return model, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
		return logRecordFadeMsg{Sequence: sequence}
	})
}

func (model Model) pageSize() int {
	if model.wanted.PageSize > 0 {
		return model.wanted.PageSize
	}
	return viewmodel.DefaultPageSize
}

// View implements tea.Model.
func (model Model) View() string {
	s := model.styles
	sections := []string{
		s.header.Render(fmt.Sprintf("%s · %s", model.collection, model.kind)),
		renderTiles(s, model.stats, model.width),
	}

	filterLine := s.faint.Render("filter: " + describeCriteria(model.meta.Criteria))
	if model.filter.Focused() {
		filterLine = model.filter.View()
	}
	sections = append(sections, filterLine)

	if model.loaded {
		sections = append(sections, renderTable(s, fitColumns(model.columns, model.width), model.page, model.meta, model.cursor))
	} else {
		sections = append(sections, s.faint.Render("waiting for the first snapshot…"))
	}

	sections = append(sections, model.statusLine())
	return strings.Join(sections, "\n")
}

func (model Model) statusLine() string {
	s := model.styles
	switch {
	case model.pendingBulk != "":
		return s.warning.Render(fmt.Sprintf("setting %d to %s…", len(model.wanted.Selection), model.pendingBulk))
	case model.statusMessage != "" && model.statusLevel >= slog.LevelError:
		return s.failure.Render(model.statusMessage)
	case model.statusMessage != "" && model.statusLevel >= slog.LevelWarn:
		return s.warning.Render(model.statusMessage)
	case model.statusMessage != "":
		return s.normal.Render(model.statusMessage)
	}
	return model.help.View(model.keys)
}

// nextSortField returns the field after current in fields, wrapping.
func nextSortField(fields []string, current string) string {
	index := slices.Index(fields, current)
	return fields[(index+1)%len(fields)]
}

// nextStatus cycles "" -> statuses[0] -> ... -> statuses[n-1] -> "".
func nextStatus(statuses []string, current string) string {
	index := slices.Index(statuses, current)
	if index == len(statuses)-1 {
		return ""
	}
	return statuses[index+1]
}

func describeBulkError(err error) string {
	switch {
	case errors.Is(err, viewmodel.ErrEmptySelection):
		return "nothing selected"
	case errors.Is(err, viewmodel.ErrMissingActor):
		return "no actor configured: set console.actor"
	}
	return err.Error() + " (selection kept, retry or change it)"
}

func pastTense(status string) string {
	switch status {
	case entity.StatusApproved, entity.StatusDenied, entity.StatusCancelled:
		return status
	}
	return "set to " + status
}

func plural(count int) string {
	if count == 1 {
		return "entity"
	}
	return "entities"
}
