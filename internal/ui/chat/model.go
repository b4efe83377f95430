// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
	"github.com/jeranaias/bizartvisor-cli/internal/commands"
	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/conversation"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/ui/styles"
	"github.com/jeranaias/bizartvisor-cli/internal/util"
)

// =============================================================================
// CHAT MODE
// =============================================================================

type mode int

const (
	modeChat mode = iota
	modeHistory
	modeModels
)

type noticeKind int

const (
	noticeInfo noticeKind = iota
	noticeSuccess
	noticeWarning
	noticeError
)

// Fixed layout heights.
const (
	headerHeight = 1
	noticeHeight = 1
	inputHeight  = 3
	statusHeight = 1
)

// ModelLister provides the model names offered by the backend.
type ModelLister interface {
	ListModelsOrDefault(ctx context.Context) ([]string, error)
}

// catalog is shared by every copy of the Model so the completer callbacks
// always see the latest lists.
type catalog struct {
	models   []string
	sessions []string
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Options configures a chat Model.
type Options struct {
	Service *conversation.Service
	Bridge  *Bridge

	// Models lists backend models; nil falls back to the built-in list
	Models ModelLister

	Theme       *styles.Theme
	UI          config.UIConfig
	Placeholder string
	Logger      *logrus.Entry
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	svc    *conversation.Service
	bridge *Bridge
	models ModelLister
	theme  *styles.Theme
	ui     config.UIConfig
	log    *logrus.Entry

	placeholder string

	// Widgets
	keys     KeyMap
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model

	// Slash commands
	parser     *commands.Parser
	registry   *commands.Registry
	completer  *commands.Completer
	completion *commands.CompletionState
	catalog    *catalog

	md *markdown

	width  int
	height int

	// Exchange
	state      conversation.State
	cancel     context.CancelFunc
	lastResult *conversation.Result

	// Lists
	mode   mode
	list   []string
	cursor int

	// Panel shows help, status and command output above the input
	panel    string
	showHelp bool

	notice     string
	noticeKind noticeKind

	quitting bool
}

// New creates a chat Model.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(styles.ThemeAuto, os.Stdout)
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	bridge := opts.Bridge
	if bridge == nil {
		bridge = NewBridge(0)
	}
	placeholder := opts.Placeholder
	if placeholder == "" {
		placeholder = model.PlaceholderText
	}

	keys := DefaultKeyMap()

	input := textarea.New()
	input.Placeholder = "Ask something, or type /help"
	input.ShowLineNumbers = false
	input.Prompt = "> "
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline = keys.Newline
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Streaming

	h := help.New()

	registry := commands.NewRegistry()
	cat := &catalog{models: append([]string(nil), model.DefaultModelNames...)}
	completer := commands.NewCompleter(registry)
	completer.ModelsFn = func() []string { return cat.models }
	completer.SessionsFn = func() []string { return cat.sessions }

	return Model{
		svc:         opts.Service,
		bridge:      bridge,
		models:      opts.Models,
		theme:       theme,
		ui:          opts.UI,
		log:         log.WithField("component", "chat"),
		placeholder: placeholder,
		keys:        keys,
		viewport:    viewport.New(0, 0),
		input:       input,
		spinner:     sp,
		help:        h,
		parser:      commands.NewParser(registry),
		registry:    registry,
		completer:   completer,
		completion:  commands.NewCompletionState(),
		catalog:     cat,
		md:          newMarkdown(theme.GlamourStyle()),
		state:       conversation.StateIdle,
	}
}

// Init starts the bridge listener and fetches the model list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.bridge.Wait(), m.fetchModels(false))
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m, cmd := m.update(msg)
	m.layout()
	return m, cmd
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.input.SetWidth(msg.Width)
		m.help.Width = msg.Width
		m.viewport.Width = msg.Width
		m.md.resize(m.wrapWidth())
		m.refresh(true)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh(false)
		return m, cmd

	case stateMsg:
		return m.handleState(msg)

	case snapshotMsg:
		m.refresh(false)
		return m, m.bridge.Wait()

	case sessionMsg:
		m.setNotice(noticeInfo, "session "+msg.Event.New)
		m.rememberSession(msg.Event.New)
		return m, m.bridge.Wait()

	case bridgeClosedMsg:
		return m, nil

	case exchangeDoneMsg:
		return m.handleExchangeDone(msg)

	case historyMsg:
		return m.handleHistory(msg)

	case threadLoadedMsg:
		return m.handleThreadLoaded(msg)

	case modelsMsg:
		return m.handleModels(msg)

	case clipboardMsg:
		if msg.Err != nil {
			m.setNotice(noticeError, "copy failed: "+msg.Err.Error())
		} else {
			m.setNotice(noticeSuccess, fmt.Sprintf("copied reply (%d chars)", msg.Chars))
		}
		return m, nil

	case ConfigReloadedMsg:
		return m.applyConfig(msg.Config), nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat view.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		if m.busy() {
			return m.stopReply()
		}
		return m.quit()
	}

	if m.mode != modeChat {
		return m.handleListKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Cancel):
		switch {
		case m.busy():
			return m.stopReply()
		case m.completion.Visible:
			m.completion.Clear()
		default:
			m.panel = ""
			m.showHelp = false
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.NewThread):
		return m.newThread()

	case key.Matches(msg, m.keys.History):
		return m, m.fetchHistory()

	case key.Matches(msg, m.keys.Models):
		return m, m.fetchModels(true)

	case key.Matches(msg, m.keys.ToggleRAG):
		return m.toggleRAG(nil)

	case key.Matches(msg, m.keys.ToggleNew):
		return m.toggleNews(nil)

	case key.Matches(msg, m.keys.Copy):
		return m.copyLastReply()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Complete):
		return m.complete(), nil

	case key.Matches(msg, m.keys.Submit):
		if m.completion.Visible {
			m.input.SetValue(strings.TrimRight(m.completion.Accept(), " "))
			m.input.CursorEnd()
			m.completion.Clear()
			return m, nil
		}
		return m.submit(m.input.Value())
	}

	m.completion.Clear()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.mode = modeChat
		m.list = nil
		m.input.Focus()
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.list)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Submit):
		if len(m.list) == 0 {
			return m, nil
		}
		choice := m.list[m.cursor]
		current := m.mode
		m.mode = modeChat
		m.list = nil
		m.input.Focus()
		if current == modeHistory {
			return m, m.switchThread(choice)
		}
		return m.selectModel(choice)
	}
	return m, nil
}

func (m Model) complete() Model {
	if m.completion.Visible {
		m.completion.Next()
		return m
	}
	value := m.input.Value()
	m.completion.Update(value, m.completer.Complete(value, len(value)))
	if len(m.completion.Completions) == 1 {
		m.input.SetValue(m.completion.Accept())
		m.input.CursorEnd()
		m.completion.Clear()
	}
	return m
}

// =============================================================================
// EXCHANGES
// =============================================================================

// busy reports whether an exchange is running or about to start.
func (m Model) busy() bool {
	return m.cancel != nil || (m.svc != nil && m.svc.Busy())
}

func (m Model) submit(text string) (Model, tea.Cmd) {
	if util.IsBlank(text) {
		return m, nil
	}

	if res := m.parser.Parse(text); res.IsCommand {
		m.input.Reset()
		return m.runCommand(res)
	}

	if m.busy() {
		m.setNotice(noticeWarning, "a reply is still streaming; press Esc to stop it")
		return m, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.input.Reset()
	m.panel = ""
	m.notice = ""
	m.refresh(true)

	svc := m.svc
	return m, func() tea.Msg {
		res, err := svc.Submit(ctx, text)
		return exchangeDoneMsg{Result: res, Err: err}
	}
}

func (m Model) stopReply() (Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
	}
	m.setNotice(noticeWarning, "stopping reply...")
	return m, nil
}

func (m Model) quit() (Model, tea.Cmd) {
	m.quitting = true
	if m.cancel != nil {
		m.cancel()
	}
	m.bridge.Close()
	return m, tea.Quit
}

func (m Model) handleState(msg stateMsg) (Model, tea.Cmd) {
	m.state = msg.To
	cmds := []tea.Cmd{m.bridge.Wait()}
	if msg.From == conversation.StateIdle && msg.To == conversation.StateAwaitingStream {
		cmds = append(cmds, m.spinner.Tick)
	}
	m.refresh(false)
	return m, tea.Batch(cmds...)
}

func (m Model) handleExchangeDone(msg exchangeDoneMsg) (Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state = conversation.StateIdle

	switch {
	case errors.Is(msg.Err, conversation.ErrEmptyInput):
	case errors.Is(msg.Err, conversation.ErrStreamInFlight):
		m.setNotice(noticeWarning, "a reply is still streaming")
	case backend.IsTransportError(msg.Err):
		m.log.WithError(msg.Err).Warn("exchange failed")
		m.setNotice(noticeError, "backend: "+msg.Err.Error())
	case msg.Err != nil:
		m.log.WithError(msg.Err).Error("exchange failed")
		m.setNotice(noticeError, msg.Err.Error())
	case msg.Result != nil && msg.Result.Canceled:
		m.setNotice(noticeWarning, "reply stopped")
	}

	if msg.Result != nil {
		m.lastResult = msg.Result
		if msg.Result.SessionChanged {
			m.rememberSession(msg.Result.SessionID)
		}
	}
	m.refresh(false)
	return m, nil
}

// =============================================================================
// THREADS
// =============================================================================

func (m Model) newThread() (Model, tea.Cmd) {
	if err := m.svc.NewThread(); err != nil {
		m.setNotice(noticeWarning, "cannot start a new thread while a reply is streaming")
		return m, nil
	}
	m.lastResult = nil
	m.setNotice(noticeSuccess, "new thread")
	m.refresh(true)
	return m, nil
}

func (m Model) fetchHistory() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ids, err := svc.History(context.Background())
		return historyMsg{IDs: ids, Err: err}
	}
}

func (m Model) handleHistory(msg historyMsg) (Model, tea.Cmd) {
	if msg.Err != nil {
		m.setNotice(noticeError, "history: "+msg.Err.Error())
		return m, nil
	}
	m.catalog.sessions = msg.IDs
	if len(msg.IDs) == 0 {
		m.setNotice(noticeInfo, "no stored threads")
		return m, nil
	}
	m.openList(modeHistory, msg.IDs, m.svc.Thread().SessionID())
	return m, nil
}

func (m Model) switchThread(id string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return threadLoadedMsg{ID: id, Err: svc.SwitchThread(context.Background(), id)}
	}
}

func (m Model) handleThreadLoaded(msg threadLoadedMsg) (Model, tea.Cmd) {
	if msg.Err != nil {
		if errors.Is(msg.Err, conversation.ErrStreamInFlight) {
			m.setNotice(noticeWarning, "cannot switch threads while a reply is streaming")
		} else {
			m.setNotice(noticeError, "switch: "+msg.Err.Error())
		}
		return m, nil
	}
	m.lastResult = nil
	m.setNotice(noticeSuccess, "loaded thread "+msg.ID)
	m.refresh(true)
	return m, nil
}

func (m Model) rememberSession(id string) {
	if id == "" || id == model.NewSessionID {
		return
	}
	for _, s := range m.catalog.sessions {
		if s == id {
			return
		}
	}
	m.catalog.sessions = append([]string{id}, m.catalog.sessions...)
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m Model) fetchModels(open bool) tea.Cmd {
	lister := m.models
	return func() tea.Msg {
		if lister == nil {
			return modelsMsg{Names: model.DefaultModelNames, Open: open}
		}
		names, err := lister.ListModelsOrDefault(context.Background())
		return modelsMsg{Names: names, Err: err, Open: open}
	}
}

func (m Model) handleModels(msg modelsMsg) (Model, tea.Cmd) {
	if len(msg.Names) > 0 {
		m.catalog.models = msg.Names
	}
	if msg.Err != nil {
		m.log.WithError(msg.Err).Debug("model list unavailable, using defaults")
	}
	if msg.Open {
		m.openList(modeModels, m.catalog.models, m.svc.Settings().ModelName)
	}
	return m, nil
}

func (m Model) selectModel(name string) (Model, tea.Cmd) {
	if len(m.catalog.models) > 0 && !model.IsKnownModel(m.catalog.models, name) {
		m.setNotice(noticeError, fmt.Sprintf("unknown model %q; /models lists them", name))
		return m, nil
	}
	s := m.svc.Settings()
	for _, known := range m.catalog.models {
		if strings.EqualFold(known, name) {
			name = known
			break
		}
	}
	s.ModelName = name
	m.svc.SetSettings(s)
	m.setNotice(noticeSuccess, "model: "+name)
	return m, nil
}

func (m Model) toggleRAG(args []string) (Model, tea.Cmd) {
	s := m.svc.Settings()
	on, err := commands.Toggle(args, s.UseRAG)
	if err != nil {
		m.setNotice(noticeError, err.Error())
		return m, nil
	}
	s.UseRAG = on
	m.svc.SetSettings(s)
	m.setNotice(noticeInfo, "knowledge base "+onOff(on))
	return m, nil
}

func (m Model) toggleNews(args []string) (Model, tea.Cmd) {
	s := m.svc.Settings()
	on, err := commands.Toggle(args, s.UseNewsTool)
	if err != nil {
		m.setNotice(noticeError, err.Error())
		return m, nil
	}
	s.UseNewsTool = on
	m.svc.SetSettings(s)
	m.setNotice(noticeInfo, "news search "+onOff(on))
	return m, nil
}

func (m Model) applyConfig(cfg *config.Config) Model {
	if cfg == nil {
		return m
	}
	m.svc.SetSettings(conversation.SettingsFromConfig(cfg.Chat))
	if cfg.UI != m.ui {
		m.ui = cfg.UI
		m.md.resize(m.wrapWidth())
		m.refresh(false)
	}
	m.setNotice(noticeInfo, "configuration reloaded")
	return m
}

func (m Model) copyLastReply() (Model, tea.Cmd) {
	text, ok := m.svc.Thread().LastBotText()
	if !ok || util.IsBlank(text) || (m.busy() && text == m.placeholder) {
		m.setNotice(noticeWarning, "no reply to copy")
		return m, nil
	}
	return m, func() tea.Msg {
		return clipboardMsg{Chars: len([]rune(text)), Err: copyToClipboard(text)}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Model) openList(md mode, items []string, current string) {
	m.mode = md
	m.list = items
	m.cursor = 0
	for i, item := range items {
		if strings.EqualFold(item, current) {
			m.cursor = i
			break
		}
	}
	m.input.Blur()
	m.completion.Clear()
}

func (m *Model) setNotice(kind noticeKind, text string) {
	m.noticeKind = kind
	m.notice = text
}

// layout sizes the viewport to what the fixed rows leave over.
func (m *Model) layout() {
	if m.height == 0 {
		return
	}
	h := m.height - headerHeight - noticeHeight - inputHeight - statusHeight
	if p := m.panelView(); p != "" {
		h -= strings.Count(p, "\n") + 1
	}
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
	m.viewport.Width = m.width
}

func (m Model) wrapWidth() int {
	if m.ui.WordWrap > 0 && (m.width == 0 || m.ui.WordWrap < m.width-4) {
		return m.ui.WordWrap
	}
	if m.width > 8 {
		return m.width - 4
	}
	return 76
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// State returns the exchange state last reported by the service.
func (m Model) State() conversation.State {
	return m.state
}
