// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/bizartvisor-cli/internal/conversation"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/util"
)

// =============================================================================
// MAIN RENDER
// =============================================================================

// render stacks header, messages, panel, notice, input and status bar.
// The viewport height is kept in sync by layout().
func (m Model) render() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	body := m.viewport.View()
	if m.mode != modeChat {
		body = m.renderList()
	}

	parts := []string{m.renderHeader(), body}
	if p := m.panelView(); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, m.renderNotice(), m.input.View(), m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// refresh re-renders the thread into the viewport. The view follows the
// newest message when forced or when it was already at the bottom.
func (m *Model) refresh(force bool) {
	follow := force || m.viewport.AtBottom()
	m.viewport.SetContent(m.renderThread())
	if follow {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// THREAD
// =============================================================================

func (m Model) renderThread() string {
	if m.svc == nil {
		return ""
	}
	t := m.svc.Thread().Snapshot()
	if len(t.Messages) == 0 {
		return m.renderWelcome()
	}

	width := m.wrapWidth()
	streaming := m.busy()
	last := len(t.Messages) - 1

	var b strings.Builder
	for i, msg := range t.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		if msg.IsUser() {
			b.WriteString(m.theme.UserLabel.Render(msg.Origin.DisplayName()))
			b.WriteString("\n")
			b.WriteString(m.theme.UserText.Width(width).Render(msg.Text))
			b.WriteString("\n")
			continue
		}

		b.WriteString(m.theme.BotLabel.Render(msg.Origin.DisplayName()))
		b.WriteString("\n")
		live := streaming && i == last
		switch {
		case live && msg.Text == m.placeholder:
			b.WriteString(m.spinner.View() + " " + m.theme.Placeholder.Render(msg.Text))
		case msg.Text == "":
			b.WriteString(m.theme.Muted.Render("(no reply)"))
		case live || !m.ui.RenderMarkdown:
			b.WriteString(m.theme.BotText.Width(width).Render(msg.Text))
		default:
			b.WriteString(m.md.render(msg.Text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderWelcome() string {
	lines := []string{
		m.theme.HeaderTitle.Render("Welcome to bizartvisor"),
		"",
		m.theme.Muted.Render("Type a question and press Enter."),
		m.theme.Muted.Render("/help lists commands, F1 shows keys, Ctrl+O opens a stored thread."),
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// CHROME
// =============================================================================

func (m Model) renderHeader() string {
	s := conversation.Settings{}
	session := model.NewSessionID
	if m.svc != nil {
		s = m.svc.Settings()
		session = m.svc.Thread().SessionID()
	}

	title := m.theme.HeaderTitle.Render("bizartvisor")
	meta := []string{s.ModelName}
	if s.UseRAG {
		meta = append(meta, "RAG")
	}
	if s.UseNewsTool {
		meta = append(meta, "news")
	}
	if session == model.NewSessionID || session == "" {
		meta = append(meta, "new thread")
	} else {
		meta = append(meta, "session "+shortID(session))
	}

	line := title + "  " + m.theme.HeaderMeta.Render(strings.Join(meta, " · "))
	return m.theme.Header.Width(m.width).MaxHeight(headerHeight).Render(line)
}

func (m Model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	text := util.TruncateWidth(m.notice, m.width-2)
	switch m.noticeKind {
	case noticeSuccess:
		return m.theme.Success(text)
	case noticeWarning:
		return m.theme.Warning(text)
	case noticeError:
		return m.theme.Error(text)
	default:
		return m.theme.Info(text)
	}
}

func (m Model) renderStatusBar() string {
	var left string
	switch m.state {
	case conversation.StateIdle:
		left = m.theme.StatusValue.Render("ready")
	default:
		left = m.spinner.View() + " " + m.theme.Streaming.Render(strings.ToLower(m.state.String()))
	}

	var right string
	if r := m.lastResult; r != nil && m.ui.ShowStats && m.state == conversation.StateIdle {
		right = m.theme.StatusKey.Render("last ") + m.theme.StatusValue.Render(formatStats(r))
	} else {
		right = m.help.ShortHelpView(m.keys.ShortHelp())
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).MaxHeight(statusHeight).Render(left + strings.Repeat(" ", gap) + right)
}

// panelView returns the help, command output or nothing.
func (m Model) panelView() string {
	switch {
	case m.mode != modeChat:
		return ""
	case m.showHelp:
		return m.help.View(m.keys)
	case m.completion.Visible:
		return m.renderCompletions()
	case m.panel != "":
		return strings.TrimRight(m.panel, "\n")
	}
	return ""
}

func (m Model) renderCompletions() string {
	const maxShown = 6
	var lines []string
	for i, c := range m.completion.Completions {
		if i == maxShown {
			lines = append(lines, m.theme.Muted.Render(fmt.Sprintf("  ... %d more", len(m.completion.Completions)-maxShown)))
			break
		}
		text := util.PadRight(c.Display, 22) + " " + m.theme.Muted.Render(c.Description)
		if i == m.completion.Selected {
			lines = append(lines, m.theme.ListSelected.Render(text))
		} else {
			lines = append(lines, m.theme.ListItem.Render(text))
		}
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// LISTS
// =============================================================================

func (m Model) renderList() string {
	title := "Stored threads"
	hint := "Enter opens, Esc closes"
	if m.mode == modeModels {
		title = "Models"
		hint = "Enter selects, Esc closes"
	}

	rows := m.viewport.Height - 3
	if rows < 1 {
		rows = 1
	}
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(start+rows, len(m.list))

	lines := []string{m.theme.ListTitle.Render(title)}
	for i := start; i < end; i++ {
		item := m.list[i]
		if m.mode == modeModels {
			item = util.PadRight(item, 24) + " " + m.theme.Muted.Render(model.ProviderFor(item))
		}
		if i == m.cursor {
			lines = append(lines, m.theme.ListSelected.Render(item))
		} else {
			lines = append(lines, m.theme.ListItem.Render(item))
		}
	}
	lines = append(lines, m.theme.InputHint.Render(hint))

	return lipgloss.NewStyle().Height(m.viewport.Height).MaxHeight(m.viewport.Height).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// MARKDOWN
// =============================================================================

// markdown renders completed replies with glamour and caches the output.
type markdown struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]string
}

func newMarkdown(style string) *markdown {
	return &markdown{style: style, cache: make(map[string]string)}
}

// resize rebuilds the renderer for a new wrap width.
func (md *markdown) resize(width int) {
	if width == md.width && md.renderer != nil {
		return
	}
	md.width = width
	md.cache = make(map[string]string)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(md.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		md.renderer = nil
		return
	}
	md.renderer = r
}

func (md *markdown) render(text string) string {
	if out, ok := md.cache[text]; ok {
		return out
	}
	if md.renderer == nil {
		return text
	}
	out, err := md.renderer.Render(text)
	if err != nil {
		return text
	}
	out = strings.Trim(out, "\n")
	md.cache[text] = out
	return out
}

// =============================================================================
// UTILITIES
// =============================================================================

// copyToClipboard copies text to the system clipboard.
func copyToClipboard(text string) error {
	return clipboard.WriteAll(text)
}

func shortID(id string) string {
	if len(id) <= 13 {
		return id
	}
	return id[:8] + "…" + id[len(id)-4:]
}

func formatStats(r *conversation.Result) string {
	parts := []string{
		fmt.Sprintf("%d frags", r.Stats.Fragments),
		fmt.Sprintf("%d tok", r.Tokens),
	}
	if r.Stats.FirstFragment > 0 {
		parts = append(parts, "first "+r.Stats.FirstFragment.Round(time.Millisecond).String())
	}
	if r.Stats.TotalTime > 0 {
		parts = append(parts, r.Stats.TotalTime.Round(time.Millisecond).String())
	}
	return strings.Join(parts, " · ")
}
