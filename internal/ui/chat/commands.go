// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bizartvisor-cli/internal/commands"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
)

// runCommand executes a parsed slash command.
func (m Model) runCommand(res commands.ParseResult) (Model, tea.Cmd) {
	if res.Error != nil {
		m.setNotice(noticeError, res.Error.Error())
		return m, nil
	}

	switch res.Action() {
	case commands.ActionHelp:
		m.panel = m.registry.Help()
		m.notice = ""
		return m, nil

	case commands.ActionQuit:
		return m.quit()

	case commands.ActionStatus:
		m.panel = m.statusText()
		m.notice = ""
		return m, nil

	case commands.ActionCopy:
		return m.copyLastReply()

	case commands.ActionNew:
		return m.newThread()

	case commands.ActionHistory:
		return m, m.fetchHistory()

	case commands.ActionSwitch:
		if m.busy() {
			m.setNotice(noticeWarning, "cannot switch threads while a reply is streaming")
			return m, nil
		}
		return m, m.switchThread(res.Args[0])

	case commands.ActionModel:
		if len(res.Args) == 0 {
			m.setNotice(noticeInfo, "model: "+m.svc.Settings().ModelName)
			return m, nil
		}
		return m.selectModel(res.Args[0])

	case commands.ActionModels:
		return m, m.fetchModels(true)

	case commands.ActionRAG:
		return m.toggleRAG(res.Args)

	case commands.ActionNews:
		return m.toggleNews(res.Args)
	}
	return m, nil
}

// statusText describes the thread, settings and last exchange.
func (m Model) statusText() string {
	s := m.svc.Settings()
	ctrl := m.svc.Thread()

	session := ctrl.SessionID()
	if session == model.NewSessionID {
		session += " (not yet stored)"
	}

	rows := [][2]string{
		{"session", session},
		{"messages", fmt.Sprint(ctrl.Len())},
		{"model", s.ModelName},
		{"rag", onOff(s.UseRAG)},
		{"news", onOff(s.UseNewsTool)},
		{"state", m.state.String()},
	}
	if r := m.lastResult; r != nil {
		rows = append(rows, [2]string{"last reply", formatStats(r)})
	}

	var b strings.Builder
	for _, row := range rows {
		b.WriteString(m.theme.StatusKey.Render(fmt.Sprintf("%-11s", row[0])))
		b.WriteString(m.theme.StatusValue.Render(row[1]))
		b.WriteString("\n")
	}
	return b.String()
}
