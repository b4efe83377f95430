// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/bizartvisor-cli/internal/commands"
	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/conversation"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/ui/styles"
)

// modelsFetchTimeout bounds the model list lookup at startup.
const modelsFetchTimeout = 5 * time.Second

func newReplCmd(a *app) *cobra.Command {
	var flags chatFlags

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Line-mode chat with input history",
		Long: `Chat in plain line mode. Replies print as they stream.

Arrow keys walk input history (kept in ~/.bizartvisor/repl_history), Tab
completes slash commands, Ctrl+C stops a streaming reply and Ctrl+D exits.`,
		GroupID: "chat",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runRepl(cmd, flags)
		},
	}
	addChatFlags(cmd, &flags)
	return cmd
}

func (a *app) runRepl(cmd *cobra.Command, flags chatFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	log := a.fileLogger()
	defer log.Close()

	client := a.client(log)
	rs := newReplSession(out, a.cfg.UI.ShowStats)
	rs.svc = a.service(client, log, flags.settings(cmd, a.cfg.Chat), rs.hooks())
	rs.models = client

	if flags.session != "" {
		if err := rs.svc.SwitchThread(ctx, flags.session); err != nil {
			return err
		}
	}
	rs.loadModels(ctx)

	histPath, err := config.HistoryPath()
	if err != nil {
		histPath = ""
	}
	lr := newLineReader(histPath)
	defer lr.Close()
	lr.line.SetCompleter(rs.complete)

	// Ctrl+C while a reply streams stops it; at the prompt liner aborts.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	stopWatch := rs.watchInterrupts(sigCh)
	defer stopWatch()

	rs.printWelcome(client.BaseURL())
	if flags.session != "" {
		rs.printThread()
	}

	for {
		input, err := lr.ReadInput(PromptStyle.Render("you> "))
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				log.WithError(err).Warn("prompt failed")
			}
			fmt.Fprintln(out)
			rs.printExitSummary()
			return nil
		}
		if rs.handleLine(ctx, input) {
			rs.printExitSummary()
			return nil
		}
	}
}

// =============================================================================
// LINE READER
// =============================================================================

// lineReader provides line editing and persistent input history.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader(historyFile string) *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	lr := &lineReader{line: line, historyFile: historyFile}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}
	return lr
}

// ReadInput prompts for one line and records non-blank input in history.
func (lr *lineReader) ReadInput(prompt string) (string, error) {
	input, err := lr.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		lr.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with 0600 permissions and restores the terminal.
func (lr *lineReader) Close() {
	defer lr.line.Close()
	if lr.historyFile == "" {
		return
	}
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(lr.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = lr.line.WriteHistory(f)
}

// =============================================================================
// SESSION
// =============================================================================

type modelLister interface {
	ListModelsOrDefault(ctx context.Context) ([]string, error)
}

// replSession runs line-mode exchanges against one conversation.
type replSession struct {
	svc       *conversation.Service
	models    modelLister
	out       io.Writer
	showStats bool

	registry  *commands.Registry
	parser    *commands.Parser
	completer *commands.Completer

	modelNames []string
	sessions   []string

	// printed is the reply text already written for the current exchange.
	printed string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newReplSession(out io.Writer, showStats bool) *replSession {
	reg := commands.NewRegistry()
	rs := &replSession{
		out:       out,
		showStats: showStats,
		registry:  reg,
		parser:    commands.NewParser(reg),
		completer: commands.NewCompleter(reg),
	}
	rs.completer.ModelsFn = func() []string { return rs.modelNames }
	rs.completer.SessionsFn = func() []string { return rs.sessions }
	return rs
}

// hooks prints reply snapshots as they arrive.
func (rs *replSession) hooks() conversation.Hooks {
	return conversation.Hooks{
		OnSnapshot: func(msg model.Message) {
			if strings.HasPrefix(msg.Text, rs.printed) {
				fmt.Fprint(rs.out, msg.Text[len(rs.printed):])
			} else {
				fmt.Fprint(rs.out, "\n"+msg.Text)
			}
			rs.printed = msg.Text
		},
	}
}

// interrupt stops the streaming reply, if any.
func (rs *replSession) interrupt() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cancel != nil {
		rs.cancel()
		rs.cancel = nil
	}
}

// watchInterrupts calls interrupt for every signal on sigCh until the
// returned stop function is called. stop waits for the watcher to exit.
func (rs *replSession) watchInterrupts(sigCh <-chan os.Signal) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		for {
			select {
			case <-sigCh:
				rs.interrupt()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}

func (rs *replSession) setCancel(cancel context.CancelFunc) {
	rs.mu.Lock()
	rs.cancel = cancel
	rs.mu.Unlock()
}

func (rs *replSession) complete(line string) []string {
	comps := rs.completer.Complete(line, len(line))
	out := make([]string, 0, len(comps))
	for _, c := range comps {
		out = append(out, commands.Apply(line, c))
	}
	return out
}

func (rs *replSession) loadModels(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, modelsFetchTimeout)
	defer cancel()
	names, _ := rs.models.ListModelsOrDefault(ctx)
	rs.modelNames = names
}

// handleLine processes one line of input. It reports whether the
// session should end.
func (rs *replSession) handleLine(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return false
	case commands.IsCommand(trimmed):
		quit, err := rs.runCommand(ctx, rs.parser.Parse(trimmed))
		if err != nil {
			rs.printError(err)
		}
		return quit
	case strings.EqualFold(trimmed, "exit"), strings.EqualFold(trimmed, "quit"):
		return true
	}

	rs.exchange(ctx, line)
	return false
}

func (rs *replSession) exchange(ctx context.Context, input string) {
	ctx, cancel := context.WithCancel(ctx)
	rs.setCancel(cancel)
	defer func() {
		rs.setCancel(nil)
		cancel()
	}()

	rs.printed = ""
	fmt.Fprintln(rs.out, BotLabelStyle.Render(model.OriginBot.DisplayName()))
	res, err := rs.svc.Submit(ctx, input)
	fmt.Fprintln(rs.out)
	if rs.printed == "" && err == nil && res != nil && !res.Canceled {
		fmt.Fprintln(rs.out, MutedStyle.Render("(no reply)"))
	}

	if err != nil {
		rs.printError(err)
	}
	if res == nil {
		return
	}
	if res.Canceled {
		fmt.Fprintln(rs.out, styles.RenderWarning("stopped"))
	}
	if res.SessionChanged {
		fmt.Fprintln(rs.out, MutedStyle.Render("session "+res.SessionID))
	}
	if rs.showStats && res.Stats.Fragments > 0 {
		fmt.Fprintln(rs.out, MutedStyle.Render(fmt.Sprintf("%d fragments · ~%d tokens · %s",
			res.Stats.Fragments, res.Tokens, res.Stats.TotalTime.Round(time.Millisecond))))
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (rs *replSession) runCommand(ctx context.Context, res commands.ParseResult) (bool, error) {
	if res.Error != nil {
		return false, res.Error
	}

	switch res.Action() {
	case commands.ActionQuit:
		return true, nil

	case commands.ActionHelp:
		fmt.Fprint(rs.out, rs.registry.Help())

	case commands.ActionStatus:
		rs.printStatus()

	case commands.ActionCopy:
		text, ok := rs.svc.Thread().LastBotText()
		if !ok || text == "" {
			return false, errors.New("no reply to copy")
		}
		if err := clipboard.WriteAll(text); err != nil {
			return false, fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintln(rs.out, SuccessStyle.Render(fmt.Sprintf("copied %d characters", len([]rune(text)))))

	case commands.ActionNew:
		if err := rs.svc.NewThread(); err != nil {
			return false, err
		}
		fmt.Fprintln(rs.out, SuccessStyle.Render("started a new thread"))

	case commands.ActionHistory:
		ids, err := rs.svc.History(ctx)
		if err != nil {
			return false, err
		}
		rs.sessions = ids
		if len(ids) == 0 {
			fmt.Fprintln(rs.out, MutedStyle.Render("no stored threads"))
			break
		}
		for i, id := range ids {
			fmt.Fprintf(rs.out, "%3d  %s\n", i+1, id)
		}

	case commands.ActionSwitch:
		if err := rs.svc.SwitchThread(ctx, res.Args[0]); err != nil {
			return false, err
		}
		rs.printThread()

	case commands.ActionModel:
		s := rs.svc.Settings()
		if len(res.Args) == 0 {
			fmt.Fprintln(rs.out, LabelStyle.Render("model")+ValueStyle.Render(s.ModelName))
			break
		}
		name, ok := canonicalModel(rs.modelNames, res.Args[0])
		if !ok {
			return false, fmt.Errorf("unknown model %q (try /models)", res.Args[0])
		}
		s.ModelName = name
		rs.svc.SetSettings(s)
		fmt.Fprintln(rs.out, SuccessStyle.Render("model set to "+name))

	case commands.ActionModels:
		current := rs.svc.Settings().ModelName
		for _, name := range rs.modelNames {
			marker := "  "
			if strings.EqualFold(name, current) {
				marker = "* "
			}
			fmt.Fprintf(rs.out, "%s%-24s %s\n", marker, name, MutedStyle.Render(model.ProviderFor(name)))
		}

	case commands.ActionRAG:
		s := rs.svc.Settings()
		on, err := commands.Toggle(res.Args, s.UseRAG)
		if err != nil {
			return false, err
		}
		s.UseRAG = on
		rs.svc.SetSettings(s)
		fmt.Fprintln(rs.out, SuccessStyle.Render("knowledge base "+onOff(on)))

	case commands.ActionNews:
		s := rs.svc.Settings()
		on, err := commands.Toggle(res.Args, s.UseNewsTool)
		if err != nil {
			return false, err
		}
		s.UseNewsTool = on
		rs.svc.SetSettings(s)
		fmt.Fprintln(rs.out, SuccessStyle.Render("news tool "+onOff(on)))
	}
	return false, nil
}

// canonicalModel matches name case-insensitively against names.
func canonicalModel(names []string, name string) (string, bool) {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// =============================================================================
// OUTPUT
// =============================================================================

func (rs *replSession) printError(err error) {
	fmt.Fprintf(rs.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
}

func (rs *replSession) printWelcome(backendURL string) {
	s := rs.svc.Settings()
	fmt.Fprintln(rs.out, TitleStyle.Render("bizartvisor"))
	fmt.Fprintln(rs.out, MutedStyle.Render(fmt.Sprintf("%s · %s", backendURL, s.ModelName)))
	fmt.Fprintln(rs.out, MutedStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(rs.out)
}

func (rs *replSession) printStatus() {
	s := rs.svc.Settings()
	ctrl := rs.svc.Thread()
	id := ctrl.SessionID()
	if id == model.NewSessionID {
		id += " (not yet stored)"
	}
	rows := [][2]string{
		{"session", id},
		{"messages", fmt.Sprint(ctrl.Len())},
		{"model", s.ModelName},
		{"rag", onOff(s.UseRAG)},
		{"news", onOff(s.UseNewsTool)},
	}
	for _, row := range rows {
		fmt.Fprintln(rs.out, LabelStyle.Render(row[0])+ValueStyle.Render(row[1]))
	}
}

// printThread writes every message of the active thread.
func (rs *replSession) printThread() {
	writeThread(rs.out, rs.svc.Thread().Snapshot())
}

func (rs *replSession) printExitSummary() {
	n := rs.svc.Thread().Len()
	fmt.Fprintln(rs.out, MutedStyle.Render(fmt.Sprintf("Goodbye. %d messages in this thread.", n)))
}

// writeThread prints a thread as labelled messages.
func writeThread(w io.Writer, t model.Thread) {
	for _, msg := range t.Messages {
		label := BotLabelStyle.Render(msg.Origin.DisplayName())
		if msg.IsUser() {
			label = UserLabelStyle.Render(msg.Origin.DisplayName())
		}
		fmt.Fprintln(w, label)
		fmt.Fprintln(w, msg.Text)
		fmt.Fprintln(w)
	}
}
