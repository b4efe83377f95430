// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/conversation"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/server"
	"github.com/jeranaias/bizartvisor-cli/internal/thread"
)

// =============================================================================
// HELPERS
// =============================================================================

type testEnv struct {
	url     string
	cfgPath string
	srv     *server.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("BIZARTVISOR_BACKEND_URL", "")
	t.Setenv("BIZARTVISOR_MODEL", "")

	n := 0
	srv := server.New(server.Options{
		Config: config.ServerConfig{ChunkSize: 4},
		NewSessionID: func() (string, error) {
			n++
			return fmt.Sprintf("sess-%d", n), nil
		},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		url:     ts.URL,
		cfgPath: filepath.Join(home, "cfg", "config.toml"),
		srv:     srv,
	}
}

// run executes the command tree and returns stdout and stderr.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer

	root := NewRootCmd("test")
	root.SetArgs(append([]string{"--config", e.cfgPath, "--backend", e.url}, args...))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))

	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_StreamsPlainReply(t *testing.T) {
	env := newTestEnv(t)

	out, errOut, err := env.run(t, "", "ask", "Hello", "there")
	require.NoError(t, err)

	assert.Contains(t, out, "**Claude 3 haiku** (turn 1)")
	assert.Contains(t, out, "You said: Hello there")
	assert.Contains(t, errOut, "session sess-1")
}

func TestAsk_ReadsPipedQuestion(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "  what about stdin?\n", "ask", "--rag")
	require.NoError(t, err)

	assert.Contains(t, out, "You said: what about stdin?")
	assert.Contains(t, out, "knowledge base consulted")
}

func TestAsk_ContinuesSession(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.run(t, "", "ask", "first")
	require.NoError(t, err)

	out, errOut, err := env.run(t, "", "ask", "--session", "sess-1", "second")
	require.NoError(t, err)
	assert.Contains(t, out, "(turn 2)")
	assert.NotContains(t, errOut, "session sess-")
	assert.Len(t, env.srv.Store().Messages("sess-1"), 4)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.run(t, "   \n", "ask")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestAsk_BackendDown(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(nil)
	env.url = ts.URL
	ts.Close()

	_, _, err := env.run(t, "", "ask", "anyone home?")
	require.Error(t, err)
	assert.True(t, backend.IsTransportError(err))
	assert.Equal(t, ExitNetworkError, ExitCode(err))
}

func TestReadQuestion(t *testing.T) {
	q, err := readQuestion([]string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a b", q)

	q, err = readQuestion(nil, strings.NewReader("\n piped \n"))
	require.NoError(t, err)
	assert.Equal(t, "piped", q)

	_, err = readQuestion([]string{" "}, nil)
	var usage *UsageError
	assert.ErrorAs(t, err, &usage)
}

// =============================================================================
// HISTORY AND MODELS
// =============================================================================

func TestHistory_ListAndShow(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored threads.")

	_, _, err = env.run(t, "", "ask", "remember me")
	require.NoError(t, err)

	out, _, err = env.run(t, "", "history", "--json")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Equal(t, []string{"sess-1"}, ids)

	out, _, err = env.run(t, "", "history", "show", "sess-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Thread sess-1")
	assert.Contains(t, out, "You\nremember me")
	assert.Contains(t, out, "Bizartvisor")

	out, _, err = env.run(t, "", "history", "show", "sess-1", "--json")
	require.NoError(t, err)
	var conv backend.WireConversation
	require.NoError(t, json.Unmarshal([]byte(out), &conv))
	assert.Equal(t, "sess-1", conv.SessionID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "remember me", conv.Messages[0].Content)
}

func TestModels(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "", "models")
	require.NoError(t, err)
	assert.Contains(t, out, "* Claude 3 haiku")
	assert.Contains(t, out, "  OpenAI GPT4")

	out, _, err = env.run(t, "", "models", "--json")
	require.NoError(t, err)
	var infos []model.ModelInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, len(model.DefaultModelNames))
	assert.Equal(t, "Anthropic", infos[0].Provider)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_InitSetGet(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, env.cfgPath+"\n", out)

	_, _, err = env.run(t, "", "config", "init")
	require.NoError(t, err)
	info, err := os.Stat(env.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, _, err = env.run(t, "", "config", "init")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = env.run(t, "", "config", "set", "chat.model_name", "Claude 3 opus")
	require.NoError(t, err)

	out, _, err = env.run(t, "", "config", "get", "chat.model_name")
	require.NoError(t, err)
	assert.Equal(t, "Claude 3 opus\n", out)

	out, _, err = env.run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `model_name = "Claude 3 opus"`)
}

func TestConfig_SetRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.run(t, "", "config", "set", "chat.nope", "x")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = env.run(t, "", "config", "set", "backend.url", "ftp://example.com")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))

	_, statErr := os.Stat(env.cfgPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestConfig_Keys(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "", "config", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "chat.use_rag\n")
	assert.Contains(t, out, "backend.url\n")
}

func TestInvalidConfigFile(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(env.cfgPath), 0700))
	require.NoError(t, os.WriteFile(env.cfgPath, []byte("[chat]\nmodle_name = \"x\"\n"), 0600))

	_, _, err := env.run(t, "", "models")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"config", &ConfigError{Err: errors.New("bad")}, ExitConfigError},
		{"usage", &UsageError{Message: "bad"}, ExitUsageError},
		{"empty input", fmt.Errorf("ask: %w", conversation.ErrEmptyInput), ExitUsageError},
		{"timeout", &backend.TransportError{Type: backend.ErrTypeTimeout}, ExitTimeoutError},
		{"not found", &backend.TransportError{Type: backend.ErrTypeStatus, StatusCode: 404}, ExitNotFoundError},
		{"connection", &backend.TransportError{Type: backend.ErrTypeConnection}, ExitNetworkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

// =============================================================================
// LINE MODE
// =============================================================================

func newTestRepl(t *testing.T) (*replSession, *bytes.Buffer, *testEnv) {
	t.Helper()
	env := newTestEnv(t)

	var out bytes.Buffer
	client := backend.NewClientWithConfig(&backend.ClientConfig{BaseURL: env.url})
	rs := newReplSession(&out, true)
	rs.svc = conversation.NewService(client, thread.NewController(), conversation.Options{
		Placeholder: model.PlaceholderText,
		Settings:    conversation.Settings{ModelName: model.DefaultModel},
		History:     client,
		Hooks:       rs.hooks(),
	})
	rs.models = client
	rs.loadModels(context.Background())
	return rs, &out, env
}

func TestRepl_Exchange(t *testing.T) {
	rs, out, _ := newTestRepl(t)
	ctx := context.Background()

	assert.False(t, rs.handleLine(ctx, "hello"))
	assert.Contains(t, out.String(), "You said: hello")
	assert.Contains(t, out.String(), "session sess-1")
	assert.Contains(t, out.String(), "fragments")
	assert.Equal(t, "sess-1", rs.svc.Thread().SessionID())

	out.Reset()
	assert.False(t, rs.handleLine(ctx, "again"))
	assert.Contains(t, out.String(), "(turn 2)")
	assert.NotContains(t, out.String(), "session sess-")
	assert.Equal(t, 4, rs.svc.Thread().Len())
}

func TestRepl_SubmitsLineAsTyped(t *testing.T) {
	rs, _, _ := newTestRepl(t)
	ctx := context.Background()

	assert.False(t, rs.handleLine(ctx, "   "))
	assert.Equal(t, 0, rs.svc.Thread().Len())

	assert.False(t, rs.handleLine(ctx, "  hello  "))
	msgs := rs.svc.Thread().Snapshot().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, model.UserMessage("  hello  "), msgs[0])

	assert.True(t, rs.handleLine(ctx, "  quit "))
}

func TestRepl_SettingsCommands(t *testing.T) {
	rs, out, _ := newTestRepl(t)
	ctx := context.Background()

	rs.handleLine(ctx, "/rag on")
	rs.handleLine(ctx, "/news")
	rs.handleLine(ctx, `/model "claude 3 OPUS"`)

	s := rs.svc.Settings()
	assert.True(t, s.UseRAG)
	assert.True(t, s.UseNewsTool)
	assert.Equal(t, "Claude 3 opus", s.ModelName)

	out.Reset()
	rs.handleLine(ctx, "/model gpt9")
	assert.Contains(t, out.String(), "[Error]")
	assert.Equal(t, "Claude 3 opus", rs.svc.Settings().ModelName)

	out.Reset()
	rs.handleLine(ctx, "/models")
	assert.Contains(t, out.String(), "* Claude 3 opus")
}

func TestRepl_ThreadCommands(t *testing.T) {
	rs, out, _ := newTestRepl(t)
	ctx := context.Background()

	rs.handleLine(ctx, "first question")
	rs.handleLine(ctx, "/new")
	assert.Equal(t, model.NewSessionID, rs.svc.Thread().SessionID())
	assert.Equal(t, 0, rs.svc.Thread().Len())

	out.Reset()
	rs.handleLine(ctx, "/history")
	assert.Contains(t, out.String(), "sess-1")
	assert.Equal(t, []string{"sess-1"}, rs.sessions)

	out.Reset()
	rs.handleLine(ctx, "/switch sess-1")
	assert.Equal(t, "sess-1", rs.svc.Thread().SessionID())
	assert.Equal(t, 2, rs.svc.Thread().Len())
	assert.Contains(t, out.String(), "first question")

	out.Reset()
	rs.handleLine(ctx, "/status")
	assert.Contains(t, out.String(), "sess-1")
}

func TestRepl_QuitAndErrors(t *testing.T) {
	rs, out, _ := newTestRepl(t)
	ctx := context.Background()

	assert.False(t, rs.handleLine(ctx, "   "))
	assert.Empty(t, out.String())

	assert.False(t, rs.handleLine(ctx, "/bogus"))
	assert.Contains(t, out.String(), "[Error]")

	assert.True(t, rs.handleLine(ctx, "/quit"))
	assert.True(t, rs.handleLine(ctx, "EXIT"))
}

func TestRepl_InterruptCancelsStream(t *testing.T) {
	rs, _, _ := newTestRepl(t)

	ctx, cancel := context.WithCancel(context.Background())
	rs.setCancel(cancel)
	rs.interrupt()
	assert.Error(t, ctx.Err())

	// A second interrupt with nothing streaming is a no-op.
	rs.interrupt()
}

func TestRepl_WatchInterrupts(t *testing.T) {
	rs, _, _ := newTestRepl(t)
	sigCh := make(chan os.Signal, 1)
	stop := rs.watchInterrupts(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	rs.setCancel(cancel)
	sigCh <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt did not cancel the exchange")
	}

	stop()
	stop()

	// Once stopped, signals are no longer consumed.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	rs.setCancel(cancel2)
	sigCh <- os.Interrupt
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sigCh, 1)
	assert.NoError(t, ctx2.Err())
}

func TestRepl_Complete(t *testing.T) {
	rs, _, _ := newTestRepl(t)

	got := rs.complete("/mod")
	assert.Contains(t, got, "/model ")
	assert.Contains(t, got, "/models ")

	assert.Empty(t, rs.complete("plain text"))
}
