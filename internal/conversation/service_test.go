// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/session"
	"github.com/jeranaias/bizartvisor-cli/internal/stream"
	"github.com/jeranaias/bizartvisor-cli/internal/thread"
)

// =============================================================================
// FAKES
// =============================================================================

// chunkReader returns one chunk per Read, then fails with err (io.EOF if nil).
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

// gatedReader hands out chunks sent on ch and stops when ctx is done.
type gatedReader struct {
	ctx context.Context
	ch  chan string
}

func (r *gatedReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	case s, ok := <-r.ch:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, s), nil
	}
}

type fakeTransport struct {
	mu   sync.Mutex
	reqs []backend.StreamRequest
	open func(ctx context.Context, req backend.StreamRequest) (*backend.StreamHandle, error)
}

func (f *fakeTransport) Stream(ctx context.Context, req backend.StreamRequest) (*backend.StreamHandle, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.open(ctx, req)
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func handle(header string, r io.Reader) *backend.StreamHandle {
	return &backend.StreamHandle{
		HeaderSessionID: header,
		StatusCode:      http.StatusOK,
		Fragments: stream.NewFragments(r, stream.WithReadError(func(err error, _ int64) error {
			return &backend.TransportError{Type: backend.ErrTypeStreamBroken, Message: "stream interrupted", Cause: err}
		})),
	}
}

func replying(header string, chunks ...string) *fakeTransport {
	return &fakeTransport{open: func(context.Context, backend.StreamRequest) (*backend.StreamHandle, error) {
		return handle(header, &chunkReader{chunks: chunks}), nil
	}}
}

func messages(t *testing.T, ctrl *thread.Controller) []model.Message {
	t.Helper()
	return ctrl.Snapshot().Messages
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_StreamsReplyAndAdoptsSession(t *testing.T) {
	ctrl := thread.NewController()
	tr := replying("sess-42", "Hel", "lo")

	var events []string
	svc := NewService(tr, ctrl, Options{Hooks: Hooks{
		OnState:    func(_, to State) { events = append(events, "state:"+to.String()) },
		OnSnapshot: func(m model.Message) { events = append(events, "snap:"+m.Text) },
		OnSession:  func(ev session.ChangeEvent) { events = append(events, "session:"+ev.Old+"->"+ev.New) },
	}})

	res, err := svc.Submit(context.Background(), "Hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello", res.Reply)
	assert.Equal(t, "sess-42", res.SessionID)
	assert.True(t, res.SessionChanged)
	assert.False(t, res.Canceled)
	assert.Equal(t, 2, res.Stats.Fragments)
	assert.Positive(t, res.Tokens)

	assert.Equal(t, []model.Message{model.UserMessage("Hi"), model.BotMessage("Hello")}, messages(t, ctrl))
	assert.Equal(t, "sess-42", ctrl.SessionID())
	assert.Equal(t, StateIdle, svc.State())

	assert.Equal(t, []string{
		"state:AWAITING_STREAM",
		"state:STREAMING",
		"snap:Hel",
		"snap:Hello",
		"state:SESSION_SYNC",
		"session:new_session_id->sess-42",
		"state:IDLE",
	}, events)

	require.Len(t, tr.reqs, 1)
	assert.Equal(t, "Hi", tr.reqs[0].Input)
	assert.Equal(t, model.NewSessionID, tr.reqs[0].SessionID)
}

func TestSubmit_LaterExchangeUsesAdoptedSession(t *testing.T) {
	ctrl := thread.NewController()
	tr := replying("sess-42", "ok")
	svc := NewService(tr, ctrl, Options{})

	_, err := svc.Submit(context.Background(), "one")
	require.NoError(t, err)
	res, err := svc.Submit(context.Background(), "two")
	require.NoError(t, err)

	assert.False(t, res.SessionChanged)
	require.Len(t, tr.reqs, 2)
	assert.Equal(t, "sess-42", tr.reqs[1].SessionID)
	assert.Equal(t, 4, ctrl.Len())
}

func TestSubmit_BlankInputSendsNothing(t *testing.T) {
	ctrl := thread.NewController()
	tr := replying("", "x")
	svc := NewService(tr, ctrl, Options{})

	for _, in := range []string{"", "   ", "\n\t"} {
		res, err := svc.Submit(context.Background(), in)
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Nil(t, res)
	}
	assert.Zero(t, ctrl.Len())
	assert.Zero(t, tr.calls())
}

func TestSubmit_RequestFailureKeepsPlaceholder(t *testing.T) {
	ctrl := thread.NewController()
	tr := &fakeTransport{open: func(context.Context, backend.StreamRequest) (*backend.StreamHandle, error) {
		return nil, &backend.TransportError{Type: backend.ErrTypeStatus, StatusCode: 500, Message: "stream request failed: 500"}
	}}
	svc := NewService(tr, ctrl, Options{})

	res, err := svc.Submit(context.Background(), "Hi")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, backend.IsTransportError(err))
	assert.Equal(t, 500, backend.StatusCode(err))

	assert.Equal(t, []model.Message{model.UserMessage("Hi"), model.BotMessage(model.PlaceholderText)}, messages(t, ctrl))
	assert.Equal(t, model.NewSessionID, ctrl.SessionID())
	assert.Equal(t, StateIdle, svc.State())
}

func TestSubmit_CustomPlaceholder(t *testing.T) {
	ctrl := thread.NewController()
	tr := &fakeTransport{open: func(context.Context, backend.StreamRequest) (*backend.StreamHandle, error) {
		return nil, backend.ErrNoBody
	}}
	svc := NewService(tr, ctrl, Options{Placeholder: "thinking..."})

	_, err := svc.Submit(context.Background(), "Hi")
	assert.ErrorIs(t, err, backend.ErrNoBody)
	last, ok := ctrl.Last()
	require.True(t, ok)
	assert.Equal(t, "thinking...", last.Text)
}

func TestSubmit_BrokenStreamKeepsPartialAndSession(t *testing.T) {
	ctrl := thread.NewController()
	tr := &fakeTransport{open: func(context.Context, backend.StreamRequest) (*backend.StreamHandle, error) {
		return handle("sess-7", &chunkReader{chunks: []string{"par", "tial"}, err: errors.New("connection reset")}), nil
	}}
	svc := NewService(tr, ctrl, Options{})

	res, err := svc.Submit(context.Background(), "Hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrStreamBroken)
	require.NotNil(t, res)
	assert.Equal(t, "partial", res.Reply)
	assert.True(t, res.SessionChanged)

	last, _ := ctrl.Last()
	assert.Equal(t, model.BotMessage("partial"), last)
	assert.Equal(t, "sess-7", ctrl.SessionID())
}

func TestSubmit_EmptyReplyReplacesPlaceholder(t *testing.T) {
	ctrl := thread.NewController()
	var snaps []string
	svc := NewService(replying("sess-1"), ctrl, Options{Hooks: Hooks{
		OnSnapshot: func(m model.Message) { snaps = append(snaps, m.Text) },
	}})

	res, err := svc.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Empty(t, res.Reply)
	assert.Empty(t, snaps)
	assert.Equal(t, []model.Message{model.UserMessage("Hi"), model.BotMessage("")}, messages(t, ctrl))
}

func TestSubmit_HeaderMatchesCurrentSession(t *testing.T) {
	ctrl := thread.NewController()
	ctrl.Load(model.Thread{SessionID: "sess-1"})

	published := 0
	svc := NewService(replying("sess-1", "a"), ctrl, Options{Hooks: Hooks{
		OnSession: func(session.ChangeEvent) { published++ },
	}})

	res, err := svc.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	assert.False(t, res.SessionChanged)
	assert.Zero(t, published)
	assert.Equal(t, "sess-1", ctrl.SessionID())
}

func TestSubmit_NoHeaderLeavesSession(t *testing.T) {
	ctrl := thread.NewController()
	svc := NewService(replying("", "a"), ctrl, Options{})

	res, err := svc.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	assert.False(t, res.SessionChanged)
	assert.Equal(t, model.NewSessionID, ctrl.SessionID())
}

func TestSubmit_CancelMidStream(t *testing.T) {
	ctrl := thread.NewController()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan string, 1)
	ch <- "par"
	tr := &fakeTransport{open: func(ctx context.Context, _ backend.StreamRequest) (*backend.StreamHandle, error) {
		return handle("sess-9", &gatedReader{ctx: ctx, ch: ch}), nil
	}}
	svc := NewService(tr, ctrl, Options{Hooks: Hooks{
		OnSnapshot: func(model.Message) { cancel() },
	}})

	res, err := svc.Submit(ctx, "Hi")
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Equal(t, "par", res.Reply)
	assert.True(t, res.SessionChanged)
	assert.Equal(t, "sess-9", ctrl.SessionID())
	assert.Equal(t, []model.Message{model.UserMessage("Hi"), model.BotMessage("par")}, messages(t, ctrl))
}

func TestSubmit_CancelBeforeResponse(t *testing.T) {
	ctrl := thread.NewController()
	tr := &fakeTransport{open: func(ctx context.Context, _ backend.StreamRequest) (*backend.StreamHandle, error) {
		return nil, &backend.TransportError{Type: backend.ErrTypeCanceled, Message: "canceled", Cause: context.Canceled}
	}}
	svc := NewService(tr, ctrl, Options{})

	res, err := svc.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Equal(t, []model.Message{model.UserMessage("Hi"), model.BotMessage("")}, messages(t, ctrl))
}

func TestSubmit_RejectsWhileStreaming(t *testing.T) {
	ctrl := thread.NewController()
	ch := make(chan string)
	tr := &fakeTransport{open: func(ctx context.Context, _ backend.StreamRequest) (*backend.StreamHandle, error) {
		return handle("", &gatedReader{ctx: ctx, ch: ch}), nil
	}}
	svc := NewService(tr, ctrl, Options{History: &fakeHistory{}})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, func() bool { return svc.State() == StateStreaming }, time.Second, 5*time.Millisecond)
	assert.True(t, svc.Busy())

	_, err := svc.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrStreamInFlight)
	assert.ErrorIs(t, svc.NewThread(), ErrStreamInFlight)
	assert.ErrorIs(t, svc.SwitchThread(context.Background(), "sess-1"), ErrStreamInFlight)

	ch <- "done"
	close(ch)
	require.NoError(t, <-done)

	assert.False(t, svc.Busy())
	assert.Equal(t, 1, tr.calls())
	assert.Equal(t, []model.Message{model.UserMessage("first"), model.BotMessage("done")}, messages(t, ctrl))
}

func TestSubmit_SinkFailureOnResetThread(t *testing.T) {
	ctrl := thread.NewController()
	tr := replying("sess-3", "a", "b")
	svc := NewService(tr, ctrl, Options{Hooks: Hooks{
		OnState: func(_, to State) {
			if to == StateStreaming {
				ctrl.Reset()
			}
		},
	}})

	res, err := svc.Submit(context.Background(), "Hi")
	var empty *thread.EmptyThreadError
	require.ErrorAs(t, err, &empty)
	require.NotNil(t, res)
	assert.False(t, res.SessionChanged)
	assert.Equal(t, model.NewSessionID, ctrl.SessionID())
}

func TestSubmit_PassesSettings(t *testing.T) {
	ctrl := thread.NewController()
	tr := replying("", "ok")
	svc := NewService(tr, ctrl, Options{Settings: SettingsFromConfig(config.ChatConfig{
		ModelName: "Claude 3 haiku",
		UseRAG:    true,
	})})

	_, err := svc.Submit(context.Background(), "Hi")
	require.NoError(t, err)

	svc.SetSettings(Settings{ModelName: "GPT 4o", UseNewsTool: true})
	_, err = svc.Submit(context.Background(), "again")
	require.NoError(t, err)

	require.Len(t, tr.reqs, 2)
	assert.Equal(t, "Claude 3 haiku", tr.reqs[0].ModelName)
	require.NotNil(t, tr.reqs[0].UseRAG)
	assert.True(t, *tr.reqs[0].UseRAG)
	assert.False(t, *tr.reqs[0].UseNewsTool)

	assert.Equal(t, "GPT 4o", tr.reqs[1].ModelName)
	assert.True(t, *tr.reqs[1].UseNewsTool)
	assert.Equal(t, Settings{ModelName: "GPT 4o", UseNewsTool: true}, svc.Settings())
}

// =============================================================================
// THREAD SWITCHING
// =============================================================================

type fakeHistory struct {
	ids     []string
	threads map[string]model.Thread
	err     error
}

func (f *fakeHistory) ListHistory(context.Context) ([]string, error) {
	return f.ids, f.err
}

func (f *fakeHistory) ChangeThread(_ context.Context, id string) (model.Thread, error) {
	if f.err != nil {
		return model.Thread{}, f.err
	}
	t, ok := f.threads[id]
	if !ok {
		return model.Thread{}, &backend.TransportError{Type: backend.ErrTypeStatus, StatusCode: 404, Message: "not found"}
	}
	return t, nil
}

func TestSwitchThread(t *testing.T) {
	ctrl := thread.NewController()
	hist := &fakeHistory{threads: map[string]model.Thread{
		"sess-1": {SessionID: "sess-1", Messages: []model.Message{model.UserMessage("q"), model.BotMessage("a")}},
	}}
	svc := NewService(replying("sess-1", "more"), ctrl, Options{History: hist})

	require.NoError(t, svc.SwitchThread(context.Background(), "sess-1"))
	assert.Equal(t, "sess-1", ctrl.SessionID())
	assert.Equal(t, 2, ctrl.Len())

	res, err := svc.Submit(context.Background(), "follow up")
	require.NoError(t, err)
	assert.False(t, res.SessionChanged)
	assert.Equal(t, 4, ctrl.Len())

	err = svc.SwitchThread(context.Background(), "missing")
	assert.Equal(t, 404, backend.StatusCode(err))
	assert.Equal(t, "sess-1", ctrl.SessionID())
}

func TestNewThread(t *testing.T) {
	ctrl := thread.NewController()
	svc := NewService(replying("sess-2", "x"), ctrl, Options{})

	_, err := svc.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	require.NoError(t, svc.NewThread())

	assert.Zero(t, ctrl.Len())
	assert.Equal(t, model.NewSessionID, ctrl.SessionID())
}

func TestHistory(t *testing.T) {
	svc := NewService(replying(""), thread.NewController(), Options{})
	_, err := svc.History(context.Background())
	assert.ErrorIs(t, err, ErrNoHistory)
	assert.ErrorIs(t, svc.SwitchThread(context.Background(), "x"), ErrNoHistory)

	svc = NewService(replying(""), thread.NewController(), Options{History: &fakeHistory{ids: []string{"b", "a"}}})
	ids, err := svc.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "AWAITING_STREAM", StateAwaitingStream.String())
	assert.Equal(t, "STREAMING", StateStreaming.String())
	assert.Equal(t, "SESSION_SYNC", StateSessionSync.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

// =============================================================================
// OVER HTTP
// =============================================================================

func TestSubmit_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case backend.PathStream:
			var req backend.StreamRequest
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
				return
			}
			if req.SessionID == model.NewSessionID {
				w.Header().Set(backend.SessionHeader, "sess-42")
			} else {
				w.Header().Set(backend.SessionHeader, req.SessionID)
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			for _, part := range []string{"Hel", "lo"} {
				io.WriteString(w, part)
				w.(http.Flusher).Flush()
			}
		case backend.PathHistory:
			json.NewEncoder(w).Encode([]string{"sess-1", "sess-42"})
		case backend.PathChangeThread:
			json.NewEncoder(w).Encode(backend.WireConversation{
				SessionID: r.URL.Query().Get("id"),
				Messages:  []backend.WireMessage{{Content: "q", Type: "human"}, {Content: "a", Type: "ai"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := backend.DefaultConfig()
	cfg.BaseURL = srv.URL
	client := backend.NewClientWithConfig(cfg)

	ctrl := thread.NewController()
	svc := NewService(client, ctrl, Options{History: client})

	res, err := svc.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Reply)
	assert.Equal(t, "sess-42", ctrl.SessionID())

	ids, err := svc.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-42", "sess-1"}, ids)

	require.NoError(t, svc.SwitchThread(context.Background(), "sess-1"))
	assert.Equal(t, []model.Message{model.UserMessage("q"), model.BotMessage("a")}, messages(t, ctrl))
	assert.Equal(t, "sess-1", ctrl.SessionID())
}

func TestSubmit_OverHTTPServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := backend.DefaultConfig()
	cfg.BaseURL = srv.URL
	ctrl := thread.NewController()
	svc := NewService(backend.NewClientWithConfig(cfg), ctrl, Options{})

	_, err := svc.Submit(context.Background(), "Hi")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, backend.StatusCode(err))
	assert.Equal(t, []model.Message{model.UserMessage("Hi"), model.BotMessage(model.PlaceholderText)}, messages(t, ctrl))
}

func TestSubmit_OverHTTPEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(backend.SessionHeader, "sess-1")
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := backend.DefaultConfig()
	cfg.BaseURL = srv.URL
	ctrl := thread.NewController()
	svc := NewService(backend.NewClientWithConfig(cfg), ctrl, Options{})

	res, err := svc.Submit(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, res.Reply)
	assert.True(t, res.SessionChanged)
	assert.Equal(t, "sess-1", ctrl.SessionID())
	assert.Equal(t, []model.Message{model.UserMessage("hi"), model.BotMessage("")}, messages(t, ctrl))
}

func TestSubmit_DeadlineMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(backend.SessionHeader, "sess-1")
		io.WriteString(w, "partial")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := backend.DefaultConfig()
	cfg.BaseURL = srv.URL
	ctrl := thread.NewController()
	svc := NewService(backend.NewClientWithConfig(cfg), ctrl, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := svc.Submit(ctx, "hi")
	require.Error(t, err)
	assert.True(t, backend.IsTransportError(err))
	assert.True(t, backend.IsTimeout(err))
	assert.False(t, backend.IsCanceled(err))

	require.NotNil(t, res)
	assert.False(t, res.Canceled)
	assert.Equal(t, "partial", res.Reply)
	assert.Equal(t, "sess-1", ctrl.SessionID())
	assert.Equal(t, []model.Message{model.UserMessage("hi"), model.BotMessage("partial")}, messages(t, ctrl))
	assert.Equal(t, StateIdle, svc.State())
}
