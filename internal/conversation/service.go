// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/session"
	"github.com/jeranaias/bizartvisor-cli/internal/stream"
	"github.com/jeranaias/bizartvisor-cli/internal/thread"
	"github.com/jeranaias/bizartvisor-cli/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput is returned for blank input; nothing is sent.
	ErrEmptyInput = errors.New("input is empty")

	// ErrStreamInFlight is returned while another exchange is streaming.
	ErrStreamInFlight = errors.New("a reply is still streaming")

	// ErrNoHistory is returned when no history source is configured.
	ErrNoHistory = errors.New("history is not available")
)

// =============================================================================
// STATE
// =============================================================================

// State is the exchange state of a Service.
type State int

const (
	StateIdle State = iota
	StateAwaitingStream
	StateStreaming
	StateSessionSync
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingStream:
		return "AWAITING_STREAM"
	case StateStreaming:
		return "STREAMING"
	case StateSessionSync:
		return "SESSION_SYNC"
	default:
		return "UNKNOWN"
	}
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Transport opens a streaming exchange. *backend.Client satisfies it.
type Transport interface {
	Stream(ctx context.Context, req backend.StreamRequest) (*backend.StreamHandle, error)
}

// HistorySource lists and fetches stored threads. *backend.Client satisfies it.
type HistorySource interface {
	ListHistory(ctx context.Context) ([]string, error)
	ChangeThread(ctx context.Context, id string) (model.Thread, error)
}

// Settings are the generation parameters passed through to the backend.
type Settings struct {
	ModelName   string
	UseRAG      bool
	UseNewsTool bool
}

// SettingsFromConfig extracts Settings from the chat configuration.
func SettingsFromConfig(c config.ChatConfig) Settings {
	return Settings{ModelName: c.ModelName, UseRAG: c.UseRAG, UseNewsTool: c.UseNewsTool}
}

// Hooks are optional callbacks fired synchronously from Submit.
// They must not call back into the Service.
type Hooks struct {
	OnState    func(from, to State)
	OnSnapshot func(msg model.Message)
	OnSession  func(ev session.ChangeEvent)
}

// Options configures a Service.
type Options struct {
	// Placeholder fills the bot slot until the first fragment arrives
	Placeholder string
	// Settings are the initial generation settings
	Settings Settings
	// History enables SwitchThread and History
	History HistorySource
	// Logger receives exchange logs; nil discards them
	Logger *logrus.Entry
	// Hooks observe state, snapshots and session changes
	Hooks Hooks
}

// Result describes a finished exchange.
type Result struct {
	Reply          string
	SessionID      string
	SessionChanged bool
	Canceled       bool
	Stats          stream.Stats
	Tokens         int
}

// =============================================================================
// SERVICE
// =============================================================================

// Service runs exchanges for one thread.
type Service struct {
	transport   Transport
	history     HistorySource
	thread      *thread.Controller
	placeholder string
	hooks       Hooks
	log         *logrus.Entry

	mu       sync.Mutex
	settings Settings
	state    State
	inFlight atomic.Bool
}

// NewService creates a Service that mutates ctrl through transport exchanges.
func NewService(transport Transport, ctrl *thread.Controller, opts Options) *Service {
	if opts.Placeholder == "" {
		opts.Placeholder = model.PlaceholderText
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Service{
		transport:   transport,
		history:     opts.History,
		thread:      ctrl,
		placeholder: opts.Placeholder,
		hooks:       opts.Hooks,
		log:         log.WithField("component", "conversation"),
		settings:    opts.Settings,
	}
}

// Thread returns the controller of the active thread.
func (s *Service) Thread() *thread.Controller {
	return s.thread
}

// Settings returns the current generation settings.
func (s *Service) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetSettings replaces the generation settings for later exchanges.
func (s *Service) SetSettings(settings Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// State returns the current exchange state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether an exchange or thread switch is running.
func (s *Service) Busy() bool {
	return s.inFlight.Load()
}

func (s *Service) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to && s.hooks.OnState != nil {
		s.hooks.OnState(from, to)
	}
}

// Submit sends input as one exchange and blocks until the reply stream
// has ended. Blank input returns ErrEmptyInput without touching the thread
// or the network.
func (s *Service) Submit(ctx context.Context, input string) (*Result, error) {
	if util.IsBlank(input) {
		return nil, ErrEmptyInput
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrStreamInFlight
	}
	defer s.inFlight.Store(false)
	defer s.setState(StateIdle)

	settings := s.Settings()
	req := backend.StreamRequest{
		Input:       input,
		SessionID:   s.thread.SessionID(),
		ModelName:   settings.ModelName,
		UseRAG:      backend.Bool(settings.UseRAG),
		UseNewsTool: backend.Bool(settings.UseNewsTool),
	}
	log := s.log.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"model":      req.ModelName,
	})

	s.thread.Append(model.UserMessage(input))
	s.thread.Append(model.BotMessage(s.placeholder))
	s.setState(StateAwaitingStream)

	h, err := s.transport.Stream(ctx, req)
	if err != nil {
		if backend.IsCanceled(err) {
			log.Debug("exchange abandoned before the response arrived")
			if rerr := s.thread.ReplaceLast(model.BotMessage("")); rerr != nil {
				return nil, rerr
			}
			return &Result{SessionID: s.thread.SessionID(), Canceled: true}, nil
		}
		log.WithError(err).Error("stream request failed")
		return nil, err
	}
	defer h.Close()

	rec := session.NewReconciler(s.thread, func(ev session.ChangeEvent) {
		log.WithField("new_session_id", ev.New).Info("session id changed")
		if s.hooks.OnSession != nil {
			s.hooks.OnSession(ev)
		}
	})
	rec.Observe(h.HeaderSessionID)
	s.setState(StateStreaming)

	agg := stream.NewAggregator(stream.SinkFunc(func(msg model.Message) error {
		if err := s.thread.ReplaceLast(msg); err != nil {
			return err
		}
		if s.hooks.OnSnapshot != nil {
			s.hooks.OnSnapshot(msg)
		}
		return nil
	}))

	streamErr := agg.Consume(ctx, h.Fragments)
	canceled := streamErr != nil && (backend.IsCanceled(streamErr) || errors.Is(streamErr, stream.ErrClosed))
	var emptyThread *thread.EmptyThreadError
	corrupt := errors.As(streamErr, &emptyThread)

	if streamErr == nil || canceled {
		if _, err := agg.Finish(); err != nil {
			streamErr, corrupt = err, errors.As(err, &emptyThread)
		}
	}

	s.setState(StateSessionSync)
	changed := false
	if !corrupt {
		_, changed = rec.Publish()
	}

	res := &Result{
		Reply:          agg.Text(),
		SessionID:      s.thread.SessionID(),
		SessionChanged: changed,
		Stats:          agg.Stats(),
		Tokens:         util.EstimateTokensOrZero(agg.Text()),
	}
	log = log.WithFields(logrus.Fields{
		"fragments": res.Stats.Fragments,
		"bytes":     res.Stats.Bytes,
		"duration":  res.Stats.TotalTime,
	})

	switch {
	case corrupt:
		log.WithError(streamErr).Error("thread invariant violated during stream")
		return res, streamErr
	case canceled:
		res.Canceled = true
		log.Debug("exchange abandoned mid-stream")
		return res, nil
	case streamErr != nil:
		log.WithError(streamErr).Error("stream failed")
		return res, streamErr
	}

	log.Info("exchange complete")
	return res, nil
}

// =============================================================================
// THREAD SWITCHING
// =============================================================================

// History lists stored session ids, newest first.
func (s *Service) History(ctx context.Context) ([]string, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	ids, err := s.history.ListHistory(ctx)
	if err != nil {
		s.log.WithError(err).Error("list history failed")
		return nil, err
	}
	return ids, nil
}

// SwitchThread replaces the active thread with the stored thread id.
// It is rejected while an exchange is streaming.
func (s *Service) SwitchThread(ctx context.Context, id string) error {
	if s.history == nil {
		return ErrNoHistory
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrStreamInFlight
	}
	defer s.inFlight.Store(false)

	t, err := s.history.ChangeThread(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("session_id", id).Error("change thread failed")
		return err
	}
	s.thread.Load(t)
	s.log.WithFields(logrus.Fields{"session_id": t.SessionID, "messages": len(t.Messages)}).Info("switched thread")
	return nil
}

// NewThread makes the active thread an empty, unregistered one.
func (s *Service) NewThread() error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrStreamInFlight
	}
	defer s.inFlight.Store(false)

	s.thread.Reset()
	s.log.Debug("started new thread")
	return nil
}
