// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/thread"
)

func TestReconciler_PublishesOnce(t *testing.T) {
	ctrl := thread.NewController()
	var events []ChangeEvent
	rec := NewReconciler(ctrl, func(ev ChangeEvent) { events = append(events, ev) })

	rec.Observe("sess-42")
	assert.Equal(t, model.NewSessionID, ctrl.SessionID(), "observe must not apply the id")

	pending, ok := rec.Pending()
	require.True(t, ok)
	assert.Equal(t, "sess-42", pending)

	ev, ok := rec.Publish()
	require.True(t, ok)
	assert.Equal(t, ChangeEvent{Old: model.NewSessionID, New: "sess-42"}, ev)
	assert.Equal(t, "sess-42", ctrl.SessionID())

	_, ok = rec.Publish()
	assert.False(t, ok)
	assert.Len(t, events, 1)
	assert.True(t, rec.Published())
}

func TestReconciler_NoHeaderKeepsSession(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"absent", ""},
		{"blank", "   "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := thread.NewController()
			ctrl.SetSessionID("existing")
			called := false
			rec := NewReconciler(ctrl, func(ChangeEvent) { called = true })

			rec.Observe(tc.header)
			_, ok := rec.Publish()
			assert.False(t, ok)
			assert.False(t, called)
			assert.Equal(t, "existing", ctrl.SessionID())
		})
	}
}

func TestReconciler_SameIDIsNotAChange(t *testing.T) {
	ctrl := thread.NewController()
	ctrl.SetSessionID("sess-1")
	rec := NewReconciler(ctrl)

	rec.Observe("sess-1")
	_, ok := rec.Pending()
	assert.False(t, ok)
	_, ok = rec.Publish()
	assert.False(t, ok)
}

func TestReconciler_FirstObserveWins(t *testing.T) {
	ctrl := thread.NewController()
	rec := NewReconciler(ctrl)

	rec.Observe("first")
	rec.Observe("second")
	ev, ok := rec.Publish()
	require.True(t, ok)
	assert.Equal(t, "first", ev.New)
}

func TestReconciler_PublishWithoutObserve(t *testing.T) {
	ctrl := thread.NewController()
	rec := NewReconciler(ctrl)

	_, ok := rec.Publish()
	assert.False(t, ok)
	assert.Equal(t, model.NewSessionID, ctrl.SessionID())
}
