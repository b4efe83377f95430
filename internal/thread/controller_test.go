// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thread

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bizartvisor-cli/internal/model"
)

func TestController_Defaults(t *testing.T) {
	c := NewController()
	assert.Equal(t, model.NewSessionID, c.SessionID())
	assert.Equal(t, 0, c.Len())

	_, ok := c.Last()
	assert.False(t, ok)
}

func TestController_AppendKeepsOrder(t *testing.T) {
	c := NewController()
	c.Append(model.UserMessage("one"))
	c.Append(model.BotMessage("two"))
	c.Append(model.UserMessage("three"))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "one", snap.Messages[0].Text)
	assert.Equal(t, "two", snap.Messages[1].Text)
	assert.Equal(t, "three", snap.Messages[2].Text)
}

func TestController_ReplaceLastKeepsLength(t *testing.T) {
	c := NewController()
	c.Append(model.UserMessage("Hello"))
	c.Append(model.BotMessage(model.PlaceholderText))

	for _, text := range []string{"H", "Hi", "Hi there", "Hi there!"} {
		require.NoError(t, c.ReplaceLast(model.BotMessage(text)))
		assert.Equal(t, 2, c.Len())
	}

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, model.BotMessage("Hi there!"), last)
	assert.Equal(t, "Hello", c.Snapshot().Messages[0].Text)
}

func TestController_ReplaceLastOnEmpty(t *testing.T) {
	c := NewController()
	err := c.ReplaceLast(model.BotMessage("x"))
	require.Error(t, err)

	var empty *EmptyThreadError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, model.NewSessionID, empty.SessionID)
	assert.Equal(t, 0, c.Len())
}

func TestController_SnapshotIsCopy(t *testing.T) {
	c := NewController()
	c.Append(model.UserMessage("a"))

	snap := c.Snapshot()
	snap.Messages[0] = model.UserMessage("mutated")
	snap.SessionID = "other"

	assert.Equal(t, "a", c.Snapshot().Messages[0].Text)
	assert.Equal(t, model.NewSessionID, c.SessionID())
}

func TestController_LoadAndReset(t *testing.T) {
	c := NewController()
	c.Load(model.Thread{SessionID: "sess-1", Messages: []model.Message{model.UserMessage("q"), model.BotMessage("a")}})
	assert.Equal(t, "sess-1", c.SessionID())
	assert.Equal(t, 2, c.Len())

	text, ok := c.LastBotText()
	assert.True(t, ok)
	assert.Equal(t, "a", text)

	c.Load(model.Thread{})
	assert.Equal(t, model.NewSessionID, c.SessionID())

	c.Append(model.UserMessage("x"))
	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, model.NewSessionID, c.SessionID())
}

func TestController_OnChange(t *testing.T) {
	c := NewController()
	var seen []int
	c.OnChange(func(th model.Thread) {
		seen = append(seen, th.Len())
	})

	c.Append(model.UserMessage("a"))
	c.Append(model.BotMessage("b"))
	require.NoError(t, c.ReplaceLast(model.BotMessage("bb")))
	c.SetSessionID("s")

	assert.Equal(t, []int{1, 2, 2, 2}, seen)
}

func TestController_ConcurrentReaders(t *testing.T) {
	c := NewController()
	c.Append(model.BotMessage(""))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Snapshot()
				_ = c.Len()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		require.NoError(t, c.ReplaceLast(model.BotMessage("x")))
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
