// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetByNameAndAlias(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"/help", "/h", "/?", "/HELP"} {
		cmd := r.Get(name)
		require.NotNil(t, cmd, name)
		assert.Equal(t, ActionHelp, cmd.Action)
	}
	assert.Equal(t, ActionSwitch, r.Get("/load").Action)
	assert.Nil(t, r.Get("/nope"))
}

func TestRegistry_AllSorted(t *testing.T) {
	all := NewRegistry().All()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name)
	}
}

func TestRegistry_Help(t *testing.T) {
	help := NewRegistry().Help()
	assert.Contains(t, help, "Threads:")
	assert.Contains(t, help, "/switch <id>")
	assert.Contains(t, help, "Toggle the news search tool")
}

func TestParse(t *testing.T) {
	p := NewParser(NewRegistry())

	tests := []struct {
		name    string
		input   string
		command bool
		action  Action
		args    []string
		wantErr bool
	}{
		{name: "chat text", input: "hello there", command: false, action: ActionNone},
		{name: "bare command", input: "/new", command: true, action: ActionNew},
		{name: "alias", input: "  /q  ", command: true, action: ActionQuit},
		{name: "with arg", input: "/switch abc-123", command: true, action: ActionSwitch, args: []string{"abc-123"}},
		{name: "quoted arg", input: `/model "big model"`, command: true, action: ActionModel, args: []string{"big model"}},
		{name: "missing required", input: "/switch", command: true, wantErr: true},
		{name: "bad enum", input: "/rag maybe", command: true, args: []string{"maybe"}, wantErr: true},
		{name: "enum ignores case", input: "/rag ON", command: true, action: ActionRAG, args: []string{"ON"}},
		{name: "too many", input: "/new now please", command: true, args: []string{"now", "please"}, wantErr: true},
		{name: "unknown", input: "/frobnicate", command: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Parse(tt.input)
			assert.Equal(t, tt.command, res.IsCommand)
			assert.Equal(t, tt.action, res.Action())
			if tt.args != nil {
				assert.Equal(t, tt.args, res.Args)
			}
			if tt.wantErr {
				assert.Error(t, res.Error)
			} else {
				assert.NoError(t, res.Error)
			}
		})
	}
}

func TestParse_UnknownCommand(t *testing.T) {
	res := NewParser(NewRegistry()).Parse("/frobnicate now")

	require.Error(t, res.Error)
	assert.True(t, errors.Is(res.Error, ErrUnknownCommand))
	assert.Nil(t, res.Command)
	assert.Equal(t, "/frobnicate", res.CommandName)
	assert.Equal(t, "now", res.RawArgs)

	var verr *ValidationError
	require.True(t, errors.As(res.Error, &verr))
	assert.Contains(t, verr.Error(), "/help")
}

func TestParse_RawArgs(t *testing.T) {
	res := NewParser(NewRegistry()).Parse(`/model   "a b"`)
	assert.Equal(t, `"a b"`, res.RawArgs)
}

func TestSplitCommandLine(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d'e"}, splitCommandLine(`a "b c" "d\'e"`))
	assert.Equal(t, []string{"x", "y z"}, splitCommandLine(`x   'y z'  `))
	assert.Empty(t, splitCommandLine("   "))
}

func TestExtractCommandName(t *testing.T) {
	assert.Equal(t, "/model", ExtractCommandName("/model gpt"))
	assert.Equal(t, "/new", ExtractCommandName(" /new "))
	assert.Equal(t, "", ExtractCommandName("hi /new"))
}

func TestToggle(t *testing.T) {
	v, err := Toggle(nil, true)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = Toggle([]string{"on"}, false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = Toggle([]string{"OFF"}, true)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = Toggle([]string{"sideways"}, true)
	assert.Error(t, err)
	assert.True(t, v)
}

func TestComplete_CommandNames(t *testing.T) {
	c := NewCompleter(NewRegistry())

	got := c.Complete("/m", 2)
	require.Len(t, got, 3)
	assert.Equal(t, "/m", got[0].Value)
	assert.Equal(t, "/model", got[1].Value)
	assert.Equal(t, "/models", got[2].Value)

	assert.Len(t, c.Complete("/", 1), len(collectNames(NewRegistry())))
	assert.Nil(t, c.Complete("hello", 5))
}

func TestComplete_Arguments(t *testing.T) {
	c := NewCompleter(NewRegistry())
	c.ModelsFn = func() []string { return []string{"gpt-4o", "gpt-4o-mini", "llama3"} }
	c.SessionsFn = func() []string { return []string{"b-2", "a-1"} }

	models := c.Complete("/model gpt", 10)
	require.Len(t, models, 2)
	assert.Equal(t, "gpt-4o", models[0].Value)

	sessions := c.Complete("/switch ", 8)
	assert.Len(t, sessions, 2)

	enum := c.Complete("/news o", 7)
	require.Len(t, enum, 2)
	assert.ElementsMatch(t, []string{"on", "off"}, []string{enum[0].Value, enum[1].Value})

	assert.Nil(t, c.Complete("/new ", 5))
	assert.Nil(t, c.Complete("/unknown x", 10))
}

func TestComplete_CursorInsideInput(t *testing.T) {
	c := NewCompleter(NewRegistry())
	got := c.Complete("/hel trailing", 4)
	require.Len(t, got, 1)
	assert.Equal(t, "/help", got[0].Value)
}

func TestComplete_NoCallbacks(t *testing.T) {
	c := NewCompleter(NewRegistry())
	assert.Nil(t, c.Complete("/model ", 7))
	assert.Nil(t, c.Complete("/switch ", 8))
}

func TestCompletionState(t *testing.T) {
	cs := NewCompletionState()
	assert.Nil(t, cs.GetSelected())
	assert.Equal(t, "", cs.Accept())

	cs.Update("/model g", []Completion{{Value: "gpt-4o"}, {Value: "gemma"}})
	assert.True(t, cs.Visible)
	assert.Equal(t, "/model gpt-4o ", cs.Accept())

	cs.Next()
	assert.Equal(t, "/model gemma ", cs.Accept())
	cs.Next()
	assert.Equal(t, "gpt-4o", cs.GetSelected().Value)
	cs.Prev()
	assert.Equal(t, "gemma", cs.GetSelected().Value)

	cs.Clear()
	assert.False(t, cs.Visible)
	assert.Nil(t, cs.GetSelected())
}

func TestApply(t *testing.T) {
	assert.Equal(t, "/help ", Apply("/he", Completion{Value: "/help"}))
	assert.Equal(t, "/switch abc ", Apply("/switch a", Completion{Value: "abc"}))
	assert.Equal(t, "/switch abc ", Apply("/switch ", Completion{Value: "abc"}))
}

func collectNames(r *Registry) []string {
	var names []string
	for _, cmd := range r.All() {
		names = append(names, cmd.Name)
		names = append(names, cmd.Aliases...)
	}
	return names
}
