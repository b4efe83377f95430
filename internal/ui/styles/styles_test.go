// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestNewTheme(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantDark *bool
	}{
		{ThemeDark, ThemeDark, boolPtr(true)},
		{ThemeLight, ThemeLight, boolPtr(false)},
		{ThemeNoTTY, ThemeNoTTY, nil},
		{"bogus", ThemeAuto, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			theme := NewTheme(tc.name, &bytes.Buffer{})
			assert.Equal(t, tc.wantName, theme.Name)
			if tc.wantDark != nil {
				assert.Equal(t, *tc.wantDark, theme.IsDark)
			}
		})
	}
}

func TestTheme_NoTTYIsPlain(t *testing.T) {
	theme := NewTheme(ThemeNoTTY, &bytes.Buffer{})
	assert.Equal(t, termenv.Ascii, theme.ColorProfile)
	assert.Equal(t, "notty", theme.GlamourStyle())

	out := theme.Error("boom")
	assert.Contains(t, out, "[X] boom")
	assert.Equal(t, lipgloss.Width("[X] boom"), lipgloss.Width(out))
}

func TestTheme_GlamourStyle(t *testing.T) {
	theme := NewTheme(ThemeDark, &bytes.Buffer{})
	theme.ColorProfile = termenv.TrueColor
	assert.Equal(t, "dark", theme.GlamourStyle())

	theme = NewTheme(ThemeLight, &bytes.Buffer{})
	theme.ColorProfile = termenv.TrueColor
	assert.Equal(t, "light", theme.GlamourStyle())
}

func TestTheme_SetSize(t *testing.T) {
	theme := NewTheme(ThemeDark, &bytes.Buffer{})
	theme.SetSize(120, 40)
	assert.Equal(t, 120, theme.Width)
	assert.Equal(t, 40, theme.Height)
}

func TestRenderHelpersKeepMarkers(t *testing.T) {
	assert.Contains(t, RenderSuccess("saved"), StatusIndicators.Success)
	assert.Contains(t, RenderError("failed"), StatusIndicators.Error)
	assert.Contains(t, RenderWarning("careful"), StatusIndicators.Warning)
	assert.Contains(t, RenderInfo("note"), StatusIndicators.Info)
}

func boolPtr(b bool) *bool { return &b }
