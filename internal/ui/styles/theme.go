// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names accepted by NewTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
	ThemeAuto  = "auto"
	ThemeNoTTY = "notty"
)

// Theme holds the styled components for one output.
type Theme struct {
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile
	Renderer     *lipgloss.Renderer

	// Layout dimensions
	Width  int
	Height int

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	// Messages
	UserLabel   lipgloss.Style
	BotLabel    lipgloss.Style
	UserText    lipgloss.Style
	BotText     lipgloss.Style
	Placeholder lipgloss.Style
	Divider     lipgloss.Style

	// Input
	Prompt    lipgloss.Style
	InputHint lipgloss.Style

	// Status bar
	StatusBar   lipgloss.Style
	StatusKey   lipgloss.Style
	StatusValue lipgloss.Style
	Streaming   lipgloss.Style

	// Lists (history, models)
	ListTitle    lipgloss.Style
	ListItem     lipgloss.Style
	ListSelected lipgloss.Style

	// Notices
	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	InfoStyle    lipgloss.Style
	Muted        lipgloss.Style
}

// NewTheme creates a theme for w. Unknown names behave like ThemeAuto.
func NewTheme(name string, w io.Writer) *Theme {
	r := lipgloss.NewRenderer(w)

	switch name {
	case ThemeDark:
		r.SetHasDarkBackground(true)
	case ThemeLight:
		r.SetHasDarkBackground(false)
	case ThemeNoTTY:
		r.SetColorProfile(termenv.Ascii)
	default:
		name = ThemeAuto
	}

	t := &Theme{
		Name:         name,
		IsDark:       r.HasDarkBackground(),
		ColorProfile: r.ColorProfile(),
		Renderer:     r,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	r := t.Renderer

	t.Header = r.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = r.NewStyle().Bold(true).Foreground(Cyan)
	t.HeaderMeta = r.NewStyle().Foreground(TextSecondary)

	t.UserLabel = r.NewStyle().Bold(true).Foreground(Cyan)
	t.BotLabel = r.NewStyle().Bold(true).Foreground(Purple)
	t.UserText = r.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1)
	t.BotText = r.NewStyle().
		Foreground(BotBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(BotBubbleBorder).
		PaddingLeft(1)
	t.Placeholder = r.NewStyle().Italic(true).Foreground(TextMuted)
	t.Divider = r.NewStyle().Foreground(Overlay)

	t.Prompt = r.NewStyle().Bold(true).Foreground(Cyan)
	t.InputHint = r.NewStyle().Foreground(TextMuted)

	t.StatusBar = r.NewStyle().Foreground(TextSecondary).Background(SurfaceDim).Padding(0, 1)
	t.StatusKey = r.NewStyle().Foreground(TextMuted)
	t.StatusValue = r.NewStyle().Foreground(TextPrimary)
	t.Streaming = r.NewStyle().Bold(true).Foreground(Amber)

	t.ListTitle = r.NewStyle().Bold(true).Foreground(Cyan).MarginBottom(1)
	t.ListItem = r.NewStyle().PaddingLeft(2).Foreground(TextPrimary)
	t.ListSelected = r.NewStyle().PaddingLeft(1).Bold(true).Foreground(Purple).
		BorderStyle(lipgloss.NormalBorder()).BorderLeft(true).BorderForeground(Purple)

	t.SuccessStyle = r.NewStyle().Bold(true).Foreground(Emerald)
	t.ErrorStyle = r.NewStyle().Bold(true).Foreground(Rose)
	t.WarningStyle = r.NewStyle().Bold(true).Foreground(Amber)
	t.InfoStyle = r.NewStyle().Foreground(Blue)
	t.Muted = r.NewStyle().Foreground(TextMuted)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GlamourStyle returns the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	switch {
	case t.ColorProfile == termenv.Ascii:
		return "notty"
	case t.IsDark:
		return "dark"
	default:
		return "light"
	}
}

// Success renders message with the success marker.
func (t *Theme) Success(message string) string {
	return t.SuccessStyle.Render(StatusIndicators.Success + " " + message)
}

// Error renders message with the error marker.
func (t *Theme) Error(message string) string {
	return t.ErrorStyle.Render(StatusIndicators.Error + " " + message)
}

// Warning renders message with the warning marker.
func (t *Theme) Warning(message string) string {
	return t.WarningStyle.Render(StatusIndicators.Warning + " " + message)
}

// Info renders message with the info marker.
func (t *Theme) Info(message string) string {
	return t.InfoStyle.Render(StatusIndicators.Info + " " + message)
}
