// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for threads and messages.
package model

import "strings"

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes a generation model the backend can route to.
type ModelInfo struct {
	// Name is the display name, sent verbatim as model_name
	Name string `json:"name"`

	// Provider is who serves the model (Anthropic, OpenAI)
	Provider string `json:"provider"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// DefaultModelNames is the list the backend ships with, used when the
// backend cannot be asked.
var DefaultModelNames = []string{
	"Claude 3 haiku",
	"Claude 3 opus",
	"Claude 3 sonnet",
	"OpenAI GPT4",
	"OpenAI GPT4 Turbo",
	"OpenAI GPT3.5 Turbo",
}

// DefaultModel is the model selected when the user has not picked one.
const DefaultModel = "Claude 3 haiku"

// ModelsFromNames builds ModelInfo values from backend display names.
func ModelsFromNames(names []string) []ModelInfo {
	out := make([]ModelInfo, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out = append(out, ModelInfo{Name: n, Provider: ProviderFor(n)})
	}
	return out
}

// ProviderFor guesses the provider from a display name.
func ProviderFor(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "claude"):
		return "Anthropic"
	case strings.Contains(lower, "openai"), strings.Contains(lower, "gpt"):
		return "OpenAI"
	default:
		return "Unknown"
	}
}

// IsKnownModel reports whether name appears in names, ignoring case.
func IsKnownModel(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
