// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"
)

// Completion is a single tab-completion candidate.
type Completion struct {
	// Value replaces the word being typed
	Value string

	// Display is shown in the completion list
	Display     string
	Description string
	Score       int
}

// =============================================================================
// COMPLETER
// =============================================================================

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// ModelsFn returns the model names offered by the backend.
	ModelsFn func() []string

	// SessionsFn returns stored session ids, newest first.
	SessionsFn func() []string
}

// NewCompleter creates a completer over registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns completions for input with the cursor at cursorPos.
// Plain chat text never completes.
func (c *Completer) Complete(input string, cursorPos int) []Completion {
	if cursorPos >= 0 && cursorPos < len(input) {
		input = input[:cursorPos]
	}
	input = strings.TrimLeft(input, " \t")
	if !IsCommand(input) {
		return nil
	}

	parts := splitCommandLine(input)
	if len(parts) == 1 && !strings.HasSuffix(input, " ") {
		return c.completeCommands(parts[0])
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil {
		return nil
	}
	argIndex, partial := partialArg(input)
	return c.completeArg(cmd, argIndex, partial)
}

// Apply substitutes comp for the word being typed at the end of input and
// appends a space.
func Apply(input string, comp Completion) string {
	idx := strings.LastIndexAny(input, " \t")
	return input[:idx+1] + comp.Value + " "
}

func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Display:     cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			if strings.HasPrefix(alias, partial) {
				completions = append(completions, Completion{
					Value:       alias,
					Display:     alias + " -> " + cmd.Name,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}

	sortCompletions(completions)
	return completions
}

// =============================================================================
// ARGUMENT COMPLETION
// =============================================================================

func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}

	arg := cmd.Args[argIndex]
	switch arg.Type {
	case ArgTypeModel:
		if c.ModelsFn == nil {
			return nil
		}
		return completeFromList(c.ModelsFn(), partial, "model")
	case ArgTypeSession:
		if c.SessionsFn == nil {
			return nil
		}
		return completeFromList(c.SessionsFn(), partial, "session")
	case ArgTypeEnum:
		return completeFromList(arg.Values, partial, arg.Description)
	default:
		return nil
	}
}

func completeFromList(values []string, partial, description string) []Completion {
	var completions []Completion
	lower := strings.ToLower(partial)
	for _, v := range values {
		if !strings.HasPrefix(strings.ToLower(v), lower) {
			continue
		}
		completions = append(completions, Completion{
			Value:       v,
			Display:     v,
			Description: description,
			Score:       calculateScore(v, partial),
		})
	}
	sortCompletions(completions)
	return completions
}

// calculateScore ranks a candidate; higher is better.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100
	if value == partial {
		return score + 100
	}
	if strings.HasPrefix(value, partial) {
		score += 50
		score += 20 - len(value)
	}
	score -= len(value) / 2
	return score
}

// sortCompletions sorts by score descending, then alphabetically.
func sortCompletions(completions []Completion) {
	sort.SliceStable(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}

// =============================================================================
// COMPLETION NAVIGATION
// =============================================================================

// CompletionState tracks cycling through completions with tab.
type CompletionState struct {
	// OriginalInput is the input completions were computed for
	OriginalInput string

	Completions []Completion

	// Selected is -1 when nothing is selected
	Selected int
	Visible  bool
}

// NewCompletionState creates an empty state.
func NewCompletionState() *CompletionState {
	return &CompletionState{Selected: -1}
}

// Update replaces the candidates and selects the first.
func (cs *CompletionState) Update(input string, completions []Completion) {
	cs.OriginalInput = input
	cs.Completions = completions
	cs.Selected = 0
	cs.Visible = len(completions) > 0
}

// Next moves to the next completion, wrapping around.
func (cs *CompletionState) Next() {
	if len(cs.Completions) == 0 {
		return
	}
	cs.Selected = (cs.Selected + 1) % len(cs.Completions)
}

// Prev moves to the previous completion, wrapping around.
func (cs *CompletionState) Prev() {
	if len(cs.Completions) == 0 {
		return
	}
	cs.Selected--
	if cs.Selected < 0 {
		cs.Selected = len(cs.Completions) - 1
	}
}

// Accept returns OriginalInput with the selected completion applied.
func (cs *CompletionState) Accept() string {
	sel := cs.GetSelected()
	if sel == nil {
		return cs.OriginalInput
	}
	return Apply(cs.OriginalInput, *sel)
}

// Clear resets the state.
func (cs *CompletionState) Clear() {
	cs.OriginalInput = ""
	cs.Completions = nil
	cs.Selected = -1
	cs.Visible = false
}

// GetSelected returns the selected completion, or nil.
func (cs *CompletionState) GetSelected() *Completion {
	if cs.Selected < 0 || cs.Selected >= len(cs.Completions) {
		return nil
	}
	return &cs.Completions[cs.Selected]
}
