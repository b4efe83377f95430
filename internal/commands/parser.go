// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"strings"
	"unicode"
)

// ErrUnknownCommand is wrapped by the error of a ParseResult whose command
// is not registered.
var ErrUnknownCommand = errors.New("unknown command")

// =============================================================================
// PARSE RESULT
// =============================================================================

// ParseResult is one parsed line of user input.
type ParseResult struct {
	// IsCommand is true if the input starts with /
	IsCommand bool

	// Command is the matched command, nil if unknown
	Command *Command

	// CommandName is the name as typed, e.g. "/Model"
	CommandName string

	Args     []string
	RawInput string

	// RawArgs is everything after the command name
	RawArgs string

	// Error is set for unknown commands and bad arguments
	Error error
}

// Action returns the command's action, or ActionNone.
func (r ParseResult) Action() Action {
	if r.Command == nil || r.Error != nil {
		return ActionNone
	}
	return r.Command.Action
}

// =============================================================================
// PARSER
// =============================================================================

// Parser parses slash commands against a registry.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser for registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse parses input. Input that does not start with / is not a command
// and is returned with IsCommand false.
func (p *Parser) Parse(input string) ParseResult {
	input = strings.TrimSpace(input)
	result := ParseResult{RawInput: input}

	if !IsCommand(input) {
		return result
	}
	result.IsCommand = true

	parts := splitCommandLine(input)
	if len(parts) == 0 {
		return result
	}
	result.CommandName = parts[0]
	result.Args = parts[1:]
	if name := ExtractCommandName(input); name != "" {
		result.RawArgs = strings.TrimSpace(input[len(name):])
	}

	result.Command = p.registry.Get(result.CommandName)
	if result.Command == nil {
		result.Error = &ValidationError{
			Command:  result.CommandName,
			Message:  ErrUnknownCommand.Error(),
			Expected: "/help lists commands",
			err:      ErrUnknownCommand,
		}
		return result
	}
	result.Error = ValidateArgs(result.Command, result.Args)
	return result
}

// ParseArgs splits a raw argument string, honouring quotes.
func ParseArgs(input string) []string {
	return splitCommandLine(input)
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// splitCommandLine splits a command line into tokens. Single and double
// quotes group words; a backslash escapes a quote or backslash inside them.
func splitCommandLine(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingle, inDouble bool

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case r == '\\' && i+1 < len(runes) && (inSingle || inDouble):
			next := runes[i+1]
			if next == '"' || next == '\'' || next == '\\' {
				current.WriteRune(next)
				i++
			} else {
				current.WriteRune(r)
			}
		case unicode.IsSpace(r) && !inSingle && !inDouble:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// IsCommand reports whether input looks like a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// ExtractCommandName returns the command word of input, e.g.
// "/model opus" -> "/model".
func ExtractCommandName(input string) string {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return ""
	}
	if end := strings.IndexFunc(input, unicode.IsSpace); end != -1 {
		return input[:end]
	}
	return input
}

// partialArg returns the index of the argument being typed and its prefix.
func partialArg(input string) (int, string) {
	parts := splitCommandLine(input)
	if len(parts) == 0 {
		return 0, ""
	}
	if strings.HasSuffix(input, " ") {
		return len(parts) - 1, ""
	}
	return len(parts) - 2, parts[len(parts)-1]
}

// ValidateArgs checks args against the command's argument definitions.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}
	if len(args) > len(cmd.Args) {
		return &ValidationError{
			Command:  cmd.Name,
			Message:  "too many arguments",
			Got:      strings.Join(args[len(cmd.Args):], " "),
			Expected: usageOf(cmd),
		}
	}

	for i, def := range cmd.Args {
		if i >= len(args) {
			if def.Required {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      def.Name,
					Message:  "required argument missing",
					Expected: usageOf(cmd),
				}
			}
			continue
		}
		if def.Type == ArgTypeEnum && len(def.Values) > 0 && !containsFold(def.Values, args[i]) {
			return &ValidationError{
				Command:  cmd.Name,
				Arg:      def.Name,
				Message:  "invalid value",
				Got:      args[i],
				Expected: strings.Join(def.Values, ", "),
			}
		}
	}
	return nil
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func usageOf(cmd *Command) string {
	if cmd.Usage != "" {
		return cmd.Usage
	}
	return cmd.Name
}

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError describes an unknown command or a bad argument.
type ValidationError struct {
	Command  string
	Arg      string
	Message  string
	Got      string
	Expected string

	err error
}

func (e *ValidationError) Error() string {
	msg := e.Command + ": " + e.Message
	if e.Arg != "" {
		msg += " for argument '" + e.Arg + "'"
	}
	if e.Got != "" {
		msg += " (got: " + e.Got + ")"
	}
	if e.Expected != "" {
		msg += " - expected: " + e.Expected
	}
	return msg
}

// Unwrap returns the sentinel behind the error, if any.
func (e *ValidationError) Unwrap() error {
	return e.err
}
