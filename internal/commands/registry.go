// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jeranaias/bizartvisor-cli/internal/util"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Action identifies what a command asks the client to do.
type Action int

const (
	ActionNone Action = iota
	ActionHelp
	ActionNew
	ActionHistory
	ActionSwitch
	ActionModel
	ActionModels
	ActionRAG
	ActionNews
	ActionCopy
	ActionStatus
	ActionQuit
)

// ArgType indicates what kind of completion an argument gets.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeModel                  // Model name
	ArgTypeSession                // Stored session id
	ArgTypeEnum                   // One of Values
)

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string
	Values      []string
}

// Command is a slash command.
type Command struct {
	// Name is the primary name, e.g. "/help"
	Name string

	// Aliases are alternative names, e.g. "/?"
	Aliases []string

	Description string

	// Usage shows argument syntax, e.g. "/switch <id>"
	Usage string

	Args   []ArgDef
	Action Action

	// Category groups commands in help output
	Category string
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a registry with the built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds cmd, replacing any command with the same name.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get looks a command up by name or alias, case-insensitively.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	return r.aliases[name]
}

// All returns the commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns commands grouped by category, each group sorted.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Help renders the command table as plain text.
func (r *Registry) Help() string {
	groups := r.ByCategory()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s:\n", name)
		for _, cmd := range groups[name] {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			fmt.Fprintf(&b, "  %s %s\n", util.PadRight(usage, 18), cmd.Description)
		}
	}
	return b.String()
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

var toggleValues = []string{"on", "off"}

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name: "/help", Aliases: []string{"/h", "/?"},
		Description: "Show available commands",
		Action:      ActionHelp, Category: "General",
	})
	r.Register(&Command{
		Name: "/quit", Aliases: []string{"/exit", "/q"},
		Description: "Leave the chat",
		Action:      ActionQuit, Category: "General",
	})
	r.Register(&Command{
		Name:        "/status",
		Description: "Show session and settings",
		Action:      ActionStatus, Category: "General",
	})
	r.Register(&Command{
		Name:        "/copy",
		Description: "Copy the last reply to the clipboard",
		Action:      ActionCopy, Category: "General",
	})

	r.Register(&Command{
		Name: "/new", Aliases: []string{"/clear"},
		Description: "Start a new thread",
		Action:      ActionNew, Category: "Threads",
	})
	r.Register(&Command{
		Name: "/history", Aliases: []string{"/threads"},
		Description: "List stored threads",
		Action:      ActionHistory, Category: "Threads",
	})
	r.Register(&Command{
		Name: "/switch", Aliases: []string{"/load"},
		Description: "Load a stored thread",
		Usage:       "/switch <id>",
		Args:        []ArgDef{{Name: "id", Required: true, Type: ArgTypeSession, Description: "session id"}},
		Action:      ActionSwitch, Category: "Threads",
	})

	r.Register(&Command{
		Name: "/model", Aliases: []string{"/m"},
		Description: "Show or set the model",
		Usage:       "/model [name]",
		Args:        []ArgDef{{Name: "name", Type: ArgTypeModel, Description: "model name"}},
		Action:      ActionModel, Category: "Settings",
	})
	r.Register(&Command{
		Name:        "/models",
		Description: "List models offered by the backend",
		Action:      ActionModels, Category: "Settings",
	})
	r.Register(&Command{
		Name:        "/rag",
		Description: "Toggle knowledge base retrieval",
		Usage:       "/rag [on|off]",
		Args:        []ArgDef{{Name: "state", Type: ArgTypeEnum, Values: toggleValues, Description: "on or off"}},
		Action:      ActionRAG, Category: "Settings",
	})
	r.Register(&Command{
		Name:        "/news",
		Description: "Toggle the news search tool",
		Usage:       "/news [on|off]",
		Args:        []ArgDef{{Name: "state", Type: ArgTypeEnum, Values: toggleValues, Description: "on or off"}},
		Action:      ActionNews, Category: "Settings",
	})
}

// Toggle resolves an optional on/off argument against the current value.
// No argument flips current.
func Toggle(args []string, current bool) (bool, error) {
	if len(args) == 0 {
		return !current, nil
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return current, fmt.Errorf("expected on or off, got %q", args[0])
}
