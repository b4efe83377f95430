// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
	"github.com/jeranaias/bizartvisor-cli/internal/conversation"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// ConfigError reports a configuration file or setting problem.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// UsageError reports invalid arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cfgErr *ConfigError
	var usageErr *UsageError
	var te *backend.TransportError
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &usageErr), errors.Is(err, conversation.ErrEmptyInput):
		return ExitUsageError
	case errors.As(err, &te):
		switch {
		case te.Type == backend.ErrTypeTimeout:
			return ExitTimeoutError
		case te.StatusCode == 404:
			return ExitNotFoundError
		}
		return ExitNetworkError
	}
	return ExitGeneralError
}
