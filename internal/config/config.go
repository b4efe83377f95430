// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for bizartvisor.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/bizartvisor-cli/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete bizartvisor configuration.
type Config struct {
	// Version of the config file layout
	Version string `toml:"version"`

	// Backend connection
	Backend BackendConfig `toml:"backend"`

	// Generation settings sent with every exchange
	Chat ChatConfig `toml:"chat"`

	// Logging
	Log LogConfig `toml:"log"`

	// Development backend (bizartvisor serve)
	Server ServerConfig `toml:"server"`

	// Terminal UI
	UI UIConfig `toml:"ui"`
}

// BackendConfig describes how to reach the conversation backend.
type BackendConfig struct {
	// URL is the backend base URL
	URL string `toml:"url"`
	// TimeoutSecs bounds non-streaming requests
	TimeoutSecs int `toml:"timeout_secs"`
	// ConnectTimeoutSecs bounds dialing and waiting for stream headers
	ConnectTimeoutSecs int `toml:"connect_timeout_secs"`
	// UserAgent sent with every request
	UserAgent string `toml:"user_agent"`
}

// ChatConfig holds the settings passed opaquely to the backend.
type ChatConfig struct {
	// ModelName is sent as model_name
	ModelName string `toml:"model_name"`
	// UseRAG is sent as useRAG
	UseRAG bool `toml:"use_rag"`
	// UseNewsTool is sent as useNewsTool
	UseNewsTool bool `toml:"use_news_tool"`
	// Placeholder occupies the bot slot until the first fragment arrives
	Placeholder string `toml:"placeholder"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	// Level: trace, debug, info, warn, error
	Level string `toml:"level"`
	// Format: text or json
	Format string `toml:"format"`
	// File receives logs; empty means stderr (the TUI always uses a file)
	File string `toml:"file"`
}

// ServerConfig configures the development backend.
type ServerConfig struct {
	// Addr is the listen address
	Addr string `toml:"addr"`
	// ChunkSize is the number of reply bytes per streamed chunk
	ChunkSize int `toml:"chunk_size"`
	// ChunkDelayMs is the pause between chunks
	ChunkDelayMs int `toml:"chunk_delay_ms"`
	// RateLimit is the sustained requests per second per client (0 disables)
	RateLimit float64 `toml:"rate_limit"`
	// RateBurst is the burst size per client
	RateBurst int `toml:"rate_burst"`
	// AllowedOrigins for CORS; "*" allows any
	AllowedOrigins []string `toml:"allowed_origins"`
}

// UIConfig contains terminal UI configuration.
type UIConfig struct {
	// Theme is the glamour style: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// WordWrap is the markdown wrap width (0 = terminal width)
	WordWrap int `toml:"word_wrap"`
	// RenderMarkdown renders completed replies as markdown
	RenderMarkdown bool `toml:"render_markdown"`
	// ShowStats shows fragment and token counts after each reply
	ShowStats bool `toml:"show_stats"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1",

		Backend: BackendConfig{
			URL:                "http://127.0.0.1:5000",
			TimeoutSecs:        15,
			ConnectTimeoutSecs: 10,
			UserAgent:          "bizartvisor-cli",
		},

		Chat: ChatConfig{
			ModelName:   "Claude 3 haiku",
			UseRAG:      false,
			UseNewsTool: false,
			Placeholder: "Loading response...",
		},

		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},

		Server: ServerConfig{
			Addr:           "127.0.0.1:5000",
			ChunkSize:      16,
			ChunkDelayMs:   30,
			RateLimit:      5,
			RateBurst:      20,
			AllowedOrigins: []string{"*"},
		},

		UI: UIConfig{
			Theme:          "dark",
			WordWrap:       0,
			RenderMarkdown: true,
			ShowStats:      true,
		},
	}
}

// Timeout returns the non-streaming request timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// ConnectTimeout returns the stream connect timeout.
func (b BackendConfig) ConnectTimeout() time.Duration {
	return time.Duration(b.ConnectTimeoutSecs) * time.Second
}

// ChunkDelay returns the pause between streamed chunks.
func (s ServerConfig) ChunkDelay() time.Duration {
	return time.Duration(s.ChunkDelayMs) * time.Millisecond
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the bizartvisor configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".bizartvisor"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	return inConfigDir("config.toml")
}

// HistoryPath returns the path of the line editor history file.
func HistoryPath() (string, error) {
	return inConfigDir("repl_history")
}

// LogPath returns the default log file path.
func LogPath() (string, error) {
	return inConfigDir("bizartvisor.log")
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the configuration at path, or at ConfigPath when path is
// empty. A missing file yields the defaults. Environment overrides are
// applied last, then the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	return finish(cfg)
}

// LoadFromPath loads configuration from a file that must exist.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Unknown keys are rejected so
// typos surface instead of silently keeping defaults.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// SetDefaults fills in zero values that have no meaning as zero.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	// Backend
	if c.Backend.URL == "" {
		c.Backend.URL = defaults.Backend.URL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = defaults.Backend.TimeoutSecs
	}
	if c.Backend.ConnectTimeoutSecs == 0 {
		c.Backend.ConnectTimeoutSecs = defaults.Backend.ConnectTimeoutSecs
	}
	if c.Backend.UserAgent == "" {
		c.Backend.UserAgent = defaults.Backend.UserAgent
	}

	// Chat
	if c.Chat.Placeholder == "" {
		c.Chat.Placeholder = defaults.Chat.Placeholder
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	// Server
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ChunkSize == 0 {
		c.Server.ChunkSize = defaults.Server.ChunkSize
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = defaults.Server.RateBurst
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}

	// UI
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to path, or to ConfigPath when path is empty.
// The file is replaced atomically with 0600 permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		if err := EnsureConfigDir(); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	var buf bytes.Buffer
	buf.WriteString("# bizartvisor configuration file\n")
	buf.WriteString("# Environment variables BIZARTVISOR_* override these values.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", c.Backend.URL),
		})
	}
	if c.Backend.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "backend.timeout_secs", Message: "must not be negative"})
	}
	if c.Backend.ConnectTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "backend.connect_timeout_secs", Message: "must not be negative"})
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s'", c.Log.Level),
		})
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Log.Format)) {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Log.Format),
		})
	}

	if c.Server.ChunkSize < 1 {
		errs = append(errs, ValidationError{Field: "server.chunk_size", Message: "must be at least 1"})
	}
	if c.Server.ChunkDelayMs < 0 {
		errs = append(errs, ValidationError{Field: "server.chunk_delay_ms", Message: "must not be negative"})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "must not be negative"})
	}

	if !slices.Contains([]string{"dark", "light", "auto", "notty"}, strings.ToLower(c.UI.Theme)) {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto, notty", c.UI.Theme),
		})
	}
	if c.UI.WordWrap < 0 {
		errs = append(errs, ValidationError{Field: "ui.word_wrap", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - BIZARTVISOR_BACKEND_URL: overrides backend.url
//   - BIZARTVISOR_MODEL: overrides chat.model_name
//   - BIZARTVISOR_USE_RAG: "1"/"true" enables chat.use_rag
//   - BIZARTVISOR_USE_NEWS_TOOL: "1"/"true" enables chat.use_news_tool
//   - BIZARTVISOR_LOG_LEVEL: overrides log.level
//   - BIZARTVISOR_SERVER_ADDR: overrides server.addr
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BIZARTVISOR_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("BIZARTVISOR_MODEL"); v != "" {
		c.Chat.ModelName = v
	}
	if v := os.Getenv("BIZARTVISOR_USE_RAG"); v != "" {
		c.Chat.UseRAG = parseBool(v)
	}
	if v := os.Getenv("BIZARTVISOR_USE_NEWS_TOOL"); v != "" {
		c.Chat.UseNewsTool = parseBool(v)
	}
	if v := os.Getenv("BIZARTVISOR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("BIZARTVISOR_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by its TOML key path, e.g. "chat.model_name".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by its TOML key path. String values are converted to
// the field's type. The result is not validated; call Validate.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(strings.TrimSpace(key), ".")
	if len(parts) == 0 || parts[0] == "" {
		return reflect.Value{}, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown key: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("key '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if strings.EqualFold(tag, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an any value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every settable key in dot notation.
func Keys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, prefix+tag+".", keys)
			continue
		}
		*keys = append(*keys, prefix+tag)
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Server.AllowedOrigins = slices.Clone(c.Server.AllowedOrigins)
	return &cp
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("error encoding config: %v", err)
	}
	return b.String()
}
