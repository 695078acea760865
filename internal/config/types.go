package config

import "time"

// Config is the top-level aicli configuration.
type Config struct {
	Servers map[string]ServerDefinition `toml:"servers"`
	Chat    ChatConfig                  `toml:"chat"`
	Model   ModelConfig                 `toml:"model"`
}

// ChatConfig tunes the tool-use loop.
type ChatConfig struct {
	// MaxToolSteps bounds provider round-trips per chat turn.
	MaxToolSteps int `toml:"max_tool_steps"`
}

// ModelConfig points at an OpenAI-compatible chat completions endpoint.
type ModelConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Name    string `toml:"name"`
}

// ServerDefinition describes how to reach a single tool server.
// Definitions are immutable once validated; replacing one by name resets
// its runtime state in the pool.
type ServerDefinition struct {
	// Filled from the map key on load, not from TOML.
	Name string `toml:"-"`

	// Local process transport.
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	// Env values must be strings; the validator enforces it so a bad
	// value is reported instead of silently coerced.
	Env map[string]any `toml:"env"`

	// Remote HTTP transport.
	URL        string `toml:"url"`
	Credential string `toml:"credential"`

	Priority    int    `toml:"priority"`
	Enabled     *bool  `toml:"enabled"`
	TimeoutMs   int    `toml:"timeout_ms"`
	RetryCount  int    `toml:"retry_count"`
	Description string `toml:"description"`
}

// IsStdio returns true if the server runs as a local subprocess.
func (s ServerDefinition) IsStdio() bool {
	return s.Command != ""
}

// IsHTTP returns true if the server is a remote HTTP endpoint.
func (s ServerDefinition) IsHTTP() bool {
	return s.URL != ""
}

// IsEnabled reports whether the server should be connected. Absent from
// the config file means enabled.
func (s ServerDefinition) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Timeout returns the per-call timeout as a duration.
func (s ServerDefinition) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// EnvStrings renders the validated environment as KEY=VALUE pairs.
// Non-string values are skipped; the validator rejects them before any
// process is spawned.
func (s ServerDefinition) EnvStrings() []string {
	if len(s.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		str, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, k+"="+str)
	}
	return out
}
