package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Rule identifies the validation rule a definition failed, so callers can
// explain the rejection instead of showing a generic error.
type Rule string

const (
	RuleTransport     Rule = "transport"
	RuleCommand       Rule = "command-allowlist"
	RuleShellMeta     Rule = "shell-metacharacters"
	RuleDirTraversal  Rule = "directory-traversal"
	RuleForbiddenFlag Rule = "forbidden-flag"
	RuleArgLength     Rule = "argument-length"
	RuleEnvironment   Rule = "environment"
	RuleTimeoutBounds Rule = "timeout-bounds"
	RuleRetryBounds   Rule = "retry-bounds"
	RuleEndpoint      Rule = "endpoint"
)

// RuleViolation reports why a server definition was rejected.
type RuleViolation struct {
	Server string
	Rule   Rule
	Detail string
	Hint   string
}

func (v *RuleViolation) Error() string {
	msg := fmt.Sprintf("servers.%s: %s: %s", v.Server, v.Rule, v.Detail)
	if v.Hint != "" {
		msg += " (" + v.Hint + ")"
	}
	return msg
}

// Launchers that may be used to start a local tool server. Anything else
// must be wrapped in one of these.
var allowedCommands = map[string]bool{
	"node":    true,
	"npx":     true,
	"deno":    true,
	"bun":     true,
	"python":  true,
	"python3": true,
	"uv":      true,
	"uvx":     true,
	"docker":  true,
}

// Interpreter escape hatches: inline eval, debugger attach, module loader
// injection. Matched exactly or as "--flag=value".
var forbiddenFlags = []string{
	"-e", "--eval",
	"-p", "--print",
	"-c",
	"--inspect", "--inspect-brk", "--inspect-wait",
	"--loader", "--experimental-loader",
	"--require",
}

const (
	maxArgLength  = 1000
	minTimeoutMs  = 1000
	maxTimeoutMs  = 60000
	maxRetryCount = 10
)

const shellMetaChars = ";|&$`()<>"

// Validate checks every server definition and joins the failures.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		srv := cfg.Servers[name]
		srv.Name = name
		if err := ValidateServer(srv); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateServer gates a single definition before any transport is created.
// It is pure: no process or network code runs here. The first failing rule
// wins and is reported with its category.
func ValidateServer(srv ServerDefinition) error {
	hasCommand := strings.TrimSpace(srv.Command) != ""
	hasURL := strings.TrimSpace(srv.URL) != ""

	switch {
	case hasCommand && hasURL:
		return &RuleViolation{
			Server: srv.Name,
			Rule:   RuleTransport,
			Detail: "configure either command (local process) or url (remote), not both",
		}
	case !hasCommand && !hasURL:
		return &RuleViolation{
			Server: srv.Name,
			Rule:   RuleTransport,
			Detail: "missing transport, set command (local process) or url (remote)",
		}
	}

	if hasCommand {
		if err := validateLaunchSpec(srv); err != nil {
			return err
		}
	} else {
		if _, err := url.ParseRequestURI(srv.URL); err != nil {
			return &RuleViolation{
				Server: srv.Name,
				Rule:   RuleEndpoint,
				Detail: fmt.Sprintf("invalid URL %q: %v", srv.URL, err),
			}
		}
	}

	if srv.TimeoutMs < minTimeoutMs || srv.TimeoutMs > maxTimeoutMs {
		return &RuleViolation{
			Server: srv.Name,
			Rule:   RuleTimeoutBounds,
			Detail: fmt.Sprintf("timeout_ms %d outside [%d, %d]", srv.TimeoutMs, minTimeoutMs, maxTimeoutMs),
		}
	}
	if srv.RetryCount < 0 || srv.RetryCount > maxRetryCount {
		return &RuleViolation{
			Server: srv.Name,
			Rule:   RuleRetryBounds,
			Detail: fmt.Sprintf("retry_count %d outside [0, %d]", srv.RetryCount, maxRetryCount),
		}
	}
	return nil
}

func validateLaunchSpec(srv ServerDefinition) error {
	if !allowedCommands[srv.Command] {
		return &RuleViolation{
			Server: srv.Name,
			Rule:   RuleCommand,
			Detail: fmt.Sprintf("command %q is not an allowed launcher", srv.Command),
			Hint:   "wrap the program in an allowed launcher such as npx, node, python3, or uvx",
		}
	}

	for i, arg := range srv.Args {
		if strings.ContainsAny(arg, shellMetaChars) {
			return &RuleViolation{
				Server: srv.Name,
				Rule:   RuleShellMeta,
				Detail: fmt.Sprintf("args[%d] contains shell metacharacters: %q", i, arg),
			}
		}
		if hasTraversal(arg) {
			return &RuleViolation{
				Server: srv.Name,
				Rule:   RuleDirTraversal,
				Detail: fmt.Sprintf("args[%d] contains a parent-directory traversal: %q", i, arg),
			}
		}
		if flag, ok := matchesForbiddenFlag(arg); ok {
			return &RuleViolation{
				Server: srv.Name,
				Rule:   RuleForbiddenFlag,
				Detail: fmt.Sprintf("args[%d] uses forbidden flag %s", i, flag),
			}
		}
		if len(arg) > maxArgLength {
			return &RuleViolation{
				Server: srv.Name,
				Rule:   RuleArgLength,
				Detail: fmt.Sprintf("args[%d] exceeds %d characters", i, maxArgLength),
			}
		}
	}

	return validateEnv(srv)
}

func validateEnv(srv ServerDefinition) error {
	keys := make([]string, 0, len(srv.Env))
	for k := range srv.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, ok := srv.Env[k].(string)
		if !ok {
			return &RuleViolation{
				Server: srv.Name,
				Rule:   RuleEnvironment,
				Detail: fmt.Sprintf("env[%q] is %T, environment values must be strings", k, srv.Env[k]),
			}
		}
		for _, s := range []string{k, v} {
			if strings.ContainsAny(s, shellMetaChars) {
				return &RuleViolation{
					Server: srv.Name,
					Rule:   RuleEnvironment,
					Detail: fmt.Sprintf("env[%q] contains shell metacharacters", k),
				}
			}
			if hasTraversal(s) {
				return &RuleViolation{
					Server: srv.Name,
					Rule:   RuleEnvironment,
					Detail: fmt.Sprintf("env[%q] contains a parent-directory traversal", k),
				}
			}
		}
	}
	return nil
}

// hasTraversal reports whether any path segment is "..". A leading "./"
// is fine; "file..txt" is fine too.
func hasTraversal(s string) bool {
	for _, seg := range strings.Split(s, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func matchesForbiddenFlag(arg string) (string, bool) {
	for _, flag := range forbiddenFlags {
		if arg == flag || strings.HasPrefix(arg, flag+"=") {
			return flag, true
		}
	}
	return "", false
}
