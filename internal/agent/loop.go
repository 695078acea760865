// Package agent drives one chat turn: ask the model, execute a
// requested tool, feed the result back, repeat until the model answers
// in plain text or the step bound is hit.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harryneopotter/aicli/internal/events"
	"github.com/harryneopotter/aicli/internal/model"
	"github.com/harryneopotter/aicli/internal/response"
	"github.com/harryneopotter/aicli/internal/toolcall"
	"github.com/harryneopotter/aicli/internal/toolcatalog"
	"github.com/harryneopotter/aicli/internal/transport"
)

// DefaultMaxSteps bounds provider round-trips per chat turn.
const DefaultMaxSteps = 5

// Invoker resolves and executes a tool call. *toolcatalog.Catalog is
// the production implementation.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any, preferred string) (json.RawMessage, error)
}

// Loop is the per-turn orchestrator.
type Loop struct {
	provider model.Provider
	catalog  Invoker
	store    Store
	sink     events.Sink
	maxSteps int
	parsers  []toolcall.Parser
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithStore sets the session store receiving every produced turn.
func WithStore(store Store) LoopOption {
	return func(l *Loop) { l.store = store }
}

// WithSink sets the event sink for progress notifications.
func WithSink(sink events.Sink) LoopOption {
	return func(l *Loop) { l.sink = sink }
}

// WithMaxSteps overrides the step bound.
func WithMaxSteps(n int) LoopOption {
	return func(l *Loop) { l.maxSteps = n }
}

// WithParsers overrides the intent extraction strategies.
func WithParsers(parsers []toolcall.Parser) LoopOption {
	return func(l *Loop) { l.parsers = parsers }
}

// NewLoop creates a Loop with default bounds and parsers.
func NewLoop(provider model.Provider, catalog Invoker, opts ...LoopOption) *Loop {
	l := &Loop{
		provider: provider,
		catalog:  catalog,
		sink:     events.Nop{},
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes one chat turn over the given conversation. It returns
// the final assistant answer. Hitting the step bound is not an error:
// the last model output is returned as a deliberately truncated answer.
// Only a provider failure is turn-fatal; tool problems are fed back to
// the model as system turns and the loop continues.
func (l *Loop) Run(ctx context.Context, history []model.Message) (string, error) {
	msgs := append([]model.Message(nil), history...)

	var last string
	for step := 1; ; step++ {
		if step > l.maxSteps {
			return last, nil
		}

		text, err := l.provider.Chat(ctx, msgs)
		if err != nil {
			return "", fmt.Errorf("model provider: %w", err)
		}
		last = text

		intent := toolcall.Extract(text, l.parsers)
		if intent == nil {
			l.append(&msgs, model.RoleAssistant, text, nil)
			return text, nil
		}

		// The raw model text is kept as the assistant turn so the tool
		// request stays auditable.
		l.append(&msgs, model.RoleAssistant, text, map[string]string{"tool": intent.Tool})
		l.sink.Publish(events.Event{
			Kind: events.KindToolStarted, Tool: intent.Tool, Server: intent.Server,
			Message: "invoking tool", Time: time.Now(),
		})

		l.append(&msgs, model.RoleSystem, l.execute(ctx, intent), nil)
	}
}

// execute resolves and runs one tool request, returning the system-turn
// text describing its outcome.
func (l *Loop) execute(ctx context.Context, intent *toolcall.Intent) string {
	raw, err := l.catalog.Invoke(ctx, intent.Tool, intent.Arguments, intent.Server)
	if err != nil {
		if errors.Is(err, toolcatalog.ErrToolUnavailable) {
			return fmt.Sprintf("Tool %q was not found on any available server.", intent.Tool)
		}
		return fmt.Sprintf("Tool %q failed: %v", intent.Tool, err)
	}

	text, isError, err := response.Render(raw)
	if err != nil {
		text = string(raw)
	}

	l.sink.Publish(events.Event{
		Kind: events.KindToolOutput, Tool: intent.Tool,
		Message: text, Time: time.Now(),
	})

	if isError {
		return fmt.Sprintf("Tool %q reported an error:\n%s", intent.Tool, text)
	}
	return fmt.Sprintf("Tool %q result:\n%s", intent.Tool, text)
}

func (l *Loop) append(msgs *[]model.Message, role, content string, meta map[string]string) {
	*msgs = append(*msgs, model.Message{Role: role, Content: content})
	if l.store == nil {
		return
	}
	if err := l.store.Append(role, content, meta); err != nil {
		l.sink.Publish(events.Event{
			Kind: events.KindWarning, Message: fmt.Sprintf("session store: %v", err), Time: time.Now(),
		})
	}
}

// SystemPrompt renders the discovered tools into the instruction turn
// that teaches the model how to request one.
func SystemPrompt(tools []transport.ToolInfo) string {
	if len(tools) == 0 {
		return "You are a helpful assistant."
	}

	var b strings.Builder
	b.WriteString("You are a helpful assistant with access to the following tools:\n\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "Tool: %s (server: %s)\n", t.Name, t.Server)
		if t.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", t.Description)
		}
		if len(t.InputSchema) > 0 {
			fmt.Fprintf(&b, "Input schema: %s\n", t.InputSchema)
		}
		b.WriteString("\n")
	}
	b.WriteString(`To use a tool, respond ONLY with a JSON object in this exact format:
{"tool": "<tool_name>", "arguments": {<key>: <value>, ...}}
Do not include any other text. When you have the final answer, respond with plain text.`)
	return b.String()
}
