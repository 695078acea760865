package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/harryneopotter/aicli/internal/model"
	"github.com/harryneopotter/aicli/internal/toolcatalog"
	"github.com/harryneopotter/aicli/internal/transport"
)

// scriptedProvider replays canned replies in order; past the script it
// repeats the last one.
type scriptedProvider struct {
	replies []string
	err     error
	calls   int
}

func (p *scriptedProvider) Chat(ctx context.Context, msgs []model.Message) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	i := p.calls - 1
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	return p.replies[i], nil
}

func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

type fakeInvoker struct {
	result json.RawMessage
	err    error
	calls  int
	tool   string
}

func (f *fakeInvoker) Invoke(ctx context.Context, tool string, args map[string]any, preferred string) (json.RawMessage, error) {
	f.calls++
	f.tool = tool
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

const toolRequest = `{"tool": "current_time", "arguments": {}}`

func TestRunPlainAnswerUsesOneProviderCall(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"Paris is the capital of France."}}
	invoker := &fakeInvoker{}

	loop := NewLoop(provider, invoker)
	answer, err := loop.Run(context.Background(), []model.Message{{Role: model.RoleUser, Content: "capital of France?"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if answer != "Paris is the capital of France." {
		t.Fatalf("answer = %q", answer)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls)
	}
	if invoker.calls != 0 {
		t.Fatalf("invoker calls = %d, want 0", invoker.calls)
	}
}

func TestRunToolResultFeedsBackIntoConversation(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		toolRequest,
		"It is 10:30 UTC.",
	}}
	invoker := &fakeInvoker{result: json.RawMessage(`{"content":[{"type":"text","text":"2026-08-25T10:30:00Z"}]}`)}
	store := NewMemoryStore()

	loop := NewLoop(provider, invoker, WithStore(store))
	answer, err := loop.Run(context.Background(), []model.Message{{Role: model.RoleUser, Content: "what time is it?"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if answer != "It is 10:30 UTC." {
		t.Fatalf("answer = %q", answer)
	}
	if invoker.calls != 1 || invoker.tool != "current_time" {
		t.Fatalf("invoker calls = %d tool = %q, want one current_time call", invoker.calls, invoker.tool)
	}

	turns := store.Turns()
	// assistant tool request, system tool result, final assistant answer
	if len(turns) != 3 {
		t.Fatalf("stored turns = %d, want 3: %+v", len(turns), turns)
	}
	if turns[0].Role != model.RoleAssistant || turns[0].Meta["tool"] != "current_time" {
		t.Fatalf("turn 0 = %+v, want assistant turn tagged with tool", turns[0])
	}
	if turns[1].Role != model.RoleSystem || !strings.Contains(turns[1].Content, "2026-08-25T10:30:00Z") {
		t.Fatalf("turn 1 = %+v, want system turn carrying tool output", turns[1])
	}
}

func TestRunUnknownToolContinuesWithNotFoundTurn(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		`{"tool": "no_such_tool", "arguments": {}}`,
		"I could not find that tool.",
	}}
	invoker := &fakeInvoker{err: fmt.Errorf("no_such_tool: %w", toolcatalog.ErrToolUnavailable)}
	store := NewMemoryStore()

	loop := NewLoop(provider, invoker, WithStore(store))
	answer, err := loop.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v, unknown tool must not end the turn", err)
	}
	if answer != "I could not find that tool." {
		t.Fatalf("answer = %q", answer)
	}

	var found bool
	for _, turn := range store.Turns() {
		if turn.Role == model.RoleSystem && strings.Contains(turn.Content, "not found") {
			found = true
		}
	}
	if !found {
		t.Fatal("no system turn reporting the missing tool")
	}
}

func TestRunToolErrorFlagIsReportedToModel(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		toolRequest,
		"The tool failed.",
	}}
	invoker := &fakeInvoker{result: json.RawMessage(`{"content":[{"type":"text","text":"clock unavailable"}],"isError":true}`)}
	store := NewMemoryStore()

	loop := NewLoop(provider, invoker, WithStore(store))
	if _, err := loop.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var found bool
	for _, turn := range store.Turns() {
		if turn.Role == model.RoleSystem && strings.Contains(turn.Content, "reported an error") {
			found = true
		}
	}
	if !found {
		t.Fatal("no system turn reporting the tool's error flag")
	}
}

func TestRunStepBoundReturnsLastOutputAsAnswer(t *testing.T) {
	// The model requests a tool on every step; the loop must stop after
	// maxSteps provider calls and hand back the last output unchanged.
	provider := &scriptedProvider{replies: []string{toolRequest}}
	invoker := &fakeInvoker{result: json.RawMessage(`{"content":[{"type":"text","text":"tick"}]}`)}

	loop := NewLoop(provider, invoker, WithMaxSteps(3))
	answer, err := loop.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v, step exhaustion is not an error", err)
	}
	if provider.calls != 3 {
		t.Fatalf("provider calls = %d, want exactly 3", provider.calls)
	}
	if invoker.calls != 3 {
		t.Fatalf("invoker calls = %d, want 3", invoker.calls)
	}
	if answer != toolRequest {
		t.Fatalf("answer = %q, want last raw output", answer)
	}
}

func TestRunProviderFailureIsTurnFatal(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("connection refused")}
	loop := NewLoop(provider, &fakeInvoker{})

	if _, err := loop.Run(context.Background(), nil); err == nil {
		t.Fatal("Run() error = nil, want provider failure")
	}
}

func TestSystemPromptListsToolsAndFormat(t *testing.T) {
	prompt := SystemPrompt(nil)
	if !strings.Contains(prompt, "helpful assistant") {
		t.Fatalf("empty-catalog prompt = %q", prompt)
	}
	if strings.Contains(prompt, "Tool:") {
		t.Fatal("empty-catalog prompt mentions tools")
	}

	prompt = SystemPrompt([]transport.ToolInfo{{
		Name:        "current_time",
		Description: "returns the current time",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Server:      "clock",
	}})
	for _, want := range []string{"current_time", "clock", "returns the current time", `{"tool":`} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
