package toolcall

import "testing"

func TestExtractBareObject(t *testing.T) {
	intent := Extract(`{"tool": "read_file", "arguments": {"path": "go.mod"}}`, nil)
	if intent == nil {
		t.Fatal("Extract() = nil, want intent")
	}
	if intent.Tool != "read_file" {
		t.Fatalf("Tool = %q, want read_file", intent.Tool)
	}
	if got := intent.Arguments["path"]; got != "go.mod" {
		t.Fatalf("Arguments[path] = %v, want go.mod", got)
	}
}

func TestExtractAcceptsAlternateKeys(t *testing.T) {
	intent := Extract(`{"name": "search", "args": {"query": "golang"}, "server": "web"}`, nil)
	if intent == nil {
		t.Fatal("Extract() = nil, want intent")
	}
	if intent.Tool != "search" || intent.Server != "web" {
		t.Fatalf("intent = %+v, want name/server honored", intent)
	}
	if got := intent.Arguments["query"]; got != "golang" {
		t.Fatalf("Arguments[query] = %v, want golang", got)
	}
}

func TestExtractToolsWrapper(t *testing.T) {
	intent := Extract(`{"tools": [{"name": "current_time", "arguments": {}}]}`, nil)
	if intent == nil || intent.Tool != "current_time" {
		t.Fatalf("intent = %+v, want current_time from wrapper", intent)
	}
}

func TestExtractFencedBlock(t *testing.T) {
	text := "I'll check the time for you.\n```json\n{\"tool\": \"current_time\", \"arguments\": {}}\n```\nOne moment."
	intent := Extract(text, nil)
	if intent == nil || intent.Tool != "current_time" {
		t.Fatalf("intent = %+v, want current_time from fenced block", intent)
	}
}

func TestExtractFunctionCallStyle(t *testing.T) {
	intent := Extract(`Let me run read_file({"path": "main.go"}) to see.`, nil)
	if intent == nil || intent.Tool != "read_file" {
		t.Fatalf("intent = %+v, want read_file from call style", intent)
	}
	if got := intent.Arguments["path"]; got != "main.go" {
		t.Fatalf("Arguments[path] = %v, want main.go", got)
	}
}

func TestExtractPlainTextReturnsNil(t *testing.T) {
	for _, text := range []string{
		"The capital of France is Paris.",
		"",
		`{"answer": 42}`,
		"```\nnot json at all\n```",
	} {
		if intent := Extract(text, nil); intent != nil {
			t.Fatalf("Extract(%q) = %+v, want nil", text, intent)
		}
	}
}

func TestExtractMissingArgumentsDefaultsToEmptyMap(t *testing.T) {
	intent := Extract(`{"tool": "current_time"}`, nil)
	if intent == nil {
		t.Fatal("Extract() = nil, want intent")
	}
	if intent.Arguments == nil {
		t.Fatal("Arguments = nil, want empty map")
	}
}

func TestExtractCustomParserOrder(t *testing.T) {
	// With only the call-style parser installed, a bare object must not
	// match.
	parsers := []Parser{CallParser{}}
	if intent := Extract(`{"tool": "read_file", "arguments": {}}`, parsers); intent != nil {
		t.Fatalf("Extract() = %+v, want nil with call-only parser", intent)
	}
	if intent := Extract(`read_file({"path": "x"})`, parsers); intent == nil {
		t.Fatal("Extract() = nil, want call-style match")
	}
}
