// Package toolcall extracts tool-call intents from free-form model
// output. Model output formats vary across providers, so extraction is
// an ordered list of independent parser strategies; the first match
// wins and malformed candidates are skipped, never fatal. The pattern
// set is heuristic by nature: it can both miss a novel format and match
// text that merely resembles a call.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Intent is one parsed tool request. Server is an optional preferred
// server named by the model; empty means route by priority.
type Intent struct {
	Tool      string
	Arguments map[string]any
	Server    string
}

// Parser is one extraction strategy.
type Parser interface {
	Parse(text string) (*Intent, bool)
}

// DefaultParsers returns the built-in strategy order: a bare JSON
// object, a fenced code block containing one, then a function-call
// style invocation.
func DefaultParsers() []Parser {
	return []Parser{ObjectParser{}, FencedParser{}, CallParser{}}
}

// Extract runs the parsers in order. A nil slice means DefaultParsers.
func Extract(text string, parsers []Parser) *Intent {
	if parsers == nil {
		parsers = DefaultParsers()
	}
	for _, p := range parsers {
		if intent, ok := p.Parse(text); ok {
			return intent
		}
	}
	return nil
}

// ObjectParser matches a response that is entirely one JSON object
// carrying a tool name and parameters. Two shapes are recognized:
// {"tool": ..., "arguments": ...} (also "name"/"args" keys) and the
// wrapper form {"tools": [{"name": ..., "arguments": ...}]}.
type ObjectParser struct{}

func (ObjectParser) Parse(text string) (*Intent, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return nil, false
	}
	return decodeIntent([]byte(trimmed))
}

var fencedRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\s*\\n(.*?)```")

// FencedParser matches a fenced code block whose body is a tool-call
// object. Every block is tried; non-matching blocks are skipped.
type FencedParser struct{}

func (FencedParser) Parse(text string) (*Intent, bool) {
	for _, match := range fencedRe.FindAllStringSubmatch(text, -1) {
		if intent, ok := (ObjectParser{}).Parse(match[1]); ok {
			return intent, true
		}
	}
	return nil, false
}

var callRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_\-]*)\s*\(\s*(\{.*?\})\s*\)`)

// CallParser matches a function-call style invocation in the text, e.g.
// read_file({"path": "main.go"}). Candidates whose argument text is not
// a JSON object are skipped and the scan continues.
type CallParser struct{}

func (CallParser) Parse(text string) (*Intent, bool) {
	for _, match := range callRe.FindAllStringSubmatch(text, -1) {
		var args map[string]any
		if err := json.Unmarshal([]byte(match[2]), &args); err != nil {
			continue
		}
		return &Intent{Tool: match[1], Arguments: args}, true
	}
	return nil, false
}

func decodeIntent(raw []byte) (*Intent, bool) {
	var obj struct {
		Tool      string         `json:"tool"`
		Name      string         `json:"name"`
		Server    string         `json:"server"`
		Arguments map[string]any `json:"arguments"`
		Args      map[string]any `json:"args"`
		Tools     []struct {
			Name      string         `json:"name"`
			Server    string         `json:"server"`
			Arguments map[string]any `json:"arguments"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}

	intent := Intent{Tool: obj.Tool, Arguments: obj.Arguments, Server: obj.Server}
	if intent.Tool == "" {
		intent.Tool = obj.Name
	}
	if intent.Arguments == nil {
		intent.Arguments = obj.Args
	}
	if intent.Tool == "" {
		for _, t := range obj.Tools {
			if t.Name != "" {
				intent = Intent{Tool: t.Name, Arguments: t.Arguments, Server: t.Server}
				break
			}
		}
	}
	if intent.Tool == "" {
		return nil, false
	}
	if intent.Arguments == nil {
		intent.Arguments = map[string]any{}
	}
	return &intent, true
}
