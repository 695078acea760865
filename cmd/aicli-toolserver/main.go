// aicli-toolserver is a small stdio tool server used to exercise the
// client end to end: one JSON frame per line on stdin, one response per
// line on stdout.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/harryneopotter/aicli/internal/wire"
)

const maxPageText = 4000

func main() {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 10<<20)
	out := json.NewEncoder(os.Stdout)

	for in.Scan() {
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}

		var req struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      *int64          `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		if req.ID == nil {
			// Notification (e.g. notifications/initialized): no reply.
			continue
		}

		resp := wire.Response{JSONRPC: wire.Version, ID: req.ID}
		result, err := dispatch(req.Method, req.Params)
		if err != nil {
			resp.Error = &wire.Error{Code: -32000, Message: err.Error()}
		} else {
			resp.Result = result
		}
		out.Encode(resp) //nolint: errcheck
	}
}

func dispatch(method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case wire.MethodInitialize:
		return json.Marshal(wire.InitializeResult{
			ProtocolVersion: wire.ProtocolVersion,
			ServerInfo:      wire.Implementation{Name: "aicli-toolserver", Version: "0.3.0"},
		})
	case wire.MethodPing:
		return json.Marshal(struct{}{})
	case wire.MethodListTools:
		return json.Marshal(wire.ListToolsResult{Tools: toolList()})
	case wire.MethodCallTool:
		var p wire.CallToolParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid tools/call params: %w", err)
		}
		return callTool(p)
	default:
		return nil, fmt.Errorf("unknown method: %s", method)
	}
}

func toolList() []wire.ToolDescriptor {
	return []wire.ToolDescriptor{
		{
			Name:        "current_time",
			Description: "Returns the current time in RFC 3339 format.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "echo",
			Description: "Echoes the given text back.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		},
		{
			Name:        "webpage_text",
			Description: "Fetches a URL and returns the readable article text.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`),
		},
	}
}

func callTool(p wire.CallToolParams) (json.RawMessage, error) {
	switch p.Name {
	case "current_time":
		return textResult(time.Now().Format(time.RFC3339), false)
	case "echo":
		text, _ := p.Arguments["text"].(string)
		return textResult(text, false)
	case "webpage_text":
		rawURL, _ := p.Arguments["url"].(string)
		text, err := pageText(rawURL)
		if err != nil {
			return textResult(err.Error(), true)
		}
		return textResult(text, false)
	default:
		return nil, fmt.Errorf("tool not found: %s", p.Name)
	}
}

func pageText(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("url must be absolute")
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: HTTP %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", fmt.Errorf("extracting article: %w", err)
	}

	text := article.TextContent
	if len(text) > maxPageText {
		text = text[:maxPageText] + "\n[truncated]"
	}
	return text, nil
}

func textResult(text string, isError bool) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": isError,
	})
}
