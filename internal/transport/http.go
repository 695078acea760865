package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/harryneopotter/aicli/internal/config"
	"github.com/harryneopotter/aicli/internal/wire"
)

// HTTP reaches a remote tool server with one self-contained POST per
// call. There is no persistent connection: failures are discovered
// eagerly on use, and calls may run concurrently because each owns its
// request.
type HTTP struct {
	name       string
	endpoint   string
	credential string
	timeout    time.Duration
	client     *http.Client
	nextID     atomic.Int64
}

// DialHTTP builds the remote transport. Nothing is sent until the
// handshake.
func DialHTTP(def config.ServerDefinition) *HTTP {
	return &HTTP{
		name:       def.Name,
		endpoint:   def.URL,
		credential: def.Credential,
		timeout:    def.Timeout(),
		client:     &http.Client{},
	}
}

func (t *HTTP) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("server %s: building request: %w", t.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.credential != "" {
		req.Header.Set("Authorization", "Bearer "+t.credential)
	}
	return t.client.Do(req)
}

func (t *HTTP) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	id := t.nextID.Add(1)
	body, err := json.Marshal(wire.NewRequest(id, method, params))
	if err != nil {
		return nil, fmt.Errorf("server %s: encoding %s: %w", t.name, method, err)
	}

	resp, err := t.post(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("server %s: %s: %w", t.name, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server %s: %s: HTTP %d: %s", t.name, method, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var frame wire.Response
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		return nil, fmt.Errorf("server %s: parsing %s response: %w", t.name, method, err)
	}
	if frame.Error != nil {
		return nil, fmt.Errorf("server %s: %s: %w", t.name, method, frame.Error)
	}
	return frame.Result, nil
}

func (t *HTTP) notify(ctx context.Context, method string, params any) error {
	body, err := json.Marshal(wire.NewNotification(method, params))
	if err != nil {
		return err
	}
	resp, err := t.post(ctx, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Handshake performs initialize over POST. The initialized notification
// is fire-and-forget; a server that rejects it will fail the next real
// call instead.
func (t *HTTP) Handshake(ctx context.Context, info wire.Implementation) (*wire.InitializeResult, error) {
	raw, err := t.call(ctx, wire.MethodInitialize, wire.InitializeParams{
		ProtocolVersion: wire.ProtocolVersion,
		Capabilities:    wire.ClientCapabilities{},
		ClientInfo:      info,
	})
	if err != nil {
		return nil, err
	}

	var result wire.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("server %s: parsing initialize result: %w", t.name, err)
	}

	t.notify(ctx, wire.MethodInitialized, struct{}{}) //nolint: errcheck
	return &result, nil
}

// ListTools fetches the server's current tool listing.
func (t *HTTP) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := t.call(ctx, wire.MethodListTools, struct{}{})
	if err != nil {
		return nil, err
	}

	var result wire.ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("server %s: parsing tools/list result: %w", t.name, err)
	}

	infos := make([]ToolInfo, len(result.Tools))
	for i, td := range result.Tools {
		infos[i] = ToolInfo{Name: td.Name, Description: td.Description, InputSchema: td.InputSchema}
	}
	return infos, nil
}

// CallTool invokes a named tool and returns the raw result object.
func (t *HTTP) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return t.call(ctx, wire.MethodCallTool, wire.CallToolParams{Name: name, Arguments: args})
}

// Probe re-issues the cheapest known method; an unreachable endpoint or
// an error frame counts as failure.
func (t *HTTP) Probe(ctx context.Context) error {
	_, err := t.call(ctx, wire.MethodPing, struct{}{})
	return err
}

// Close is a no-op; there is no persistent connection to tear down.
func (t *HTTP) Close() error {
	return nil
}
