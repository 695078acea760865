// Package toolcatalog aggregates tools across servers and routes
// invocations to the right one.
package toolcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harryneopotter/aicli/internal/events"
	"github.com/harryneopotter/aicli/internal/pool"
	"github.com/harryneopotter/aicli/internal/transport"
)

// ErrToolUnavailable is the router's only terminal failure: no candidate
// server both had the tool and completed the call.
var ErrToolUnavailable = errors.New("tool not found or no healthy server")

// Catalog resolves tool names against the server pool.
type Catalog struct {
	mgr  *pool.Manager
	sink events.Sink
}

// New creates a Catalog. A nil sink discards events.
func New(mgr *pool.Manager, sink events.Sink) *Catalog {
	if sink == nil {
		sink = events.Nop{}
	}
	return &Catalog{mgr: mgr, sink: sink}
}

// ListAll fetches tools from every enabled, healthy server in priority
// order. Tool listings are ephemeral: re-fetched every call, never
// cached. A server that fails to list is skipped, never fatal.
func (c *Catalog) ListAll(ctx context.Context) []transport.ToolInfo {
	var all []transport.ToolInfo
	for _, server := range c.mgr.CandidateOrder("") {
		if !c.mgr.Healthy(server) {
			continue
		}
		tools, err := c.mgr.ListTools(ctx, server)
		if err != nil {
			c.sink.Publish(events.Event{
				Kind: events.KindWarning, Server: server,
				Message: fmt.Sprintf("skipping tool listing: %v", err),
				Time:    time.Now(),
			})
			continue
		}
		all = append(all, tools...)
	}
	return all
}

// Invoke routes a tool call. Candidates are tried strictly sequentially
// (preferred server first if given, then ascending priority) so a
// non-idempotent tool never runs twice; the first server that has the
// tool and completes the call wins. Transport failures are recorded on
// that server's runtime by the pool and routing simply advances.
func (c *Catalog) Invoke(ctx context.Context, tool string, args map[string]any, preferred string) (json.RawMessage, error) {
	for _, server := range c.mgr.CandidateOrder(preferred) {
		tools, err := c.mgr.ListTools(ctx, server)
		if err != nil {
			continue
		}
		if !hasTool(tools, tool) {
			continue
		}

		result, err := c.mgr.CallTool(ctx, server, tool, args)
		if err != nil {
			c.sink.Publish(events.Event{
				Kind: events.KindWarning, Server: server, Tool: tool,
				Message: fmt.Sprintf("call failed, trying next server: %v", err),
				Time:    time.Now(),
			})
			continue
		}
		return result, nil
	}
	return nil, fmt.Errorf("%s: %w", tool, ErrToolUnavailable)
}

func hasTool(tools []transport.ToolInfo, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}
