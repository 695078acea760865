// Package transport reaches tool servers over two wires: a local
// subprocess speaking newline-delimited JSON frames, and a remote HTTP
// endpoint taking one frame per POST. Both expose the same contract so
// the catalog and router stay transport-agnostic.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harryneopotter/aicli/internal/config"
	"github.com/harryneopotter/aicli/internal/wire"
)

// ToolInfo is a discovered capability. Server is a back-reference to the
// owning definition, filled in by the pool, not by the transport.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Server      string
}

// Transport is one live connection to a tool server.
//
// CallTool returns the raw result member of the tools/call response (the
// {content: ...} object); rendering it is the caller's concern. All
// methods bound their own wait with the definition's timeout and support
// concurrent outstanding calls.
type Transport interface {
	Handshake(ctx context.Context, info wire.Implementation) (*wire.InitializeResult, error)
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	Probe(ctx context.Context) error
	Close() error
}

// Dial creates a transport for a validated server definition. The caller
// is expected to have run config.ValidateServer first; Dial does not
// re-check the launch spec.
func Dial(def config.ServerDefinition) (Transport, error) {
	switch {
	case def.IsStdio():
		return DialStdio(def)
	case def.IsHTTP():
		return DialHTTP(def), nil
	default:
		return nil, fmt.Errorf("server %s: no command or url configured", def.Name)
	}
}
