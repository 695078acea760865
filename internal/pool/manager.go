// Package pool owns the set of configured tool servers: their validated
// definitions, live transports, and health state. Every runtime mutation
// (health flips, attempt counters, handle replacement) funnels through
// the Manager so a health-check restart and a tool invocation cannot
// race on the same handle.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harryneopotter/aicli/internal/config"
	"github.com/harryneopotter/aicli/internal/events"
	"github.com/harryneopotter/aicli/internal/transport"
	"github.com/harryneopotter/aicli/internal/wire"
)

// Status is a server's position in the lifecycle:
// Disabled → Connecting → Healthy ⇄ Unhealthy.
type Status string

const (
	StatusDisabled   Status = "disabled"
	StatusConnecting Status = "connecting"
	StatusHealthy    Status = "healthy"
	StatusUnhealthy  Status = "unhealthy"
)

// ServerStatus is a diagnostic snapshot of one server's runtime state.
type ServerStatus struct {
	Name               string
	Status             Status
	Enabled            bool
	Priority           int
	LastHealthCheckAt  time.Time
	ConnectionAttempts uint64
	LastError          string
}

type serverEntry struct {
	def     config.ServerDefinition
	enabled bool

	tr        transport.Transport
	status    Status
	lastCheck time.Time
	attempts  uint64
	lastErr   string
}

// DialFunc creates a transport for a definition. Replaceable in tests.
type DialFunc func(config.ServerDefinition) (transport.Transport, error)

const (
	defaultProbeInterval = 30 * time.Second
	defaultRestartDelay  = 500 * time.Millisecond
)

var defaultClientInfo = wire.Implementation{Name: "aicli", Version: "0.3.0"}

// Option configures a Manager.
type Option func(*Manager)

// WithDialFunc overrides how transports are created.
func WithDialFunc(dial DialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

// WithProbeInterval sets the health monitor cycle period.
func WithProbeInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithRestartDelay sets the pause between killing an unhealthy local
// server and re-spawning it.
func WithRestartDelay(d time.Duration) Option {
	return func(m *Manager) { m.restartDelay = d }
}

// WithClientInfo overrides the identity sent during handshakes.
func WithClientInfo(info wire.Implementation) Option {
	return func(m *Manager) { m.clientInfo = info }
}

// Manager supervises tool servers and their transports.
type Manager struct {
	mu      sync.Mutex
	servers map[string]*serverEntry

	dial         DialFunc
	sink         events.Sink
	interval     time.Duration
	restartDelay time.Duration
	clientInfo   wire.Implementation

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Manager. A nil sink discards events.
func New(sink events.Sink, opts ...Option) *Manager {
	if sink == nil {
		sink = events.Nop{}
	}
	m := &Manager{
		servers:      make(map[string]*serverEntry),
		dial:         transport.Dial,
		sink:         sink,
		interval:     defaultProbeInterval,
		restartDelay: defaultRestartDelay,
		clientInfo:   defaultClientInfo,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add validates a definition and registers it, replacing any existing
// server of the same name and fully resetting its runtime state. No
// process or network code runs on invalid configuration. If the server
// is enabled, a connect is attempted immediately; a connect failure is
// recorded on the runtime, not returned — the health monitor retries.
func (m *Manager) Add(ctx context.Context, def config.ServerDefinition) error {
	if err := config.ValidateServer(def); err != nil {
		return err
	}

	m.mu.Lock()
	if old, ok := m.servers[def.Name]; ok && old.tr != nil {
		old.tr.Close() //nolint: errcheck
	}
	m.servers[def.Name] = &serverEntry{
		def:     def,
		enabled: def.IsEnabled(),
		status:  StatusDisabled,
	}
	m.mu.Unlock()

	if def.IsEnabled() {
		m.connect(ctx, def.Name) //nolint: errcheck
	}
	return nil
}

// Remove tears down a server completely: handle killed, definition and
// runtime state discarded.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	e, ok := m.servers[name]
	if ok {
		delete(m.servers, name)
	}
	m.mu.Unlock()

	if ok && e.tr != nil {
		e.tr.Close() //nolint: errcheck
	}
}

// Disable kills the server's handle and discards its runtime state. The
// definition is untouched.
func (m *Manager) Disable(name string) {
	m.mu.Lock()
	e, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	tr := e.tr
	e.tr = nil
	e.enabled = false
	e.status = StatusDisabled
	e.lastErr = ""
	m.mu.Unlock()

	if tr != nil {
		tr.Close() //nolint: errcheck
	}
	m.sink.Publish(events.Event{Kind: events.KindInfo, Server: name, Message: "server disabled", Time: time.Now()})
}

// Enable marks the server enabled and attempts an immediate connect.
func (m *Manager) Enable(ctx context.Context, name string) error {
	m.mu.Lock()
	e, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown server: %s", name)
	}
	if e.enabled {
		m.mu.Unlock()
		return nil
	}
	e.enabled = true
	m.mu.Unlock()

	return m.connect(ctx, name)
}

// connect dials and handshakes one server, recording the attempt. The
// dial itself happens outside the lock so a slow spawn never blocks
// other servers.
func (m *Manager) connect(ctx context.Context, name string) error {
	m.mu.Lock()
	e, ok := m.servers[name]
	if !ok || !e.enabled {
		m.mu.Unlock()
		return fmt.Errorf("server %s is not enabled", name)
	}
	e.attempts++
	e.status = StatusConnecting
	def := e.def
	m.mu.Unlock()

	tr, err := m.dial(def)
	if err != nil {
		m.recordFailure(name, fmt.Errorf("connecting: %w", err))
		return err
	}
	if _, err := tr.Handshake(ctx, m.clientInfo); err != nil {
		tr.Close() //nolint: errcheck
		m.recordFailure(name, fmt.Errorf("handshake: %w", err))
		return err
	}

	m.mu.Lock()
	e, ok = m.servers[name]
	if !ok || !e.enabled {
		// Removed or disabled while we were connecting.
		m.mu.Unlock()
		tr.Close() //nolint: errcheck
		return fmt.Errorf("server %s went away during connect", name)
	}
	if e.tr != nil {
		e.tr.Close() //nolint: errcheck
	}
	e.tr = tr
	e.status = StatusHealthy
	e.lastErr = ""
	e.lastCheck = time.Now()
	m.mu.Unlock()

	m.sink.Publish(events.Event{Kind: events.KindInfo, Server: name, Message: "server connected", Time: time.Now()})
	return nil
}

// recordFailure flips a server to unhealthy and remembers why.
func (m *Manager) recordFailure(name string, err error) {
	m.mu.Lock()
	if e, ok := m.servers[name]; ok {
		e.status = StatusUnhealthy
		e.lastErr = err.Error()
		e.lastCheck = time.Now()
	}
	m.mu.Unlock()

	m.sink.Publish(events.Event{Kind: events.KindWarning, Server: name, Message: err.Error(), Time: time.Now()})
}

func (m *Manager) markHealthy(name string) {
	m.mu.Lock()
	if e, ok := m.servers[name]; ok {
		e.status = StatusHealthy
		e.lastErr = ""
		e.lastCheck = time.Now()
	}
	m.mu.Unlock()
}

// Healthy reports whether a server is enabled and currently healthy.
func (m *Manager) Healthy(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.servers[name]
	return ok && e.enabled && e.status == StatusHealthy
}

// Snapshot returns diagnostic state for every server, sorted by name.
func (m *Manager) Snapshot() []ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ServerStatus, 0, len(m.servers))
	for name, e := range m.servers {
		out = append(out, ServerStatus{
			Name:               name,
			Status:             e.status,
			Enabled:            e.enabled,
			Priority:           e.def.Priority,
			LastHealthCheckAt:  e.lastCheck,
			ConnectionAttempts: e.attempts,
			LastError:          e.lastErr,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CandidateOrder returns enabled servers by ascending priority (ties
// broken by name), with the preferred server moved to the front when it
// is present and enabled.
func (m *Manager) CandidateOrder(preferred string) []string {
	m.mu.Lock()
	type cand struct {
		name     string
		priority int
	}
	cands := make([]cand, 0, len(m.servers))
	for name, e := range m.servers {
		if e.enabled {
			cands = append(cands, cand{name, e.def.Priority})
		}
	}
	m.mu.Unlock()

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].priority != cands[j].priority {
			return cands[i].priority < cands[j].priority
		}
		return cands[i].name < cands[j].name
	})

	names := make([]string, 0, len(cands))
	for _, c := range cands {
		if c.name == preferred {
			continue
		}
		names = append(names, c.name)
	}
	if preferred != "" && len(names) < len(cands) {
		names = append([]string{preferred}, names...)
	}
	return names
}

func (m *Manager) transportFor(name string) (transport.Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.servers[name]
	if !ok {
		return nil, fmt.Errorf("unknown server: %s", name)
	}
	if !e.enabled {
		return nil, fmt.Errorf("server %s is disabled", name)
	}
	if e.tr == nil {
		return nil, fmt.Errorf("server %s is not connected", name)
	}
	return e.tr, nil
}

// ListTools fetches one server's tool listing, tagging each tool with
// the server name. A transport failure is recorded on the runtime.
func (m *Manager) ListTools(ctx context.Context, name string) ([]transport.ToolInfo, error) {
	tr, err := m.transportFor(name)
	if err != nil {
		return nil, err
	}
	tools, err := tr.ListTools(ctx)
	if err != nil {
		m.recordFailure(name, fmt.Errorf("listing tools: %w", err))
		return nil, err
	}
	for i := range tools {
		tools[i].Server = name
	}
	return tools, nil
}

// CallTool invokes a tool on one server. A transport failure is
// recorded on the runtime.
func (m *Manager) CallTool(ctx context.Context, name, tool string, args map[string]any) (json.RawMessage, error) {
	tr, err := m.transportFor(name)
	if err != nil {
		return nil, err
	}
	result, err := tr.CallTool(ctx, tool, args)
	if err != nil {
		m.recordFailure(name, fmt.Errorf("calling %s: %w", tool, err))
		return nil, err
	}
	return result, nil
}

// Stop shuts the monitor down and tears down every connection.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	var open []transport.Transport
	for _, e := range m.servers {
		if e.tr != nil {
			open = append(open, e.tr)
			e.tr = nil
		}
		e.status = StatusDisabled
	}
	m.mu.Unlock()

	for _, tr := range open {
		tr.Close() //nolint: errcheck
	}
}
