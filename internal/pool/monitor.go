package pool

import (
	"context"
	"time"
)

// Start launches the background health cycle. It runs on its own
// schedule, independent of chat activity, until Stop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.RunHealthCycle(context.Background())
			}
		}
	}()
}

// RunHealthCycle probes every enabled server once. Exported so callers
// (and tests) can drive a cycle without waiting for the ticker.
//
// One cycle does exactly one thing per server: a disconnected server
// gets a connect attempt, an unhealthy local-process server gets killed
// and re-spawned after the restart delay, and everything else gets a
// liveness probe. Probing resumes on the cycle after a respawn.
func (m *Manager) RunHealthCycle(ctx context.Context) {
	for _, name := range m.enabledServers() {
		select {
		case <-m.stopCh:
			return
		default:
		}
		m.checkServer(ctx, name)
	}
}

func (m *Manager) enabledServers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.servers))
	for name, e := range m.servers {
		if e.enabled {
			names = append(names, name)
		}
	}
	return names
}

func (m *Manager) checkServer(ctx context.Context, name string) {
	m.mu.Lock()
	e, ok := m.servers[name]
	if !ok || !e.enabled {
		m.mu.Unlock()
		return
	}
	tr := e.tr
	status := e.status
	isStdio := e.def.IsStdio()
	m.mu.Unlock()

	switch {
	case tr == nil:
		m.connect(ctx, name) //nolint: errcheck
	case status == StatusUnhealthy && isStdio:
		m.restart(ctx, name)
	default:
		// The probe bounds its own wait with the server's timeout and
		// runs outside the lock, so an in-flight tool call on the same
		// server cannot delay it.
		if err := tr.Probe(ctx); err != nil {
			m.recordFailure(name, err)
			return
		}
		m.markHealthy(name)
	}
}

// restart kills the existing handle, waits the fixed delay, then
// re-spawns and re-handshakes. Closing the old transport clears all of
// its stale pending requests.
func (m *Manager) restart(ctx context.Context, name string) {
	m.mu.Lock()
	e, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	tr := e.tr
	e.tr = nil
	m.mu.Unlock()

	if tr != nil {
		tr.Close() //nolint: errcheck
	}
	time.Sleep(m.restartDelay)
	m.connect(ctx, name) //nolint: errcheck
}
