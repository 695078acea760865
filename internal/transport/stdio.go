package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/harryneopotter/aicli/internal/config"
	"github.com/harryneopotter/aicli/internal/wire"
)

// Frames larger than this are treated as a protocol violation and drop
// the connection via the scanner error path.
const maxFrameBytes = 10 << 20

var errConnClosed = errors.New("connection closed")

// Stdio talks to a tool server subprocess over its stdin/stdout. Requests
// are written one JSON object per line; a background reader drains stdout
// and correlates responses to callers by id, so responses may arrive in
// any order and calls may overlap.
type Stdio struct {
	name    string
	timeout time.Duration
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	// Serializes frame writes; a frame interleaved with another would
	// corrupt both.
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *wire.Response
	dead    bool
	deadErr error

	done   chan struct{}
	reaped chan struct{}
}

// DialStdio spawns the launch spec and wires up the frame reader. The
// subprocess gets its own process group so teardown can kill helpers it
// forked.
func DialStdio(def config.ServerDefinition) (*Stdio, error) {
	cmd := exec.Command(def.Command, def.Args...)
	cmd.Env = append(os.Environ(), def.EnvStrings()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("server %s: stdin pipe: %w", def.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("server %s: stdout pipe: %w", def.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("server %s: spawning %s: %w", def.Name, def.Command, err)
	}

	t := &Stdio{
		name:    def.Name,
		timeout: def.Timeout(),
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[int64]chan *wire.Response),
		done:    make(chan struct{}),
		reaped:  make(chan struct{}),
	}

	go func() {
		t.readLoop(stdout)
		cmd.Wait() //nolint: errcheck
		close(t.reaped)
	}()

	return t, nil
}

// readLoop drains stdout, dispatching each response frame to its pending
// call. Malformed lines and unmatched ids are dropped: a tool server is
// not trusted to be well-behaved, and neither is fatal.
func (t *Stdio) readLoop(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer; the frame must outlive this
		// iteration because Result is handed to the caller.
		frame := append([]byte(nil), line...)

		var resp wire.Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			continue
		}
		if resp.ID == nil {
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[*resp.ID]
		if ok {
			delete(t.pending, *resp.ID)
		}
		t.mu.Unlock()
		if !ok {
			continue
		}
		ch <- &resp
	}

	err := sc.Err()
	if err == nil {
		err = fmt.Errorf("server %s: process closed its output", t.name)
	}
	t.fail(err)
}

// fail marks the connection dead immediately. Pending requests are left
// in the map (the process cannot be asked to cancel them); waiting
// callers are released through the done channel and the map is cleared
// on Close.
func (t *Stdio) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dead {
		return
	}
	t.dead = true
	t.deadErr = err
	close(t.done)
}

func (t *Stdio) writeFrame(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := t.stdin.Write(append(frame, '\n'))
	return err
}

func (t *Stdio) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	if t.dead {
		err := t.deadErr
		t.mu.Unlock()
		return nil, fmt.Errorf("server %s: %w", t.name, err)
	}
	t.nextID++
	id := t.nextID
	ch := make(chan *wire.Response, 1)
	t.pending[id] = ch
	t.mu.Unlock()

	frame, err := json.Marshal(wire.NewRequest(id, method, params))
	if err != nil {
		t.drop(id)
		return nil, fmt.Errorf("server %s: encoding %s: %w", t.name, method, err)
	}

	if err := t.writeFrame(frame); err != nil {
		t.drop(id)
		t.fail(fmt.Errorf("server %s: writing request: %w", t.name, err))
		return nil, fmt.Errorf("server %s: writing %s: %w", t.name, method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("server %s: %s: %w", t.name, method, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		// Abandoned, not cancelled: the entry stays registered so a
		// late reply is still correlated (and discarded). A restart
		// clears it.
		return nil, fmt.Errorf("server %s: %s: %w", t.name, method, ctx.Err())
	case <-t.done:
		return nil, fmt.Errorf("server %s: %s: %w", t.name, method, t.deadErr)
	}
}

func (t *Stdio) drop(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *Stdio) notify(method string, params any) error {
	frame, err := json.Marshal(wire.NewNotification(method, params))
	if err != nil {
		return err
	}
	return t.writeFrame(frame)
}

// Handshake performs the initialize exchange followed by the initialized
// notification. Discovery and invocation are not allowed before it.
func (t *Stdio) Handshake(ctx context.Context, info wire.Implementation) (*wire.InitializeResult, error) {
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

	if err := t.notify(wire.MethodInitialized, struct{}{}); err != nil {
		t.fail(fmt.Errorf("server %s: writing initialized: %w", t.name, err))
		return nil, fmt.Errorf("server %s: initialized notification: %w", t.name, err)
	}
	return &result, nil
}

// ListTools fetches the server's current tool listing.
func (t *Stdio) ListTools(ctx context.Context) ([]ToolInfo, error) {
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
func (t *Stdio) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return t.call(ctx, wire.MethodCallTool, wire.CallToolParams{Name: name, Arguments: args})
}

// Probe issues a liveness ping. No response within the timeout is a
// failure.
func (t *Stdio) Probe(ctx context.Context) error {
	_, err := t.call(ctx, wire.MethodPing, struct{}{})
	return err
}

// Close kills the subprocess (its whole process group), releases waiting
// callers, and clears the pending map.
func (t *Stdio) Close() error {
	t.fail(fmt.Errorf("server %s: %w", t.name, errConnClosed))

	t.mu.Lock()
	t.pending = make(map[int64]chan *wire.Response)
	t.mu.Unlock()

	t.stdin.Close()
	if p := t.cmd.Process; p != nil {
		if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil {
			p.Kill() //nolint: errcheck
		}
	}
	<-t.reaped
	return nil
}
