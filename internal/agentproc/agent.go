// Package agentproc implements the agent process supervisor (spec.md §4.2):
// spawning a configured agent binary, framing its stdio into bus events,
// and offering the write-side primitives (send_json, send_text,
// close_stdin, terminate) protocol adapters use.
//
// Grounded on the teacher's internal/executor/agent.go: a pipe-backed
// *exec.Cmd, a monitoring/reader goroutine group, and mutex-protected
// lifecycle state guarded by an atomic done flag.
package agentproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/acphub/internal/bus"
	"github.com/steveyegge/acphub/internal/event"
)

// terminateGrace is how long a polite terminate() waits before SIGKILL
// (spec.md §4.2: 3 seconds).
const terminateGrace = 3 * time.Second

// State is the agent's lifecycle state (spec.md §3).
type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateExited
	StateTerminated
)

// Spec is the minimal configuration a ManagedAgent needs to spawn: argv,
// working directory (the agent's sandbox), and environment overlay.
type Spec struct {
	ID      string
	Command []string
	Dir     string
	Env     map[string]string
}

// ManagedAgent owns one child process, its stdio pipes, and the three
// concurrent readers spec.md §4.2 requires: a stdout line-parser, a stderr
// line-parser, and an exit waiter.
type ManagedAgent struct {
	Spec Spec
	bus  *bus.Bus

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	writeMu sync.Mutex // serializes send_json/send_text (spec §5c)

	terminated atomic.Bool
	readers    *errgroup.Group // joins the three reader goroutines on shutdown

	// readersDone is released by readStdout and readStderr once each hits
	// EOF, so waitExit can hold off calling cmd.Wait() until both pipe
	// readers have finished: os/exec documents that Wait closes the pipes
	// it created, and calling it while a read is still in flight can
	// truncate buffered-but-unread output.
	readersDone sync.WaitGroup

	stateMu sync.Mutex
	state   State

	exitCode int
	exitErr  error
	doneCh   chan struct{}
}

// State reports the agent's current lifecycle state (spec.md §3).
func (a *ManagedAgent) State() State {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

func (a *ManagedAgent) setState(s State) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

// Spawn launches the configured process with its sandbox as cwd and its
// env overlay, publishes agent.started before starting the readers, and
// returns once the three reader goroutines are running.
func Spawn(b *bus.Bus, spec Spec) (*ManagedAgent, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("agentproc: empty command for agent %s", spec.ID)
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("agentproc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agentproc: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("agentproc: stderr pipe: %w", err)
	}

	a := &ManagedAgent{
		Spec:   spec,
		bus:    b,
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		state:  StateStarting,
		doneCh: make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("agentproc: starting %s: %w", spec.ID, err)
	}
	a.setState(StateRunning)

	b.Publish(event.AgentStarted(spec.ID, spec.Command))

	a.readersDone.Add(2)
	eg := &errgroup.Group{}
	a.readers = eg
	eg.Go(func() error { defer a.readersDone.Done(); a.readStdout(); return nil })
	eg.Go(func() error { defer a.readersDone.Done(); a.readStderr(); return nil })
	eg.Go(func() error { a.waitExit(); return nil })

	return a, nil
}

// readStdout frames stdout one line at a time. A line that parses as a
// JSON object is published as agent.jsonrpc; anything else (text, a JSON
// array, or a bare JSON scalar) is published as agent.stdout (spec §4.2).
func (a *ManagedAgent) readStdout() {
	scanner := newLineScanner(a.stdout)
	for scanner.Scan() {
		line := scanner.Text()
		var msg map[string]any
		// encoding/json accepts a bare "null" into any target, including a
		// map, without error — but a JSON scalar is text, not an object, so
		// msg stays nil and must not be mistaken for an empty/real object.
		if err := json.Unmarshal([]byte(line), &msg); err == nil && msg != nil {
			a.bus.Publish(event.AgentJSONRPC(a.Spec.ID, msg))
			continue
		}
		a.bus.Publish(event.AgentStdout(a.Spec.ID, line))
	}
}

// readStderr frames every stderr line as agent.stderr, never attempting a
// JSON parse (spec §4.2).
func (a *ManagedAgent) readStderr() {
	scanner := newLineScanner(a.stderr)
	for scanner.Scan() {
		a.bus.Publish(event.AgentStderr(a.Spec.ID, scanner.Text()))
	}
}

// waitExit waits for the stdout/stderr readers to reach EOF — which
// happens on its own once the child closes those fds at exit, independent
// of cmd.Wait() — before calling cmd.Wait() itself, then publishes
// agent.exited. The readers draining first, not the Wait() call, is what
// guarantees no buffered line is lost; since each reader releases
// readersDone only after its last publish has returned, agent.exited is
// always the last event published for the agent.
func (a *ManagedAgent) waitExit() {
	a.readersDone.Wait()
	err := a.cmd.Wait()
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	a.exitCode = code
	a.exitErr = err
	if a.State() != StateTerminated {
		a.setState(StateExited)
	}
	close(a.doneCh)
	a.bus.Publish(event.AgentExited(a.Spec.ID, code))
}

// Wait blocks until the child has exited and all three readers have
// drained (spec §4.2: the supervisor awaits reader completion before
// considering shutdown complete).
func (a *ManagedAgent) Wait() (int, error) {
	<-a.doneCh
	_ = a.readers.Wait()
	return a.exitCode, a.exitErr
}

// SendJSON serializes obj as compact JSON with no embedded newlines,
// appends "\n", writes, and flushes.
func (a *ManagedAgent) SendJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("agentproc: marshal: %w", err)
	}
	return a.writeLine(data)
}

// SendText ensures a trailing newline, writes, and flushes.
func (a *ManagedAgent) SendText(s string) error {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		s += "\n"
	}
	return a.writeLine([]byte(s))
}

func (a *ManagedAgent) writeLine(line []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}
	if _, err := a.stdin.Write(line); err != nil {
		// A write to a closed pipe surfaces to the caller, not the bus —
		// the bus sees it as the agent simply exiting (spec §4.2).
		return fmt.Errorf("agent_write_failed: %w", err)
	}
	return nil
}

// CloseStdin closes the write end so the child sees EOF on its stdin.
func (a *ManagedAgent) CloseStdin() error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.stdin.Close()
}

// Terminate sends a polite signal; if the child has not exited within
// terminateGrace, it is force-killed. Terminate then awaits full exit and
// the drained readers. Double-terminate is a no-op.
func (a *ManagedAgent) Terminate(ctx context.Context) error {
	if !a.terminated.CompareAndSwap(false, true) {
		<-a.doneCh
		return nil
	}
	a.setState(StateTerminated)

	if a.cmd.Process != nil {
		_ = a.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-a.doneCh:
	case <-time.After(terminateGrace):
		if a.cmd.Process != nil {
			_ = a.cmd.Process.Kill()
		}
		<-a.doneCh
	case <-ctx.Done():
		if a.cmd.Process != nil {
			_ = a.cmd.Process.Kill()
		}
		<-a.doneCh
	}

	_ = a.readers.Wait()
	return nil
}

// newLineScanner wraps r in a bufio.Scanner configured for arbitrarily
// long lines (spec §4.2: "line length is not capped by this layer").
func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 64*1024*1024)
	return scanner
}
