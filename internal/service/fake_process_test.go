package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/process"
)

// fakeProcess is an in-memory process. Tests write to its stdout and stderr
// through the pipe writers and end it with Exit.
type fakeProcess struct {
	pid     int
	spec    process.Spec
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	done    chan struct{}

	// stdout, when set, replaces the stdout pipe, e.g. with output that is
	// still buffered after the process exits.
	stdout       io.ReadCloser
	stderrClosed atomic.Bool

	// exitOnTerminate ends the process with code -1 when it is terminated.
	exitOnTerminate bool

	mu         sync.Mutex
	code       int
	err        error
	exited     bool
	terminates int
	kills      int
}

func newFakeProcess(pid int, spec process.Spec) *fakeProcess {
	p := &fakeProcess{pid: pid, spec: spec, done: make(chan struct{}), exitOnTerminate: true}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Stdout() io.ReadCloser {
	if p.stdout != nil {
		return p.stdout
	}
	return p.stdoutR
}

func (p *fakeProcess) Stderr() io.ReadCloser {
	return &closeRecorder{ReadCloser: p.stderrR, closed: &p.stderrClosed}
}

type closeRecorder struct {
	io.ReadCloser
	closed *atomic.Bool
}

func (c *closeRecorder) Close() error {
	c.closed.Store(true)
	return c.ReadCloser.Close()
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) WriteStderr(line string) { p.stderrW.Write([]byte(line + "\n")) }

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminates++
	exit := p.exitOnTerminate
	p.mu.Unlock()
	if exit {
		p.Exit(-1, errors.New("signal: terminated"))
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	p.Exit(-1, errors.New("signal: killed"))
	return nil
}

// Exit ends the process with code and closes its output pipes.
func (p *fakeProcess) Exit(code int, err error) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.code = code
	p.err = err
	p.mu.Unlock()

	p.stdoutW.Close()
	p.stderrW.Close()
	close(p.done)
}

func (p *fakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *fakeProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProcess) Counts() (terminates, kills int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminates, p.kills
}

// fakeSpawner hands out fakeProcesses and records every spawn.
type fakeSpawner struct {
	mu    sync.Mutex
	procs []*fakeProcess
	// fail maps a process name to the error its spawn returns.
	fail map[string]error
	// prepare runs on each process before it is returned.
	prepare func(*fakeProcess)
}

func (s *fakeSpawner) Spawn(ctx context.Context, spec process.Spec) (process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[spec.Name]; err != nil {
		return nil, err
	}
	p := newFakeProcess(1000+len(s.procs), spec)
	if s.prepare != nil {
		s.prepare(p)
	}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) Spawned() []*fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeProcess(nil), s.procs...)
}

func (s *fakeSpawner) byName(name string) *fakeProcess {
	for _, p := range s.Spawned() {
		if p.spec.Name == name {
			return p
		}
	}
	return nil
}
