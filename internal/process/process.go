// Package process starts external tools as OS subprocesses and signals
// them as a process group.
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

// Spec describes a process to start.
type Spec struct {
	// Name labels the process in errors and logs.
	Name string
	Path string
	Args []string
	// Stdin is connected to the child's standard input; nil means the null
	// device. An *os.File is inherited directly and the parent's copy is
	// closed once Spawn returns.
	Stdin io.Reader
}

// Process is a running subprocess.
type Process interface {
	Pid() int
	// Stdout and Stderr stay readable after the process exits until the
	// caller closes them.
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	// Terminate asks the process group to exit.
	Terminate() error
	// Kill forcefully stops the process group.
	Kill() error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitCode is valid after Done. It is -1 when the process was ended by a signal.
	ExitCode() int
	// Err is the wait error, valid after Done.
	Err() error
}

// Spawner starts processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (Process, error)
}

// ExecSpawner starts real processes with os/exec. Each child leads its own
// process group so signals also reach any helpers it starts.
type ExecSpawner struct{}

// NewExecSpawner creates a new ExecSpawner.
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{}
}

// Spawn starts spec. Pipe creation failures wrap domain.ErrPipeEstablishment
// and start failures wrap domain.ErrProcessSpawn.
func (s *ExecSpawner) Spawn(ctx context.Context, spec Spec) (Process, error) {
	if f, ok := spec.Stdin.(*os.File); ok {
		defer f.Close()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrProcessSpawn, spec.Name, err)
	}

	// Explicit pipes so Wait does not close the read ends before the
	// consumers have drained them.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s stdout: %v", domain.ErrPipeEstablishment, spec.Name, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("%w: %s stderr: %v", domain.ErrPipeEstablishment, spec.Name, err)
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Stdin = spec.Stdin
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrProcessSpawn, spec.Name, err)
	}

	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()

	p := &execProcess{
		cmd:    cmd,
		stdout: stdoutR,
		stderr: stderrR,
		done:   make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	done   chan struct{}

	mu       sync.Mutex
	exitCode int
	err      error
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.err = err
	p.exitCode = -1
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.mu.Unlock()

	close(p.done)
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Stdout() io.ReadCloser { return p.stdout }

func (p *execProcess) Stderr() io.ReadCloser { return p.stderr }

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *execProcess) Terminate() error {
	if p.exited() {
		return nil
	}
	return terminateGroup(p.cmd.Process)
}

func (p *execProcess) Kill() error {
	if p.exited() {
		return nil
	}
	return killGroup(p.cmd.Process)
}

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *execProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
