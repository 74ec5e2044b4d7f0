package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Process is one running worker. It accepts a single request on Stdin and
// produces events on Stdout. Terminate must be called exactly once, after
// which the process is gone.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Terminate() error
}

// Spawner starts fresh workers. A worker is never reused across requests.
type Spawner interface {
	Spawn(ctx context.Context) (Process, error)
}

// InProcess runs each worker on its own goroutine, connected only through
// pipes so no buffer is shared with the issuer.
type InProcess struct {
	Executor *Executor
}

// Spawn implements Spawner.
func (s *InProcess) Spawn(ctx context.Context) (Process, error) {
	reqR, reqW := io.Pipe()
	evR, evW := io.Pipe()
	wctx, cancel := context.WithCancel(ctx)
	p := &pipeProcess{
		stdin:  reqW,
		stdout: evR,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		err := s.Executor.Serve(wctx, reqR, evW)
		_ = reqR.Close()
		_ = evW.CloseWithError(err)
	}()
	return p, nil
}

type pipeProcess struct {
	stdin  *io.PipeWriter
	stdout *io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (p *pipeProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *pipeProcess) Stdout() io.Reader     { return p.stdout }

// Terminate cancels the worker and waits for its goroutine to exit. Closing
// both pipes unblocks any pending read or write on the worker side.
func (p *pipeProcess) Terminate() error {
	p.once.Do(func() {
		p.cancel()
		_ = p.stdin.Close()
		_ = p.stdout.Close()
		<-p.done
	})
	return nil
}

// Subprocess runs each worker as a separate OS process speaking the frame
// protocol over stdin and stdout.
type Subprocess struct {
	Binary string
	Args   []string
	Logger *slog.Logger
}

// Spawn implements Spawner.
func (s *Subprocess) Spawn(ctx context.Context) (Process, error) {
	cmd := exec.Command(s.Binary, s.Args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %s: %w", s.Binary, err)
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Worker process started.", "pid", cmd.Process.Pid)
	return &osProcess{cmd: cmd, stdin: stdin, stdout: stdout, logger: logger}, nil
}

type osProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	logger *slog.Logger
	once   sync.Once
}

func (p *osProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *osProcess) Stdout() io.Reader     { return p.stdout }

// Terminate kills the process and reaps it.
func (p *osProcess) Terminate() error {
	p.once.Do(func() {
		_ = p.stdin.Close()
		if p.cmd.ProcessState == nil {
			_ = p.cmd.Process.Kill()
		}
		if err := p.cmd.Wait(); err != nil {
			p.logger.Debug("Worker process exited.", "pid", p.cmd.Process.Pid, "error", err)
		}
	})
	return nil
}
