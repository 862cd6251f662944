// Package proc owns one in-flight collector child process: its output
// buffers, paths, timestamps, and terminal status (component B, spec.md
// §4.B).
package proc

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ocx/backend/internal/debugbundle"
)

// Handle is the ProcessHandle of spec.md §3/§4.B. It owns exactly one
// child process from spawn to terminal status.
type Handle struct {
	jobID                 debugbundle.JobID
	cmd                   *exec.Cmd
	bundleFilePath         string
	processOutputFilePath string
	createdAt             time.Time

	mu          sync.Mutex
	stdoutLines []string
	stderrLines []string
	waitStatus  *debugbundle.WaitStatus

	waitOnce sync.Once
	waitErr  error
	waited   bool
}

// Spawn starts the collector binary with the given argv and installs
// line-buffered consumers on its stdout/stderr, per spec.md §4.B.
func Spawn(ctx context.Context, jobID debugbundle.JobID, argv []string, bundleFilePath, processOutputFilePath string) (*Handle, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &Handle{
		jobID:                 jobID,
		cmd:                   cmd,
		bundleFilePath:        bundleFilePath,
		processOutputFilePath: processOutputFilePath,
		createdAt:             time.Now(),
	}

	h.consume(stdout, &h.stdoutLines)
	h.consume(stderr, &h.stderrLines)

	return h, nil
}

// consume starts a goroutine that appends each line from r to *dst as
// long as the handle has not yet reached a terminal status.
func (h *Handle) consume(r io.Reader, dst *[]string) {
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			h.mu.Lock()
			if h.waitStatus == nil {
				*dst = append(*dst, line)
			}
			h.mu.Unlock()
		}
	}()
}

// Wait awaits the child exactly once and stores the terminal status.
// On an unexpected error the stored status is a synthetic exit(1) and
// the error is re-raised, per spec.md §4.B.
func (h *Handle) Wait() (*debugbundle.WaitStatus, error) {
	h.waitOnce.Do(func() {
		err := h.cmd.Wait()

		var ws *debugbundle.WaitStatus
		if err == nil {
			ws = &debugbundle.WaitStatus{ExitCode: 0}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			ws = &debugbundle.WaitStatus{ExitCode: exitErr.ExitCode()}
			err = nil
		} else {
			ws = &debugbundle.WaitStatus{ExitCode: 1}
		}

		h.mu.Lock()
		h.waitStatus = ws
		h.mu.Unlock()

		h.waited = true
		h.waitErr = err
	})
	return h.Status(), h.waitErr
}

// Terminate forwards termination to the child, giving it `grace` to
// exit before a forced kill.
func (h *Handle) Terminate(grace time.Duration) error {
	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Signal(terminateSignal()); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return h.cmd.Process.Kill()
	}
}

// JobID returns the job this handle belongs to.
func (h *Handle) JobID() debugbundle.JobID { return h.jobID }

// BundleFilePath returns the bundle output path.
func (h *Handle) BundleFilePath() string { return h.bundleFilePath }

// ProcessOutputFilePath returns the sidecar output path.
func (h *Handle) ProcessOutputFilePath() string { return h.processOutputFilePath }

// CreatedAt returns when this handle was spawned.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// Status returns the terminal wait status, or nil if still running.
func (h *Handle) Status() *debugbundle.WaitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitStatus
}

// Running reports whether the child has not yet reached terminal status.
func (h *Handle) Running() bool {
	return h.Status() == nil
}

// StdoutLines returns a copy of the captured stdout lines so far.
func (h *Handle) StdoutLines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.stdoutLines))
	copy(out, h.stdoutLines)
	return out
}

// StderrLines returns a copy of the captured stderr lines so far.
func (h *Handle) StderrLines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.stderrLines))
	copy(out, h.stderrLines)
	return out
}

func terminateSignal() syscall.Signal {
	return syscall.SIGTERM
}

// AssertNotRunning panics if the process is still running; destroying a
// handle while its child is alive is a programming error per spec.md §3.
func (h *Handle) AssertNotRunning() {
	if h.Running() {
		panic("proc: Handle destroyed while child process is still running")
	}
}
