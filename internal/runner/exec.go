package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// DefaultTailBytes is how much of each output stream OSExecutor keeps.
const DefaultTailBytes = 8 << 10

// Command is one process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// Result is the outcome of a process that ran to exit. Stdout and Stderr hold
// at most the last TailBytes of each stream.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Executor runs a command to completion. It returns an error only when the
// process could not be started or waited on; a non-zero exit is reported
// through Result.ExitCode.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (Result, error)
}

// OSExecutor runs commands with os/exec. The context is not used to kill the
// process: a running job is always allowed to finish.
type OSExecutor struct {
	// Stdout and Stderr, when set, receive a live copy of the streams.
	Stdout    io.Writer
	Stderr    io.Writer
	TailBytes int
}

func (e *OSExecutor) Execute(_ context.Context, cmd Command) (Result, error) {
	n := e.TailBytes
	if n <= 0 {
		n = DefaultTailBytes
	}
	stdout := &tailBuffer{max: n}
	stderr := &tailBuffer{max: n}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = tee(stdout, e.Stdout)
	c.Stderr = tee(stderr, e.Stderr)

	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("running %s: %w", cmd.Path, err)
	}
}

func tee(buf io.Writer, extra io.Writer) io.Writer {
	if extra == nil {
		return buf
	}
	return io.MultiWriter(buf, extra)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *tailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.buf))
	copy(out, t.buf)
	return out
}

var _ Executor = (*OSExecutor)(nil)
