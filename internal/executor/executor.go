// Package executor runs external commands with an argument vector, never through a shell.
package executor

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"time"
)

// DefaultWaitDelay is how long a cancelled command gets to exit after SIGINT
// before it is killed.
const DefaultWaitDelay = 30 * time.Second

// Default is the os/exec backed command executor shared by the services.
// A cancelled context interrupts the command with SIGINT, so restic can
// remove its lock, and kills it once WaitDelay has passed.
type Default struct {
	WaitDelay time.Duration // 0 means DefaultWaitDelay
}

func (e *Default) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	return cmd
}

// Execute runs a command and returns its combined output.
func (e *Default) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	return e.command(ctx, name, args...).CombinedOutput()
}

// ExecuteWithEnv runs a command with additional environment variables.
func (e *Default) ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := e.command(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// StreamWithEnv runs a command writing its stdout to w. Stderr is captured and returned.
func (e *Default) StreamWithEnv(ctx context.Context, env []string, w io.Writer, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := e.command(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = w
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// LowPriority rewrites a command so that it runs under nice -n19 ionice -c3
// when enabled is true. Otherwise name and args are returned unchanged.
func LowPriority(enabled bool, name string, args ...string) (string, []string) {
	if !enabled {
		return name, args
	}
	wrapped := make([]string, 0, len(args)+4)
	wrapped = append(wrapped, "-n19", "ionice", "-c3", name)
	wrapped = append(wrapped, args...)
	return "nice", wrapped
}
