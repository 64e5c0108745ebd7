// Package dumptest provides a recording command executor for adapter tests.
package dumptest

import (
	"context"
	"io"
	"sync"
)

// Call is one recorded command invocation.
type Call struct {
	Env  []string
	Name string
	Args []string
}

// Executor records every call. Nil funcs succeed; StreamWithEnv then writes Output.
type Executor struct {
	ExecuteFunc func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
	StreamFunc  func(ctx context.Context, env []string, w io.Writer, name string, args ...string) ([]byte, error)
	Output      []byte

	mu    sync.Mutex
	calls []Call
}

func (e *Executor) record(env []string, name string, args []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Env: env, Name: name, Args: args})
}

// ExecuteWithEnv records the call and delegates to ExecuteFunc.
func (e *Executor) ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	e.record(env, name, args)
	if e.ExecuteFunc != nil {
		return e.ExecuteFunc(ctx, env, name, args...)
	}
	return nil, nil
}

// StreamWithEnv records the call and delegates to StreamFunc.
func (e *Executor) StreamWithEnv(ctx context.Context, env []string, w io.Writer, name string, args ...string) ([]byte, error) {
	e.record(env, name, args)
	if e.StreamFunc != nil {
		return e.StreamFunc(ctx, env, w, name, args...)
	}
	_, err := w.Write(e.Output)
	return nil, err
}

// Calls returns the recorded calls in order.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}
