package executor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowPriority_Disabled(t *testing.T) {
	name, args := LowPriority(false, "restic", "backup", "--json")

	assert.Equal(t, "restic", name)
	assert.Equal(t, []string{"backup", "--json"}, args)
}

func TestLowPriority_Enabled(t *testing.T) {
	name, args := LowPriority(true, "restic", "backup", "--json")

	assert.Equal(t, "nice", name)
	assert.Equal(t, []string{"-n19", "ionice", "-c3", "restic", "backup", "--json"}, args)
}

func TestDefault_ExecuteWithEnv(t *testing.T) {
	e := &Default{}

	out, err := e.ExecuteWithEnv(context.Background(), []string{"GREETING=hello"}, "sh", "-c", "printf %s \"$GREETING\"")

	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestDefault_StreamWithEnv(t *testing.T) {
	e := &Default{}
	var buf bytes.Buffer

	stderr, err := e.StreamWithEnv(context.Background(), nil, &buf, "sh", "-c", "printf out; printf err >&2")

	require.NoError(t, err)
	assert.Equal(t, "out", buf.String())
	assert.Equal(t, "err", string(stderr))
}

func TestDefault_Execute_Failure(t *testing.T) {
	e := &Default{}

	_, err := e.Execute(context.Background(), "sh", "-c", "exit 3")

	assert.Error(t, err)
}

func TestDefault_CancelInterruptsCommand(t *testing.T) {
	e := &Default{}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, _ := e.ExecuteWithEnv(ctx, nil, "sh", "-c", `trap 'kill $!; echo interrupted; exit 1' INT; sleep 10 >/dev/null & wait`)

	assert.Contains(t, string(out), "interrupted")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDefault_CancelKillsAfterWaitDelay(t *testing.T) {
	e := &Default{WaitDelay: 200 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.ExecuteWithEnv(ctx, nil, "sh", "-c", `trap '' INT; sleep 10 >/dev/null 2>&1 & wait`)

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
