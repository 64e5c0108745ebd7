package scripts

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fgeck/gorestic-backup/internal/executor"
	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockExecutor struct {
	executeFunc func(ctx context.Context, name string, args ...string) ([]byte, error)
	calls       []string
}

func (m *mockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, args[len(args)-1])
	if m.executeFunc != nil {
		return m.executeFunc(ctx, name, args...)
	}
	return nil, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func failing(script string) func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if args[1] == script {
			return []byte("boom"), errors.New("exit status 1")
		}
		return nil, nil
	}
}

func TestRun_UsesShell(t *testing.T) {
	var gotName string
	var gotArgs []string
	exec := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotName = name
			gotArgs = args
			return []byte("flushed\n"), nil
		},
	}

	svc := NewWithExecutor(testLogger(), exec)
	result := svc.Run(context.Background(), models.PreBackupScript{Script: "redis-cli save && echo flushed"})

	require.NoError(t, result.Error)
	assert.Equal(t, "/bin/sh", gotName)
	assert.Equal(t, []string{"-c", "redis-cli save && echo flushed"}, gotArgs)
	assert.Equal(t, "flushed", result.Output)
	assert.Equal(t, 0, result.ExitCode)
}

func TestRun_RealExitCode(t *testing.T) {
	svc := NewWithExecutor(testLogger(), &executor.Default{})

	result := svc.Run(context.Background(), models.PreBackupScript{Script: "echo nope; exit 7"})

	require.Error(t, result.Error)
	assert.Equal(t, 7, result.ExitCode)
	assert.Equal(t, "nope", result.Output)
}

func TestRunAll_InOrder(t *testing.T) {
	exec := &mockExecutor{}

	svc := NewWithExecutor(testLogger(), exec)
	err := svc.RunAll(context.Background(), []models.PreBackupScript{
		{Script: "one", FailOnError: true},
		{Script: "two", FailOnError: true},
		{Script: "three", FailOnError: true},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, exec.calls)
}

func TestRunAll_FailOnErrorStops(t *testing.T) {
	exec := &mockExecutor{executeFunc: failing("two")}

	svc := NewWithExecutor(testLogger(), exec)
	err := svc.RunAll(context.Background(), []models.PreBackupScript{
		{Script: "one", FailOnError: true},
		{Script: "two", FailOnError: true},
		{Script: "three", FailOnError: true},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre-backup-scripts[1]")
	assert.Equal(t, []string{"one", "two"}, exec.calls)
}

func TestRunAll_FailureToleratedWithoutFailOnError(t *testing.T) {
	exec := &mockExecutor{executeFunc: failing("two")}

	svc := NewWithExecutor(testLogger(), exec)
	err := svc.RunAll(context.Background(), []models.PreBackupScript{
		{Script: "one", FailOnError: true},
		{Script: "two", FailOnError: false},
		{Script: "three", FailOnError: true},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, exec.calls)
}

func TestRunAll_Empty(t *testing.T) {
	exec := &mockExecutor{}

	svc := NewWithExecutor(testLogger(), exec)

	assert.NoError(t, svc.RunAll(context.Background(), nil))
	assert.Empty(t, exec.calls)
}
