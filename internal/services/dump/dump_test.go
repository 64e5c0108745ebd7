package dump

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/fgeck/gorestic-backup/internal/services/dump/dumptest"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestRun_LowPriority(t *testing.T) {
	exec := &dumptest.Executor{}

	err := Run(context.Background(), exec, true, []string{"A=1"}, "influxd", "backup")

	require.NoError(t, err)
	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "nice", calls[0].Name)
	assert.Equal(t, []string{"-n19", "ionice", "-c3", "influxd", "backup"}, calls[0].Args)
	assert.Equal(t, []string{"A=1"}, calls[0].Env)
}

func TestRun_Error(t *testing.T) {
	exec := &dumptest.Executor{
		ExecuteFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			return []byte("connection refused"), errors.New("exit status 1")
		},
	}

	err := Run(context.Background(), exec, false, nil, "influxd", "backup")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "influxd failed")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWriteGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql.gz")
	exec := &dumptest.Executor{Output: []byte("CREATE TABLE t (id int);\n")}

	size, err := WriteGzip(context.Background(), exec, false, nil, path, "mysqldump", "db")

	require.NoError(t, err)
	assert.Positive(t, size)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t (id int);\n", string(content))
}

func TestWriteFile_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dump")
	exec := &dumptest.Executor{Output: []byte("PGDMP")}

	size, err := WriteFile(context.Background(), exec, false, nil, path, "pg_dump", "db")

	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PGDMP", string(content))
}

func TestWriteGzip_FailureRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sql.gz")
	exec := &dumptest.Executor{
		StreamFunc: func(ctx context.Context, env []string, w io.Writer, name string, args ...string) ([]byte, error) {
			_, _ = w.Write([]byte("partial"))
			return []byte("Access denied"), errors.New("exit status 2")
		},
	}

	_, err := WriteGzip(context.Background(), exec, false, nil, path, "mysqldump", "db")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access denied")
	assert.NoFileExists(t, path)
}

func TestSelect_EmptyEnumerationFails(t *testing.T) {
	job := models.SourceJob{Type: models.SourceMySQL}

	_, _, err := Select(testLogger(), job, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no objects found")
}

func TestSelect_AllDeselectedIsNotAnError(t *testing.T) {
	job := models.SourceJob{Type: models.SourceMySQL, Include: []string{"nomatch"}}

	selected, skipped, err := Select(testLogger(), job, []string{"a", "b"})

	require.NoError(t, err)
	assert.Empty(t, selected)
	assert.Equal(t, []string{"a", "b"}, skipped)
}

func TestSelect_IncludeAndExcludeRejected(t *testing.T) {
	job := models.SourceJob{Type: models.SourceMySQL, Include: []string{"a"}, Exclude: []string{"b"}}

	_, _, err := Select(testLogger(), job, []string{"a"})

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), bytes.Repeat([]byte("x"), 10), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b"), bytes.Repeat([]byte("y"), 5), 0o600))

	assert.Equal(t, int64(15), DirSize(dir))
	assert.Equal(t, int64(0), DirSize(filepath.Join(dir, "missing")))
}
