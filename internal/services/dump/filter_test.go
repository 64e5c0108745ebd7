package dump

import (
	"testing"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFilter_BothRejected(t *testing.T) {
	_, err := NewFilter([]string{"a"}, []string{"b"})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestNewFilter_InvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{"("}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestFilter_NoPatternsSelectsAll(t *testing.T) {
	f, err := NewFilter(nil, nil)
	require.NoError(t, err)

	assert.True(t, f.Match("anything"))
	assert.True(t, f.Match(""))
}

func TestFilter_Include(t *testing.T) {
	f, err := NewFilter([]string{"app", "logs-20"}, nil)
	require.NoError(t, err)

	assert.True(t, f.Match("app"))
	assert.True(t, f.Match("app_production"))
	assert.True(t, f.Match("logs-2024.01.01"))
	assert.False(t, f.Match("myapp"))
	assert.False(t, f.Match("logs-19"))
}

func TestFilter_Exclude(t *testing.T) {
	f, err := NewFilter(nil, []string{"test", `\.`})
	require.NoError(t, err)

	assert.False(t, f.Match("test_db"))
	assert.False(t, f.Match(".kibana"))
	assert.True(t, f.Match("prod"))
	assert.True(t, f.Match("latest"))
}

func TestFilter_AlternationAnchored(t *testing.T) {
	f, err := NewFilter([]string{"a|b"}, nil)
	require.NoError(t, err)

	assert.True(t, f.Match("alpha"))
	assert.True(t, f.Match("beta"))
	assert.False(t, f.Match("xb"))
}

func TestFilter_Apply(t *testing.T) {
	f, err := NewFilter(nil, []string{"sys"})
	require.NoError(t, err)

	selected, skipped := f.Apply([]string{"app", "sys", "system", "web"})

	assert.Equal(t, []string{"app", "web"}, selected)
	assert.Equal(t, []string{"sys", "system"}, skipped)
}
