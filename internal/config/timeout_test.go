package config

import (
	"testing"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePruneTimeout(t *testing.T) {
	tests := []struct {
		token string
		want  time.Duration
	}{
		{"", 0},
		{"0s", 0},
		{"1d", 24 * time.Hour},
		{"2h", 2 * time.Hour},
		{"90s", 90 * time.Second},
		{"2h30m", 2*time.Hour + 30*time.Minute},
		{"1d2h3m4s", 26*time.Hour + 3*time.Minute + 4*time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParsePruneTimeout(tt.token)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePruneTimeout_Invalid(t *testing.T) {
	for _, token := range []string{"bogus", "2h1d", "1w", "-1h", "1.5h", "10"} {
		t.Run(token, func(t *testing.T) {
			_, err := ParsePruneTimeout(token)

			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestParsePruneTimeout_TooLarge(t *testing.T) {
	for _, token := range []string{"200000d", "106751d23h47m17s", "2562048h"} {
		t.Run(token, func(t *testing.T) {
			_, err := ParsePruneTimeout(token)

			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)
			assert.Contains(t, err.Error(), "too large")
		})
	}
}

func TestParsePruneTimeout_LargestDays(t *testing.T) {
	got, err := ParsePruneTimeout("106751d")

	require.NoError(t, err)
	assert.Equal(t, 106751*24*time.Hour, got)
}
