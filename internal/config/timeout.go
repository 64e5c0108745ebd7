package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
)

var durationToken = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// ParsePruneTimeout parses tokens like "1d", "2h30m" or "90s".
// Components must appear in d, h, m, s order and each is optional.
// An empty or non-positive duration returns 0, meaning no timeout.
func ParsePruneTimeout(token string) (time.Duration, error) {
	parts := durationToken.FindStringSubmatch(token)
	if parts == nil {
		return 0, fmt.Errorf("%w: invalid prune timeout %q", models.ErrValidation, token)
	}

	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		if parts[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(parts[i+1], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid prune timeout %q: %v", models.ErrValidation, token, err)
		}
		if time.Duration(n) > (math.MaxInt64-total)/unit {
			return 0, fmt.Errorf("%w: prune timeout %q is too large", models.ErrValidation, token)
		}
		total += time.Duration(n) * unit
	}

	if total <= 0 {
		return 0, nil
	}
	return total, nil
}
