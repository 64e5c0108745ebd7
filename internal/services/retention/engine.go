// Package retention resolves the keep rules passed to restic forget.
package retention

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes the per-bucket environment variables, e.g. KEEP_DAILY.
const EnvPrefix = "KEEP_"

// Lookup resolves an environment variable.
type Lookup interface {
	Lookup(name string) (string, bool)
}

// Engine builds retention policies from the config keep block or the environment.
type Engine struct {
	env    Lookup
	logger zerolog.Logger
}

// NewEngine creates a retention engine reading KEEP_* variables through env.
func NewEngine(logger zerolog.Logger, env Lookup) *Engine {
	return &Engine{env: env, logger: logger}
}

// Policy returns the ordered keep rules. Config buckets, when present, are
// authoritative and the environment is not consulted.
func (e *Engine) Policy(keep models.KeepConfig) (models.RetentionPolicy, error) {
	if len(keep) > 0 {
		return fromConfig(keep)
	}

	policy := models.RetentionPolicy{Source: models.RetentionFromEnv}
	for _, bucket := range models.KeepBuckets {
		name := EnvPrefix + strings.ToUpper(bucket)
		raw, ok := e.env.Lookup(name)
		if !ok {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return models.RetentionPolicy{}, fmt.Errorf("%w: %s must be an integer, got %q", models.ErrValidation, name, raw)
		}
		policy.Rules = append(policy.Rules, models.KeepRule{Bucket: bucket, Count: count})
	}

	if policy.Empty() {
		e.logger.Warn().Msg("no keep rules in config or environment, keeping forever")
		return models.RetentionPolicy{Source: models.RetentionNone}, nil
	}
	return policy, nil
}

func fromConfig(keep models.KeepConfig) (models.RetentionPolicy, error) {
	for bucket := range keep {
		if !models.IsKeepBucket(bucket) {
			return models.RetentionPolicy{}, fmt.Errorf("%w: unknown keep bucket %q", models.ErrValidation, bucket)
		}
	}

	policy := models.RetentionPolicy{Source: models.RetentionFromConfig}
	for _, bucket := range models.KeepBuckets {
		if count, ok := keep[bucket]; ok {
			policy.Rules = append(policy.Rules, models.KeepRule{Bucket: bucket, Count: count})
		}
	}
	return policy, nil
}
