package dump

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/rs/zerolog"
)

// Registry maps source types to their adapters.
type Registry struct {
	adapters map[models.SourceType]Adapter
	logger   zerolog.Logger
}

// NewRegistry creates a registry holding adapters.
func NewRegistry(logger zerolog.Logger, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[models.SourceType]Adapter, len(adapters)),
		logger:   logger,
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its type.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Type()] = a
}

// Has reports whether an adapter is registered for t.
func (r *Registry) Has(t models.SourceType) bool {
	_, ok := r.adapters[t]
	return ok
}

// Dump runs the adapter for job.Type. The returned result is never nil;
// adapter errors and panics are reported through result.Error.
func (r *Registry) Dump(ctx context.Context, targetDir string, job models.SourceJob) (result *models.DumpResult) {
	start := time.Now()
	logger := r.logger.With().Str("source", string(job.Type)).Logger()

	adapter, ok := r.adapters[job.Type]
	if !ok {
		return &models.DumpResult{
			Type:  job.Type,
			Error: fmt.Errorf("no dump adapter registered for %s", job.Type),
		}
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("dump adapter panicked")
			result = &models.DumpResult{
				Type:     job.Type,
				Duration: time.Since(start),
				Error:    fmt.Errorf("%s adapter panicked: %v", job.Type, p),
			}
		}
	}()

	logger.Info().Str("target", targetDir).Msg("starting dump")

	res, err := adapter.Dump(ctx, targetDir, job)
	if res == nil {
		res = &models.DumpResult{}
	}
	res.Type = job.Type
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	if err != nil && res.Error == nil {
		res.Error = err
	}

	if res.Error != nil {
		logger.Error().Err(res.Error).Dur("duration", res.Duration).Msg("dump failed")
		return res
	}

	logger.Info().
		Int("objects", len(res.Objects)).
		Int("skipped", len(res.Skipped)).
		Str("size", humanize.IBytes(uint64(max(res.SizeBytes, 0)))).
		Dur("duration", res.Duration).
		Msg("dump completed")
	return res
}
