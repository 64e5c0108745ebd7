// Package elasticdump dumps Elasticsearch indices with the elasticdump tool.
package elasticdump

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/fgeck/gorestic-backup/internal/services/dump"
	"github.com/rs/zerolog"
)

// DataTypes are dumped per index, in this order.
var DataTypes = []string{"alias", "mapping", "data"}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements dump.Adapter for Elasticsearch.
type Impl struct {
	executor   dump.CommandExecutor
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new Elasticsearch dump adapter.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: dump.DefaultExecutor(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// NewWithClients creates an adapter with a custom executor and HTTP client (for testing).
func NewWithClients(logger zerolog.Logger, executor dump.CommandExecutor, httpClient HTTPClient) *Impl {
	return &Impl{
		executor:   executor,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Type returns the source type handled by this adapter.
func (s *Impl) Type() models.SourceType {
	return models.SourceElasticsearch
}

type catIndex struct {
	Index string `json:"index"`
}

// ListIndices returns the index names reported by the _cat/indices API.
func (s *Impl) ListIndices(ctx context.Context, conn models.ConnectionConfig) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, conn.URL+"/_cat/indices?format=json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if conn.Username != "" && conn.Password != "" {
		req.SetBasicAuth(conn.Username, conn.Password)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to list elasticsearch indices: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to list elasticsearch indices: status %d: %s", resp.StatusCode, string(body))
	}

	var indices []catIndex
	if err := json.Unmarshal(body, &indices); err != nil {
		return nil, fmt.Errorf("failed to parse indices: %w", err)
	}

	names := make([]string, 0, len(indices))
	for _, idx := range indices {
		names = append(names, idx.Index)
	}
	return names, nil
}

// InputURL returns the elasticdump input URL of index, with credentials embedded when set.
func InputURL(conn models.ConnectionConfig, index string) (string, error) {
	u, err := url.Parse(conn.URL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid elasticdump url: %v", models.ErrValidation, err)
	}
	if conn.Username != "" && conn.Password != "" {
		u.User = url.UserPassword(conn.Username, conn.Password)
	}
	return u.JoinPath(index).String(), nil
}

// Dump runs elasticdump for the alias, mapping and data of every selected index.
func (s *Impl) Dump(ctx context.Context, targetDir string, job models.SourceJob) (*models.DumpResult, error) {
	conn := job.Conn
	start := time.Now()
	result := &models.DumpResult{Type: job.Type}

	s.logger.Info().Str("url", redact(conn.URL)).Msg("listing Elasticsearch indices")

	names, err := s.ListIndices(ctx, conn)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result, nil
	}

	selected, skipped, err := dump.Select(s.logger, job, names)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Skipped = skipped

	for _, index := range selected {
		input, err := InputURL(conn, index)
		if err != nil {
			return nil, err
		}

		if err := s.dumpIndex(ctx, targetDir, job, index, input); err != nil {
			result.Error = fmt.Errorf("index %s: %w", index, err)
			break
		}
		result.Objects = append(result.Objects, index)
	}

	result.SizeBytes = dump.DirSize(targetDir)
	result.Duration = time.Since(start)
	return result, nil
}

func (s *Impl) dumpIndex(ctx context.Context, targetDir string, job models.SourceJob, index, input string) error {
	for _, dataType := range DataTypes {
		s.logger.Info().Str("index", index).Str("type", dataType).Msg("dumping Elasticsearch index")

		output := filepath.Join(targetDir, fmt.Sprintf("%s__%s.json", index, dataType))
		if err := dump.Run(ctx, s.executor, job.LowPriority, nil, "elasticdump",
			"--input", input,
			"--type", dataType,
			"--output", output,
		); err != nil {
			return err
		}
	}
	return nil
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
