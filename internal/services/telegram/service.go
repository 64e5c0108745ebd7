// Package telegram sends run-outcome notifications through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
}

// New creates a new Telegram service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		baseURL: "https://api.telegram.org",
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendNotification sends a run notification via Telegram.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, msg models.TelegramMessage) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Info().
		Str("chat_id", cfg.ChatID).
		Str("run_id", msg.RunID).
		Bool("success", msg.Success).
		Msg("sending Telegram notification")

	jsonBody, err := json.Marshal(sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      FormatMessage(msg),
		ParseMode: "HTML",
	})
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent successfully")

	return result, nil
}

func title(kind models.RunKind) string {
	switch kind {
	case models.RunRotate:
		return "Rotation"
	case models.RunPrune:
		return "Prune"
	default:
		return "Backup"
	}
}

// FormatMessage renders msg as Telegram HTML.
func FormatMessage(msg models.TelegramMessage) string {
	var b strings.Builder

	if msg.Success {
		fmt.Fprintf(&b, "✅ <b>%s Successful</b>\n\n", title(msg.Kind))
	} else {
		fmt.Fprintf(&b, "❌ <b>%s Failed</b>\n\n", title(msg.Kind))
	}

	fmt.Fprintf(&b, "🖥 <b>Host:</b> %s\n", html.EscapeString(msg.Host))
	fmt.Fprintf(&b, "📁 <b>Repository:</b> %s\n", html.EscapeString(msg.Repository))
	fmt.Fprintf(&b, "⏰ <b>Started:</b> %s\n", msg.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "⏱ <b>Duration:</b> %s\n", msg.Duration.Round(time.Second))
	if msg.RunID != "" {
		fmt.Fprintf(&b, "🔖 <b>Run:</b> <code>%s</code>\n", msg.RunID)
	}

	if len(msg.Dumps) > 0 {
		b.WriteString("\n<b>🗄 Dumps:</b>\n")
		for _, d := range msg.Dumps {
			status := "ok"
			if d.Error != nil {
				status = "failed"
			}
			fmt.Fprintf(&b, "  • %s: %s, %d objects, %s\n",
				d.Type, status, len(d.Objects), humanize.IBytes(uint64(max(d.SizeBytes, 0))))
		}
	}

	if msg.SnapshotID != "" {
		b.WriteString("\n<b>📊 Backup Statistics:</b>\n")
		fmt.Fprintf(&b, "  • Snapshot: <code>%s</code>\n", msg.SnapshotID)
		fmt.Fprintf(&b, "  • Files new: %s\n", humanize.Comma(int64(msg.FilesNew)))
		fmt.Fprintf(&b, "  • Files changed: %s\n", humanize.Comma(int64(msg.FilesChanged)))
		fmt.Fprintf(&b, "  • Files unmodified: %s\n", humanize.Comma(int64(msg.FilesUnmodified)))
		fmt.Fprintf(&b, "  • Data added: %s\n", humanize.IBytes(uint64(max(msg.DataAdded, 0))))
		fmt.Fprintf(&b, "  • Total files: %s\n", humanize.Comma(int64(msg.TotalFiles)))
		fmt.Fprintf(&b, "  • Total size: %s\n", humanize.IBytes(uint64(max(msg.TotalBytes, 0))))
	}

	if msg.SnapshotsRemoved > 0 || msg.SnapshotsKept > 0 {
		b.WriteString("\n<b>🗑 Retention:</b>\n")
		fmt.Fprintf(&b, "  • Snapshots kept: %d\n", msg.SnapshotsKept)
		fmt.Fprintf(&b, "  • Snapshots removed: %d\n", msg.SnapshotsRemoved)
	}

	if !msg.Success {
		b.WriteString("\n<b>⚠️ Error Details:</b>\n")
		fmt.Fprintf(&b, "  • Failed stage: %s\n", html.EscapeString(string(msg.FailedStage)))
		fmt.Fprintf(&b, "  • Error: <code>%s</code>\n", html.EscapeString(msg.ErrorMessage))
	}

	return b.String()
}
