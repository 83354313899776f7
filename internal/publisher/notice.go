// Package publisher announces completed runs to downstream consumers.
package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/metrics"
)

// Publisher sends a JSON-serializable payload to a topic and returns the
// broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Counts summarizes task outcomes for a run.
type Counts struct {
	Discovered int `json:"discovered"`
	Attempted  int `json:"attempted"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Entities   int `json:"entities"`
}

// Notice is the completion message for one run.
type Notice struct {
	RunID      string    `json:"run_id"`
	OutputURI  string    `json:"output_uri"`
	SHA256     string    `json:"sha256"`
	Counts     Counts    `json:"counts"`
	Partial    bool      `json:"partial"`
	FinishedAt time.Time `json:"finished_at"`
}

// Notifier publishes notices and records the outcome.
type Notifier struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

// NewNotifier builds a Notifier that publishes to topic.
func NewNotifier(pub Publisher, topic string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, topic: topic, logger: logger}
}

// Notify publishes n.
func (n *Notifier) Notify(ctx context.Context, notice Notice) error {
	id, err := n.pub.Publish(ctx, n.topic, notice)
	if err != nil {
		metrics.ObserveNotification("error")
		return fmt.Errorf("publish run notice: %w", err)
	}
	metrics.ObserveNotification("success")
	n.logger.Info("run notice published",
		zap.String("run_id", notice.RunID),
		zap.String("message_id", id),
		zap.String("topic", n.topic),
	)
	return nil
}
