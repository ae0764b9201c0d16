// Package notify publishes build completion events to NATS so downstream
// automation (chat bots, release pipelines) can react to finished builds.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
)

// Event is the payload published for every finished target build.
type Event struct {
	BuildID   string    `json:"build_id"`
	Title     string    `json:"title"`
	Format    string    `json:"format"`
	Outcome   string    `json:"outcome"`
	Revision  string    `json:"revision,omitempty"`
	Artifact  string    `json:"artifact,omitempty"`
	Chapters  int       `json:"chapters"`
	Blocks    int       `json:"blocks"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier publishes build events.
type Notifier interface {
	Publish(event Event) error
	Close()
}

// NATSNotifier publishes build events to a NATS subject.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

// NewNATSNotifier connects to the configured NATS server. It returns an
// error when cfg has no URL; callers gate on config before constructing.
func NewNATSNotifier(cfg config.NotifyConfig) (*NATSNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notify is not configured")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("bookbuilder"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Debug("Connected to NATS", "url", cfg.URL, "subject", cfg.Subject)

	return &NATSNotifier{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends one build event and flushes the connection so the event
// is on the wire before a short-lived CLI process exits.
func (n *NATSNotifier) Publish(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if err := n.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}

	slog.Debug("Published build event",
		"subject", n.subject,
		"format", event.Format,
		"outcome", event.Outcome)

	return nil
}

// Close drains and closes the NATS connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		_ = n.conn.Drain()
	}
}
