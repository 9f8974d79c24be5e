// Package publish announces finalized calibrations on NATS.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/report"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Event is the JSON payload of one message.
type Event struct {
	Source      string             `json:"source,omitempty"`
	PublishedAt time.Time          `json:"published_at"`
	Summary     *aggregate.Summary `json:"summary"`
}

// Publisher sends one Event per calibration on <prefix>.<antenna type>.
type Publisher struct {
	conn         Conn
	prefix       string
	flushTimeout time.Duration
}

// Connect dials url and returns a Publisher on that connection.
func Connect(url, prefix string, flushTimeout time.Duration) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("antex_parser"),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return New(nc, prefix, flushTimeout), nil
}

// New wraps an existing connection.
func New(conn Conn, prefix string, flushTimeout time.Duration) *Publisher {
	if flushTimeout <= 0 {
		flushTimeout = 5 * time.Second
	}
	return &Publisher{conn: conn, prefix: strings.TrimSuffix(prefix, "."), flushTimeout: flushTimeout}
}

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_")

// Subject returns the subject an antenna type publishes on. The type
// becomes a single token.
func (p *Publisher) Subject(antennaType string) string {
	return p.prefix + "." + subjectToken.Replace(report.SafeName(strings.TrimSpace(antennaType)))
}

// Publish sends sum and waits for the server to acknowledge the flush.
func (p *Publisher) Publish(ctx context.Context, sum *aggregate.Summary, source string) error {
	data, err := json.Marshal(Event{Source: source, PublishedAt: time.Now().UTC(), Summary: sum})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subj := p.Subject(sum.Type)
	if err := p.conn.Publish(subj, data); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.flushTimeout)
	defer cancel()
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subj, err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
