// Package events publishes domain events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects published by rfpd.
const (
	SubjectRFPCreated      = "rfpd.rfp.created"
	SubjectRFPSent         = "rfpd.rfp.sent"
	SubjectEmailReceived   = "rfpd.email.received"
	SubjectProposalCreated = "rfpd.proposal.created"
)

// Publisher emits a JSON-encoded event on a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// NATSPublisher publishes on a core NATS connection.
type NATSPublisher struct {
	nc *nats.Conn
}

// Connect dials url. The connection reconnects in the background.
func Connect(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("rfpd"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return p.nc.Publish(subject, data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.nc.Flush(); err != nil {
		p.nc.Close()
		return err
	}
	p.nc.Close()
	return nil
}

// Emit publishes and logs failures. Events are best-effort and never fail
// the operation that produced them.
func Emit(ctx context.Context, p Publisher, subject string, v any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, subject, v); err != nil {
		slog.Warn("event publish failed", "subject", subject, "error", err)
	}
}
