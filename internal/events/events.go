// Package events publishes document lifecycle notifications.
//
// Events are published to NATS subjects of the form
//
//	<prefix>.<type>.<tenant>
//
// e.g. ragd.ingest.completed.acme. Publishing is best effort; callers log
// failures and carry on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Type names an event.
type Type string

const (
	IngestCompleted  Type = "ingest.completed"
	PartitionDeleted Type = "partition.deleted"
	DocumentDeleted  Type = "document.deleted"
)

// Event is the JSON payload of a notification.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	TenantID   string    `json:"tenant_id"`
	DocumentID string    `json:"document_id,omitempty"`
	Fragments  int       `json:"fragments,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	Skipped    int       `json:"skipped,omitempty"`
	Source     string    `json:"source,omitempty"`
	Time       time.Time `json:"time"`
}

// New returns an event with a fresh id and timestamp.
func New(typ Type, tenantID string) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     typ,
		TenantID: tenantID,
		Time:     time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }

// NATSPublisher publishes events as JSON on core NATS.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// Connect dials url and returns a publisher that closes the connection on
// Close.
func Connect(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("ragd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	p := NewNATSPublisher(nc, prefix)
	p.owned = true
	return p, nil
}

// NewNATSPublisher publishes on an existing connection, which the caller
// keeps ownership of.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "ragd"
	}
	return &NATSPublisher{conn: nc, prefix: prefix}
}

// Publish sends e to its subject.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	subject := Subject(p.prefix, e.Type, e.TenantID)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection if this publisher opened it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.conn.Drain()
}

// Subject returns the subject for an event. Tenant ids may contain dots,
// which would add subject levels, so they are replaced.
func Subject(prefix string, typ Type, tenantID string) string {
	return prefix + "." + string(typ) + "." + subjectToken(tenantID)
}

func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
