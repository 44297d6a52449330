// Package feed consumes position reports from a NATS subject and pushes
// them through the same ingestion path the HTTP boundary uses. It is an
// optional second ingestion boundary for deployments where a device gateway
// publishes to NATS instead of calling the API directly.
package feed

import (
	"errors"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"fleettrack/internal/track"
)

// Ingestor is the slice of the engine the feed needs.
type Ingestor interface {
	Ingest(raw []byte) (track.PositionReport, error)
}

// NATSFeed owns one connection and one subscription.
type NATSFeed struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// StartNATS connects, subscribes, and starts delivering messages to the
// ingestor. Malformed payloads are logged and dropped; the subscription
// stays alive.
func StartNATS(url, subject string, ing Ingestor) (*NATSFeed, error) {
	conn, err := nats.Connect(url,
		nats.Name("fleettrack"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	sub, err := conn.Subscribe(subject, func(m *nats.Msg) {
		if _, err := ing.Ingest(m.Data); err != nil {
			if errors.Is(err, track.ErrInvalidReport) {
				log.Printf("feed: dropped invalid report from %s: %v", subject, err)
				return
			}
			log.Printf("feed: ingest failed: %v", err)
		}
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	log.Printf("feed: consuming %s from %s", subject, url)
	return &NATSFeed{conn: conn, sub: sub}, nil
}

// Close drains the subscription and closes the connection.
func (f *NATSFeed) Close() {
	if f.sub != nil {
		_ = f.sub.Drain()
	}
	if f.conn != nil {
		f.conn.Close()
	}
}
