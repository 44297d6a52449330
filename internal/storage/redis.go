package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"fleettrack/internal/observability"
	"fleettrack/internal/track"
)

const mirrorKeyPrefix = "track:latest:"

// RedisMirror keeps a best-effort copy of each device's latest position in
// Redis so sibling services (dashboards, CRUD APIs) can read last-known
// state without touching this process. Writes go through a bounded queue
// drained by a single worker; a full queue drops the write so ingestion is
// never blocked. The TTL matches the staleness threshold, so the mirror
// forgets offline devices on its own.
type RedisMirror struct {
	rdb   *redis.Client
	ttl   time.Duration
	queue chan track.PositionReport
	done  chan struct{}
}

// OpenRedisMirror connects and pings. ttl should be the engine's staleness
// threshold.
func OpenRedisMirror(ctx context.Context, addr string, ttl time.Duration) (*RedisMirror, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisMirror{
		rdb:   rdb,
		ttl:   ttl,
		queue: make(chan track.PositionReport, 256),
		done:  make(chan struct{}),
	}, nil
}

// Start launches the write worker; it exits when ctx is cancelled.
func (m *RedisMirror) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-m.queue:
				m.write(r)
			}
		}
	}()
}

// Offer enqueues one report without blocking. Implements track.Mirror.
func (m *RedisMirror) Offer(r track.PositionReport) {
	select {
	case m.queue <- r:
	default:
		observability.MirrorDropped.Inc()
	}
}

// Close waits for the worker (stopped via the Start context) and closes the
// client.
func (m *RedisMirror) Close() error {
	<-m.done
	return m.rdb.Close()
}

func (m *RedisMirror) write(r track.PositionReport) {
	b, err := json.Marshal(r)
	if err != nil {
		observability.MirrorErrors.Inc()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.rdb.Set(ctx, mirrorKeyPrefix+r.DeviceID, b, m.ttl).Err(); err != nil {
		observability.MirrorErrors.Inc()
		log.Printf("storage: redis mirror set %s: %v", r.DeviceID, err)
	}
}

// Latest reads a mirrored position back, mainly for tooling and tests.
func (m *RedisMirror) Latest(ctx context.Context, deviceID string) (track.PositionReport, bool, error) {
	val, err := m.rdb.Get(ctx, mirrorKeyPrefix+deviceID).Bytes()
	if err == redis.Nil {
		return track.PositionReport{}, false, nil
	}
	if err != nil {
		return track.PositionReport{}, false, fmt.Errorf("redis get: %w", err)
	}
	var r track.PositionReport
	if err := json.Unmarshal(val, &r); err != nil {
		return track.PositionReport{}, false, fmt.Errorf("decode mirrored position: %w", err)
	}
	return r, true, nil
}
