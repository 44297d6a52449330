package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"fleettrack/internal/track"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Addr     string
	Database string
	User     string
	Password string
}

// ClickHouseDB is the durable position-history sink. History is append-only
// and best-effort; the engine drops a batch when an append fails.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens and pings the connection. A failure here is a
// configuration fault and should abort startup.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouseDB{conn: conn}, nil
}

func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the history table.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	err := d.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS position_history (
			device_id           LowCardinality(String),
			latitude            Float64,
			longitude           Float64,
			altitude            Float64,
			speed               Float64,
			course              Float64,
			satellite_count     Int32,
			horizontal_dilution Float64,
			device_name         LowCardinality(String),
			body_number         LowCardinality(String),
			source_date         String,
			source_time         String,
			received_at         DateTime64(3),
			flushed_at          DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(received_at)
		ORDER BY (device_id, received_at)
	`)
	if err != nil {
		return fmt.Errorf("create clickhouse schema: %w", err)
	}
	return nil
}

// AppendPositions writes one snapshot batch. Implements track.HistorySink.
func (d *ClickHouseDB) AppendPositions(ctx context.Context, reports []track.PositionReport) error {
	if len(reports) == 0 {
		return nil
	}
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO position_history (
			device_id, latitude, longitude, altitude, speed, course,
			satellite_count, horizontal_dilution, device_name, body_number,
			source_date, source_time, received_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare history batch: %w", err)
	}
	for _, r := range reports {
		if err := batch.Append(
			r.DeviceID, r.Latitude, r.Longitude, r.Altitude, r.Speed, r.Course,
			int32(r.SatelliteCount), r.HorizontalDilution, r.DeviceName, r.BodyNumber,
			r.Date, r.Time, r.ReceivedAt,
		); err != nil {
			return fmt.Errorf("append history row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send history batch: %w", err)
	}
	return nil
}

// RecentPositions returns the latest history rows for one device, newest
// first, for the authenticated history endpoint.
func (d *ClickHouseDB) RecentPositions(ctx context.Context, deviceID string, limit int) ([]track.PositionReport, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT device_id, latitude, longitude, altitude, speed, course,
		       satellite_count, horizontal_dilution, device_name, body_number,
		       source_date, source_time, received_at
		FROM position_history
		WHERE device_id = ?
		ORDER BY received_at DESC
		LIMIT ?
	`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []track.PositionReport
	for rows.Next() {
		var r track.PositionReport
		var satellites int32
		if err := rows.Scan(
			&r.DeviceID, &r.Latitude, &r.Longitude, &r.Altitude, &r.Speed, &r.Course,
			&satellites, &r.HorizontalDilution, &r.DeviceName, &r.BodyNumber,
			&r.Date, &r.Time, &r.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.SatelliteCount = int(satellites)
		out = append(out, r)
	}
	return out, rows.Err()
}
