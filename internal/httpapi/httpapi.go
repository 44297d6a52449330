package httpapi

import (
	"context"

	"github.com/google/uuid"

	"fleettrack/internal/track"
)

// SessionValidator is the external collaborator gating the live feed. It
// resolves a bearer token to a principal; ok=false means the session is
// unknown, revoked, or expired.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (userID uuid.UUID, ok bool, err error)
}

// HistoryStore serves the authenticated recent-history endpoint.
type HistoryStore interface {
	RecentPositions(ctx context.Context, deviceID string, limit int) ([]track.PositionReport, error)
}

type Deps struct {
	Engine   *track.Engine
	Sessions SessionValidator
	History  HistoryStore

	// MaxReportBytes caps the ingest request body; zero uses 64 KiB.
	MaxReportBytes int64
}
