package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fleettrack/internal/track"
)

// handleIngestPosition accepts one report in the flat or nested shape and
// acknowledges with the canonical record. Validation failures are the
// caller's problem (400); they never disturb the live state.
func (s server) handleIngestPosition(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxReportBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body unreadable or too large"})
		return
	}

	report, err := s.engine.Ingest(body)
	if errors.Is(err, track.ErrInvalidReport) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		logError(r.Context(), "ingest failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ingest failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, report)
}

// handleListPositions returns a point-in-time snapshot of the fleet.
func (s server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleDeviceHistory returns recent persisted positions for one device,
// newest first.
func (s server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(chi.URLParam(r, "deviceID"))
	if deviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing device id"})
		return
	}

	limit := 100
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = clampInt(n, 1, 500)
	}

	reports, err := s.history.RecentPositions(r.Context(), deviceID, limit)
	if err != nil {
		logError(r.Context(), "history query failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history query failed"})
		return
	}
	if reports == nil {
		reports = []track.PositionReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}
