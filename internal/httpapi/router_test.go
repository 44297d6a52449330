package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"fleettrack/internal/track"
)

type nullSink struct{}

func (nullSink) AppendPositions(context.Context, []track.PositionReport) error { return nil }

type fakeSessions struct {
	token  string
	userID uuid.UUID
}

func (f fakeSessions) Validate(_ context.Context, token string) (uuid.UUID, bool, error) {
	if token == f.token {
		return f.userID, true, nil
	}
	return uuid.Nil, false, nil
}

type fakeHistory struct {
	reports []track.PositionReport
	err     error
}

func (f fakeHistory) RecentPositions(_ context.Context, _ string, _ int) ([]track.PositionReport, error) {
	return f.reports, f.err
}

func newTestRouter(t *testing.T, history HistoryStore) (http.Handler, *track.Engine) {
	t.Helper()
	engine := track.New(track.Options{Sink: nullSink{}})
	h := NewRouter(Deps{
		Engine:   engine,
		Sessions: fakeSessions{token: "good-token", userID: uuid.New()},
		History:  history,
	})
	return h, engine
}

func TestIngestAcceptsValidReport(t *testing.T) {
	h, engine := newTestRouter(t, fakeHistory{})

	body := `{"device_id":"bus-12","latitude":14.5,"longitude":121.0}`
	req := httptest.NewRequest(http.MethodPost, "/v1/positions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", rec.Code, rec.Body.String())
	}
	var got track.PositionReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("ack not a canonical record: %v", err)
	}
	if got.DeviceID != "bus-12" || got.ReceivedAt.IsZero() {
		t.Errorf("ack = %+v", got)
	}
	if len(engine.Snapshot()) != 1 {
		t.Error("accepted report missing from the live cache")
	}
}

func TestIngestRejectsIncompleteReport(t *testing.T) {
	h, engine := newTestRouter(t, fakeHistory{})

	req := httptest.NewRequest(http.MethodPost, "/v1/positions",
		strings.NewReader(`{"device_id":"bus-12","latitude":14.5}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(engine.Snapshot()) != 0 {
		t.Error("rejected report entered the live cache")
	}
}

func TestSnapshotRequiresSession(t *testing.T) {
	h, _ := newTestRouter(t, fakeHistory{})

	req := httptest.NewRequest(http.MethodGet, "/v1/positions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/positions", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rec.Code)
	}
}

func TestSnapshotReturnsFleet(t *testing.T) {
	h, engine := newTestRouter(t, fakeHistory{})
	if _, err := engine.Ingest([]byte(`{"device_id":"bus-12","latitude":14.5,"longitude":121.0}`)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/positions", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []track.PositionReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("body: %v", err)
	}
	if len(got) != 1 || got[0].DeviceID != "bus-12" {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestDeviceHistory(t *testing.T) {
	want := []track.PositionReport{{DeviceID: "bus-12", Latitude: 14.5, Longitude: 121.0}}
	h, _ := newTestRouter(t, fakeHistory{reports: want})

	req := httptest.NewRequest(http.MethodGet, "/v1/history/bus-12?limit=10", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	var got []track.PositionReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("body: %v", err)
	}
	if len(got) != 1 || got[0].DeviceID != "bus-12" {
		t.Errorf("history = %+v", got)
	}
}

func TestDeviceHistoryRejectsBadLimit(t *testing.T) {
	h, _ := newTestRouter(t, fakeHistory{})

	req := httptest.NewRequest(http.MethodGet, "/v1/history/bus-12?limit=abc", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t, fakeHistory{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
