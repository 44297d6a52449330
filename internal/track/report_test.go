package track

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeFlatShape(t *testing.T) {
	raw := []byte(`{
		"device_id": "bus-12",
		"latitude": 14.5,
		"longitude": 121.0,
		"altitude": 31.2,
		"speed": 42.5,
		"course": 180.0,
		"satellite_count": 9,
		"horizontal_dilution": 1.1,
		"device_name": "Bus 12",
		"body_number": "B-012",
		"date": "010625",
		"time": "115959"
	}`)

	r, err := Normalize(raw, testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if r.DeviceID != "bus-12" {
		t.Errorf("DeviceID = %q, want bus-12", r.DeviceID)
	}
	if r.Latitude != 14.5 || r.Longitude != 121.0 {
		t.Errorf("coords = (%v,%v), want (14.5,121.0)", r.Latitude, r.Longitude)
	}
	if r.SatelliteCount != 9 || r.Speed != 42.5 {
		t.Errorf("telemetry not carried: satellites=%d speed=%v", r.SatelliteCount, r.Speed)
	}
	if r.DeviceName != "Bus 12" || r.BodyNumber != "B-012" {
		t.Errorf("identity fields not carried: %q %q", r.DeviceName, r.BodyNumber)
	}
	if !r.ReceivedAt.Equal(testNow) {
		t.Errorf("ReceivedAt = %v, want server clock %v", r.ReceivedAt, testNow)
	}
}

func TestNormalizeNestedShape(t *testing.T) {
	raw := []byte(`{
		"device_info": {"device_id": "bus-12", "device_name": "Bus 12", "body_number": "B-012"},
		"gps_data": {"latitude": 14.5, "longitude": 121.0, "speed": 42.5, "satellite_count": 9, "date": "010625", "time": "115959"}
	}`)

	r, err := Normalize(raw, testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	flat, err := Normalize([]byte(`{
		"device_id": "bus-12", "device_name": "Bus 12", "body_number": "B-012",
		"latitude": 14.5, "longitude": 121.0, "speed": 42.5, "satellite_count": 9,
		"date": "010625", "time": "115959"
	}`), testNow)
	if err != nil {
		t.Fatalf("Normalize flat equivalent: %v", err)
	}
	if r != flat {
		t.Errorf("nested and flat shapes disagree:\n nested %+v\n flat   %+v", r, flat)
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing device_id", `{"latitude": 14.5, "longitude": 121.0}`},
		{"missing latitude", `{"device_id": "bus-12", "longitude": 121.0}`},
		{"missing longitude", `{"device_id": "bus-12", "latitude": 14.5}`},
		{"blank device_id", `{"device_id": "  ", "latitude": 14.5, "longitude": 121.0}`},
		{"latitude out of range", `{"device_id": "bus-12", "latitude": 95.0, "longitude": 121.0}`},
		{"longitude out of range", `{"device_id": "bus-12", "latitude": 14.5, "longitude": -181.0}`},
		{"nested missing gps_data", `{"device_info": {"device_id": "bus-12"}}`},
		{"malformed json", `{"device_id": "bus-12",`},
		{"wrong types", `{"device_id": "bus-12", "latitude": "north", "longitude": 121.0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize([]byte(tt.raw), testNow)
			if !errors.Is(err, ErrInvalidReport) {
				t.Fatalf("err = %v, want ErrInvalidReport", err)
			}
			// Rejection is idempotent: same input, same error kind.
			_, again := Normalize([]byte(tt.raw), testNow)
			if !errors.Is(again, ErrInvalidReport) {
				t.Fatalf("second rejection = %v, want ErrInvalidReport", again)
			}
		})
	}
}

func TestNormalizeZeroCoordinatesAreValid(t *testing.T) {
	r, err := Normalize([]byte(`{"device_id": "buoy-1", "latitude": 0, "longitude": 0}`), testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if r.Latitude != 0 || r.Longitude != 0 {
		t.Errorf("coords = (%v,%v), want (0,0)", r.Latitude, r.Longitude)
	}
}
