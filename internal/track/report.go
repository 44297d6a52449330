package track

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidReport marks an inbound report that failed validation. Handlers
// map it to a 400; everything else coming out of Ingest is a server fault.
var ErrInvalidReport = errors.New("invalid position report")

// PositionReport is the canonical record kept in the live cache and written
// to history. ReceivedAt is assigned by the server at ingestion time and is
// the authority for staleness and ordering; client-supplied Date/Time are
// carried verbatim as telemetry only.
type PositionReport struct {
	DeviceID           string  `json:"device_id"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	Altitude           float64 `json:"altitude,omitempty"`
	Speed              float64 `json:"speed,omitempty"`
	Course             float64 `json:"course,omitempty"`
	SatelliteCount     int     `json:"satellite_count,omitempty"`
	HorizontalDilution float64 `json:"horizontal_dilution,omitempty"`
	DeviceName         string  `json:"device_name,omitempty"`
	BodyNumber         string  `json:"body_number,omitempty"`
	Date               string  `json:"date,omitempty"`
	Time               string  `json:"time,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// rawReport accepts both wire shapes: the flat payload most trackers send
// and the nested {device_info, gps_data} payload from the richer gateways.
// Pointers distinguish "absent" from a legitimate zero coordinate.
type rawReport struct {
	DeviceID           string   `json:"device_id"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	Altitude           *float64 `json:"altitude"`
	Speed              *float64 `json:"speed"`
	Course             *float64 `json:"course"`
	SatelliteCount     *int     `json:"satellite_count"`
	HorizontalDilution *float64 `json:"horizontal_dilution"`
	DeviceName         string   `json:"device_name"`
	BodyNumber         string   `json:"body_number"`
	Date               string   `json:"date"`
	Time               string   `json:"time"`

	DeviceInfo *rawDeviceInfo `json:"device_info"`
	GPSData    *rawGPSData    `json:"gps_data"`
}

type rawDeviceInfo struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	BodyNumber string `json:"body_number"`
}

type rawGPSData struct {
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	Altitude           *float64 `json:"altitude"`
	Speed              *float64 `json:"speed"`
	Course             *float64 `json:"course"`
	SatelliteCount     *int     `json:"satellite_count"`
	HorizontalDilution *float64 `json:"horizontal_dilution"`
	Date               string   `json:"date"`
	Time               string   `json:"time"`
}

// canonicalReport is what the validator checks after both shapes have been
// folded into one record.
type canonicalReport struct {
	DeviceID  string   `validate:"required"`
	Latitude  *float64 `validate:"required,gte=-90,lte=90"`
	Longitude *float64 `validate:"required,gte=-180,lte=180"`
}

// validate caches struct metadata internally; sharing one instance is the
// documented usage.
var validate = validator.New()

// Normalize parses one inbound payload (flat or nested shape) into the
// canonical PositionReport, stamping it with now. It is a pure function:
// no side effects beyond validation. The same malformed input always yields
// ErrInvalidReport.
func Normalize(raw []byte, now time.Time) (PositionReport, error) {
	var in rawReport
	if err := json.Unmarshal(raw, &in); err != nil {
		return PositionReport{}, fmt.Errorf("%w: malformed json: %v", ErrInvalidReport, err)
	}

	r := in.fold(now)

	c := canonicalReport{DeviceID: r.DeviceID}
	if in.Latitude != nil || (in.GPSData != nil && in.GPSData.Latitude != nil) {
		lat := r.Latitude
		c.Latitude = &lat
	}
	if in.Longitude != nil || (in.GPSData != nil && in.GPSData.Longitude != nil) {
		lon := r.Longitude
		c.Longitude = &lon
	}
	if err := validate.Struct(c); err != nil {
		return PositionReport{}, fmt.Errorf("%w: %s", ErrInvalidReport, firstFieldError(err))
	}

	return r, nil
}

// fold collapses the nested shape into the flat one. Nested values win when
// both are present; the nested shape is the richer source.
func (in rawReport) fold(now time.Time) PositionReport {
	r := PositionReport{
		DeviceID:   strings.TrimSpace(in.DeviceID),
		DeviceName: strings.TrimSpace(in.DeviceName),
		BodyNumber: strings.TrimSpace(in.BodyNumber),
		Date:       strings.TrimSpace(in.Date),
		Time:       strings.TrimSpace(in.Time),
		ReceivedAt: now,
	}
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setF(&r.Latitude, in.Latitude)
	setF(&r.Longitude, in.Longitude)
	setF(&r.Altitude, in.Altitude)
	setF(&r.Speed, in.Speed)
	setF(&r.Course, in.Course)
	setF(&r.HorizontalDilution, in.HorizontalDilution)
	if in.SatelliteCount != nil {
		r.SatelliteCount = *in.SatelliteCount
	}

	if di := in.DeviceInfo; di != nil {
		if v := strings.TrimSpace(di.DeviceID); v != "" {
			r.DeviceID = v
		}
		if v := strings.TrimSpace(di.DeviceName); v != "" {
			r.DeviceName = v
		}
		if v := strings.TrimSpace(di.BodyNumber); v != "" {
			r.BodyNumber = v
		}
	}
	if g := in.GPSData; g != nil {
		setF(&r.Latitude, g.Latitude)
		setF(&r.Longitude, g.Longitude)
		setF(&r.Altitude, g.Altitude)
		setF(&r.Speed, g.Speed)
		setF(&r.Course, g.Course)
		setF(&r.HorizontalDilution, g.HorizontalDilution)
		if g.SatelliteCount != nil {
			r.SatelliteCount = *g.SatelliteCount
		}
		if v := strings.TrimSpace(g.Date); v != "" {
			r.Date = v
		}
		if v := strings.TrimSpace(g.Time); v != "" {
			r.Time = v
		}
	}
	return r
}

func firstFieldError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("missing %s", strings.ToLower(fe.Field()))
		default:
			return fmt.Sprintf("%s out of range", strings.ToLower(fe.Field()))
		}
	}
	return err.Error()
}
