package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"fleet-tracker/internal/domain"
)

// FallbackAssetID is used when a report carries no asset identifier.
const FallbackAssetID = "vehicle1"

var (
	ErrWrongTopic     = errors.New("unexpected topic")
	ErrBadPayload     = errors.New("unparsable payload")
	ErrBadCoordinates = errors.New("invalid coordinates")
)

// rawReport mirrors the inbound wire format. Pointer fields distinguish
// absent from zero.
type rawReport struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp *float64 `json:"timestamp"`
	VehicleID string   `json:"vehicleId"`
	AssetID   string   `json:"assetId"`
	Name      string   `json:"name"`
}

// Normalizer validates and canonicalizes raw position reports. It has
// no side effects: a bad report is returned as an error and the caller
// decides what to log.
type Normalizer struct {
	topic string
	now   func() time.Time
}

func NewNormalizer(topic string) *Normalizer {
	return &Normalizer{topic: topic, now: time.Now}
}

// Normalize turns one raw message into a Report, or rejects it. A
// missing timestamp is substituted with the ingestion clock; a missing
// asset id falls back to FallbackAssetID.
func (n *Normalizer) Normalize(raw []byte, topic string) (domain.Report, error) {
	if topic != n.topic {
		return domain.Report{}, fmt.Errorf("%w: got %q, want %q", ErrWrongTopic, topic, n.topic)
	}

	var msg rawReport
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.Report{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	if msg.Latitude == nil || msg.Longitude == nil {
		return domain.Report{}, fmt.Errorf("%w: latitude/longitude missing", ErrBadCoordinates)
	}
	lat, lng := *msg.Latitude, *msg.Longitude
	if !isFinite(lat) || !isFinite(lng) {
		return domain.Report{}, fmt.Errorf("%w: latitude/longitude not finite", ErrBadCoordinates)
	}
	if lat < -90 || lat > 90 {
		return domain.Report{}, fmt.Errorf("%w: latitude %v out of range", ErrBadCoordinates, lat)
	}
	if lng < -180 || lng > 180 {
		return domain.Report{}, fmt.Errorf("%w: longitude %v out of range", ErrBadCoordinates, lng)
	}

	receivedAt := n.now()

	ts := receivedAt.UnixMilli()
	if msg.Timestamp != nil && isFinite(*msg.Timestamp) {
		ts = int64(*msg.Timestamp)
	}

	id := msg.AssetID
	if id == "" {
		id = msg.VehicleID
	}
	if id == "" {
		id = FallbackAssetID
	}

	return domain.Report{
		AssetID: id,
		Name:    msg.Name,
		Position: domain.Position{
			Latitude:  lat,
			Longitude: lng,
			Timestamp: ts,
		},
		ReceivedAt: receivedAt,
		RawPayload: raw,
	}, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
