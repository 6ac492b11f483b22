package domain

import "time"

// Position is one timestamped GPS observation. Timestamp is wall-clock
// milliseconds, matching the inbound wire format.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// Time returns the observation time.
func (p Position) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// Status is the derived activity classification of an asset.
type Status string

const (
	StatusMoving  Status = "moving"
	StatusIdling  Status = "idling"
	StatusStopped Status = "stopped"
	StatusOffline Status = "offline"
)

// Report is a single normalized position report, ready to be stored.
type Report struct {
	AssetID  string
	Name     string
	Position Position

	ReceivedAt time.Time

	// Original payload bytes, kept for the durable archive
	RawPayload []byte
}

// Asset is the stored view of one tracked entity: its last-known
// position plus the bounded recent-history trail.
type Asset struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Current Position   `json:"current"`
	Path    []Position `json:"path"`
}

// AssetState is an Asset plus its derived status, assembled right
// before broadcast. Status is never stored.
type AssetState struct {
	Asset
	Status Status `json:"status"`
}

// Snapshot is a frozen copy of an asset's path, captured the moment the
// asset transitions into offline. At most one is retained per asset.
type Snapshot struct {
	AssetID      string     `json:"assetId"`
	CapturedPath []Position `json:"capturedPath"`
	CapturedAt   int64      `json:"capturedAt"`
}

// Summary carries only the classification, for consumers that do not
// need raw geometry.
type Summary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}
