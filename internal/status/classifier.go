package status

import (
	"math"
	"time"

	"fleet-tracker/internal/domain"
)

// Default classification thresholds.
const (
	DefaultOfflineThreshold = 120 * time.Second
	DefaultIdleThreshold    = 30 * time.Second
	DefaultMoveThresholdM   = 2.0
)

const earthRadiusM = 6371000.0

// Classifier derives an activity status from the age and magnitude of
// an asset's motion. It is a pure function of its inputs and is
// re-evaluated per observation cycle rather than cached.
type Classifier struct {
	offlineThreshold time.Duration
	idleThreshold    time.Duration
	moveThresholdM   float64
}

func NewClassifier(offline, idle time.Duration, moveM float64) *Classifier {
	return &Classifier{
		offlineThreshold: offline,
		idleThreshold:    idle,
		moveThresholdM:   moveM,
	}
}

func NewDefaultClassifier() *Classifier {
	return NewClassifier(DefaultOfflineThreshold, DefaultIdleThreshold, DefaultMoveThresholdM)
}

// Classify decides the status of an asset at the instant `now`.
// Precedence: offline beats everything; moving requires displacement
// evidence from the last two path points AND a fresh report; a fresh
// report without displacement is idling; anything else is stopped.
// An asset with fewer than two path points is never moving.
func (c *Classifier) Classify(current domain.Position, path []domain.Position, now time.Time) domain.Status {
	age := now.Sub(current.Time())

	if age > c.offlineThreshold {
		return domain.StatusOffline
	}

	if len(path) >= 2 && age <= c.idleThreshold {
		a, b := path[len(path)-2], path[len(path)-1]
		if DistanceMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude) > c.moveThresholdM {
			return domain.StatusMoving
		}
	}

	if age <= c.idleThreshold {
		return domain.StatusIdling
	}

	return domain.StatusStopped
}

// DistanceMeters returns the great-circle distance between two
// coordinates using the haversine formula on a spherical earth. Not
// geodesically exact, but well within tolerance for a meter-scale
// movement threshold.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)

	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
