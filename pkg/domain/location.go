package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LocationFix is one location sample from the OS provider. Transient; the
// reconciler retains at most one "last known" fix in memory.
type LocationFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Speed     float64 `json:"speed"`
	Course    float64 `json:"course"`
	Altitude  float64 `json:"altitude"`

	FirstSeenAt          time.Time `json:"timestamp"`
	CapturedInBackground bool      `json:"in_background"`
}

// SamePoint reports whether two fixes are duplicates. Duplicates are exact
// bit-identical coordinates; fixes differing by any epsilon count as
// distinct. Duplicate fixes never trigger a server update or a geofence
// re-arm.
func (f *LocationFix) SamePoint(other *LocationFix) bool {
	if other == nil {
		return false
	}
	return f.Latitude == other.Latitude && f.Longitude == other.Longitude
}

// GeofenceTransition is the kind of boundary event the OS reported.
type GeofenceTransition int

const (
	TransitionEnter GeofenceTransition = 1 << iota
	TransitionExit
	TransitionDwell
)

// GeofenceRegion is one circular region monitored by the OS. Exactly one
// region is active at a time; each accepted fix replaces it with a freshly
// identified one so callbacks referencing a stale id can be ignored.
type GeofenceRegion struct {
	ID           string  `json:"identifier"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius"`
}

// NewGeofenceRegion builds a region centered on the given fix. Region ids
// are never reused.
func NewGeofenceRegion(fix *LocationFix, radiusMeters float64) GeofenceRegion {
	return GeofenceRegion{
		ID:           fmt.Sprintf("gf_%s", uuid.NewString()),
		Latitude:     fix.Latitude,
		Longitude:    fix.Longitude,
		RadiusMeters: radiusMeters,
	}
}
