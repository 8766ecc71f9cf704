// Package location owns the permission state machine: it reconciles the
// OS location permission with the configured requirement, starts and
// stops fix monitoring, de-duplicates fixes and keeps exactly one
// geofence region armed around the latest accepted fix.
package location

import (
	"context"
	"time"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
)

// PermissionStatus is the OS-reported location permission.
type PermissionStatus string

const (
	PermUndetermined PermissionStatus = "undetermined"
	PermRestricted   PermissionStatus = "restricted"
	PermDenied       PermissionStatus = "denied"
	PermAuthorized   PermissionStatus = "authorized"
)

// Permission is one OS permission query result: what was granted and at
// which scope.
type Permission struct {
	Status PermissionStatus
	Scope  domain.PermissionScope
}

// LocationEvent is one batch of fixes delivered by the provider. A failed
// read carries Err and no fixes.
type LocationEvent struct {
	Fixes []domain.LocationFix
	Err   error
}

// GeofenceEvent is one region boundary crossing.
type GeofenceEvent struct {
	Fix        domain.LocationFix
	Transition domain.GeofenceTransition
	Err        error
}

// Settings tunes the provider and the reconciler's permission handling.
type Settings struct {
	// RequireBackground asks the OS for the always-on grant rather than
	// the in-use one.
	RequireBackground bool

	// GeofenceRadius is the radius in meters of the single armed region.
	GeofenceRadius float64

	UpdateInterval        time.Duration
	FastestUpdateInterval time.Duration
	MaxWaitTime           time.Duration
	LoiteringDelay        time.Duration

	// TransitionMask selects which boundary crossings the provider
	// delivers.
	TransitionMask domain.GeofenceTransition

	// AskForPermission enables the OS prompt on an undetermined grant.
	// AskForFullPermission extends the nag to partial grants.
	AskForPermission     bool
	AskForFullPermission bool
	PromptTitle          string
	PromptBody           string

	// Nag backoff: re-prompt only after base^count days, give up after
	// max count prompts.
	NagIntervalBaseDays float64
	NagMaxCount         int
}

// Provider is the OS location and geofencing bridge. Subscription
// functions return an unsubscribe func. Implementations deliver events
// from their own goroutines; the reconciler serializes them.
type Provider interface {
	Configure(Settings) error
	Connect(allowBackground bool) error

	RequestLocationUpdates() error
	RemoveLocationUpdates() error
	LastKnownLocation(ctx context.Context) (*domain.LocationFix, error)

	AddGeofences(ctx context.Context, regions []domain.GeofenceRegion) error
	ClearGeofences() error

	CheckPermission(ctx context.Context, scope domain.PermissionScope) (Permission, error)
	RequestPermission(ctx context.Context, scope domain.PermissionScope, title, body string) error

	OnLocationUpdate(fn func(LocationEvent)) (unsubscribe func())
	OnGeofenceUpdate(fn func(GeofenceEvent)) (unsubscribe func())
	OnPermissionChange(fn func(Permission)) (unsubscribe func())
	OnBoot(fn func()) (unsubscribe func())
}

// Updater receives accepted fixes. Implemented by the device registrar.
type Updater interface {
	SendUpdate(ctx context.Context, fix *domain.LocationFix, background bool, onSuccess func(), forceCreate bool) error
}
