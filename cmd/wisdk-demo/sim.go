package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
	"github.com/3-electric-sheep/wisdk-go/pkg/location"
	"github.com/3-electric-sheep/wisdk-go/pkg/push"
)

// simLocationProvider is an always-authorized location source that walks
// a small path around Melbourne, emitting one fix per tick while updates
// are requested.
type simLocationProvider struct {
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	settings location.Settings
	running  bool
	stop     chan struct{}
	regions  []domain.GeofenceRegion
	last     *domain.LocationFix
	step     int

	locSubs  []func(location.LocationEvent)
	geoSubs  []func(location.GeofenceEvent)
	permSubs []func(location.Permission)
	bootSubs []func()
}

func newSimLocationProvider(interval time.Duration, logger *slog.Logger) *simLocationProvider {
	return &simLocationProvider{
		interval: interval,
		logger:   logger,
	}
}

func (p *simLocationProvider) Configure(s location.Settings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = s
	return nil
}

func (p *simLocationProvider) Connect(allowBackground bool) error {
	return nil
}

func (p *simLocationProvider) RequestLocationUpdates() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.stop = make(chan struct{})
	go p.run(p.stop)
	return nil
}

func (p *simLocationProvider) RemoveLocationUpdates() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false
	close(p.stop)
	return nil
}

func (p *simLocationProvider) run(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fix := p.nextFix()
			p.mu.Lock()
			subs := append([]func(location.LocationEvent){}, p.locSubs...)
			p.mu.Unlock()
			for _, fn := range subs {
				fn(location.LocationEvent{Fixes: []domain.LocationFix{fix}})
			}
		}
	}
}

// nextFix advances the simulated walk by roughly 50m per tick.
func (p *simLocationProvider) nextFix() domain.LocationFix {
	p.mu.Lock()
	defer p.mu.Unlock()

	fix := domain.LocationFix{
		Latitude:    -37.813629 + float64(p.step)*0.0005,
		Longitude:   144.963058 + float64(p.step%4)*0.0005,
		Accuracy:    10,
		FirstSeenAt: time.Now(),
	}
	p.step++
	p.last = &fix
	return fix
}

func (p *simLocationProvider) LastKnownLocation(ctx context.Context) (*domain.LocationFix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil, nil
	}
	fix := *p.last
	return &fix, nil
}

func (p *simLocationProvider) AddGeofences(ctx context.Context, regions []domain.GeofenceRegion) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regions = append(p.regions, regions...)
	for _, r := range regions {
		p.logger.Debug("geofence armed", "id", r.ID, "lat", r.Latitude, "lon", r.Longitude)
	}
	return nil
}

func (p *simLocationProvider) ClearGeofences() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regions = nil
	return nil
}

func (p *simLocationProvider) CheckPermission(ctx context.Context, scope domain.PermissionScope) (location.Permission, error) {
	return location.Permission{Status: location.PermAuthorized, Scope: scope}, nil
}

func (p *simLocationProvider) RequestPermission(ctx context.Context, scope domain.PermissionScope, title, body string) error {
	return nil
}

func (p *simLocationProvider) OnLocationUpdate(fn func(location.LocationEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locSubs = append(p.locSubs, fn)
	return func() {}
}

func (p *simLocationProvider) OnGeofenceUpdate(fn func(location.GeofenceEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.geoSubs = append(p.geoSubs, fn)
	return func() {}
}

func (p *simLocationProvider) OnPermissionChange(fn func(location.Permission)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permSubs = append(p.permSubs, fn)
	return func() {}
}

func (p *simLocationProvider) OnBoot(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bootSubs = append(p.bootSubs, fn)
	return func() {}
}

// Close stops the fix ticker.
func (p *simLocationProvider) Close() {
	_ = p.RemoveLocationUpdates()
}

// simPushProvider hands out a fixed token and never delivers messages.
type simPushProvider struct {
	logger *slog.Logger
}

func newSimPushProvider(logger *slog.Logger) *simPushProvider {
	return &simPushProvider{logger: logger}
}

func (p *simPushProvider) Token(ctx context.Context) (string, error) {
	return "sim-push-token", nil
}

func (p *simPushProvider) OnTokenRefresh(fn func(string)) func() {
	return func() {}
}

func (p *simPushProvider) OnForegroundMessage(fn func(push.Message)) func() {
	return func() {}
}

func (p *simPushProvider) OnBackgroundMessage(fn func(push.Message)) func() {
	return func() {}
}

func (p *simPushProvider) InitialNotification(ctx context.Context) (*push.Message, error) {
	return nil, nil
}

func (p *simPushProvider) HasPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (p *simPushProvider) RequestPermission(ctx context.Context) error {
	return nil
}
