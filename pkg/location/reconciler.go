package location

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
	"github.com/3-electric-sheep/wisdk-go/pkg/repository"
)

// State is the reconciler's view of the location permission.
type State int

const (
	StateUndetermined State = iota
	StateDenied
	StateRestricted
	StateAuthorizedForeground
	StateAuthorizedBackground
)

// Authorized reports whether any location capability is usable.
func (s State) Authorized() bool {
	return s == StateAuthorizedForeground || s == StateAuthorizedBackground
}

// String renders the state as the server-facing permission status. Both
// authorized scopes collapse to "authorized"; the scope travels
// separately as the location type.
func (s State) String() string {
	switch s {
	case StateDenied:
		return "denied"
	case StateRestricted:
		return "restricted"
	case StateAuthorizedForeground, StateAuthorizedBackground:
		return "authorized"
	default:
		return "undetermined"
	}
}

// Callbacks notify the host of reconciler activity. All fields are
// optional.
type Callbacks struct {
	OnLocationUpdate   func(fix domain.LocationFix)
	OnGeofenceUpdate   func(fix domain.LocationFix)
	OnPermissionChange func(perm Permission)
	OnBoot             func()

	// AskForPermission is the nag: the host shows its own UI asking the
	// user to upgrade the grant.
	AskForPermission func()

	OnError func(stage string, err error)
}

func (c *Callbacks) normalize() {
	if c.OnLocationUpdate == nil {
		c.OnLocationUpdate = func(domain.LocationFix) {}
	}
	if c.OnGeofenceUpdate == nil {
		c.OnGeofenceUpdate = func(domain.LocationFix) {}
	}
	if c.OnPermissionChange == nil {
		c.OnPermissionChange = func(Permission) {}
	}
	if c.OnBoot == nil {
		c.OnBoot = func() {}
	}
	if c.AskForPermission == nil {
		c.AskForPermission = func() {}
	}
	if c.OnError == nil {
		c.OnError = func(string, error) {}
	}
}

// Reconciler drives monitoring from permission state. Provider failures
// are reported and leave the state machine untouched; the next natural
// trigger (permission event, app start) retries.
type Reconciler struct {
	provider Provider
	updater  Updater
	sessions *repository.SessionRepository
	cfg      Settings
	cb       Callbacks
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	state      State
	monitoring bool
	lastFix    *domain.LocationFix

	unsubLoc  func()
	unsubGeo  func()
	unsubPerm func()
	unsubBoot func()
}

// NewReconciler creates the state machine. Configure must be called
// before monitoring can start.
func NewReconciler(provider Provider, updater Updater, sessions *repository.SessionRepository, cfg Settings, cb Callbacks, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	cb.normalize()
	return &Reconciler{
		provider: provider,
		updater:  updater,
		sessions: sessions,
		cfg:      cfg,
		cb:       cb,
		logger:   logger,
		now:      time.Now,
	}
}

// Configure pushes the tuning settings down to the provider.
func (r *Reconciler) Configure() error {
	return r.provider.Configure(r.cfg)
}

// State returns the current permission state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Monitoring reports whether location updates are flowing.
func (r *Reconciler) Monitoring() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitoring
}

// LastFix returns a copy of the last accepted fix, nil when none yet.
func (r *Reconciler) LastFix() *domain.LocationFix {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastFix == nil {
		return nil
	}
	fix := *r.lastFix
	return &fix
}

func (r *Reconciler) desiredScope() domain.PermissionScope {
	if r.cfg.RequireBackground {
		return domain.ScopeBackground
	}
	return domain.ScopeForeground
}

// CheckAndRequestPermission recomputes the state from the OS, prompting
// once through the provider when the grant is undetermined and nagging
// through the listener when a refused or partial grant is worth another
// ask. It then starts or stops monitoring to match the outcome.
func (r *Reconciler) CheckAndRequestPermission(ctx context.Context) (State, error) {
	scope := r.desiredScope()
	perm, err := r.provider.CheckPermission(ctx, scope)
	if err != nil {
		r.cb.OnError("permission check fail", err)
		return r.State(), err
	}

	// A refused background grant may still hold a foreground one.
	partial := false
	if perm.Status != PermAuthorized && r.cfg.RequireBackground {
		fg, err := r.provider.CheckPermission(ctx, domain.ScopeForeground)
		if err == nil && fg.Status == PermAuthorized {
			perm = fg
			partial = true
		}
	}

	if r.cfg.AskForPermission {
		switch {
		case perm.Status == PermUndetermined:
			if err := r.provider.RequestPermission(ctx, scope, r.cfg.PromptTitle, r.cfg.PromptBody); err != nil {
				r.cb.OnError("permission request fail", err)
			} else if granted, err := r.provider.CheckPermission(ctx, scope); err == nil {
				perm = granted
				partial = false
			}
		case perm.Status == PermDenied, partial && r.cfg.AskForFullPermission:
			r.nag(ctx)
		}
	}

	r.ApplyPermission(ctx, perm)
	return r.State(), nil
}

// ApplyPermission folds one OS permission result into the state machine:
// authorized states start monitoring, everything else stops it and keeps
// only the permission-change subscription alive.
func (r *Reconciler) ApplyPermission(ctx context.Context, perm Permission) {
	r.mu.Lock()
	switch {
	case perm.Status == PermAuthorized && perm.Scope == domain.ScopeBackground:
		r.state = StateAuthorizedBackground
	case perm.Status == PermAuthorized:
		r.state = StateAuthorizedForeground
	case perm.Status == PermDenied:
		r.state = StateDenied
	case perm.Status == PermRestricted:
		r.state = StateRestricted
	default:
		r.state = StateUndetermined
	}
	authorized := r.state.Authorized()
	r.mu.Unlock()

	if authorized {
		r.EnsureMonitoring(ctx)
	} else {
		r.DisableMonitoring()
		r.WatchPermissionChanges()
	}
}

// EnsureMonitoring connects the provider, installs callbacks and starts
// location updates, then seeds the pipeline with the last known
// location. Idempotent: already-monitoring is a no-op. A provider
// failure leaves monitoring off and state unchanged.
func (r *Reconciler) EnsureMonitoring(ctx context.Context) {
	r.mu.Lock()
	if !r.state.Authorized() || r.monitoring {
		r.mu.Unlock()
		return
	}
	allowBackground := r.state == StateAuthorizedBackground

	if err := r.provider.Connect(allowBackground); err != nil {
		r.mu.Unlock()
		r.cb.OnError("ensure monitoring failed", err)
		return
	}
	r.installCallbacksLocked(true)

	if err := r.provider.RequestLocationUpdates(); err != nil {
		r.mu.Unlock()
		r.cb.OnError("ensure monitoring failed", err)
		return
	}
	r.monitoring = true
	r.mu.Unlock()

	r.RefreshLastKnown(ctx)
}

// DisableMonitoring stops updates and drops the armed region, keeping
// the permission subscription so a later grant restarts us. Idempotent.
func (r *Reconciler) DisableMonitoring() {
	r.mu.Lock()
	if !r.monitoring {
		r.mu.Unlock()
		return
	}
	r.clearCallbacksLocked(true)
	r.monitoring = false
	r.mu.Unlock()

	if err := r.provider.RemoveLocationUpdates(); err != nil {
		r.cb.OnError("remove updates fail", err)
	}
	if err := r.provider.ClearGeofences(); err != nil {
		r.cb.OnError("clear geofences fail", err)
	}
}

// WatchPermissionChanges keeps a foreground-only provider connection
// alive so permission upgrades still reach us while unauthorized.
func (r *Reconciler) WatchPermissionChanges() {
	if err := r.provider.Connect(false); err != nil {
		r.cb.OnError("permission watch fail", err)
		return
	}
	r.mu.Lock()
	if r.unsubPerm != nil {
		r.unsubPerm()
	}
	r.unsubPerm = r.provider.OnPermissionChange(r.handlePermissionChange)
	r.mu.Unlock()
}

// ResubscribeCallbacks reattaches every provider subscription after a
// background wake, without flipping the monitoring flag. The OS kept
// monitoring alive across the process restart; only our callbacks died.
func (r *Reconciler) ResubscribeCallbacks() {
	if err := r.provider.Connect(true); err != nil {
		r.cb.OnError("provider connect fail", err)
		return
	}
	r.mu.Lock()
	r.installCallbacksLocked(false)
	r.mu.Unlock()
}

func (r *Reconciler) installCallbacksLocked(keepPerm bool) {
	r.clearCallbacksLocked(keepPerm)
	r.unsubLoc = r.provider.OnLocationUpdate(func(ev LocationEvent) {
		r.HandleLocationEvent(context.Background(), ev)
	})
	r.unsubGeo = r.provider.OnGeofenceUpdate(func(ev GeofenceEvent) {
		r.HandleGeofenceEvent(context.Background(), ev)
	})
	r.unsubBoot = r.provider.OnBoot(r.cb.OnBoot)
	if r.unsubPerm == nil || !keepPerm {
		r.unsubPerm = r.provider.OnPermissionChange(r.handlePermissionChange)
	}
}

func (r *Reconciler) clearCallbacksLocked(keepPerm bool) {
	if r.unsubLoc != nil {
		r.unsubLoc()
		r.unsubLoc = nil
	}
	if r.unsubGeo != nil {
		r.unsubGeo()
		r.unsubGeo = nil
	}
	if r.unsubBoot != nil {
		r.unsubBoot()
		r.unsubBoot = nil
	}
	if !keepPerm && r.unsubPerm != nil {
		r.unsubPerm()
		r.unsubPerm = nil
	}
}

// RefreshLastKnown pulls the provider's cached location through the
// normal fix pipeline. No-op unless monitoring.
func (r *Reconciler) RefreshLastKnown(ctx context.Context) {
	if !r.Monitoring() {
		return
	}
	fix, err := r.provider.LastKnownLocation(ctx)
	if err != nil {
		r.cb.OnError("get last location fail", err)
		return
	}
	if fix == nil {
		return
	}
	r.HandleLocationEvent(ctx, LocationEvent{Fixes: []domain.LocationFix{*fix}})
}

// HandleLocationEvent runs one batch of fixes through de-duplication.
// Each fix distinct from the retained last fix is forwarded to the
// updater and the listener in arrival order; the last distinct fix
// becomes the new retained fix and the center of the single re-armed
// geofence region. Duplicates are dropped silently.
func (r *Reconciler) HandleLocationEvent(ctx context.Context, ev LocationEvent) {
	if ev.Err != nil {
		r.cb.OnError("location update failure", ev.Err)
		return
	}
	r.forwardFixes(ctx, ev.Fixes, r.cb.OnLocationUpdate)
}

// HandleGeofenceEvent routes a boundary-crossing fix through the same
// de-duplication path as a plain location update.
func (r *Reconciler) HandleGeofenceEvent(ctx context.Context, ev GeofenceEvent) {
	if ev.Err != nil {
		r.cb.OnError("geofence update failure", ev.Err)
		return
	}
	r.forwardFixes(ctx, []domain.LocationFix{ev.Fix}, r.cb.OnGeofenceUpdate)
}

func (r *Reconciler) forwardFixes(ctx context.Context, fixes []domain.LocationFix, notify func(domain.LocationFix)) {
	r.mu.Lock()
	retained := r.lastFix
	var distinct []domain.LocationFix
	for i := range fixes {
		fix := fixes[i]
		if fix.SamePoint(retained) {
			continue
		}
		distinct = append(distinct, fix)
		retained = &distinct[len(distinct)-1]
	}
	if len(distinct) > 0 {
		last := distinct[len(distinct)-1]
		r.lastFix = &last
	}
	r.mu.Unlock()

	if len(distinct) == 0 {
		return
	}

	for i := range distinct {
		fix := distinct[i]
		if err := r.updater.SendUpdate(ctx, &fix, fix.CapturedInBackground, nil, false); err != nil {
			r.logger.Debug("device update from fix failed", "err", err)
		}
		notify(fix)
	}

	r.rearmGeofence(ctx, distinct[len(distinct)-1])
}

// rearmGeofence replaces the armed region with a fresh one around the
// given fix. Region ids are never reused, so a late callback for the
// old region identifies itself as stale.
func (r *Reconciler) rearmGeofence(ctx context.Context, fix domain.LocationFix) {
	if err := r.provider.ClearGeofences(); err != nil {
		r.cb.OnError("geofence create fail", err)
		return
	}
	region := domain.NewGeofenceRegion(&fix, r.cfg.GeofenceRadius)
	if err := r.provider.AddGeofences(ctx, []domain.GeofenceRegion{region}); err != nil {
		r.cb.OnError("geofence create fail", err)
	}
}

func (r *Reconciler) handlePermissionChange(perm Permission) {
	r.logger.Debug("permission change", "status", string(perm.Status), "scope", string(perm.Scope))
	r.ApplyPermission(context.Background(), perm)
	r.cb.OnPermissionChange(perm)
}

// ShouldNag decides whether the user is due another permission upgrade
// prompt: never nagged means yes, hitting the max count means never
// again, otherwise only once base^count whole days have passed.
func (r *Reconciler) ShouldNag() bool {
	sess := r.sessions.Session()
	if sess.LastPermissionNagAt == nil {
		return true
	}
	if sess.LastPermissionNagCount >= r.cfg.NagMaxCount {
		return false
	}
	days := int(r.now().Sub(*sess.LastPermissionNagAt).Hours() / 24)
	period := math.Pow(r.cfg.NagIntervalBaseDays, float64(sess.LastPermissionNagCount))
	return float64(days) > period
}

// RecordNag stamps now as the last nag and bumps the count, persisting
// immediately.
func (r *Reconciler) RecordNag(ctx context.Context) {
	now := r.now()
	if err := r.sessions.Update(ctx, func(s *domain.Session) {
		if s.LastPermissionNagAt == nil {
			s.LastPermissionNagCount = 1
		} else {
			s.LastPermissionNagCount++
		}
		s.LastPermissionNagAt = &now
	}); err != nil {
		r.cb.OnError("saving token failed", err)
	}
}

func (r *Reconciler) nag(ctx context.Context) {
	if !r.ShouldNag() {
		return
	}
	r.RecordNag(ctx)
	r.cb.AskForPermission()
}

// PermissionStrings renders the state for the device record's
// platform_info. Unauthorized states report against the background
// scope, the base the deployment asked for.
func (r *Reconciler) PermissionStrings() (status, locType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status = r.state.String()
	switch r.state {
	case StateAuthorizedBackground:
		locType = string(domain.ScopeBackground)
	case StateAuthorizedForeground:
		locType = string(domain.ScopeForeground)
	default:
		locType = string(domain.ScopeBackground)
	}
	return status, locType
}

// PermissionState maps the reconciler state onto the session-level
// grant: a foreground grant counts as partial when the configuration
// wanted background.
func (r *Reconciler) PermissionState() domain.PermissionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateAuthorizedBackground:
		return domain.PermissionState{Grant: domain.PermissionGrantFull, Scope: domain.ScopeBackground}
	case StateAuthorizedForeground:
		grant := domain.PermissionGrantFull
		if r.cfg.RequireBackground {
			grant = domain.PermissionGrantPartial
		}
		return domain.PermissionState{Grant: grant, Scope: domain.ScopeForeground}
	default:
		return domain.PermissionState{Grant: domain.PermissionGrantNone, Scope: r.desiredScope()}
	}
}
