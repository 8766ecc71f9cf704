// Package wisdk is the client SDK for the Welcome Interruption
// location-marketing backend. It keeps a device's session, location
// permission, geofence and push registration reconciled with the server.
//
// Basic usage:
//
//	cfg := wisdk.NewConfig("my-provider-key", "my-test-provider-key")
//	cfg.PushProfile = "my-push-profile"
//
//	backend, _ := repository.OpenBolt(filepath.Join(dataDir, "wisdk.db"))
//
//	app, err := wisdk.New(cfg, wisdk.Deps{
//	    Location: locationProvider,
//	    Push:     pushProvider,
//	    Backend:  backend,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	authorized, err := app.Start(ctx)
package wisdk

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3-electric-sheep/wisdk-go/pkg/api"
	"github.com/3-electric-sheep/wisdk-go/pkg/auth"
	"github.com/3-electric-sheep/wisdk-go/pkg/device"
	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
	"github.com/3-electric-sheep/wisdk-go/pkg/location"
	"github.com/3-electric-sheep/wisdk-go/pkg/push"
	"github.com/3-electric-sheep/wisdk-go/pkg/repository"
)

// Deps are the platform collaborators the SDK cannot supply itself.
type Deps struct {
	// Location is the OS location and geofencing bridge (required).
	Location location.Provider

	// Push is the platform push bridge (required).
	Push push.Provider

	// Backend is the on-device key-value store (required).
	Backend repository.Backend

	// Listener receives SDK events. Optional.
	Listener Listener

	// Logger is the structured logger (default: slog.Default()).
	Logger *slog.Logger

	// HTTPClient overrides the transport's http.Client. Optional.
	HTTPClient *http.Client
}

// App is one running SDK instance.
type App struct {
	cfg      *Config
	listener Listener
	logger   *slog.Logger

	api        *api.Client
	sessions   *repository.SessionRepository
	auth       *auth.Controller
	registrar  *device.Registrar
	reconciler *location.Reconciler
	bridge     *push.Bridge
	backend    repository.Backend

	initDone atomic.Bool
	now      func() time.Time
}

// New wires an SDK instance from configuration and platform
// collaborators. Nothing touches storage or network until Start or
// StartMinimal runs.
func New(cfg *Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("wisdk: config is required")
	}
	if deps.Location == nil {
		return nil, errors.New("wisdk: location provider is required")
	}
	if deps.Push == nil {
		return nil, errors.New("wisdk: push provider is required")
	}
	if deps.Backend == nil {
		return nil, errors.New("wisdk: storage backend is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps.Listener.normalize()

	a := &App{
		cfg:      cfg,
		listener: deps.Listener,
		logger:   logger,
		backend:  deps.Backend,
		now:      time.Now,
	}

	a.api = api.NewClient(cfg.EnvServer(), logger)
	if deps.HTTPClient != nil {
		a.api.SetHTTPClient(deps.HTTPClient)
	}

	a.sessions = repository.NewSessionRepository(deps.Backend, logger)

	a.auth = auth.NewController(a.api, a.sessions, cfg.authConfig(), auth.Callbacks{
		OnAuthenticate:     a.listener.OnAuthenticate,
		OnAuthenticateFail: a.listener.OnAuthenticateFail,
		OnNewAccessToken:   a.listener.OnNewAccessToken,
	}, logger)

	a.registrar = device.NewRegistrar(a.api, a.sessions, cfg.deviceConfig(), a.auth, device.Callbacks{
		OnNewDeviceToken: a.listener.OnNewDeviceToken,
		OnError:          a.listener.OnError,
	}, logger)

	a.reconciler = location.NewReconciler(deps.Location, a.registrar, a.sessions, cfg.locationSettings(), location.Callbacks{
		OnLocationUpdate:   a.listener.OnLocationUpdate,
		OnGeofenceUpdate:   a.listener.OnGeofenceUpdate,
		OnPermissionChange: a.listener.OnPermissionChange,
		OnBoot:             a.listener.OnBoot,
		AskForPermission:   a.listener.AskForLocationPermission,
		OnError:            a.listener.OnError,
	}, logger)
	a.registrar.SetPermissionFunc(a.reconciler.PermissionStrings)

	a.bridge = push.NewBridge(deps.Push, cfg.pushConfig(), push.Events{
		OnRefreshToken:     a.handlePushToken,
		OnMessage:          a.handleNotification,
		OnMessageOpened:    a.handleNotificationOpened,
		OnMessageDisplayed: a.listener.OnNotificationDisplayed,
		AskForPermission:   a.listener.AskForNotificationPermission,
		OnError:            a.listener.OnError,
	}, logger)

	// After a fresh token: make sure the server has a device record for
	// us, then bring monitoring up. A missing device record is created
	// from the last fix we hold, which may be none.
	a.auth.SetPostAuthHook(func(ctx context.Context) {
		sess := a.sessions.Session()
		if !sess.Authorized() {
			return
		}
		if sess.DeviceToken == "" {
			_ = a.registrar.SendUpdate(ctx, a.reconciler.LastFix(), false, func() {
				a.reconciler.EnsureMonitoring(ctx)
			}, false)
			return
		}
		a.reconciler.EnsureMonitoring(ctx)
	})

	return a, nil
}

// Start is the full bring-up, intended to run once per process: load the
// persisted session, refresh locale and version tokens, configure the
// provider, authenticate if needed, reconcile the location permission,
// start the push bridge and drain the launching notification. Steps run
// sequentially: auth before device update before monitoring is a
// correctness requirement. Reentrant; a second call only tops up auth
// and the last known location.
func (a *App) Start(ctx context.Context) (bool, error) {
	a.api.SetEndpoint(a.cfg.EnvServer())

	if a.initDone.Load() {
		if !a.api.IsAuthorized() && a.cfg.AutoAuthenticate {
			if err := a.auth.Authenticate(ctx, a.cfg.Credentials, true); err != nil {
				a.listener.OnError("startup fail", err)
			}
		}
		a.reconciler.RefreshLastKnown(ctx)
		a.bridge.DrainPending(ctx)
		return a.IsAuthorized(), nil
	}

	if err := a.bootstrapSession(ctx); err != nil {
		a.listener.OnError("startup fail", err)
		return false, err
	}

	if err := a.reconciler.Configure(); err != nil {
		a.listener.OnError("startup fail", err)
		return false, err
	}
	if err := repository.SaveConfig(ctx, a.backend, a.cfg); err != nil {
		a.logger.Warn("config snapshot save failed", "error", err)
	}

	if !a.api.IsAuthorized() && a.cfg.AutoAuthenticate {
		if err := a.auth.Authenticate(ctx, a.cfg.Credentials, true); err != nil {
			a.listener.OnError("startup fail", err)
			return false, err
		}
	}

	state, err := a.reconciler.CheckAndRequestPermission(ctx)
	if err == nil {
		a.logger.Debug("permission check complete", "state", state.String())
	}

	if err := a.bridge.Start(ctx); err != nil {
		a.listener.OnError("startup fail", err)
	}

	a.initDone.Store(true)

	a.bridge.DrainPending(ctx)
	a.listener.OnStartupComplete(a.IsAuthorized())
	return a.IsAuthorized(), nil
}

// StartMinimal brings up just enough to make network calls and receive
// provider callbacks: session, token and provider subscriptions, no
// permission prompting and no push bridge. Used when the process was
// woken only to react to one event. Safe to call when Start never ran.
func (a *App) StartMinimal(ctx context.Context) (bool, error) {
	a.api.SetEndpoint(a.cfg.EnvServer())

	if a.initDone.Load() {
		return a.IsAuthorized(), nil
	}

	if err := a.bootstrapSession(ctx); err != nil {
		a.listener.OnError("startup fail", err)
		return false, err
	}

	if !a.api.IsAuthorized() && a.cfg.AutoAuthenticate {
		if err := a.auth.Authenticate(ctx, a.cfg.Credentials, true); err != nil {
			a.listener.OnError("startup fail", err)
			return false, err
		}
	}

	a.reconciler.ResubscribeCallbacks()

	a.initDone.Store(true)
	return a.IsAuthorized(), nil
}

// Stop tears down the push subscriptions. The persisted session
// survives; this is not a logout.
func (a *App) Stop() {
	a.bridge.Stop()
}

// Logout drops the access token, identity and device record id, in
// memory and on disk.
func (a *App) Logout(ctx context.Context) {
	a.auth.ClearAuth(ctx)
}

// IsAuthorized reports whether an access token is held.
func (a *App) IsAuthorized() bool {
	return a.api.IsAuthorized()
}

// Authenticate runs an explicit registration or login. creds of nil
// re-authenticates as whoever we were.
func (a *App) Authenticate(ctx context.Context, creds *domain.Credentials) error {
	return a.auth.Authenticate(ctx, creds, true)
}

// Session returns a copy of the current session snapshot.
func (a *App) Session() domain.Session {
	return a.sessions.Session()
}

// Reconciler exposes the location state machine.
func (a *App) Reconciler() *location.Reconciler {
	return a.reconciler
}

// UseEnvironment switches between the prod and test deployment. Takes
// effect on the next call.
func (a *App) UseEnvironment(env string) {
	a.cfg.Environment = env
	a.api.SetEndpoint(a.cfg.EnvServer())
}

// bootstrapSession loads the persisted session, refreshes the locale,
// timezone and version tokens and adopts the stored access token unless
// it is known to be expired.
func (a *App) bootstrapSession(ctx context.Context) error {
	if err := a.sessions.Load(ctx); err != nil {
		return err
	}

	now := a.now()
	_, offsetSec := now.Zone()
	if err := a.sessions.Update(ctx, func(s *domain.Session) {
		if a.cfg.Locale != "" {
			s.Locale = a.cfg.Locale
		}
		s.TimezoneOffset = -offsetSec / 60
		s.AppVersion = a.cfg.AppVersion
	}); err != nil {
		a.listener.OnError("saving token failed", err)
	}

	sess := a.sessions.Session()
	if sess.AccessToken == "" {
		return nil
	}
	if auth.TokenExpired(sess.AccessToken) {
		a.logger.Info("stored access token expired, discarding")
		_ = a.sessions.Update(ctx, func(s *domain.Session) { s.AccessToken = "" })
		return nil
	}
	a.api.SetAccessToken(sess.AccessToken)
	return nil
}

func (a *App) handlePushToken(token string) {
	if token != "" {
		// The next location update carries it to the server.
		_ = a.sessions.Update(context.Background(), func(s *domain.Session) { s.PushToken = token })
	}
	a.listener.OnRefreshPushToken(token)
}

func (a *App) handleNotification(msg push.Message) {
	a.listener.OnNotification(msg)
	a.AckMessage(context.Background(), msg)
}

func (a *App) handleNotificationOpened(msg push.Message, appStarted bool) {
	a.listener.OnNotificationOpened(msg, appStarted)
	a.AckMessage(context.Background(), msg)
}

var (
	managerMu sync.Mutex
	manager   *App
)

// CreateManager opts into process-wide singleton semantics: the first
// call builds the instance, later calls return it regardless of
// arguments. Useful for background-task re-entry; prefer New and
// explicit wiring otherwise.
func CreateManager(cfg *Config, deps Deps) (*App, error) {
	managerMu.Lock()
	defer managerMu.Unlock()
	if manager != nil {
		return manager, nil
	}
	app, err := New(cfg, deps)
	if err != nil {
		return nil, err
	}
	manager = app
	return manager, nil
}

// Manager returns the singleton instance, nil when CreateManager has not
// run.
func Manager() *App {
	managerMu.Lock()
	defer managerMu.Unlock()
	return manager
}

// SetManager replaces the singleton instance. Pass nil to clear it.
func SetManager(app *App) {
	managerMu.Lock()
	defer managerMu.Unlock()
	manager = app
}
