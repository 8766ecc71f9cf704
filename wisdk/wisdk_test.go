package wisdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
	"github.com/3-electric-sheep/wisdk-go/pkg/location"
	"github.com/3-electric-sheep/wisdk-go/pkg/push"
	"github.com/3-electric-sheep/wisdk-go/pkg/repository"
)

// fakeBackendServer is a scripted marketing backend covering the auth,
// device and event endpoints the facade touches during bring-up.
type fakeBackendServer struct {
	srv *httptest.Server

	mu        sync.Mutex
	registers int
	logins    int
	creates   int
	updates   int
	acks      []string
	tokens    []string
}

func newFakeBackendServer(t *testing.T) *fakeBackendServer {
	t.Helper()
	f := &fakeBackendServer{}

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	r := chi.NewRouter()
	r.Post("/account", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.registers++
		f.mu.Unlock()
		writeJSON(w, map[string]any{
			"success": true,
			"data":    map[string]any{"token": "tok-1", "auth_type": "anonymous", "user_name": ""},
		})
	})
	r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		writeJSON(w, map[string]any{
			"success": true,
			"data":    map[string]any{"token": "tok-2", "auth_type": "named", "user_name": "fred"},
		})
	})
	r.Post("/geodevice", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.creates++
		f.tokens = append(f.tokens, req.URL.Query().Get("token"))
		f.mu.Unlock()
		writeJSON(w, map[string]any{"success": true, "device_id": "dev-1"})
	})
	r.Put("/geodevice/{id}", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.updates++
		f.tokens = append(f.tokens, req.URL.Query().Get("token"))
		f.mu.Unlock()
		writeJSON(w, map[string]any{"success": true, "device_id": chi.URLParam(req, "id")})
	})
	r.Put("/events/{id}/ack", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.acks = append(f.acks, chi.URLParam(req, "id"))
		f.mu.Unlock()
		writeJSON(w, map[string]any{"success": true})
	})
	r.Get("/geodevice/{id}/live-events", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"success": true, "data": []any{map[string]any{"id": "ev-1"}}})
	})

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

// fakeLocProvider grants whatever scope is asked for unless scripted
// otherwise.
type fakeLocProvider struct {
	mu         sync.Mutex
	configured bool
	connects   []bool
	requests   int
	granted    bool
	lastKnown  *domain.LocationFix
	regions    [][]domain.GeofenceRegion
	subs       int
}

func (f *fakeLocProvider) Configure(location.Settings) error { f.configured = true; return nil }
func (f *fakeLocProvider) Connect(bg bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, bg)
	return nil
}
func (f *fakeLocProvider) RequestLocationUpdates() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return nil
}
func (f *fakeLocProvider) RemoveLocationUpdates() error { return nil }
func (f *fakeLocProvider) LastKnownLocation(context.Context) (*domain.LocationFix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKnown, nil
}
func (f *fakeLocProvider) AddGeofences(_ context.Context, regions []domain.GeofenceRegion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions = append(f.regions, regions)
	return nil
}
func (f *fakeLocProvider) ClearGeofences() error { return nil }
func (f *fakeLocProvider) CheckPermission(_ context.Context, scope domain.PermissionScope) (location.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.granted {
		return location.Permission{Status: location.PermDenied, Scope: scope}, nil
	}
	return location.Permission{Status: location.PermAuthorized, Scope: scope}, nil
}
func (f *fakeLocProvider) RequestPermission(context.Context, domain.PermissionScope, string, string) error {
	return nil
}
func (f *fakeLocProvider) subscribe() func() {
	f.mu.Lock()
	f.subs++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.subs--
		f.mu.Unlock()
	}
}
func (f *fakeLocProvider) OnLocationUpdate(func(location.LocationEvent)) func() {
	return f.subscribe()
}
func (f *fakeLocProvider) OnGeofenceUpdate(func(location.GeofenceEvent)) func() {
	return f.subscribe()
}
func (f *fakeLocProvider) OnPermissionChange(func(location.Permission)) func() {
	return f.subscribe()
}
func (f *fakeLocProvider) OnBoot(func()) func() { return f.subscribe() }

type fakePushProvider struct {
	token   string
	initial *push.Message
}

func (f *fakePushProvider) Token(context.Context) (string, error) { return f.token, nil }

func (f *fakePushProvider) OnTokenRefresh(func(string)) func() { return func() {} }

func (f *fakePushProvider) OnForegroundMessage(func(push.Message)) func() { return func() {} }

func (f *fakePushProvider) OnBackgroundMessage(func(push.Message)) func() { return func() {} }
func (f *fakePushProvider) InitialNotification(context.Context) (*push.Message, error) {
	return f.initial, nil
}
func (f *fakePushProvider) HasPermission(context.Context) (bool, error) { return true, nil }
func (f *fakePushProvider) RequestPermission(context.Context) error     { return nil }

func testConfig(server string) *Config {
	cfg := NewConfig("prov-key", "prov-key-test")
	cfg.Server = server
	cfg.TestServer = server
	cfg.PushProfile = "profile-1"
	cfg.TestPushProfile = "profile-1"
	cfg.Hardware.Platform = "android"
	cfg.Hardware.Application = "com.example.app"
	return cfg
}

func newTestApp(t *testing.T, srv *fakeBackendServer, backend repository.Backend, listener Listener) (*App, *fakeLocProvider, *fakePushProvider) {
	t.Helper()
	loc := &fakeLocProvider{granted: true}
	seed := domain.LocationFix{Latitude: -37.81, Longitude: 144.96, Accuracy: 15}
	loc.lastKnown = &seed
	pushProv := &fakePushProvider{token: "fcm-1"}

	app, err := New(testConfig(srv.srv.URL), Deps{
		Location: loc,
		Push:     pushProv,
		Backend:  backend,
		Listener: listener,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app, loc, pushProv
}

func TestStartFullBringUp(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()

	var startupAuthorized []bool
	var newTokens, newDevices, pushTokens []string
	app, loc, _ := newTestApp(t, srv, backend, Listener{
		OnStartupComplete:  func(ok bool) { startupAuthorized = append(startupAuthorized, ok) },
		OnNewAccessToken:   func(tok string) { newTokens = append(newTokens, tok) },
		OnNewDeviceToken:   func(tok string) { newDevices = append(newDevices, tok) },
		OnRefreshPushToken: func(tok string) { pushTokens = append(pushTokens, tok) },
	})

	ok, err := app.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !ok {
		t.Fatalf("Start should leave us authorized")
	}

	if srv.registers != 1 {
		t.Fatalf("want 1 anonymous registration, got %d", srv.registers)
	}
	if srv.creates != 1 {
		t.Fatalf("want 1 device create, got %d", srv.creates)
	}
	for _, tok := range srv.tokens {
		if tok != "tok-1" {
			t.Fatalf("device call carried token %q, want tok-1", tok)
		}
	}
	if len(newTokens) != 1 || newTokens[0] != "tok-1" {
		t.Fatalf("access tokens = %v", newTokens)
	}
	if len(newDevices) != 1 || newDevices[0] != "dev-1" {
		t.Fatalf("device tokens = %v", newDevices)
	}
	if len(pushTokens) != 1 || pushTokens[0] != "fcm-1" {
		t.Fatalf("push tokens = %v", pushTokens)
	}
	if len(startupAuthorized) != 1 || !startupAuthorized[0] {
		t.Fatalf("OnStartupComplete = %v", startupAuthorized)
	}

	if !loc.configured {
		t.Fatalf("provider not configured")
	}
	if !app.Reconciler().Monitoring() {
		t.Fatalf("monitoring should be running after Start")
	}
	if loc.requests != 1 {
		t.Fatalf("requestLocationUpdates ran %d times, want 1", loc.requests)
	}
	if len(loc.regions) == 0 {
		t.Fatalf("last known fix should have armed a geofence")
	}
	last := loc.regions[len(loc.regions)-1][0]
	if last.Latitude != -37.81 || !strings.HasPrefix(last.ID, "gf_") {
		t.Fatalf("armed region = %+v", last)
	}

	sess := app.Session()
	if sess.AccessToken != "tok-1" || sess.DeviceToken != "dev-1" || sess.PushToken != "fcm-1" {
		t.Fatalf("session = %+v", sess)
	}
	if sess.AuthType != domain.AuthTypeAnonymous {
		t.Fatalf("auth type = %q", sess.AuthType)
	}
	if sess.AppVersion != SDKVersion {
		t.Fatalf("version token = %q", sess.AppVersion)
	}

	// The config snapshot must be in place for background reconstruction.
	snap := NewConfig("", "")
	found, err := repository.LoadConfig(context.Background(), backend, snap)
	if err != nil || !found {
		t.Fatalf("config snapshot missing: %v %v", found, err)
	}
	if snap.ProviderKey != "prov-key" {
		t.Fatalf("snapshot provider key = %q", snap.ProviderKey)
	}
}

func TestStartIsReentrant(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()
	app, loc, _ := newTestApp(t, srv, backend, Listener{})

	if _, err := app.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	registers, requests := srv.registers, loc.requests

	ok, err := app.Start(context.Background())
	if err != nil || !ok {
		t.Fatalf("second Start: %v %v", ok, err)
	}
	if srv.registers != registers {
		t.Fatalf("second Start re-authenticated")
	}
	if loc.requests != requests {
		t.Fatalf("second Start restarted monitoring")
	}
}

func TestStartAdoptsPersistedToken(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()

	// A previous run left an opaque token and device id behind.
	blob, _ := json.Marshal(domain.Session{
		AccessToken: "tok-old",
		AuthType:    domain.AuthTypeAnonymous,
		DeviceToken: "dev-old",
	})
	if err := backend.Save(context.Background(), repository.KeySessionSettings, blob); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	app, _, _ := newTestApp(t, srv, backend, Listener{})
	ok, err := app.Start(context.Background())
	if err != nil || !ok {
		t.Fatalf("Start: %v %v", ok, err)
	}

	if srv.registers != 0 {
		t.Fatalf("a live stored token must skip re-registration, got %d registers", srv.registers)
	}
	if srv.updates == 0 {
		t.Fatalf("known device id should update, not create")
	}
}

func TestStartDiscardsExpiredStoredToken(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()

	claims := jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	blob, _ := json.Marshal(domain.Session{AccessToken: expired, AuthType: domain.AuthTypeAnonymous})
	if err := backend.Save(context.Background(), repository.KeySessionSettings, blob); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	app, _, _ := newTestApp(t, srv, backend, Listener{})
	ok, err := app.Start(context.Background())
	if err != nil || !ok {
		t.Fatalf("Start: %v %v", ok, err)
	}
	if srv.registers != 1 {
		t.Fatalf("expired token should force re-registration, got %d registers", srv.registers)
	}
	if app.Session().AccessToken != "tok-1" {
		t.Fatalf("session token = %q, want tok-1", app.Session().AccessToken)
	}
}

func TestStartMinimal(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()
	app, loc, _ := newTestApp(t, srv, backend, Listener{})

	ok, err := app.StartMinimal(context.Background())
	if err != nil || !ok {
		t.Fatalf("StartMinimal: %v %v", ok, err)
	}

	if srv.registers != 1 {
		t.Fatalf("want 1 registration, got %d", srv.registers)
	}
	// Callbacks reconnected with background allowed, but no monitoring
	// start and no permission traffic.
	if len(loc.connects) == 0 || !loc.connects[len(loc.connects)-1] {
		t.Fatalf("connects = %v, want a background connect", loc.connects)
	}
	if loc.subs == 0 {
		t.Fatalf("provider callbacks not reconnected")
	}

	// Safe to call again.
	if ok, err := app.StartMinimal(context.Background()); err != nil || !ok {
		t.Fatalf("second StartMinimal: %v %v", ok, err)
	}
	if srv.registers != 1 {
		t.Fatalf("second StartMinimal re-authenticated")
	}
}

func TestDrainPendingAcksLaunchNotification(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()

	loc := &fakeLocProvider{granted: true}
	pushProv := &fakePushProvider{
		token:   "fcm-1",
		initial: &push.Message{Data: map[string]string{"event_id": "ev-7"}},
	}
	var opened []bool
	app, err := New(testConfig(srv.srv.URL), Deps{
		Location: loc,
		Push:     pushProv,
		Backend:  backend,
		Listener: Listener{
			OnNotificationOpened: func(_ push.Message, appStarted bool) { opened = append(opened, appStarted) },
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(opened) != 1 || !opened[0] {
		t.Fatalf("launch notification should open with appStarted=true: %v", opened)
	}
	if len(srv.acks) != 1 || srv.acks[0] != "ev-7" {
		t.Fatalf("acks = %v, want [ev-7]", srv.acks)
	}
}

func TestLogoutClearsIdentity(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()
	app, _, _ := newTestApp(t, srv, backend, Listener{})

	if _, err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Logout(context.Background())

	if app.IsAuthorized() {
		t.Fatalf("Logout must drop the access token")
	}
	sess := app.Session()
	if sess.AccessToken != "" || sess.DeviceToken != "" {
		t.Fatalf("session after logout = %+v", sess)
	}
	if sess.PushToken != "fcm-1" {
		t.Fatalf("push token should survive logout, got %q", sess.PushToken)
	}
}

func TestListLiveEvents(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()
	app, _, _ := newTestApp(t, srv, backend, Listener{})
	if _, err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	raw, err := app.ListLiveEvents(context.Background(), Params{"num": "10"})
	if err != nil {
		t.Fatalf("ListLiveEvents: %v", err)
	}
	var events []map[string]any
	if err := json.Unmarshal(raw, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0]["id"] != "ev-1" {
		t.Fatalf("events = %v", events)
	}
}

func TestReconstruct(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()
	app, _, _ := newTestApp(t, srv, backend, Listener{})
	if _, err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A background wake builds a fresh instance from storage alone.
	loc := &fakeLocProvider{granted: true}
	woken, err := Reconstruct(context.Background(), Deps{
		Location: loc,
		Push:     &fakePushProvider{token: "fcm-1"},
		Backend:  backend,
	})
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	ok, err := woken.StartMinimal(context.Background())
	if err != nil || !ok {
		t.Fatalf("StartMinimal after Reconstruct: %v %v", ok, err)
	}
	if srv.registers != 1 {
		t.Fatalf("reconstructed instance should reuse the stored token, got %d registers", srv.registers)
	}
	if woken.Session().DeviceToken != "dev-1" {
		t.Fatalf("device token = %q", woken.Session().DeviceToken)
	}

	if _, err := Reconstruct(context.Background(), Deps{
		Location: loc,
		Push:     &fakePushProvider{},
		Backend:  repository.NewMemoryBackend(),
	}); err != ErrNoSavedConfig {
		t.Fatalf("empty store should return ErrNoSavedConfig, got %v", err)
	}
}

func TestManagerSingleton(t *testing.T) {
	srv := newFakeBackendServer(t)
	backend := repository.NewMemoryBackend()
	t.Cleanup(func() { SetManager(nil) })

	loc := &fakeLocProvider{granted: true}
	deps := Deps{Location: loc, Push: &fakePushProvider{token: "fcm-1"}, Backend: backend}

	app, err := CreateManager(testConfig(srv.srv.URL), deps)
	if err != nil {
		t.Fatalf("CreateManager: %v", err)
	}
	again, err := CreateManager(testConfig("http://other"), deps)
	if err != nil {
		t.Fatalf("second CreateManager: %v", err)
	}
	if app != again || Manager() != app {
		t.Fatalf("CreateManager must return the one instance")
	}
}
