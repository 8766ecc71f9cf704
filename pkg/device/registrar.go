// Package device maps local session, permission, location and push state
// onto the server's device record and keeps the remote record in step.
package device

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/3-electric-sheep/wisdk-go/pkg/api"
	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
	"github.com/3-electric-sheep/wisdk-go/pkg/repository"
)

// PathGeodevice is the device record endpoint.
// TODO: server plans to rename this plural; follow when it does.
const PathGeodevice = "geodevice"

// Hardware is the static identity of the device and app build.
type Hardware struct {
	Platform        string `json:"platform"`
	Application     string `json:"application"`
	PlatformVersion string `json:"platform_version"`
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	Brand           string `json:"brand"`
	SDK             string `json:"sdk"`
	Release         string `json:"release"`
	Debug           bool   `json:"debug"`
}

// Config holds the push target layout and hardware identity used to build
// device records.
type Config struct {
	// PushProfile for the token-carrying channels (gcm/apn).
	PushProfile string

	// Targets is the set of delivery channels this deployment uses.
	Targets []domain.PushTargetKind

	// Wallet channel details, used when Targets contains a wallet kind.
	WalletInfo       string
	WalletOfferClass string

	Hardware Hardware
}

// AuthRecoverer intercepts 401/403 failures and re-authenticates
// silently. Implemented by the auth controller.
type AuthRecoverer interface {
	HandleAuthFailure(ctx context.Context, err error) bool
}

// Callbacks notify the host of device record changes and failures.
type Callbacks struct {
	OnNewDeviceToken func(token string)
	OnError          func(stage string, err error)
}

func (c *Callbacks) normalize() {
	if c.OnNewDeviceToken == nil {
		c.OnNewDeviceToken = func(string) {}
	}
	if c.OnError == nil {
		c.OnError = func(string, error) {}
	}
}

// Registrar creates and updates the remote device record.
type Registrar struct {
	api      *api.Client
	sessions *repository.SessionRepository
	cfg      Config
	auth     AuthRecoverer
	cb       Callbacks
	logger   *slog.Logger

	// permFn supplies the current location permission status and type for
	// platform_info. Wired to the location reconciler by the facade.
	permFn func() (status, locType string)

	now func() time.Time
}

// NewRegistrar creates a device registrar.
func NewRegistrar(client *api.Client, sessions *repository.SessionRepository, cfg Config, auth AuthRecoverer, cb Callbacks, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	cb.normalize()
	return &Registrar{
		api:      client,
		sessions: sessions,
		cfg:      cfg,
		auth:     auth,
		cb:       cb,
		logger:   logger,
		now:      time.Now,
	}
}

// SetPermissionFunc wires the source of the current location permission.
func (r *Registrar) SetPermissionFunc(fn func() (status, locType string)) {
	r.permFn = fn
}

type deviceResponse struct {
	api.Envelope
	DeviceID string `json:"device_id"`
}

// SendUpdate pushes the current device state to the server. A nil fix is
// sent as the zeroed sentinel location. The first update (or
// forceCreate) creates the record; later ones update the known device id.
// A "not found" business error means the server dropped our record: it is
// recovered by exactly one forced-create retry, invisible to the caller.
// 401/403 is handed to the auth recoverer; when it triggers a silent
// re-authentication no error is surfaced, callers rely on the next
// natural trigger to re-send. An unrecovered auth failure is reported
// like any other send failure.
//
// De-duplication of fixes is the reconciler's job; this method sends
// whatever it is given.
func (r *Registrar) SendUpdate(ctx context.Context, fix *domain.LocationFix, background bool, onSuccess func(), forceCreate bool) error {
	rec := r.buildRecord(fix, background)
	deviceToken := r.sessions.Session().DeviceToken

	var resp deviceResponse
	var err error
	if deviceToken == "" || forceCreate {
		err = r.api.Call(ctx, http.MethodPost, PathGeodevice, rec, &resp, api.RequireAuth)
	} else {
		err = r.api.Call(ctx, http.MethodPut, PathGeodevice+"/"+deviceToken, rec, &resp, api.RequireAuth)
	}

	if err != nil {
		if r.auth != nil && r.auth.HandleAuthFailure(ctx, err) {
			return nil
		}
		r.cb.OnError("send device fail", err)
		return err
	}

	if resp.Success {
		if resp.DeviceID != "" && resp.DeviceID != deviceToken {
			_ = r.sessions.Update(ctx, func(s *domain.Session) { s.DeviceToken = resp.DeviceID })
			r.cb.OnNewDeviceToken(resp.DeviceID)
		}
		if onSuccess != nil {
			onSuccess()
		}
		return nil
	}

	if resp.Code == domain.CodeNotFound && !forceCreate {
		// Server-side record was deleted under us. Register a fresh one.
		r.logger.Info("device token invalid, recreating device record")
		return r.SendUpdate(ctx, fix, background, onSuccess, true)
	}

	be := resp.BusinessError()
	r.cb.OnError("send device fail", be)
	return be
}

func (r *Registrar) buildRecord(fix *domain.LocationFix, background bool) *domain.DeviceRecord {
	sess := r.sessions.Session()
	hw := r.cfg.Hardware

	status, locType := "undetermined", string(domain.ScopeBackground)
	if r.permFn != nil {
		status, locType = r.permFn()
	}

	buildType := "release"
	if hw.Debug {
		buildType = "debug"
	}

	rec := &domain.DeviceRecord{
		Current:         domain.NewLocationInfo(fix, background, r.now()),
		Platform:        hw.Platform,
		Application:     hw.Application,
		PlatformVersion: hw.PlatformVersion,
		PlatformInfo: domain.PlatformInfo{
			Manufacturer:       hw.Manufacturer,
			Model:              hw.Model,
			Brand:              hw.Brand,
			SDK:                hw.SDK,
			Release:            hw.Release,
			BuildType:          buildType,
			LocationPermission: permissionName(hw.Platform, status, locType),
			LocationType:       locType,
		},
	}
	rec.SetPushTargets(r.pushTargets(sess.PushToken))

	if sess.Locale != "" {
		rec.Locale = sess.Locale
	}
	tz := sess.TimezoneOffset
	rec.TimezoneOffset = &tz
	if sess.AppVersion != "" {
		rec.Version = sess.AppVersion
	}
	return rec
}

// permissionName renders the grant for platform_info. iOS reports the
// human names for granted scopes; everything else reports the raw status.
func permissionName(platform, status, locType string) string {
	if platform != "ios" || status != "authorized" {
		return status
	}
	switch domain.PermissionScope(locType) {
	case domain.ScopeBackground:
		return "Always Allowed"
	case domain.ScopeForeground:
		return "When In Use Allowed"
	default:
		return locType
	}
}

func (r *Registrar) pushTargets(pushToken string) []domain.PushTarget {
	var targets []domain.PushTarget
	for _, kind := range r.cfg.Targets {
		switch kind {
		case domain.PushTargetGCM, domain.PushTargetAPN:
			if pushToken == "" {
				continue
			}
			targets = append(targets, domain.PushTarget{
				PushInfo:    pushToken,
				PushType:    kind,
				PushProfile: r.cfg.PushProfile,
			})
		case domain.PushTargetAppleWallet, domain.PushTargetGoogleWallet:
			targets = append(targets, domain.PushTarget{
				PushInfo:    r.cfg.WalletInfo,
				PushType:    kind,
				PushProfile: r.cfg.WalletOfferClass,
			})
		case domain.PushTargetMail:
			targets = append(targets, domain.PushTarget{
				PushInfo: domain.MailProfile,
				PushType: kind,
			})
		case domain.PushTargetSMS:
			targets = append(targets, domain.PushTarget{
				PushInfo: domain.SMSProfile,
				PushType: kind,
			})
		case domain.PushTargetPassive:
			targets = append(targets, domain.PushTarget{
				PushInfo: domain.PassiveProfile,
				PushType: kind,
			})
		}
	}
	return targets
}
