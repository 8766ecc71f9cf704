package wisdk

import (
	"time"

	"github.com/3-electric-sheep/wisdk-go/pkg/auth"
	"github.com/3-electric-sheep/wisdk-go/pkg/device"
	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
	"github.com/3-electric-sheep/wisdk-go/pkg/location"
	"github.com/3-electric-sheep/wisdk-go/pkg/push"
)

// Deployment environments.
const (
	EnvProd = "prod"
	EnvTest = "test"
)

// Default backend endpoints.
const (
	ProdServer = "https://api.3-electric-sheep.com"
	TestServer = "https://testapi.3-electric-sheep.com"
)

// Wallet offer classes per platform.
const (
	WalletGoogleOfferClass = "wi_offer_class"
	WalletAppleOfferClass  = "wi_offer_pass"
)

// SDKVersion is reported to the server as the version token.
const SDKVersion = "1.2"

const (
	defaultGeofenceRadius  = 20 // meters
	defaultNagBaseDays     = 7
	defaultNagMaxCount     = 3
	defaultUpdateInterval  = 10 * time.Minute
	defaultFastestInterval = 5 * time.Minute
	defaultMaxWaitTime     = 20 * time.Minute
	defaultLoiteringDelay  = 5 * time.Minute
)

// Config is the full SDK configuration. It is persisted as an opaque JSON
// snapshot so background wakes can rebuild the runtime from storage
// without the host app's involvement.
type Config struct {
	// Environment selects between the prod and test server, provider key
	// and push profile.
	Environment string `json:"environment"`

	ProviderKey     string `json:"providerKey"`
	TestProviderKey string `json:"testProviderKey"`

	Server     string `json:"server"`
	TestServer string `json:"testServer"`

	PushProfile     string `json:"pushProfile"`
	TestPushProfile string `json:"testPushProfile"`

	// Push delivery channels this deployment registers for.
	Targets []domain.PushTargetKind `json:"deviceTypes"`

	WalletInfo       string `json:"walletProfile"`
	WalletOfferClass string `json:"walletOfferClass"`

	// Auth behavior.
	AutoAuthenticate bool                `json:"authAutoAuthenticate"`
	Credentials      *domain.Credentials `json:"authCredentials,omitempty"`

	// Location behavior.
	RequireBackgroundLocation bool                      `json:"requireBackgroundLocation"`
	GeofenceRadius            float64                   `json:"geoRadius"`
	TransitionMask            domain.GeofenceTransition `json:"geoTransitionType"`
	UpdateInterval            time.Duration             `json:"locUpdateInterval"`
	FastestUpdateInterval     time.Duration             `json:"locFastestUpdateInterval"`
	MaxWaitTime               time.Duration             `json:"locMaxWaitTime"`
	LoiteringDelay            time.Duration             `json:"geoLoiteringDelay"`

	// Permission prompting.
	AskForLocationPermission     bool   `json:"askForLocationPermission"`
	AskForFullLocationPermission bool   `json:"askForFullLocationPermission"`
	AskLocationPermTitle         string `json:"askForLocationPermTitle"`
	AskLocationPermBody          string `json:"askForLocationPermBody"`
	NagIntervalBaseDays          float64 `json:"locationPermissionNagInterval"`
	NagMaxCount                  int     `json:"locationPermissionNagMaxCount"`

	// Notification behavior.
	AskForNotificationPermission bool `json:"askForNotificationPermission"`
	AutoDisplayNotifications     bool `json:"autoDisplayNotifications"`

	// Host identity reported in device records.
	Locale     string          `json:"locale,omitempty"`
	AppVersion string          `json:"appVersion"`
	Hardware   device.Hardware `json:"hardware"`
}

// NewConfig creates a configuration with production defaults for the
// given provider keys.
func NewConfig(providerKey, testProviderKey string) *Config {
	return &Config{
		Environment:     EnvProd,
		ProviderKey:     providerKey,
		TestProviderKey: testProviderKey,

		Server:     ProdServer,
		TestServer: TestServer,

		Targets:          []domain.PushTargetKind{domain.PushTargetGCM},
		WalletInfo:       domain.WalletProfile,
		WalletOfferClass: WalletGoogleOfferClass,

		AutoAuthenticate: true,

		RequireBackgroundLocation: true,
		GeofenceRadius:            defaultGeofenceRadius,
		TransitionMask:            domain.TransitionEnter | domain.TransitionExit | domain.TransitionDwell,
		UpdateInterval:            defaultUpdateInterval,
		FastestUpdateInterval:     defaultFastestInterval,
		MaxWaitTime:               defaultMaxWaitTime,
		LoiteringDelay:            defaultLoiteringDelay,

		AskForLocationPermission:     true,
		AskForFullLocationPermission: false,
		AskLocationPermTitle:         "Can we access your location ?",
		AskLocationPermBody:          "We need access so we can send you great offers in your area",
		NagIntervalBaseDays:          defaultNagBaseDays,
		NagMaxCount:                  defaultNagMaxCount,

		AskForNotificationPermission: true,
		AutoDisplayNotifications:     true,

		AppVersion: SDKVersion,
	}
}

// EnvServer returns the backend endpoint for the active environment.
func (c *Config) EnvServer() string {
	if c.Environment == EnvProd {
		return c.Server
	}
	return c.TestServer
}

// EnvProviderKey returns the provider key for the active environment.
func (c *Config) EnvProviderKey() string {
	if c.Environment == EnvProd {
		return c.ProviderKey
	}
	return c.TestProviderKey
}

// EnvPushProfile returns the push profile for the active environment.
func (c *Config) EnvPushProfile() string {
	if c.Environment == EnvProd {
		return c.PushProfile
	}
	return c.TestPushProfile
}

func (c *Config) locationSettings() location.Settings {
	return location.Settings{
		RequireBackground:     c.RequireBackgroundLocation,
		GeofenceRadius:        c.GeofenceRadius,
		UpdateInterval:        c.UpdateInterval,
		FastestUpdateInterval: c.FastestUpdateInterval,
		MaxWaitTime:           c.MaxWaitTime,
		LoiteringDelay:        c.LoiteringDelay,
		TransitionMask:        c.TransitionMask,
		AskForPermission:      c.AskForLocationPermission,
		AskForFullPermission:  c.AskForFullLocationPermission,
		PromptTitle:           c.AskLocationPermTitle,
		PromptBody:            c.AskLocationPermBody,
		NagIntervalBaseDays:   c.NagIntervalBaseDays,
		NagMaxCount:           c.NagMaxCount,
	}
}

func (c *Config) deviceConfig() device.Config {
	return device.Config{
		PushProfile:      c.EnvPushProfile(),
		Targets:          c.Targets,
		WalletInfo:       c.WalletInfo,
		WalletOfferClass: c.WalletOfferClass,
		Hardware:         c.Hardware,
	}
}

func (c *Config) pushConfig() push.Config {
	return push.Config{
		AskForPermission: c.AskForNotificationPermission,
		AutoDisplay:      c.AutoDisplayNotifications,
	}
}

func (c *Config) authConfig() auth.Config {
	return auth.Config{
		ProviderKey:      c.EnvProviderKey(),
		AutoAuthenticate: c.AutoAuthenticate,
		Credentials:      c.Credentials,
	}
}
