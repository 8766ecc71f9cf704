package wisdk

import (
	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
	"github.com/3-electric-sheep/wisdk-go/pkg/location"
	"github.com/3-electric-sheep/wisdk-go/pkg/push"
)

// Listener is the host app's view of SDK activity. Every field is
// optional; nil members are replaced with no-ops.
type Listener struct {
	// OnStartupComplete fires once Start has run to completion, with the
	// final authorization outcome.
	OnStartupComplete func(authorized bool)

	OnAuthenticate     func(session domain.Session)
	OnAuthenticateFail func(err error)
	OnNewAccessToken   func(token string)
	OnNewDeviceToken   func(token string)
	OnRefreshPushToken func(token string)

	OnLocationUpdate   func(fix domain.LocationFix)
	OnGeofenceUpdate   func(fix domain.LocationFix)
	OnPermissionChange func(perm location.Permission)
	OnBoot             func()

	// AskForLocationPermission is the nag: the host shows its own UI
	// offering to upgrade the grant (typically by opening settings).
	AskForLocationPermission     func()
	AskForNotificationPermission func()

	OnNotification          func(msg push.Message)
	OnNotificationOpened    func(msg push.Message, appStarted bool)
	OnNotificationDisplayed func(msg push.Message)

	OnError func(stage string, err error)
}

func (l *Listener) normalize() {
	if l.OnStartupComplete == nil {
		l.OnStartupComplete = func(bool) {}
	}
	if l.OnAuthenticate == nil {
		l.OnAuthenticate = func(domain.Session) {}
	}
	if l.OnAuthenticateFail == nil {
		l.OnAuthenticateFail = func(error) {}
	}
	if l.OnNewAccessToken == nil {
		l.OnNewAccessToken = func(string) {}
	}
	if l.OnNewDeviceToken == nil {
		l.OnNewDeviceToken = func(string) {}
	}
	if l.OnRefreshPushToken == nil {
		l.OnRefreshPushToken = func(string) {}
	}
	if l.OnLocationUpdate == nil {
		l.OnLocationUpdate = func(domain.LocationFix) {}
	}
	if l.OnGeofenceUpdate == nil {
		l.OnGeofenceUpdate = func(domain.LocationFix) {}
	}
	if l.OnPermissionChange == nil {
		l.OnPermissionChange = func(location.Permission) {}
	}
	if l.OnBoot == nil {
		l.OnBoot = func() {}
	}
	if l.AskForLocationPermission == nil {
		l.AskForLocationPermission = func() {}
	}
	if l.AskForNotificationPermission == nil {
		l.AskForNotificationPermission = func() {}
	}
	if l.OnNotification == nil {
		l.OnNotification = func(push.Message) {}
	}
	if l.OnNotificationOpened == nil {
		l.OnNotificationOpened = func(push.Message, bool) {}
	}
	if l.OnNotificationDisplayed == nil {
		l.OnNotificationDisplayed = func(push.Message) {}
	}
	if l.OnError == nil {
		l.OnError = func(string, error) {}
	}
}
