package domain

import "time"

// AuthType describes how the current access token was obtained.
type AuthType string

const (
	// AuthTypeAnonymous means the device registered without credentials.
	AuthTypeAnonymous AuthType = "anonymous"
	// AuthTypeNamed means the user logged in with a user name.
	AuthTypeNamed AuthType = "named"
)

// Session is the durable identity snapshot for one installed app instance.
// It is loaded from the store once at startup and written back after every
// mutation that must survive a process restart. Unknown keys in the stored
// blob are ignored on load; missing keys stay at their zero value.
type Session struct {
	AccessToken string   `json:"accessToken,omitempty"`
	AuthType    AuthType `json:"accessAuthType,omitempty"`
	UserName    string   `json:"authUserName,omitempty"`

	// DeviceToken is the server-assigned device record id. Only meaningful
	// while AccessToken is set.
	DeviceToken string `json:"deviceToken,omitempty"`

	// PushToken is the provider push token last handed to us.
	PushToken string `json:"pushToken,omitempty"`

	Locale         string `json:"localeToken,omitempty"`
	TimezoneOffset int    `json:"timezoneToken"`
	AppVersion     string `json:"versionToken,omitempty"`

	LastPermissionNagAt    *time.Time `json:"lastPermissionNag,omitempty"`
	LastPermissionNagCount int        `json:"lastPermissionNagCount"`
}

// Authorized reports whether the session holds an access token.
func (s *Session) Authorized() bool {
	return s.AccessToken != ""
}

// ClearAuth drops everything tied to the current authorization: token,
// auth type, user name and the server device record id. Nag bookkeeping and
// locale tokens survive.
func (s *Session) ClearAuth() {
	s.AccessToken = ""
	s.AuthType = ""
	s.UserName = ""
	s.DeviceToken = ""
}

// PermissionGrant is how much of the requested location capability the OS
// has granted.
type PermissionGrant int

const (
	PermissionGrantNone PermissionGrant = iota
	PermissionGrantPartial
	PermissionGrantFull
)

// PermissionScope is the breadth of a location grant.
type PermissionScope string

const (
	ScopeForeground PermissionScope = "whenInUse"
	ScopeBackground PermissionScope = "always"
)

// PermissionState is the current OS location permission. It is never
// persisted; it is recomputed from the OS on startup and on every
// permission-change event.
type PermissionState struct {
	Grant PermissionGrant
	Scope PermissionScope
}

// Granted reports whether any usable location permission exists.
func (p PermissionState) Granted() bool {
	return p.Grant != PermissionGrantNone
}
