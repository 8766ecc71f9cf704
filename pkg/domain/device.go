package domain

import "time"

// PushTargetKind is a delivery channel for marketing notifications.
type PushTargetKind string

const (
	PushTargetGCM          PushTargetKind = "gcm"
	PushTargetAPN          PushTargetKind = "apn"
	PushTargetAppleWallet  PushTargetKind = "pkpass"
	PushTargetGoogleWallet PushTargetKind = "ap"
	PushTargetMail         PushTargetKind = "mail"
	PushTargetSMS          PushTargetKind = "sms"
	PushTargetPassive      PushTargetKind = "passive"
)

// PushTypeMultiple is the wire marker used when a device carries more than
// one push target. It is derived from the target set, never configured.
const PushTypeMultiple = "multiple"

// Fixed push_info values for the address-less channels.
const (
	MailProfile    = "email"
	SMSProfile     = "phone"
	PassiveProfile = "virtual"
	WalletProfile  = "email"
)

// PushTarget is one (channel, address, profile) delivery triple.
type PushTarget struct {
	PushInfo    string         `json:"push_info"`
	PushType    PushTargetKind `json:"push_type"`
	PushProfile string         `json:"push_profile"`
}

// LocationInfo is the wire form of a location fix inside a device record.
type LocationInfo struct {
	Longitude    float64 `json:"longitude"`
	Latitude     float64 `json:"latitude"`
	Accuracy     float64 `json:"accuracy"`
	Speed        float64 `json:"speed"`
	Course       float64 `json:"course"`
	Altitude     float64 `json:"altitude"`
	FixTimestamp string  `json:"fix_timestamp"`
	Arrival      *string `json:"arrival"`
	Departure    *string `json:"departure"`
	InBackground bool    `json:"in_background"`
}

// PlatformInfo describes the hardware and permission situation of the
// device.
type PlatformInfo struct {
	Manufacturer       string `json:"manufacturer"`
	Model              string `json:"model"`
	Brand              string `json:"brand"`
	SDK                string `json:"sdk"`
	Release            string `json:"release"`
	BuildType          string `json:"build_type"`
	LocationPermission string `json:"location_permission"`
	LocationType       string `json:"location_type"`
}

// DeviceRecord is the server-facing projection of session, permission,
// location and push state. It is built on demand and never persisted.
type DeviceRecord struct {
	Current LocationInfo `json:"current"`

	// Flat fields when exactly one push target is configured, push_targets
	// plus PushTypeMultiple when there is more than one.
	PushInfo    string       `json:"push_info,omitempty"`
	PushType    string       `json:"push_type,omitempty"`
	PushProfile string       `json:"push_profile,omitempty"`
	PushTargets []PushTarget `json:"push_targets,omitempty"`

	Platform        string       `json:"platform"`
	Application     string       `json:"application"`
	PlatformVersion string       `json:"platform_version"`
	PlatformInfo    PlatformInfo `json:"platform_info"`

	Locale         string `json:"locale,omitempty"`
	TimezoneOffset *int   `json:"timezone_offset,omitempty"`
	Version        string `json:"version,omitempty"`
}

// NewLocationInfo maps a fix onto the wire shape. A nil fix encodes the
// "no location yet" sentinel: zeroed coordinates with accuracy, speed and
// course of -1 and a timestamp of now.
func NewLocationInfo(fix *LocationFix, background bool, now time.Time) LocationInfo {
	if fix == nil {
		return LocationInfo{
			Accuracy:     -1.0,
			Speed:        -1.0,
			Course:       -1.0,
			FixTimestamp: now.UTC().Format(time.RFC3339),
			InBackground: background,
		}
	}
	ts := fix.FirstSeenAt
	if ts.IsZero() {
		ts = now
	}
	return LocationInfo{
		Longitude:    fix.Longitude,
		Latitude:     fix.Latitude,
		Accuracy:     fix.Accuracy,
		Speed:        fix.Speed,
		Course:       fix.Course,
		Altitude:     fix.Altitude,
		FixTimestamp: ts.UTC().Format(time.RFC3339),
		InBackground: background,
	}
}

// SetPushTargets applies the single/multiple push target encoding: one
// target flattens onto the record, several are carried as a list with the
// multiple marker.
func (d *DeviceRecord) SetPushTargets(targets []PushTarget) {
	switch len(targets) {
	case 0:
	case 1:
		d.PushInfo = targets[0].PushInfo
		d.PushType = string(targets[0].PushType)
		d.PushProfile = targets[0].PushProfile
	default:
		d.PushType = PushTypeMultiple
		d.PushInfo = ""
		d.PushProfile = ""
		d.PushTargets = targets
	}
}
