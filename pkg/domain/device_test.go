package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewLocationInfoNilFix(t *testing.T) {
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	info := NewLocationInfo(nil, true, now)

	if info.Latitude != 0 || info.Longitude != 0 {
		t.Errorf("nil fix should encode zeroed coordinates, got %v,%v", info.Latitude, info.Longitude)
	}
	if info.Accuracy != -1 || info.Speed != -1 || info.Course != -1 {
		t.Errorf("nil fix sentinel values wrong: %+v", info)
	}
	if info.FixTimestamp != "2024-05-02T09:00:00Z" {
		t.Errorf("FixTimestamp = %q", info.FixTimestamp)
	}
	if !info.InBackground {
		t.Error("InBackground not carried")
	}
}

func TestNewLocationInfoFromFix(t *testing.T) {
	ts := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	fix := &LocationFix{
		Latitude:  -33.86,
		Longitude: 151.21,
		Accuracy:  10,
		Speed:     1.5,
		Course:    90,
		Altitude:  12,

		FirstSeenAt: ts,
	}
	info := NewLocationInfo(fix, false, time.Now())

	if info.Latitude != -33.86 || info.Longitude != 151.21 {
		t.Errorf("coordinates not carried: %+v", info)
	}
	if info.FixTimestamp != "2024-05-02T09:30:00Z" {
		t.Errorf("FixTimestamp = %q", info.FixTimestamp)
	}
	if info.Arrival != nil || info.Departure != nil {
		t.Error("arrival/departure must be null")
	}
}

func TestSetPushTargets(t *testing.T) {
	single := []PushTarget{{PushInfo: "fcm-token", PushType: PushTargetGCM, PushProfile: "prof"}}
	multi := []PushTarget{
		{PushInfo: "fcm-token", PushType: PushTargetGCM, PushProfile: "prof"},
		{PushInfo: "email", PushType: PushTargetMail, PushProfile: ""},
	}

	t.Run("single target flattens", func(t *testing.T) {
		var d DeviceRecord
		d.SetPushTargets(single)
		if d.PushInfo != "fcm-token" || d.PushType != "gcm" || d.PushProfile != "prof" {
			t.Errorf("flat fields wrong: %+v", d)
		}
		if d.PushTargets != nil {
			t.Error("single target must not emit push_targets")
		}
	})

	t.Run("multiple targets listed", func(t *testing.T) {
		var d DeviceRecord
		d.SetPushTargets(multi)
		if d.PushType != PushTypeMultiple {
			t.Errorf("PushType = %q, want multiple", d.PushType)
		}
		if len(d.PushTargets) != 2 {
			t.Errorf("PushTargets len = %d", len(d.PushTargets))
		}
		if d.PushInfo != "" || d.PushProfile != "" {
			t.Error("flat info/profile must be empty for multiple targets")
		}
	})

	t.Run("no targets", func(t *testing.T) {
		var d DeviceRecord
		d.SetPushTargets(nil)
		if d.PushType != "" || d.PushTargets != nil {
			t.Errorf("empty target set should leave record untouched: %+v", d)
		}
	})
}

func TestDeviceRecordWireShape(t *testing.T) {
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	tz := -600
	rec := DeviceRecord{
		Current:         NewLocationInfo(nil, false, now),
		Platform:        "android",
		Application:     "com.example.app",
		PlatformVersion: "1.0.0",
		PlatformInfo: PlatformInfo{
			Manufacturer: "Acme",
			Model:        "Phone X",
			BuildType:    "release",
		},
		Locale:         "en_AU",
		TimezoneOffset: &tz,
		Version:        "1.2",
	}
	rec.SetPushTargets([]PushTarget{{PushInfo: "tok", PushType: PushTargetGCM, PushProfile: "p"}})

	blob, err := json.Marshal(&rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(blob)

	for _, want := range []string{
		`"current":{`, `"arrival":null`, `"departure":null`,
		`"push_info":"tok"`, `"push_type":"gcm"`,
		`"platform_info":{`, `"build_type":"release"`,
		`"timezone_offset":-600`, `"version":"1.2"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("wire JSON missing %s in %s", want, body)
		}
	}
	if strings.Contains(body, "push_targets") {
		t.Error("single target must not serialize push_targets")
	}
}
