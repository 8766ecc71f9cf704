package repository

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
)

func TestSessionRoundTripAcrossRestart(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	repo := NewSessionRepository(backend, nil)
	nag := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := repo.Update(ctx, func(s *domain.Session) {
		s.AccessToken = "tok"
		s.AuthType = domain.AuthTypeAnonymous
		s.DeviceToken = "dev-1"
		s.PushToken = "push-1"
		s.Locale = "en_AU"
		s.TimezoneOffset = -600
		s.AppVersion = "1.2"
		s.LastPermissionNagAt = &nag
		s.LastPermissionNagCount = 2
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Simulated restart: fresh repository over the same backend.
	reloaded := NewSessionRepository(backend, nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := reloaded.Session(), repo.Session(); !reflect.DeepEqual(got, want) {
		t.Errorf("reloaded = %+v, want %+v", got, want)
	}
}

func TestLoadColdStart(t *testing.T) {
	repo := NewSessionRepository(NewMemoryBackend(), nil)
	if err := repo.Load(context.Background()); err != nil {
		t.Fatalf("cold start must not error: %v", err)
	}
	if repo.Authorized() {
		t.Error("cold session cannot be authorized")
	}
}

func TestLoadCorruptBlobIsColdStart(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	backend.Save(ctx, KeySessionSettings, []byte("{not json"))

	repo := NewSessionRepository(backend, nil)
	if err := repo.Load(ctx); err != nil {
		t.Fatalf("corrupt blob must degrade to cold start: %v", err)
	}
	if s := repo.Session(); s.AccessToken != "" {
		t.Errorf("session should be empty, got %+v", s)
	}
}

func TestUpdateSaveFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	backend.FailSaves = errors.New("disk full")

	repo := NewSessionRepository(backend, nil)
	err := repo.Update(ctx, func(s *domain.Session) { s.AccessToken = "tok" })
	if err == nil {
		t.Fatal("want save error")
	}
	if !repo.Authorized() {
		t.Error("in-memory mutation must stand after a failed save")
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	repo := NewSessionRepository(backend, nil)
	repo.Update(ctx, func(s *domain.Session) { s.AccessToken = "tok" })

	if err := repo.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if repo.Authorized() {
		t.Error("session not cleared")
	}
	if _, err := backend.Load(ctx, KeySessionSettings); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("blob should be deleted, got %v", err)
	}
}

func TestBoltBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wisdk.db")

	backend, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer backend.Close()

	if _, err := backend.Load(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing key: got %v, want ErrNotFound", err)
	}

	if err := backend.Save(ctx, "k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	blob, err := backend.Load(ctx, "k")
	if err != nil || string(blob) != `{"a":1}` {
		t.Errorf("Load = %s, %v", blob, err)
	}

	if err := backend.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := backend.Load(ctx, "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("key should be gone after delete")
	}
	// deleting again is fine
	if err := backend.Delete(ctx, "k"); err != nil {
		t.Errorf("double delete: %v", err)
	}
}

func TestConfigSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	type cfg struct {
		Server   string `json:"server"`
		Radius   float64
		Untagged int
	}
	in := cfg{Server: "https://api.example.com", Radius: 20, Untagged: 7}
	if err := SaveConfig(ctx, backend, &in); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	var out cfg
	found, err := LoadConfig(ctx, backend, &out)
	if err != nil || !found {
		t.Fatalf("LoadConfig: found=%v err=%v", found, err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("config = %+v, want %+v", out, in)
	}

	var none cfg
	found, err = LoadConfig(ctx, NewMemoryBackend(), &none)
	if err != nil || found {
		t.Errorf("empty backend: found=%v err=%v", found, err)
	}
}
