package wisdk

import (
	"context"
	"errors"

	"github.com/3-electric-sheep/wisdk-go/pkg/repository"
)

// ErrNoSavedConfig means Reconstruct found no configuration snapshot in
// the store: a full Start has never run on this install.
var ErrNoSavedConfig = errors.New("wisdk: no saved configuration")

// Reconstruct rebuilds an SDK instance from the configuration snapshot a
// previous Start persisted. It is the cold-start path for a process
// woken without the host app's wiring (a broadcast, a background job):
// the returned instance behaves identically whether it came from New
// with a live config or from here. Follow with StartMinimal.
func Reconstruct(ctx context.Context, deps Deps) (*App, error) {
	if deps.Backend == nil {
		return nil, errors.New("wisdk: storage backend is required")
	}

	cfg := NewConfig("", "")
	found, err := repository.LoadConfig(ctx, deps.Backend, cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoSavedConfig
	}
	return New(cfg, deps)
}
