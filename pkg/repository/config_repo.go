package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
)

// SaveConfig persists an opaque config snapshot so a process woken only to
// handle one event can rebuild the runtime from storage.
func SaveConfig(ctx context.Context, backend Backend, cfg any) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := backend.Save(ctx, KeyConfigSettings, blob); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// LoadConfig overlays the persisted config snapshot onto cfg. Reports
// whether a snapshot existed.
func LoadConfig(ctx context.Context, backend Backend, cfg any) (bool, error) {
	blob, err := backend.Load(ctx, KeyConfigSettings)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load config: %w", err)
	}
	if err := json.Unmarshal(blob, cfg); err != nil {
		return false, fmt.Errorf("decode config: %w", err)
	}
	return true, nil
}
