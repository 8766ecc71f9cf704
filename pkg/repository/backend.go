// Package repository persists the SDK's durable state as opaque JSON blobs
// in an on-device key-value store.
package repository

import "context"

// Storage keys. The config key must not change: background job services
// look the blob up by the same name.
const (
	KeySessionSettings = "@TesWI:AppSettings"
	KeyConfigSettings  = "@WI:CurrentConfigSettings"
)

// Backend is the raw key-value persistence collaborator. Load returns
// domain.ErrNotFound when no blob exists under the key.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}
