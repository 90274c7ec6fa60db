// Package store persists mock toggles and the request log across process runs.
package store

import (
	"context"
	"errors"

	"github.com/comfortablynumb/quizmock/internal/tracker"
)

// Keys under which the integration layer saves its state
const (
	KeyConfig = "mock_config"
)

// MaxRequests is how many persisted request log entries are kept
const MaxRequests = 100

// ErrNotFound is returned by Get for a key that was never set
var ErrNotFound = errors.New("key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	AppendRequests(ctx context.Context, entries []tracker.Entry) error
	Requests(ctx context.Context) ([]tracker.Entry, error)
	ClearRequests(ctx context.Context) error

	Close() error
}
