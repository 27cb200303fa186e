package session

import (
	"context"
	"time"
)

// Keys of a session record.
const (
	KeyClientCode = "clientCode"
	KeyUserData   = "userData"
	KeyAllUsers   = "allUsers"
	KeyRoleToken  = "roleToken"
)

// Storage holds session records as plain key/value pairs, one record per
// session id.
type Storage interface {
	Get(ctx context.Context, sessionID string, key string) (string, bool, error)
	Set(ctx context.Context, sessionID string, key string, value string) error
	Delete(ctx context.Context, sessionID string, key string) error
	Clear(ctx context.Context, sessionID string) error
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
	GetStorageType() string
	Close() error
}
