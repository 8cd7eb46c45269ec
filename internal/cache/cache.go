package cache

import (
	"context"
	"time"
)

// BytesCache — best-effort кэш: промах и недоступность равнозначны.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
