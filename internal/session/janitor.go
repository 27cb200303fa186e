package session

import (
	"context"
	"time"

	"github.com/fatali-fataliyev/ecbank_web/logging"
)

// RunJanitor purges session records idle for longer than ttl every interval
// until ctx is done. A zero ttl disables it.
func RunJanitor(ctx context.Context, storage Storage, ttl time.Duration, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		logging.Logger.Info("session janitor disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			purgeIdle(ctx, storage, ttl, now)
		}
	}
}

func purgeIdle(ctx context.Context, storage Storage, ttl time.Duration, now time.Time) int64 {
	purged, err := storage.PurgeStale(ctx, now.Add(-ttl))
	if err != nil {
		logging.Logger.Errorf("failed to purge idle sessions from %s storage: %v", storage.GetStorageType(), err)
		return 0
	}
	if purged > 0 {
		logging.Logger.Infof("purged %d idle session(s)", purged)
	}
	return purged
}
