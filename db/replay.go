package db

import (
	"context"
	"time"
)

const (
	// The conditional DO UPDATE only fires for an expired entry, so one affected
	// row means the key is fresh and zero means it was seen within the window.
	sqlUpsertReplayKey = `INSERT INTO replay_cache(cache_key, created_at) VALUES (?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET created_at = excluded.created_at WHERE replay_cache.created_at < ?`
	sqlPruneReplayCache = `DELETE FROM replay_cache WHERE created_at < ?`
)

// InsertReplayKey records key at now unless an entry newer than cutoff exists.
func (db *DB) InsertReplayKey(ctx context.Context, key string, now, cutoff time.Time) (bool, error) {
	n, err := db.exec(ctx, sqlUpsertReplayKey, key, toMillis(now), toMillis(cutoff))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (db *DB) PruneReplayCache(ctx context.Context, cutoff time.Time) (int64, error) {
	return db.exec(ctx, sqlPruneReplayCache, toMillis(cutoff))
}
