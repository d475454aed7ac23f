package activitypub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ReplayWindow is how long a (signature, date) pair is remembered.
const ReplayWindow = 15 * time.Minute

type replayStore interface {
	InsertReplayKey(ctx context.Context, key string, now, cutoff time.Time) (bool, error)
	PruneReplayCache(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReplayGuard rejects a signature seen within ReplayWindow.
type ReplayGuard struct {
	store  replayStore
	window time.Duration
	now    func() time.Time
	log    logrus.FieldLogger
}

func NewReplayGuard(store replayStore, logger logrus.FieldLogger) *ReplayGuard {
	return &ReplayGuard{
		store:  store,
		window: ReplayWindow,
		now:    time.Now,
		log:    logger,
	}
}

// CheckAndRecord reports true and records the pair if it has not been seen
// within the window. The check and the insert are one statement.
func (g *ReplayGuard) CheckAndRecord(ctx context.Context, signature, date string) (bool, error) {
	now := g.now()
	return g.store.InsertReplayKey(ctx, signature+":"+date, now, now.Add(-g.window))
}

// Prune deletes expired entries.
func (g *ReplayGuard) Prune(ctx context.Context) (int64, error) {
	return g.store.PruneReplayCache(ctx, g.now().Add(-g.window))
}

// RunJanitor prunes every interval until ctx is done.
func (g *ReplayGuard) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := g.Prune(ctx)
			if err != nil {
				g.log.WithError(err).Warn("Replay cache prune failed")
				continue
			}
			if n > 0 {
				g.log.WithField("pruned", n).Debug("Pruned replay cache")
			}
		}
	}
}
