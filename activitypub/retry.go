package activitypub

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xlog-social/xlog/domain"
	"github.com/xlog-social/xlog/metrics"
)

const (
	DefaultMaxAttempts   = 5
	DefaultRetryInterval = 60 * time.Second

	maxBackoff = time.Hour
)

// Backoff is the wait after the given number of attempts: 1s doubled per
// attempt, capped at one hour.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 12 {
		return maxBackoff
	}
	return min(time.Second<<attempts, maxBackoff)
}

type retryStore interface {
	ReadRetryableDeliveries(ctx context.Context, maxAttempts int) ([]domain.Delivery, error)
	RequeueDelivery(ctx context.Context, activityId string, job *domain.DeliveryJob, now time.Time) (bool, error)
}

// RetryScheduler puts failed deliveries back on the queue once their backoff
// has passed. Deliveries that used up their attempts stay failed.
type RetryScheduler struct {
	store       retryStore
	interval    time.Duration
	maxAttempts int
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewRetryScheduler(store retryStore, interval time.Duration, maxAttempts int, logger logrus.FieldLogger) *RetryScheduler {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryScheduler{
		store:       store,
		interval:    interval,
		maxAttempts: maxAttempts,
		now:         time.Now,
		log:         logger,
	}
}

func (s *RetryScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval).Info("Retry scheduler started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.log.WithError(err).Error("Retry tick failed")
			}
		}
	}
}

// Tick requeues every failed delivery whose backoff has elapsed and returns
// how many were requeued.
func (s *RetryScheduler) Tick(ctx context.Context) (int, error) {
	rows, err := s.store.ReadRetryableDeliveries(ctx, s.maxAttempts)
	if err != nil {
		return 0, err
	}

	now := s.now()
	requeued := 0
	for i := range rows {
		d := &rows[i]
		if permanentFailure(d) {
			continue
		}
		if now.Before(d.UpdatedAt.Add(Backoff(d.AttemptCount))) {
			continue
		}
		ok, err := s.store.RequeueDelivery(ctx, d.ActivityId, domain.JobFor(d), now)
		if err != nil {
			s.log.WithError(err).WithField("activity_id", d.ActivityId).Error("Failed to requeue delivery")
			continue
		}
		if !ok {
			continue
		}
		requeued++
		metrics.DeliveriesRequeuedTotal.Inc()
		s.log.WithFields(logrus.Fields{
			"activity_id": d.ActivityId,
			"attempts":    d.AttemptCount,
		}).Info("Requeued delivery")
	}
	return requeued, nil
}

// permanentFailure reports whether another attempt would fail the same way.
func permanentFailure(d *domain.Delivery) bool {
	return strings.HasPrefix(d.LastError, ErrMissingDeliveryMetadata.Error())
}
