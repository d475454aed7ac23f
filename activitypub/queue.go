package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xlog-social/xlog/domain"
)

const (
	DefaultPopTimeout        = 5 * time.Second
	DefaultVisibilityTimeout = 2 * time.Minute

	pollInterval = 250 * time.Millisecond
)

type JobStore interface {
	PushJob(ctx context.Context, job *domain.DeliveryJob) error
	ClaimJob(ctx context.Context, now time.Time, lease time.Duration) (*domain.DeliveryJob, error)
	AckJob(ctx context.Context, id uuid.UUID) error
}

// DeliveryQueue is a durable FIFO of delivery jobs. A popped job stays leased
// until acked; if the lease runs out first the job is handed out again.
type DeliveryQueue struct {
	store JobStore
	lease time.Duration
	poll  time.Duration
	now   func() time.Time
}

func NewDeliveryQueue(store JobStore, visibilityTimeout time.Duration) *DeliveryQueue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = DefaultVisibilityTimeout
	}
	return &DeliveryQueue{
		store: store,
		lease: visibilityTimeout,
		poll:  pollInterval,
		now:   time.Now,
	}
}

func (q *DeliveryQueue) Push(ctx context.Context, job *domain.DeliveryJob) error {
	return q.store.PushJob(ctx, job)
}

// Pop blocks until a job can be claimed or timeout elapses. It returns a nil
// job on timeout.
func (q *DeliveryQueue) Pop(ctx context.Context, timeout time.Duration) (*domain.DeliveryJob, error) {
	deadline := q.now().Add(timeout)
	for {
		job, err := q.store.ClaimJob(ctx, q.now(), q.lease)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		remaining := deadline.Sub(q.now())
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(min(q.poll, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *DeliveryQueue) Ack(ctx context.Context, id uuid.UUID) error {
	return q.store.AckJob(ctx, id)
}

type deliveryEnqueuer interface {
	EnqueueDelivery(ctx context.Context, d *domain.Delivery, job *domain.DeliveryJob) error
}

// enqueueActivity stores a pending delivery carrying the serialized activity
// and pushes its job in the same transaction.
func enqueueActivity(ctx context.Context, store deliveryEnqueuer, kind domain.DeliveryKind, activityId string, userId uuid.UUID, inbox string, activity any) (*domain.Delivery, error) {
	payload, err := json.Marshal(activity)
	if err != nil {
		return nil, fmt.Errorf("marshal %s activity: %w", kind, err)
	}
	now := time.Now()
	d := &domain.Delivery{
		Id:           uuid.New(),
		ActivityId:   activityId,
		Kind:         kind,
		RemoteInbox:  inbox,
		Status:       domain.DeliveryPending,
		UserId:       userId,
		ActivityJSON: string(payload),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.EnqueueDelivery(ctx, d, domain.JobFor(d)); err != nil {
		return nil, err
	}
	return d, nil
}
