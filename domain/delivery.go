package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySent     DeliveryStatus = "sent"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryRetrying DeliveryStatus = "retrying"
)

// Open reports whether a worker may still act on the delivery.
func (s DeliveryStatus) Open() bool {
	return s == DeliveryPending || s == DeliveryRetrying
}

type DeliveryKind string

const (
	KindCreate DeliveryKind = "create"
	KindAccept DeliveryKind = "accept"
	KindFollow DeliveryKind = "follow"
)

// Delivery tracks one outbound activity to one remote inbox.
type Delivery struct {
	Id           uuid.UUID
	ActivityId   string
	Kind         DeliveryKind
	RemoteInbox  string
	Status       DeliveryStatus
	AttemptCount int
	LastError    string
	UserId       uuid.UUID
	PostId       uuid.UUID
	ActivityJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeliveryJob is a queue entry asking a worker to attempt a Delivery.
type DeliveryJob struct {
	Id           uuid.UUID
	ActivityId   string
	Kind         DeliveryKind
	UserId       uuid.UUID
	PostId       uuid.UUID
	InboxURL     string
	ReceiveCount int
	VisibleAt    time.Time
	CreatedAt    time.Time
}

// JobFor builds the queue entry that drives d.
func JobFor(d *Delivery) *DeliveryJob {
	return &DeliveryJob{
		Id:         uuid.New(),
		ActivityId: d.ActivityId,
		Kind:       d.Kind,
		UserId:     d.UserId,
		PostId:     d.PostId,
		InboxURL:   d.RemoteInbox,
	}
}
