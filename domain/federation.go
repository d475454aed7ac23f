package domain

import (
	"time"

	"github.com/google/uuid"
)

// Follower is a remote actor following a local account.
type Follower struct {
	Id          uuid.UUID
	LocalUserId uuid.UUID
	RemoteActor string
	InboxURL    string
	Approved    bool
	CreatedAt   time.Time
}

// Following is a remote actor a local account asked to follow.
// Accepted flips to true once the matching Accept arrives.
type Following struct {
	Id          uuid.UUID
	LocalUserId uuid.UUID
	RemoteActor string
	InboxURL    string
	ActivityId  string
	Accepted    bool
	CreatedAt   time.Time
}

// InboxObject is the audit record of an inbound activity. AppliedAt stays nil
// until its effects have been applied.
type InboxObject struct {
	Id          uuid.UUID
	ActivityId  string
	Type        string
	Actor       string
	ObjectId    string
	LocalUserId uuid.UUID
	RawJSON     string
	ReceivedAt  time.Time
	AppliedAt   *time.Time
}
