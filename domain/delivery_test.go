package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestDeliveryStatusOpen(t *testing.T) {
	tests := []struct {
		status DeliveryStatus
		open   bool
	}{
		{DeliveryPending, true},
		{DeliveryRetrying, true},
		{DeliverySent, false},
		{DeliveryFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Open(); got != tt.open {
				t.Errorf("%s.Open() = %v, want %v", tt.status, got, tt.open)
			}
		})
	}
}

func TestJobFor(t *testing.T) {
	d := &Delivery{
		ActivityId:  "https://example.com/ap/activities/1",
		Kind:        KindCreate,
		RemoteInbox: "https://remote.example/inbox",
		UserId:      uuid.New(),
		PostId:      uuid.New(),
	}

	job := JobFor(d)

	if job.Id == uuid.Nil {
		t.Error("job should get a fresh id")
	}
	if job.ActivityId != d.ActivityId || job.InboxURL != d.RemoteInbox {
		t.Errorf("job does not mirror delivery: %+v", job)
	}
	if job.UserId != d.UserId || job.PostId != d.PostId || job.Kind != d.Kind {
		t.Errorf("job metadata mismatch: %+v", job)
	}
}
