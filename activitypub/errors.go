package activitypub

import (
	"errors"
	"fmt"
)

var (
	ErrSignatureInvalid        = errors.New("signature invalid")
	ErrReplayDetected          = errors.New("replay detected")
	ErrClockSkewExceeded       = errors.New("clock skew exceeded")
	ErrActorUnresolvable       = errors.New("actor unresolvable")
	ErrActorMismatch           = errors.New("signer is not the activity actor")
	ErrDeliveryNetwork         = errors.New("delivery network error")
	ErrMalformedActivity       = errors.New("malformed activity")
	ErrMissingDeliveryMetadata = errors.New("missing delivery metadata")
	ErrPostUnavailable         = errors.New("post not found or not published")
)

// DeliveryHTTPError is a non-2xx response from a remote inbox.
type DeliveryHTTPError struct {
	Status int
}

func (e *DeliveryHTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Status)
}

// rejectReason maps verification failures to a short metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrReplayDetected):
		return "replay"
	case errors.Is(err, ErrClockSkewExceeded):
		return "clock_skew"
	case errors.Is(err, ErrActorUnresolvable):
		return "actor_unresolvable"
	case errors.Is(err, ErrActorMismatch):
		return "actor_mismatch"
	case errors.Is(err, ErrSignatureInvalid):
		return "invalid"
	default:
		return "error"
	}
}
