package activitypub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xlog-social/xlog/db"
	"github.com/xlog-social/xlog/domain"
	"github.com/xlog-social/xlog/metrics"
	"github.com/xlog-social/xlog/tracing"
	"go.opentelemetry.io/otel/attribute"
)

type InboxStore interface {
	ReadAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	InsertInboxObject(ctx context.Context, obj *domain.InboxObject) (bool, error)
	ReadInboxObjectByActivityId(ctx context.Context, activityId string) (*domain.InboxObject, error)
	MarkInboxObjectApplied(ctx context.Context, activityId string, at time.Time) error
	InsertFollowerIfAbsent(ctx context.Context, f *domain.Follower) (bool, error)
	DeleteFollower(ctx context.Context, localUserId uuid.UUID, remoteActor string) (bool, error)
	AcceptFollowing(ctx context.Context, localUserId uuid.UUID, activityId string) (bool, error)
	IncrementLikeCount(ctx context.Context, postId uuid.UUID) (bool, error)
	DecrementLikeCount(ctx context.Context, postId uuid.UUID) (bool, error)
	EnqueueDelivery(ctx context.Context, d *domain.Delivery, job *domain.DeliveryJob) error
}

// SignatureVerifier is satisfied by *Verifier.
type SignatureVerifier interface {
	Check(ctx context.Context, req InboundRequest) error
}

// InboxProcessor applies inbound activities addressed to local users.
type InboxProcessor struct {
	store             InboxStore
	verifier          SignatureVerifier
	settings          SettingsProvider
	requireSignatures bool
	now               func() time.Time
	log               logrus.FieldLogger
}

func NewInboxProcessor(store InboxStore, verifier SignatureVerifier, settings SettingsProvider, requireSignatures bool, logger logrus.FieldLogger) *InboxProcessor {
	return &InboxProcessor{
		store:             store,
		verifier:          verifier,
		settings:          settings,
		requireSignatures: requireSignatures,
		now:               time.Now,
		log:               logger,
	}
}

// HandleInbound returns the HTTP status for the request. Accepted activities
// are audited before their effects are applied. An activity id whose effects
// were already applied is acknowledged without applying anything; one whose
// earlier attempt failed is applied again.
func (p *InboxProcessor) HandleInbound(ctx context.Context, username string, req InboundRequest) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "inbox.handle", attribute.String("inbox.user", username))
	defer span.End()

	activity, err := ParseActivity(req.Body)
	if err != nil {
		metrics.InboxActivitiesTotal.WithLabelValues("unknown", "malformed").Inc()
		return http.StatusBadRequest, err
	}
	typeName := activity.TypeName()
	span.SetAttributes(
		attribute.String("activity.type", typeName),
		attribute.String("activity.id", activity.ActivityID()),
	)
	logger := p.log.WithFields(logrus.Fields{
		"user":        username,
		"type":        typeName,
		"actor":       activity.ActorID(),
		"activity_id": activity.ActivityID(),
	})

	if p.requireSignatures || req.Header.Get("Signature") != "" {
		err := p.verifier.Check(ctx, req)
		if err == nil {
			err = signedByActor(req, activity.ActorID())
		}
		if err != nil {
			reason := rejectReason(err)
			metrics.SignatureRejectionsTotal.WithLabelValues(reason).Inc()
			metrics.InboxActivitiesTotal.WithLabelValues(typeName, "rejected").Inc()
			tracing.RecordError(ctx, err)
			logger.WithError(err).Warn("Rejected inbound signature")
			if reason == "error" {
				return http.StatusInternalServerError, err
			}
			return http.StatusUnauthorized, err
		}
	}

	local, err := p.store.ReadAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return http.StatusNotFound, err
		}
		return http.StatusInternalServerError, err
	}

	inserted, err := p.store.InsertInboxObject(ctx, &domain.InboxObject{
		Id:          uuid.New(),
		ActivityId:  activity.ActivityID(),
		Type:        typeName,
		Actor:       activity.ActorID(),
		ObjectId:    activity.ObjectID(),
		LocalUserId: local.Id,
		RawJSON:     string(req.Body),
		ReceivedAt:  p.now(),
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return http.StatusInternalServerError, err
	}
	if !inserted {
		existing, err := p.store.ReadInboxObjectByActivityId(ctx, activity.ActivityID())
		if err != nil {
			tracing.RecordError(ctx, err)
			return http.StatusInternalServerError, err
		}
		if existing.AppliedAt != nil {
			logger.Debug("Duplicate activity, already processed")
			metrics.InboxActivitiesTotal.WithLabelValues(typeName, "duplicate").Inc()
			return http.StatusAccepted, nil
		}
		logger.Info("Reapplying activity from an unfinished earlier delivery")
	}

	if err := p.dispatch(ctx, local, activity, logger); err != nil {
		tracing.RecordError(ctx, err)
		metrics.InboxActivitiesTotal.WithLabelValues(typeName, "error").Inc()
		logger.WithError(err).Error("Failed to apply activity")
		return http.StatusInternalServerError, err
	}
	if id := activity.ActivityID(); id != "" {
		if err := p.store.MarkInboxObjectApplied(ctx, id, p.now()); err != nil {
			logger.WithError(err).Warn("Failed to mark activity as applied")
		}
	}
	metrics.InboxActivitiesTotal.WithLabelValues(typeName, "accepted").Inc()
	return http.StatusAccepted, nil
}

// signedByActor rejects a signature made with a key that does not belong to
// the activity's actor.
func signedByActor(req InboundRequest, actor string) error {
	params, err := ParseSignatureHeader(req.Header.Get("Signature"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if signer := ActorFromKeyID(params.KeyID); signer != actor {
		return fmt.Errorf("%w: signed by %s on behalf of %s", ErrActorMismatch, signer, actor)
	}
	return nil
}

func (p *InboxProcessor) dispatch(ctx context.Context, local *domain.Account, activity Activity, logger logrus.FieldLogger) error {
	switch a := activity.(type) {
	case *Follow:
		return p.handleFollow(ctx, local, a, logger)
	case *Like:
		return p.handleLike(ctx, a.Object, logger)
	case *Accept:
		ok, err := p.store.AcceptFollowing(ctx, local.Id, a.Object.ID)
		if err != nil {
			return err
		}
		if !ok {
			logger.WithField("object", a.Object.ID).Debug("Accept does not match a pending follow")
		}
		return nil
	case *Undo:
		return p.handleUndo(ctx, local, a, logger)
	case *Create, *UnknownActivity:
		return nil
	default:
		return fmt.Errorf("unhandled activity %T", activity)
	}
}

func (p *InboxProcessor) handleFollow(ctx context.Context, local *domain.Account, follow *Follow, logger logrus.FieldLogger) error {
	inbox := RemoteInboxFor(follow.Actor)
	added, err := p.store.InsertFollowerIfAbsent(ctx, &domain.Follower{
		Id:          uuid.New(),
		LocalUserId: local.Id,
		RemoteActor: follow.Actor,
		InboxURL:    inbox,
		Approved:    true,
		CreatedAt:   p.now(),
	})
	if err != nil {
		return err
	}
	if added {
		logger.Info("New follower")
	}

	settings, err := p.settings.Get(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load settings, Accept not sent")
		return nil
	}
	actorId := ActorURL(settings.InstanceDomain, local.Username)
	activityId := NewActivityID(settings.InstanceDomain)
	accept := NewAccept(activityId, actorId, follow.ID)
	if _, err := enqueueActivity(ctx, p.store, domain.KindAccept, activityId, local.Id, inbox, accept); err != nil {
		logger.WithError(err).Error("Failed to enqueue Accept")
	}
	return nil
}

func (p *InboxProcessor) handleLike(ctx context.Context, objectURL string, logger logrus.FieldLogger) error {
	postId, ok := PostIDFromObjectURL(objectURL)
	if !ok {
		logger.WithField("object", objectURL).Debug("Like target is not a local post")
		return nil
	}
	found, err := p.store.IncrementLikeCount(ctx, postId)
	if err != nil {
		return err
	}
	if !found {
		logger.WithField("post", postId).Debug("Like for unknown post")
	}
	return nil
}

func (p *InboxProcessor) handleUndo(ctx context.Context, local *domain.Account, undo *Undo, logger logrus.FieldLogger) error {
	target := undo.Object
	if target.Type == "" || (target.Type == "Like" && target.Object == "") {
		recorded, err := p.store.ReadInboxObjectByActivityId(ctx, target.ID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				logger.WithField("object", target.ID).Debug("Undo of an unknown activity")
				return nil
			}
			return err
		}
		target = ObjectRef{ID: recorded.ActivityId, Type: recorded.Type, Actor: recorded.Actor, Object: recorded.ObjectId}
	}

	if target.Actor != "" && target.Actor != undo.Actor {
		logger.WithField("object_actor", target.Actor).Warn("Ignoring Undo of another actor's activity")
		return nil
	}

	switch target.Type {
	case "Follow":
		removed, err := p.store.DeleteFollower(ctx, local.Id, undo.Actor)
		if err != nil {
			return err
		}
		if removed {
			logger.Info("Follower removed")
		}
		return nil
	case "Like":
		postId, ok := PostIDFromObjectURL(target.Object)
		if !ok {
			return nil
		}
		_, err := p.store.DecrementLikeCount(ctx, postId)
		return err
	default:
		return nil
	}
}
