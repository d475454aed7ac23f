package activitypub

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xlog-social/xlog/domain"
)

type PublisherStore interface {
	ReadAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	ReadPost(ctx context.Context, id uuid.UUID) (*domain.Post, error)
	ReadFollowers(ctx context.Context, localUserId uuid.UUID) ([]domain.Follower, error)
	InsertFollowingIfAbsent(ctx context.Context, f *domain.Following) (bool, error)
	ReadFollowingByActor(ctx context.Context, localUserId uuid.UUID, remoteActor string) (*domain.Following, error)
	EnqueueDelivery(ctx context.Context, d *domain.Delivery, job *domain.DeliveryJob) error
}

// Publisher turns local actions into queued deliveries.
type Publisher struct {
	store    PublisherStore
	settings SettingsProvider
	fetcher  ActorFetcher
	log      logrus.FieldLogger
}

func NewPublisher(store PublisherStore, settings SettingsProvider, fetcher ActorFetcher, logger logrus.FieldLogger) *Publisher {
	return &Publisher{store: store, settings: settings, fetcher: fetcher, log: logger}
}

// PublishPost queues one Create per approved follower inbox and returns the
// number of deliveries queued. The activity itself is rendered by the worker.
func (p *Publisher) PublishPost(ctx context.Context, postId uuid.UUID) (int, error) {
	post, err := p.store.ReadPost(ctx, postId)
	if err != nil {
		return 0, err
	}
	if !post.IsPublished() {
		return 0, fmt.Errorf("%w: %s", ErrPostUnavailable, postId)
	}

	settings, err := p.settings.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}

	followers, err := p.store.ReadFollowers(ctx, post.AuthorId)
	if err != nil {
		return 0, fmt.Errorf("read followers: %w", err)
	}

	seen := make(map[string]bool)
	queued := 0
	for _, f := range followers {
		if !f.Approved || f.InboxURL == "" || seen[f.InboxURL] {
			continue
		}
		seen[f.InboxURL] = true

		now := time.Now()
		d := &domain.Delivery{
			Id:          uuid.New(),
			ActivityId:  NewActivityID(settings.InstanceDomain),
			Kind:        domain.KindCreate,
			RemoteInbox: f.InboxURL,
			Status:      domain.DeliveryPending,
			UserId:      post.AuthorId,
			PostId:      post.Id,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := p.store.EnqueueDelivery(ctx, d, domain.JobFor(d)); err != nil {
			return queued, fmt.Errorf("queue delivery to %s: %w", f.InboxURL, err)
		}
		queued++
	}

	p.log.WithFields(logrus.Fields{
		"post":       post.Id,
		"deliveries": queued,
	}).Info("Queued post for federation")
	return queued, nil
}

// Follow asks a remote actor to accept a follow from a local user. Following
// the same actor twice returns the existing record without a new request.
func (p *Publisher) Follow(ctx context.Context, username, remoteActorURL string) (*domain.Following, error) {
	local, err := p.store.ReadAccountByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	settings, err := p.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	remote, err := p.fetcher.FetchActor(ctx, remoteActorURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrActorUnresolvable, remoteActorURL, err)
	}
	inbox := remote.Inbox
	if inbox == "" {
		inbox = RemoteInboxFor(remote.ID)
	}

	activityId := NewActivityID(settings.InstanceDomain)
	following := &domain.Following{
		Id:          uuid.New(),
		LocalUserId: local.Id,
		RemoteActor: remote.ID,
		InboxURL:    inbox,
		ActivityId:  activityId,
		CreatedAt:   time.Now(),
	}
	inserted, err := p.store.InsertFollowingIfAbsent(ctx, following)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return p.store.ReadFollowingByActor(ctx, local.Id, remote.ID)
	}

	follow := NewFollow(activityId, ActorURL(settings.InstanceDomain, local.Username), remote.ID)
	if _, err := enqueueActivity(ctx, p.store, domain.KindFollow, activityId, local.Id, inbox, follow); err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"user":   username,
		"remote": remote.ID,
	}).Info("Queued follow request")
	return following, nil
}
