package activitypub

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xlog-social/xlog/db"
	"github.com/xlog-social/xlog/domain"
	"github.com/xlog-social/xlog/metrics"
	"github.com/xlog-social/xlog/tracing"
	"github.com/xlog-social/xlog/util"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultMaxReceives = 10
)

type DeliveryStore interface {
	EnsureDelivery(ctx context.Context, d *domain.Delivery) (*domain.Delivery, error)
	SaveDeliveryPayload(ctx context.Context, activityId, payload string, now time.Time) error
	MarkDeliverySent(ctx context.Context, activityId string, now time.Time) (bool, error)
	MarkDeliveryFailed(ctx context.Context, activityId, lastError string, now time.Time) (bool, error)
	ReadAccountById(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ReadPost(ctx context.Context, id uuid.UUID) (*domain.Post, error)
}

type WorkerConfig struct {
	PopTimeout  time.Duration
	MaxReceives int
}

// DeliveryWorker pops jobs and POSTs signed activities to remote inboxes.
type DeliveryWorker struct {
	store    DeliveryStore
	queue    *DeliveryQueue
	settings SettingsProvider
	client   *http.Client
	conf     WorkerConfig
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewDeliveryWorker(store DeliveryStore, queue *DeliveryQueue, settings SettingsProvider, client *http.Client, conf WorkerConfig, logger logrus.FieldLogger) *DeliveryWorker {
	if conf.PopTimeout <= 0 {
		conf.PopTimeout = DefaultPopTimeout
	}
	if conf.MaxReceives <= 0 {
		conf.MaxReceives = DefaultMaxReceives
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &DeliveryWorker{
		store:    store,
		queue:    queue,
		settings: settings,
		client:   client,
		conf:     conf,
		now:      time.Now,
		log:      logger,
	}
}

// Run processes jobs until ctx is cancelled. Jobs whose processing hits a
// storage error are left un-acked and come back after the lease.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	w.log.Info("Delivery worker started")
	defer w.log.Info("Delivery worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := w.queue.Pop(ctx, w.conf.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.WithError(err).Error("Failed to pop delivery job")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		if err := w.Process(ctx, job); err != nil {
			w.log.WithError(err).WithField("activity_id", job.ActivityId).Warn("Delivery job left for redelivery")
			continue
		}
		if err := w.queue.Ack(ctx, job.Id); err != nil {
			w.log.WithError(err).WithField("job_id", job.Id).Error("Failed to ack delivery job")
		}
	}
}

// Process makes one delivery attempt for job and records the outcome on the
// Delivery row. A nil error means the job can be acked.
func (w *DeliveryWorker) Process(ctx context.Context, job *domain.DeliveryJob) error {
	ctx, span := tracing.StartSpan(ctx, "delivery.process",
		attribute.String("activity.id", job.ActivityId),
		attribute.String("delivery.kind", string(job.Kind)),
		attribute.String("delivery.inbox", job.InboxURL),
	)
	defer span.End()

	logger := w.log.WithFields(logrus.Fields{
		"activity_id": job.ActivityId,
		"kind":        job.Kind,
		"inbox":       job.InboxURL,
	})

	now := w.now()
	d, err := w.store.EnsureDelivery(ctx, &domain.Delivery{
		Id:          uuid.New(),
		ActivityId:  job.ActivityId,
		Kind:        job.Kind,
		RemoteInbox: job.InboxURL,
		Status:      domain.DeliveryPending,
		UserId:      job.UserId,
		PostId:      job.PostId,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("load delivery: %w", err)
	}
	if !d.Status.Open() {
		logger.WithField("status", d.Status).Debug("Skipping delivery that is already settled")
		metrics.DeliveriesTotal.WithLabelValues(string(job.Kind), "skipped").Inc()
		return nil
	}
	if job.ReceiveCount > w.conf.MaxReceives {
		logger.WithField("receives", job.ReceiveCount).Warn("Dropping delivery job after too many receives")
		if _, err := w.store.MarkDeliveryFailed(ctx, d.ActivityId, "exceeded receive limit", w.now()); err != nil {
			return err
		}
		metrics.DeliveriesTotal.WithLabelValues(string(d.Kind), "dropped").Inc()
		return nil
	}

	start := time.Now()
	attemptErr := w.attempt(ctx, d)
	metrics.DeliveryDurationSeconds.WithLabelValues(string(d.Kind)).Observe(time.Since(start).Seconds())

	if attemptErr != nil {
		tracing.RecordError(ctx, attemptErr)
		logger.WithError(attemptErr).Warn("Delivery failed")
		metrics.DeliveriesTotal.WithLabelValues(string(d.Kind), "failed").Inc()
		_, err := w.store.MarkDeliveryFailed(ctx, d.ActivityId, attemptErr.Error(), w.now())
		return err
	}

	logger.Info("Delivered activity")
	metrics.DeliveriesTotal.WithLabelValues(string(d.Kind), "sent").Inc()
	_, err = w.store.MarkDeliverySent(ctx, d.ActivityId, w.now())
	return err
}

func (w *DeliveryWorker) attempt(ctx context.Context, d *domain.Delivery) error {
	if d.UserId == uuid.Nil || d.RemoteInbox == "" {
		return fmt.Errorf("%w: user and inbox are required", ErrMissingDeliveryMetadata)
	}
	if d.Kind == domain.KindCreate && d.PostId == uuid.Nil {
		return fmt.Errorf("%w: post is required", ErrMissingDeliveryMetadata)
	}

	settings, err := w.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	author, err := w.store.ReadAccountById(ctx, d.UserId)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: author %s not found", ErrMissingDeliveryMetadata, d.UserId)
		}
		return err
	}

	var payload []byte
	switch d.Kind {
	case domain.KindCreate:
		payload, err = w.buildCreate(ctx, d, author, settings.InstanceDomain)
		if err != nil {
			return err
		}
	case domain.KindAccept, domain.KindFollow:
		if d.ActivityJSON == "" {
			return fmt.Errorf("%w: %s delivery has no activity", ErrMissingDeliveryMetadata, d.Kind)
		}
		payload = []byte(d.ActivityJSON)
	default:
		return fmt.Errorf("%w: unknown delivery kind %q", ErrMissingDeliveryMetadata, d.Kind)
	}

	privateKey, err := ParsePrivateKey(author.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	return w.post(ctx, d.RemoteInbox, payload, privateKey, KeyID(settings.InstanceDomain, author.Username))
}

// buildCreate renders the post and snapshots the payload before it is sent.
// A delivery that already has a snapshot resends it unchanged.
func (w *DeliveryWorker) buildCreate(ctx context.Context, d *domain.Delivery, author *domain.Account, domainName string) ([]byte, error) {
	if d.ActivityJSON != "" {
		return []byte(d.ActivityJSON), nil
	}

	post, err := w.store.ReadPost(ctx, d.PostId)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPostUnavailable, d.PostId)
		}
		return nil, err
	}
	if !post.IsPublished() {
		return nil, fmt.Errorf("%w: %s", ErrPostUnavailable, d.PostId)
	}

	actorId := ActorURL(domainName, author.Username)
	article := NewArticle(post, actorId, domainName, *post.PublishedAt)
	payload, err := json.Marshal(NewCreate(d.ActivityId, actorId, article, *post.PublishedAt))
	if err != nil {
		return nil, fmt.Errorf("marshal create: %w", err)
	}
	if err := w.store.SaveDeliveryPayload(ctx, d.ActivityId, string(payload), w.now()); err != nil {
		return nil, err
	}
	return payload, nil
}

func (w *DeliveryWorker) post(ctx context.Context, inbox string, payload []byte, privateKey *rsa.PrivateKey, keyId string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)
	req.Header.Set("User-Agent", util.UserAgent())
	req.Header.Set("Date", w.now().UTC().Format(http.TimeFormat))

	if err := SignRequest(req, payload, privateKey, keyId); err != nil {
		return err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryHTTPError{Status: resp.StatusCode}
	}
	return nil
}
