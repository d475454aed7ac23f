package activitypub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xlog-social/xlog/db"
	"github.com/xlog-social/xlog/domain"
)

// remoteInbox is a test server standing in for another instance's inbox. It
// checks signatures against local keys and records what it receives.
type remoteInbox struct {
	srv      *httptest.Server
	verifier *Verifier
	status   int

	mu        sync.Mutex
	received  []map[string]any
	verifyErr []error
}

func newRemoteInbox(t *testing.T, store *db.DB, status int) *remoteInbox {
	t.Helper()
	ri := &remoteInbox{
		verifier: NewVerifier(NewKeyStore(store, testSettings(store), nil), newMemoryReplay()),
		status:   status,
	}
	ri.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		verr := ri.verifier.Check(r.Context(), inboundFromHTTP(t, r, body))

		var activity map[string]any
		_ = json.Unmarshal(body, &activity)

		ri.mu.Lock()
		ri.received = append(ri.received, activity)
		ri.verifyErr = append(ri.verifyErr, verr)
		ri.mu.Unlock()

		w.WriteHeader(ri.status)
	}))
	t.Cleanup(ri.srv.Close)
	return ri
}

func (ri *remoteInbox) URL() string {
	return ri.srv.URL + "/u/bob/inbox"
}

func (ri *remoteInbox) requests() ([]map[string]any, []error) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return append([]map[string]any(nil), ri.received...), append([]error(nil), ri.verifyErr...)
}

func newTestWorker(store *db.DB) *DeliveryWorker {
	q := NewDeliveryQueue(store, time.Minute)
	return NewDeliveryWorker(store, q, testSettings(store), &http.Client{Timeout: 5 * time.Second}, WorkerConfig{PopTimeout: 100 * time.Millisecond}, nullLogger())
}

func popJob(t *testing.T, w *DeliveryWorker) *domain.DeliveryJob {
	t.Helper()
	job, err := w.queue.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func processNext(t *testing.T, w *DeliveryWorker) *domain.DeliveryJob {
	t.Helper()
	job := popJob(t, w)
	require.NoError(t, w.Process(context.Background(), job))
	require.NoError(t, w.queue.Ack(context.Background(), job.Id))
	return job
}

func TestFollowIsAnsweredWithSignedAccept(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	remote := newRemoteInbox(t, store, http.StatusAccepted)
	bobActor := remote.srv.URL + "/u/bob"

	inbox := NewInboxProcessor(store, NewVerifier(staticKeys{}, newMemoryReplay()), testSettings(store), false, nullLogger())
	follow := []byte(`{"@context":"https://www.w3.org/ns/activitystreams","id":"` + bobActor + `/follows/1","type":"Follow","actor":"` + bobActor + `","object":"https://example.com/ap/users/alice"}`)
	status, err := inbox.HandleInbound(context.Background(), "alice", InboundRequest{Method: "POST", Path: "/ap/users/alice/inbox", Header: http.Header{}, Body: follow})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)

	w := newTestWorker(store)
	job := processNext(t, w)
	assert.Equal(t, domain.KindAccept, job.Kind)
	assert.Equal(t, alice.Id, job.UserId)

	received, verifyErrs := remote.requests()
	require.Len(t, received, 1)
	assert.NoError(t, verifyErrs[0])
	assert.Equal(t, "Accept", received[0]["type"])
	assert.Equal(t, "https://example.com/ap/users/alice", received[0]["actor"])
	assert.Equal(t, bobActor+"/follows/1", received[0]["object"])

	d, err := store.ReadDelivery(context.Background(), job.ActivityId)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, d.Status)
	assert.Equal(t, 1, d.AttemptCount)
	assert.Equal(t, remote.URL(), d.RemoteInbox)

	n, err := store.CountJobs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateDeliverySnapshotsPayload(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	post := createPublishedPost(t, store, alice.Id)
	remote := newRemoteInbox(t, store, http.StatusOK)
	ctx := context.Background()

	_, err := store.InsertFollowerIfAbsent(ctx, &domain.Follower{
		Id: uuid.New(), LocalUserId: alice.Id, RemoteActor: remote.srv.URL + "/u/bob",
		InboxURL: remote.URL(), Approved: true, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	pub := NewPublisher(store, testSettings(store), nil, nullLogger())
	n, err := pub.PublishPost(ctx, post.Id)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	w := newTestWorker(store)
	job := processNext(t, w)

	received, verifyErrs := remote.requests()
	require.Len(t, received, 1)
	assert.NoError(t, verifyErrs[0])
	assert.Equal(t, "Create", received[0]["type"])
	assert.Equal(t, job.ActivityId, received[0]["id"])
	object := received[0]["object"].(map[string]any)
	assert.Equal(t, "Article", object["type"])
	assert.Equal(t, post.Title, object["name"])
	assert.Equal(t, PostURL(testDomain, post.Id), object["id"])

	d, err := store.ReadDelivery(ctx, job.ActivityId)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, d.Status)
	assert.Contains(t, d.ActivityJSON, `"type":"Create"`)
}

func TestDeliveryFailureIsRecorded(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	remote := newRemoteInbox(t, store, http.StatusInternalServerError)
	ctx := context.Background()

	d, err := enqueueActivity(ctx, store, domain.KindAccept, NewActivityID(testDomain), alice.Id, remote.URL(),
		NewAccept("x", ActorURL(testDomain, "alice"), "https://r.example/f/1"))
	require.NoError(t, err)

	w := newTestWorker(store)
	processNext(t, w)

	stored, err := store.ReadDelivery(ctx, d.ActivityId)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Equal(t, "HTTP 500", stored.LastError)
}

func TestDeliveryNetworkError(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	ctx := context.Background()

	d, err := enqueueActivity(ctx, store, domain.KindFollow, NewActivityID(testDomain), alice.Id, closed.URL+"/inbox",
		NewFollow("x", ActorURL(testDomain, "alice"), closed.URL))
	require.NoError(t, err)

	w := newTestWorker(store)
	processNext(t, w)

	stored, err := store.ReadDelivery(ctx, d.ActivityId)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, stored.Status)
	assert.Contains(t, stored.LastError, ErrDeliveryNetwork.Error())
}

func TestCreateDeliveryForMissingPost(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	remote := newRemoteInbox(t, store, http.StatusOK)
	ctx := context.Background()

	d := &domain.Delivery{
		Id: uuid.New(), ActivityId: NewActivityID(testDomain), Kind: domain.KindCreate,
		RemoteInbox: remote.URL(), Status: domain.DeliveryPending, UserId: alice.Id, PostId: uuid.New(),
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.EnqueueDelivery(ctx, d, domain.JobFor(d)))

	w := newTestWorker(store)
	processNext(t, w)

	stored, err := store.ReadDelivery(ctx, d.ActivityId)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, stored.Status)
	assert.Contains(t, stored.LastError, ErrPostUnavailable.Error())

	received, _ := remote.requests()
	assert.Empty(t, received)
}

func TestCreateRetryResendsSnapshot(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	remote := newRemoteInbox(t, store, http.StatusAccepted)
	ctx := context.Background()

	// the post is gone, but the payload was captured by an earlier attempt
	activityId := NewActivityID(testDomain)
	snapshot := `{"@context":"https://www.w3.org/ns/activitystreams","id":"` + activityId + `","type":"Create","actor":"https://example.com/ap/users/alice","object":{"type":"Article","name":"Original title"}}`
	d := &domain.Delivery{
		Id: uuid.New(), ActivityId: activityId, Kind: domain.KindCreate,
		RemoteInbox: remote.URL(), Status: domain.DeliveryPending, UserId: alice.Id, PostId: uuid.New(),
		ActivityJSON: snapshot, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.EnqueueDelivery(ctx, d, domain.JobFor(d)))

	w := newTestWorker(store)
	processNext(t, w)

	received, verifyErrs := remote.requests()
	require.Len(t, received, 1)
	assert.NoError(t, verifyErrs[0])
	assert.Equal(t, activityId, received[0]["id"])
	object := received[0]["object"].(map[string]any)
	assert.Equal(t, "Original title", object["name"])

	stored, err := store.ReadDelivery(ctx, activityId)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, stored.Status)
	assert.Equal(t, snapshot, stored.ActivityJSON)
}

func TestDeliveryMissingMetadata(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	job := &domain.DeliveryJob{ActivityId: NewActivityID(testDomain), Kind: domain.KindCreate, InboxURL: "https://r.example/inbox"}
	require.NoError(t, store.PushJob(ctx, job))

	w := newTestWorker(store)
	processNext(t, w)

	stored, err := store.ReadDelivery(ctx, job.ActivityId)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, stored.Status)
	assert.Contains(t, stored.LastError, ErrMissingDeliveryMetadata.Error())
}

func TestDuplicateJobIsSkipped(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	remote := newRemoteInbox(t, store, http.StatusAccepted)
	ctx := context.Background()

	d, err := enqueueActivity(ctx, store, domain.KindAccept, NewActivityID(testDomain), alice.Id, remote.URL(),
		NewAccept("x", ActorURL(testDomain, "alice"), "https://r.example/f/1"))
	require.NoError(t, err)
	// a second job for the same activity, as left behind by a redelivery
	require.NoError(t, store.PushJob(ctx, domain.JobFor(d)))

	w := newTestWorker(store)
	processNext(t, w)
	processNext(t, w)

	received, _ := remote.requests()
	assert.Len(t, received, 1)

	stored, err := store.ReadDelivery(ctx, d.ActivityId)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
}

func TestJobDroppedAfterTooManyReceives(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	remote := newRemoteInbox(t, store, http.StatusAccepted)
	ctx := context.Background()

	d, err := enqueueActivity(ctx, store, domain.KindAccept, NewActivityID(testDomain), alice.Id, remote.URL(),
		NewAccept("x", ActorURL(testDomain, "alice"), "https://r.example/f/1"))
	require.NoError(t, err)

	w := newTestWorker(store)
	job := popJob(t, w)
	job.ReceiveCount = DefaultMaxReceives + 1
	require.NoError(t, w.Process(ctx, job))

	received, _ := remote.requests()
	assert.Empty(t, received)

	stored, err := store.ReadDelivery(ctx, d.ActivityId)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, stored.Status)
	assert.Equal(t, "exceeded receive limit", stored.LastError)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	remote := newRemoteInbox(t, store, http.StatusAccepted)

	_, err := enqueueActivity(context.Background(), store, domain.KindAccept, NewActivityID(testDomain), alice.Id, remote.URL(),
		NewAccept("x", ActorURL(testDomain, "alice"), "https://r.example/f/1"))
	require.NoError(t, err)

	w := newTestWorker(store)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		n, err := store.CountJobs(context.Background())
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	received, _ := remote.requests()
	assert.Len(t, received, 1)
}
