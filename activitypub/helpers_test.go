package activitypub

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/xlog-social/xlog/db"
	"github.com/xlog-social/xlog/domain"
	"github.com/xlog-social/xlog/util"
)

const testDomain = "example.com"

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func setupStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(context.Background(), "sqlite", ":memory:", nullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.RunMigrations(context.Background()))
	return store
}

func testSettings(store *db.DB) *db.SettingsCache {
	return db.NewSettingsCache(store, domain.InstanceSettings{
		InstanceName:      "xlog test",
		InstanceDomain:    testDomain,
		FederationEnabled: true,
	}, time.Minute)
}

var (
	keyOnce  sync.Once
	keyPairs []*util.RsaKeyPair
)

// testKeyPair hands out one of a few pre-generated key pairs.
func testKeyPair(t *testing.T, n int) *util.RsaKeyPair {
	t.Helper()
	keyOnce.Do(func() {
		for i := 0; i < 3; i++ {
			kp, err := util.GeneratePemKeypair(util.KeyBits)
			if err != nil {
				panic(err)
			}
			keyPairs = append(keyPairs, kp)
		}
	})
	return keyPairs[n%len(keyPairs)]
}

func createLocalAccount(t *testing.T, store *db.DB, username string) (*domain.Account, *rsa.PrivateKey) {
	t.Helper()
	kp := testKeyPair(t, 0)
	acc := &domain.Account{
		Id:            uuid.New(),
		Username:      username,
		DisplayName:   strings.ToUpper(username[:1]) + username[1:],
		PublicKeyPem:  kp.Public,
		PrivateKeyPem: kp.Private,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.CreateAccount(context.Background(), acc))
	priv, err := ParsePrivateKey(kp.Private)
	require.NoError(t, err)
	return acc, priv
}

func createPublishedPost(t *testing.T, store *db.DB, author uuid.UUID) *domain.Post {
	t.Helper()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &domain.Post{
		Id:          uuid.New(),
		AuthorId:    author,
		Title:       "Hello fediverse",
		ContentHtml: "<p>Hello</p>",
		Hashtags:    []string{"go"},
		PublishedAt: &at,
		UpdatedAt:   at,
	}
	require.NoError(t, store.CreatePost(context.Background(), p))
	return p
}

// staticKeys resolves keyIds from a fixed map.
type staticKeys map[string]*rsa.PublicKey

func (s staticKeys) ResolveKey(_ context.Context, keyId string) (*rsa.PublicKey, error) {
	if k, ok := s[keyId]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrActorUnresolvable, keyId)
}

// memoryReplay is a ReplayChecker without expiry.
type memoryReplay struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryReplay() *memoryReplay {
	return &memoryReplay{seen: make(map[string]bool)}
}

func (m *memoryReplay) CheckAndRecord(_ context.Context, signature, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := signature + ":" + date
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

// signedRequest signs body as a POST to https://example.com<path>.
func signedRequest(t *testing.T, path string, body []byte, priv *rsa.PrivateKey, keyId string) InboundRequest {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://"+testDomain+path, strings.NewReader(string(body)))
	require.NoError(t, err)
	require.NoError(t, SignRequest(req, body, priv, keyId))
	return InboundRequest{
		Method: req.Method,
		Path:   path,
		Header: req.Header,
		Body:   body,
	}
}

// inboundFromHTTP converts a request received by a test server.
func inboundFromHTTP(t *testing.T, r *http.Request, body []byte) InboundRequest {
	t.Helper()
	header := r.Header.Clone()
	header.Set("Host", r.Host)
	return InboundRequest{
		Method: r.Method,
		Path:   r.URL.RequestURI(),
		Header: header,
		Body:   body,
	}
}
