package activitypub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteActorServer serves one actor document at /users/bob. mutate may
// alter the document before it is written.
func remoteActorServer(t *testing.T, publicKeyPem string, mutate func(doc *ActorDocument)) (*httptest.Server, string) {
	t.Helper()
	var actorURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/bob" {
			http.NotFound(w, r)
			return
		}
		assert.True(t, strings.HasPrefix(r.Header.Get("Accept"), "application/activity+json"))
		doc := ActorDocument{
			ID:                actorURL,
			Type:              "Person",
			PreferredUsername: "bob",
			Inbox:             actorURL + "/inbox",
			PublicKey: PublicKey{
				ID:           actorURL + "#main-key",
				Owner:        actorURL,
				PublicKeyPem: publicKeyPem,
			},
		}
		if mutate != nil {
			mutate(&doc)
		}
		w.Header().Set("Content-Type", ContentType)
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	actorURL = srv.URL + "/users/bob"
	return srv, actorURL
}

func TestFetchActor(t *testing.T) {
	kp := testKeyPair(t, 1)
	srv, actorURL := remoteActorServer(t, kp.Public, nil)

	f := NewHTTPActorFetcher(srv.Client())
	doc, err := f.FetchActor(context.Background(), actorURL)
	require.NoError(t, err)
	assert.Equal(t, actorURL, doc.ID)
	assert.Equal(t, actorURL+"/inbox", doc.Inbox)
	assert.Equal(t, kp.Public, doc.PublicKey.PublicKeyPem)

	_, err = f.FetchActor(context.Background(), srv.URL+"/users/nobody")
	assert.Error(t, err)
}

func TestKeyStoreResolvesRemoteKey(t *testing.T) {
	store := setupStore(t)
	kp := testKeyPair(t, 1)
	srv, actorURL := remoteActorServer(t, kp.Public, nil)

	keys := NewKeyStore(store, testSettings(store), NewHTTPActorFetcher(srv.Client()))
	pub, err := keys.ResolveKey(context.Background(), actorURL+"#main-key")
	require.NoError(t, err)

	want, err := ParsePublicKey(kp.Public)
	require.NoError(t, err)
	assert.True(t, want.Equal(pub))
}

func TestKeyStoreRejectsForeignKey(t *testing.T) {
	store := setupStore(t)
	kp := testKeyPair(t, 1)

	tests := []struct {
		name   string
		mutate func(doc *ActorDocument)
	}{
		{"owner mismatch", func(doc *ActorDocument) { doc.PublicKey.Owner = "https://evil.example/users/mallory" }},
		{"key id mismatch", func(doc *ActorDocument) { doc.PublicKey.ID = doc.ID + "#other-key" }},
		{"bad pem", func(doc *ActorDocument) { doc.PublicKey.PublicKeyPem = "garbage" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, actorURL := remoteActorServer(t, kp.Public, tt.mutate)
			keys := NewKeyStore(store, testSettings(store), NewHTTPActorFetcher(srv.Client()))
			_, err := keys.ResolveKey(context.Background(), actorURL+"#main-key")
			assert.ErrorIs(t, err, ErrActorUnresolvable)
		})
	}
}

func TestKeyStoreResolvesLocalKey(t *testing.T) {
	store := setupStore(t)
	alice, _ := createLocalAccount(t, store, "alice")
	keys := NewKeyStore(store, testSettings(store), nil)

	pub, err := keys.ResolveKey(context.Background(), KeyID(testDomain, "alice"))
	require.NoError(t, err)
	want, err := ParsePublicKey(alice.PublicKeyPem)
	require.NoError(t, err)
	assert.True(t, want.Equal(pub))

	_, err = keys.ResolveKey(context.Background(), ActorURL(testDomain, "alice")+"#other-key")
	assert.ErrorIs(t, err, ErrActorUnresolvable)

	_, err = keys.ResolveKey(context.Background(), KeyID(testDomain, "nobody"))
	assert.ErrorIs(t, err, ErrActorUnresolvable)
}
