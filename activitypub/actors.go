package activitypub

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/xlog-social/xlog/domain"
	"github.com/xlog-social/xlog/util"
)

const maxActorDocumentBytes = 1 << 20

// ActorDocument is the subset of a remote actor the federation core reads.
type ActorDocument struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey PublicKey `json:"publicKey"`
}

type ActorFetcher interface {
	FetchActor(ctx context.Context, actorURL string) (*ActorDocument, error)
}

// HTTPActorFetcher dereferences actor URLs. Results are not cached.
type HTTPActorFetcher struct {
	client *http.Client
}

func NewHTTPActorFetcher(client *http.Client) *HTTPActorFetcher {
	return &HTTPActorFetcher{client: client}
}

func (f *HTTPActorFetcher) FetchActor(ctx context.Context, actorURL string) (*ActorDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actorURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	var actor ActorDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxActorDocumentBytes)).Decode(&actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}
	if actor.ID == "" {
		return nil, fmt.Errorf("actor missing id")
	}
	return &actor, nil
}

type accountReader interface {
	ReadAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (domain.InstanceSettings, error)
}

// KeyStore resolves keyIds to public keys: local actors from the account
// table, everyone else by fetching the actor document.
type KeyStore struct {
	accounts accountReader
	settings SettingsProvider
	fetcher  ActorFetcher
}

func NewKeyStore(accounts accountReader, settings SettingsProvider, fetcher ActorFetcher) *KeyStore {
	return &KeyStore{accounts: accounts, settings: settings, fetcher: fetcher}
}

func (k *KeyStore) ResolveKey(ctx context.Context, keyId string) (*rsa.PublicKey, error) {
	actorURL := ActorFromKeyID(keyId)

	s, err := k.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if username, ok := UsernameFromActorURL(s.InstanceDomain, actorURL); ok {
		if keyId != KeyID(s.InstanceDomain, username) {
			return nil, fmt.Errorf("%w: unknown local key %s", ErrActorUnresolvable, keyId)
		}
		acc, err := k.accounts.ReadAccountByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("%w: local actor %s: %v", ErrActorUnresolvable, username, err)
		}
		pub, err := ParsePublicKey(acc.PublicKeyPem)
		if err != nil {
			return nil, fmt.Errorf("%w: local key %s: %v", ErrActorUnresolvable, username, err)
		}
		return pub, nil
	}

	if k.fetcher == nil {
		return nil, fmt.Errorf("%w: remote actor %s", ErrActorUnresolvable, actorURL)
	}
	doc, err := k.fetcher.FetchActor(ctx, actorURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrActorUnresolvable, actorURL, err)
	}
	if doc.PublicKey.Owner != actorURL || doc.PublicKey.ID != keyId {
		return nil, fmt.Errorf("%w: key %s is not owned by %s", ErrActorUnresolvable, keyId, actorURL)
	}
	pub, err := ParsePublicKey(doc.PublicKey.PublicKeyPem)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrActorUnresolvable, actorURL, err)
	}
	return pub, nil
}
