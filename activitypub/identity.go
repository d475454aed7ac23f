package activitypub

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

const (
	ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"
	SecurityContext        = "https://w3id.org/security/v1"
	PublicAddress          = "https://www.w3.org/ns/activitystreams#Public"

	// ContentType is used for outbound deliveries and actor documents.
	ContentType = "application/activity+json"

	actorPathPrefix = "/ap/users/"
)

// BaseURL returns the https origin of an instance domain.
func BaseURL(domain string) string {
	return "https://" + domain
}

func ActorURL(domain, username string) string {
	return BaseURL(domain) + actorPathPrefix + username
}

func InboxURL(domain, username string) string {
	return ActorURL(domain, username) + "/inbox"
}

func OutboxURL(domain, username string) string {
	return ActorURL(domain, username) + "/outbox"
}

func FollowersURL(domain, username string) string {
	return ActorURL(domain, username) + "/followers"
}

func FollowingURL(domain, username string) string {
	return ActorURL(domain, username) + "/following"
}

// KeyID names the actor's single signing key.
func KeyID(domain, username string) string {
	return ActorURL(domain, username) + "#main-key"
}

func PostURL(domain string, postId uuid.UUID) string {
	return fmt.Sprintf("%s/post/%s", BaseURL(domain), postId)
}

// NewActivityID mints a fresh, globally unique activity id on domain.
func NewActivityID(domain string) string {
	return fmt.Sprintf("%s/ap/activities/%s", BaseURL(domain), uuid.New())
}

// ActorFromKeyID strips the fragment from a keyId.
func ActorFromKeyID(keyId string) string {
	actor, _, _ := strings.Cut(keyId, "#")
	return actor
}

// UsernameFromActorURL reports the local username if actorURL names an actor on domain.
func UsernameFromActorURL(domain, actorURL string) (string, bool) {
	u, err := url.Parse(actorURL)
	if err != nil || u.Scheme != "https" || !strings.EqualFold(u.Host, domain) {
		return "", false
	}
	if !strings.HasPrefix(u.Path, actorPathPrefix) {
		return "", false
	}
	username := strings.TrimPrefix(u.Path, actorPathPrefix)
	if username == "" || strings.Contains(username, "/") {
		return "", false
	}
	return username, true
}

// PostIDFromObjectURL takes the post id from the last path segment of a liked object URL.
func PostIDFromObjectURL(objectURL string) (uuid.UUID, bool) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(path.Base(strings.TrimSuffix(u.Path, "/")))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// RemoteInboxFor derives the personal inbox of a remote actor.
func RemoteInboxFor(actorURL string) string {
	return strings.TrimSuffix(actorURL, "/") + "/inbox"
}
