package activitypub

import (
	"time"

	"github.com/xlog-social/xlog/domain"
)

// PublishedLayout matches JavaScript's toISOString.
const PublishedLayout = "2006-01-02T15:04:05.000Z"

type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type Person struct {
	Context           []string  `json:"@context"`
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	PreferredUsername string    `json:"preferredUsername"`
	Name              string    `json:"name"`
	Summary           string    `json:"summary"`
	Inbox             string    `json:"inbox"`
	Outbox            string    `json:"outbox"`
	Followers         string    `json:"followers"`
	Following         string    `json:"following"`
	PublicKey         PublicKey `json:"publicKey"`
}

func formatPublished(t time.Time) string {
	return t.UTC().Format(PublishedLayout)
}

func NewActor(username, displayName, summary, publicKeyPem, domainName string) Person {
	actorId := ActorURL(domainName, username)
	if displayName == "" {
		displayName = username
	}
	return Person{
		Context:           []string{ActivityStreamsContext, SecurityContext},
		ID:                actorId,
		Type:              "Person",
		PreferredUsername: username,
		Name:              displayName,
		Summary:           summary,
		Inbox:             InboxURL(domainName, username),
		Outbox:            OutboxURL(domainName, username),
		Followers:         FollowersURL(domainName, username),
		Following:         FollowingURL(domainName, username),
		PublicKey: PublicKey{
			ID:           KeyID(domainName, username),
			Owner:        actorId,
			PublicKeyPem: publicKeyPem,
		},
	}
}

// NewArticle renders a published post. Each hashtag becomes a Hashtag tag named "#tag".
func NewArticle(post *domain.Post, actorId, domainName string, publishedAt time.Time) *Article {
	articleId := PostURL(domainName, post.Id)
	tags := make([]Hashtag, 0, len(post.Hashtags))
	for _, tag := range post.Hashtags {
		tags = append(tags, Hashtag{Type: "Hashtag", Name: "#" + tag})
	}
	return &Article{
		Context:      []string{ActivityStreamsContext},
		ID:           articleId,
		Type:         "Article",
		URL:          articleId,
		AttributedTo: actorId,
		Name:         post.Title,
		Summary:      post.Summary,
		Content:      post.ContentHtml,
		Tag:          tags,
		Image:        post.BannerURL,
		Published:    formatPublished(publishedAt),
	}
}

func NewCreate(activityId, actorId string, article *Article, publishedAt time.Time) *Create {
	return &Create{
		Context:   []string{ActivityStreamsContext},
		ID:        activityId,
		Type:      "Create",
		Actor:     actorId,
		Published: formatPublished(publishedAt),
		To:        []string{PublicAddress},
		Object:    article,
	}
}

func NewAccept(activityId, actorId, followActivityId string) *Accept {
	return &Accept{
		Context: []string{ActivityStreamsContext},
		ID:      activityId,
		Type:    "Accept",
		Actor:   actorId,
		Object:  ObjectRef{ID: followActivityId},
	}
}

func NewFollow(activityId, actorId, targetActorId string) *Follow {
	return &Follow{
		Context: []string{ActivityStreamsContext},
		ID:      activityId,
		Type:    "Follow",
		Actor:   actorId,
		Object:  targetActorId,
	}
}
