package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xlog-social/xlog/activitypub"
)

// handleOutbox serves the newest published posts as Create activities. Each
// Create gets a stable id derived from its post.
func (s *server) handleOutbox(c *gin.Context) {
	acc, ok := s.lookupAccount(c)
	if !ok {
		return
	}
	domainName, ok := s.instanceDomain(c)
	if !ok {
		return
	}

	posts, err := s.store.ReadPublishedPostsByAuthor(c.Request.Context(), acc.Id, outboxPageSize)
	if err != nil {
		s.log.WithError(err).WithField("user", acc.Username).Error("Failed to read outbox posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	actorId := activitypub.ActorURL(domainName, acc.Username)
	items := []any{}
	for i := range posts {
		post := &posts[i]
		article := activitypub.NewArticle(post, actorId, domainName, *post.PublishedAt)
		activityId := activitypub.PostURL(domainName, post.Id) + "#create"
		items = append(items, activitypub.NewCreate(activityId, actorId, article, *post.PublishedAt))
	}

	writeActivityJSON(c, http.StatusOK, Collection{
		Context:      activitypub.ActivityStreamsContext,
		ID:           activitypub.OutboxURL(domainName, acc.Username),
		Type:         "OrderedCollection",
		TotalItems:   len(items),
		OrderedItems: items,
	})
}
