package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xlog-social/xlog/activitypub"
	"github.com/xlog-social/xlog/db"
	"github.com/xlog-social/xlog/domain"
)

const activityJSONContentType = "application/activity+json; charset=utf-8"

// Collection is an OrderedCollection of ids or activities.
type Collection struct {
	Context      string `json:"@context"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	TotalItems   int    `json:"totalItems"`
	Items        []any  `json:"items,omitempty"`
	OrderedItems []any  `json:"orderedItems,omitempty"`
}

func writeActivityJSON(c *gin.Context, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.Data(status, activityJSONContentType, body)
}

// lookupAccount resolves :username, writing 404 or 500 on failure.
func (s *server) lookupAccount(c *gin.Context) (*domain.Account, bool) {
	username := c.Param("username")
	acc, err := s.store.ReadAccountByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return nil, false
		}
		s.log.WithError(err).WithField("user", username).Error("Failed to read account")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return acc, true
}

func (s *server) handleActor(c *gin.Context) {
	acc, ok := s.lookupAccount(c)
	if !ok {
		return
	}
	domainName, ok := s.instanceDomain(c)
	if !ok {
		return
	}
	writeActivityJSON(c, http.StatusOK, activitypub.NewActor(acc.Username, acc.DisplayName, acc.Summary, acc.PublicKeyPem, domainName))
}

func (s *server) handleFollowers(c *gin.Context) {
	acc, ok := s.lookupAccount(c)
	if !ok {
		return
	}
	domainName, ok := s.instanceDomain(c)
	if !ok {
		return
	}

	followers, err := s.store.ReadFollowers(c.Request.Context(), acc.Id)
	if err != nil {
		s.log.WithError(err).Error("Failed to read followers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	items := []any{}
	for _, f := range followers {
		if f.Approved {
			items = append(items, f.RemoteActor)
		}
	}
	writeActivityJSON(c, http.StatusOK, Collection{
		Context:    activitypub.ActivityStreamsContext,
		ID:         activitypub.FollowersURL(domainName, acc.Username),
		Type:       "OrderedCollection",
		TotalItems: len(items),
		Items:      items,
	})
}

func (s *server) handleFollowing(c *gin.Context) {
	acc, ok := s.lookupAccount(c)
	if !ok {
		return
	}
	domainName, ok := s.instanceDomain(c)
	if !ok {
		return
	}

	following, err := s.store.ReadFollowing(c.Request.Context(), acc.Id)
	if err != nil {
		s.log.WithError(err).Error("Failed to read following")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	items := []any{}
	for _, f := range following {
		if f.Accepted {
			items = append(items, f.RemoteActor)
		}
	}
	writeActivityJSON(c, http.StatusOK, Collection{
		Context:    activitypub.ActivityStreamsContext,
		ID:         activitypub.FollowingURL(domainName, acc.Username),
		Type:       "OrderedCollection",
		TotalItems: len(items),
		Items:      items,
	})
}
