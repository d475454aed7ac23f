package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	"github.com/xlog-social/xlog/activitypub"
	"github.com/xlog-social/xlog/domain"
)

// buildFeed renders the newest published posts of acc.
func buildFeed(acc *domain.Account, posts []domain.Post, domainName, instanceName string) *feeds.Feed {
	actorURL := activitypub.ActorURL(domainName, acc.Username)
	author := &feeds.Author{Name: acc.Name(), Email: fmt.Sprintf("%s@%s", acc.Username, domainName)}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - %s", instanceName, acc.Name()),
		Link:        &feeds.Link{Href: actorURL},
		Id:          actorURL,
		Description: acc.Summary,
		Author:      author,
		Created:     acc.CreatedAt,
	}
	if feed.Description == "" {
		feed.Description = fmt.Sprintf("Posts by %s", acc.Name())
	}

	for _, post := range posts {
		if !post.IsPublished() {
			continue
		}
		postURL := activitypub.PostURL(domainName, post.Id)
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          postURL,
			Title:       post.Title,
			Link:        &feeds.Link{Href: postURL},
			Description: post.Summary,
			Content:     post.ContentHtml,
			Author:      author,
			Created:     *post.PublishedAt,
			Updated:     post.UpdatedAt,
		})
	}
	if len(feed.Items) > 0 {
		feed.Updated = feed.Items[0].Created
	} else {
		feed.Updated = time.Now()
	}
	return feed
}

func (s *server) loadFeed(c *gin.Context) (*feeds.Feed, bool) {
	acc, ok := s.lookupAccount(c)
	if !ok {
		return nil, false
	}
	settings, err := s.settings.Get(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to load instance settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	posts, err := s.store.ReadPublishedPostsByAuthor(c.Request.Context(), acc.Id, feedSize)
	if err != nil {
		s.log.WithError(err).WithField("user", acc.Username).Error("Could not get posts for feed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return buildFeed(acc, posts, settings.InstanceDomain, settings.InstanceName), true
}

func (s *server) handleRSS(c *gin.Context) {
	feed, ok := s.loadFeed(c)
	if !ok {
		return
	}
	rss, err := feed.ToRss()
	if err != nil {
		s.log.WithError(err).Error("Failed to render RSS")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}

func (s *server) handleAtom(c *gin.Context) {
	feed, ok := s.loadFeed(c)
	if !ok {
		return
	}
	atom, err := feed.ToAtom()
	if err != nil {
		s.log.WithError(err).Error("Failed to render Atom")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
}
