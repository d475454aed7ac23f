package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xlog-social/xlog/activitypub"
	"github.com/xlog-social/xlog/db"
)

const jrdContentType = "application/jrd+json; charset=utf-8"

type WebfingerLink struct {
	Rel      string `json:"rel"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}

type WebfingerResponse struct {
	Subject string          `json:"subject,omitempty"`
	Links   []WebfingerLink `json:"links"`
}

// parseAcct splits "acct:user@domain".
func parseAcct(resource string) (username, host string, ok bool) {
	acct, found := strings.CutPrefix(resource, "acct:")
	if !found {
		return "", "", false
	}
	username, host, found = strings.Cut(acct, "@")
	if !found || username == "" || host == "" || strings.Contains(host, "@") {
		return "", "", false
	}
	return username, host, true
}

func (s *server) handleWebfinger(c *gin.Context) {
	resource := c.Query("resource")
	username, host, ok := parseAcct(resource)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource parameter"})
		return
	}

	domainName, ok := s.instanceDomain(c)
	if !ok {
		return
	}
	if !strings.EqualFold(host, domainName) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}

	acc, err := s.store.ReadAccountByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		s.log.WithError(err).Error("Webfinger lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.Render(http.StatusOK, jrdRender{WebfingerResponse{
		Subject: resource,
		Links: []WebfingerLink{
			{Rel: "self", Type: activitypub.ContentType, Href: activitypub.ActorURL(domainName, acc.Username)},
			{Rel: "http://schemas.google.com/g/2010#updates-from", Type: "application/atom+xml", Href: fmt.Sprintf("%s/feeds/%s/atom", activitypub.BaseURL(domainName), acc.Username)},
		},
	}})
}

func lrddTemplate(domainName string) string {
	return activitypub.BaseURL(domainName) + "/.well-known/webfinger?resource={uri}"
}

func (s *server) handleHostMeta(c *gin.Context) {
	domainName, ok := s.instanceDomain(c)
	if !ok {
		return
	}
	xml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
  <Link rel="lrdd" template="%s"/>
</XRD>`, lrddTemplate(domainName))
	c.Data(http.StatusOK, "application/xrd+xml; charset=utf-8", []byte(xml))
}

func (s *server) handleHostMetaJSON(c *gin.Context) {
	domainName, ok := s.instanceDomain(c)
	if !ok {
		return
	}
	c.Render(http.StatusOK, jrdRender{WebfingerResponse{
		Links: []WebfingerLink{{Rel: "lrdd", Template: lrddTemplate(domainName)}},
	}})
}
