package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xlog-social/xlog/activitypub"
)

func (s *server) handleInbox(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	// the server moves Host out of the header map; signatures cover it
	header := c.Request.Header.Clone()
	header.Set("Host", c.Request.Host)

	status, err := s.inbox.HandleInbound(c.Request.Context(), c.Param("username"), activitypub.InboundRequest{
		Method: c.Request.Method,
		Path:   c.Request.URL.RequestURI(),
		Header: header,
		Body:   body,
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user":   c.Param("username"),
			"status": status,
		}).Debug("Inbox request refused")
	}

	switch status {
	case http.StatusAccepted, http.StatusOK:
		c.JSON(status, gin.H{"success": true})
	case http.StatusBadRequest:
		c.JSON(status, gin.H{"error": "Malformed activity"})
	case http.StatusUnauthorized:
		c.JSON(status, gin.H{"error": "Invalid signature"})
	case http.StatusNotFound:
		c.JSON(status, gin.H{"error": "User not found"})
	default:
		c.JSON(status, gin.H{"error": "Internal server error"})
	}
}
