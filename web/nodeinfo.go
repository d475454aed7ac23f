package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xlog-social/xlog/activitypub"
	"github.com/xlog-social/xlog/util"
)

const nodeInfoSchema = "http://nodeinfo.diaspora.software/ns/schema/2.1"

type NodeInfo struct {
	Version           string           `json:"version"`
	Software          NodeInfoSoftware `json:"software"`
	Protocols         []string         `json:"protocols"`
	Services          NodeInfoServices `json:"services"`
	OpenRegistrations bool             `json:"openRegistrations"`
	Usage             NodeInfoUsage    `json:"usage"`
	Metadata          map[string]any   `json:"metadata"`
}

type NodeInfoSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type NodeInfoServices struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type NodeInfoUsage struct {
	Users struct {
		Total int `json:"total"`
	} `json:"users"`
	LocalPosts int `json:"localPosts"`
}

func (s *server) handleNodeInfoDiscovery(c *gin.Context) {
	domainName, ok := s.instanceDomain(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"links": []gin.H{{
			"rel":  nodeInfoSchema,
			"href": activitypub.BaseURL(domainName) + "/nodeinfo/2.1",
		}},
	})
}

func (s *server) handleNodeInfo(c *gin.Context) {
	ctx := c.Request.Context()
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to load instance settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	users, err := s.store.CountAccounts(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to count accounts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	posts, err := s.store.CountPublishedPosts(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to count posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	info := NodeInfo{
		Version:           "2.1",
		Software:          NodeInfoSoftware{Name: util.Name, Version: util.GetVersion()},
		Protocols:         []string{"activitypub"},
		Services:          NodeInfoServices{Inbound: []string{}, Outbound: []string{"rss2.0", "atom1.0"}},
		OpenRegistrations: settings.OpenRegistrations,
		Metadata: map[string]any{
			"nodeName":        settings.InstanceName,
			"nodeDescription": settings.InstanceDescription,
		},
	}
	info.Usage.Users.Total = users
	info.Usage.LocalPosts = posts

	c.Header("Content-Type", "application/json; profile=\""+nodeInfoSchema+"#\"")
	c.JSON(http.StatusOK, info)
}
