package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xlog-social/xlog/domain"
)

type failedDelivery struct {
	ActivityId   string    `json:"activity_id"`
	Kind         string    `json:"kind"`
	RemoteInbox  string    `json:"remote_inbox"`
	Status       string    `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	LastError    string    `json:"last_error"`
	UpdatedAt    time.Time `json:"updated_at"`
	ActivityJSON string    `json:"activity_json,omitempty"`
}

func (s *server) handleFailedDeliveries(c *gin.Context) {
	rows, err := s.store.ReadFailedDeliveries(c.Request.Context(), failedListLimit)
	if err != nil {
		s.log.WithError(err).Error("Failed to read failed deliveries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	items := make([]failedDelivery, 0, len(rows))
	for _, d := range rows {
		items = append(items, failedDelivery{
			ActivityId:   d.ActivityId,
			Kind:         string(d.Kind),
			RemoteInbox:  d.RemoteInbox,
			Status:       string(d.Status),
			AttemptCount: d.AttemptCount,
			LastError:    d.LastError,
			UpdatedAt:    d.UpdatedAt.UTC(),
			ActivityJSON: d.ActivityJSON,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type settingsPayload struct {
	InstanceName        *string `json:"instanceName"`
	InstanceDescription *string `json:"instanceDescription"`
	OpenRegistrations   *bool   `json:"openRegistrations"`
	FederationEnabled   *bool   `json:"federationEnabled"`
}

type settingsResponse struct {
	InstanceName        string `json:"instanceName"`
	InstanceDescription string `json:"instanceDescription"`
	InstanceDomain      string `json:"instanceDomain"`
	OpenRegistrations   bool   `json:"openRegistrations"`
	FederationEnabled   bool   `json:"federationEnabled"`
}

func toSettingsResponse(s domain.InstanceSettings) settingsResponse {
	return settingsResponse{
		InstanceName:        s.InstanceName,
		InstanceDescription: s.InstanceDescription,
		InstanceDomain:      s.InstanceDomain,
		OpenRegistrations:   s.OpenRegistrations,
		FederationEnabled:   s.FederationEnabled,
	}
}

func (s *server) handleGetSettings(c *gin.Context) {
	settings, err := s.settings.Get(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to load instance settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, toSettingsResponse(settings))
}

// handlePutSettings applies a partial update. The instance domain is fixed
// by configuration.
func (s *server) handlePutSettings(c *gin.Context) {
	var payload settingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid settings payload"})
		return
	}

	ctx := c.Request.Context()
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to load instance settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if payload.InstanceName != nil {
		settings.InstanceName = *payload.InstanceName
	}
	if payload.InstanceDescription != nil {
		settings.InstanceDescription = *payload.InstanceDescription
	}
	if payload.OpenRegistrations != nil {
		settings.OpenRegistrations = *payload.OpenRegistrations
	}
	if payload.FederationEnabled != nil {
		settings.FederationEnabled = *payload.FederationEnabled
	}
	settings.UpdatedAt = time.Now()

	if err := s.store.SaveInstanceSettings(ctx, &settings); err != nil {
		s.log.WithError(err).Error("Failed to save instance settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	s.settings.Invalidate()

	s.log.WithField("instance_name", settings.InstanceName).Info("Instance settings updated")
	c.JSON(http.StatusOK, toSettingsResponse(settings))
}
