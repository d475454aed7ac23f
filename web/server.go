package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/xlog-social/xlog/activitypub"
	"github.com/xlog-social/xlog/domain"
	"golang.org/x/time/rate"
)

const (
	maxInboxBodyBytes = 1 << 20
	outboxPageSize    = 20
	feedSize          = 20
	failedListLimit   = 100
)

// Store is the read side of the database the HTTP surface needs, plus the
// settings write used by the admin API.
type Store interface {
	ReadAccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	ReadPublishedPostsByAuthor(ctx context.Context, authorId uuid.UUID, limit int) ([]domain.Post, error)
	ReadFollowers(ctx context.Context, localUserId uuid.UUID) ([]domain.Follower, error)
	ReadFollowing(ctx context.Context, localUserId uuid.UUID) ([]domain.Following, error)
	CountAccounts(ctx context.Context) (int, error)
	CountPublishedPosts(ctx context.Context) (int, error)
	ReadFailedDeliveries(ctx context.Context, limit int) ([]domain.Delivery, error)
	SaveInstanceSettings(ctx context.Context, s *domain.InstanceSettings) error
}

type Settings interface {
	Get(ctx context.Context) (domain.InstanceSettings, error)
	Invalidate()
}

type InboxHandler interface {
	HandleInbound(ctx context.Context, username string, req activitypub.InboundRequest) (int, error)
}

type Options struct {
	Store    Store
	Settings Settings
	Inbox    InboxHandler
	// Gatherer serves /metrics when set.
	Gatherer   prometheus.Gatherer
	AdminToken string
	WithAp     bool
	Logger     logrus.FieldLogger
}

type server struct {
	store    Store
	settings Settings
	inbox    InboxHandler
	log      logrus.FieldLogger
}

// NewRouter builds the gin engine serving federation, discovery, feed and
// admin endpoints.
func NewRouter(opts Options) *gin.Engine {
	s := &server{
		store:    opts.Store,
		settings: opts.Settings,
		inbox:    opts.Inbox,
		log:      opts.Logger,
	}

	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(RequestLogger(opts.Logger))
	g.Use(RequestMetrics())
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	if opts.Gatherer != nil {
		g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	g.GET("/feeds/:username/rss", s.handleRSS)
	g.GET("/feeds/:username/atom", s.handleAtom)

	if opts.WithAp {
		// Stricter rate limit for inbox deliveries: 5 req/sec per IP
		apLimiter := NewRateLimiter(rate.Limit(5), 10)

		ap := g.Group("/ap/users/:username")
		ap.GET("", s.handleActor)
		ap.GET("/outbox", s.handleOutbox)
		ap.GET("/followers", s.handleFollowers)
		ap.GET("/following", s.handleFollowing)
		ap.POST("/inbox", RateLimitMiddleware(apLimiter), MaxBytesMiddleware(maxInboxBodyBytes), s.handleInbox)

		g.GET("/.well-known/webfinger", s.handleWebfinger)
		g.GET("/.well-known/nodeinfo", s.handleNodeInfoDiscovery)
		g.GET("/nodeinfo/2.1", s.handleNodeInfo)
		g.GET("/.well-known/host-meta", s.handleHostMeta)
		g.GET("/.well-known/host-meta.json", s.handleHostMetaJSON)
	}

	admin := g.Group("/api/admin", AdminAuth(opts.AdminToken))
	admin.GET("/deliveries/failed", s.handleFailedDeliveries)
	admin.GET("/settings", s.handleGetSettings)
	admin.PUT("/settings", s.handlePutSettings)

	return g
}

// Serve runs handler on addr until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func Serve(ctx context.Context, addr string, handler http.Handler, logger logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("Shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

// instanceDomain returns the configured domain, or aborts the request.
func (s *server) instanceDomain(c *gin.Context) (string, bool) {
	settings, err := s.settings.Get(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to load instance settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return "", false
	}
	return settings.InstanceDomain, true
}
