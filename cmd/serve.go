package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/xlog-social/xlog/activitypub"
	"github.com/xlog-social/xlog/metrics"
	"github.com/xlog-social/xlog/tracing"
	"github.com/xlog-social/xlog/util"
	"github.com/xlog-social/xlog/web"
	"golang.org/x/sync/errgroup"
)

const replayPruneInterval = 5 * time.Minute

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and delivery workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, opts, func(a *app) error {
				return a.serve(ctx)
			})
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	c := a.conf.Conf
	a.log.WithFields(logrus.Fields{
		"version": util.GetVersion(),
		"domain":  c.InstanceDomain,
		"with_ap": c.WithAp,
	}).Info("Starting " + util.Name)

	if a.log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	tm := tracing.NewManager(tracing.Config{
		ServiceName:    util.Name,
		ServiceVersion: util.GetVersion(),
		SampleRate:     c.Tracing.SampleRate,
		Enabled:        c.Tracing.Enabled,
	}, a.log)
	if err := tm.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := tm.Shutdown(context.Background()); err != nil {
			a.log.WithError(err).Warn("Tracing shutdown failed")
		}
	}()

	var gatherer prometheus.Gatherer
	if c.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics.MustRegister(reg)
		gatherer = reg
	}

	client := a.httpClient()
	guard := activitypub.NewReplayGuard(a.store, a.log.WithField("component", "replay"))
	keys := activitypub.NewKeyStore(a.store, a.settings, activitypub.NewHTTPActorFetcher(client))
	inbox := activitypub.NewInboxProcessor(
		a.store,
		activitypub.NewVerifier(keys, guard),
		a.settings,
		c.RequireSignatures,
		a.log.WithField("component", "inbox"),
	)

	router := web.NewRouter(web.Options{
		Store:      a.store,
		Settings:   a.settings,
		Inbox:      inbox,
		Gatherer:   gatherer,
		AdminToken: c.AdminToken,
		WithAp:     c.WithAp,
		Logger:     a.log.WithField("component", "http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.Serve(gctx, fmt.Sprintf("%s:%d", c.Host, c.HttpPort), router, a.log)
	})

	if c.WithAp {
		queue := activitypub.NewDeliveryQueue(a.store, c.Delivery.VisibilityTimeout)
		workerConf := activitypub.WorkerConfig{
			PopTimeout:  c.Delivery.PopTimeout,
			MaxReceives: c.Delivery.MaxReceives,
		}
		for i := 0; i < max(c.Delivery.Workers, 1); i++ {
			worker := activitypub.NewDeliveryWorker(a.store, queue, a.settings, client, workerConf, a.log.WithField("worker", i))
			g.Go(func() error { return worker.Run(gctx) })
		}

		scheduler := activitypub.NewRetryScheduler(a.store, c.Delivery.RetryInterval, c.Delivery.MaxAttempts, a.log.WithField("component", "retry"))
		g.Go(func() error { return scheduler.Run(gctx) })
		g.Go(func() error { return guard.RunJanitor(gctx, replayPruneInterval) })
	}

	return g.Wait()
}
