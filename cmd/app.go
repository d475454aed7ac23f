package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/xlog-social/xlog/activitypub"
	"github.com/xlog-social/xlog/db"
	"github.com/xlog-social/xlog/domain"
	"github.com/xlog-social/xlog/util"
)

// app holds what every subcommand shares: config, logger, an open and
// migrated store, and the settings cache in front of it.
type app struct {
	conf     *util.AppConfig
	log      *logrus.Logger
	store    *db.DB
	settings *db.SettingsCache
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	conf, err := util.ReadConf(configFile)
	if err != nil {
		return nil, err
	}
	logger, err := util.NewLogger(conf.Conf.LogLevel, conf.Conf.LogFormat)
	if err != nil {
		return nil, err
	}

	store, err := db.Open(ctx, conf.Conf.Database.Driver, conf.Conf.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := store.RunMigrations(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	settings := db.NewSettingsCache(store, domain.InstanceSettings{
		InstanceName:        conf.Conf.InstanceName,
		InstanceDescription: conf.Conf.InstanceDescription,
		InstanceDomain:      conf.Conf.InstanceDomain,
		OpenRegistrations:   conf.Conf.OpenRegistrations,
		FederationEnabled:   conf.Conf.WithAp,
	}, db.DefaultSettingsTTL)

	return &app{conf: conf, log: logger, store: store, settings: settings}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) httpClient() *http.Client {
	return &http.Client{Timeout: a.conf.Conf.Delivery.HttpTimeout}
}

func (a *app) publisher() *activitypub.Publisher {
	return activitypub.NewPublisher(a.store, a.settings, activitypub.NewHTTPActorFetcher(a.httpClient()), a.log.WithField("component", "publisher"))
}

// withApp opens the app for the duration of f.
func withApp(ctx context.Context, opts *rootOptions, f func(a *app) error) error {
	a, err := newApp(ctx, opts.configFile)
	if err != nil {
		return err
	}
	defer a.Close()
	return f(a)
}
