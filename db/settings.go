package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xlog-social/xlog/domain"
)

const (
	sqlSelectSettings = `SELECT instance_name, instance_description, instance_domain, open_registrations, federation_enabled, updated_at
		FROM instance_settings WHERE id = 1`
	sqlUpsertSettings = `INSERT INTO instance_settings(id, instance_name, instance_description, instance_domain, open_registrations, federation_enabled, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET instance_name = excluded.instance_name, instance_description = excluded.instance_description,
		instance_domain = excluded.instance_domain, open_registrations = excluded.open_registrations,
		federation_enabled = excluded.federation_enabled, updated_at = excluded.updated_at`
)

func (db *DB) ReadInstanceSettings(ctx context.Context) (*domain.InstanceSettings, error) {
	var (
		s         domain.InstanceSettings
		updatedAt int64
	)
	err := db.db.QueryRowContext(ctx, sqlSelectSettings).
		Scan(&s.InstanceName, &s.InstanceDescription, &s.InstanceDomain, &s.OpenRegistrations, &s.FederationEnabled, &updatedAt)
	if err != nil {
		return nil, notFound(err, "instance settings")
	}
	s.UpdatedAt = fromMillis(updatedAt)
	return &s, nil
}

func (db *DB) SaveInstanceSettings(ctx context.Context, s *domain.InstanceSettings) error {
	_, err := db.exec(ctx, sqlUpsertSettings,
		s.InstanceName,
		s.InstanceDescription,
		s.InstanceDomain,
		s.OpenRegistrations,
		s.FederationEnabled,
		toMillis(s.UpdatedAt),
	)
	return err
}

type settingsReader interface {
	ReadInstanceSettings(ctx context.Context) (*domain.InstanceSettings, error)
}

// SettingsCache serves instance settings for up to ttl before rereading them.
// Defaults are used while no settings row exists.
type SettingsCache struct {
	store    settingsReader
	defaults domain.InstanceSettings
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	cached  *domain.InstanceSettings
	expires time.Time
}

const DefaultSettingsTTL = 60 * time.Second

func NewSettingsCache(store settingsReader, defaults domain.InstanceSettings, ttl time.Duration) *SettingsCache {
	return &SettingsCache{
		store:    store,
		defaults: defaults,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *SettingsCache) Get(ctx context.Context) (domain.InstanceSettings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.cached != nil && now.Before(c.expires) {
		return *c.cached, nil
	}

	s, err := c.store.ReadInstanceSettings(ctx)
	switch {
	case err == nil:
		if s.InstanceDomain == "" {
			s.InstanceDomain = c.defaults.InstanceDomain
		}
	case errors.Is(err, ErrNotFound):
		d := c.defaults
		s = &d
	default:
		return domain.InstanceSettings{}, err
	}

	c.cached = s
	c.expires = now.Add(c.ttl)
	return *s, nil
}

// Invalidate drops the cached value so the next Get rereads the store.
func (c *SettingsCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
