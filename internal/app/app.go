// Package app assembles the ingestion pipeline from configuration, it is
// shared by the server and the cli.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/db"
	"pricewise-backend/internal/components/events"
	"pricewise-backend/internal/components/lock"
	"pricewise-backend/internal/components/notify"
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/internal/ingest"
	"pricewise-backend/internal/pricestore"
	"pricewise-backend/internal/scrapers/browser"
	"pricewise-backend/internal/scrapers/woolworths"
	"pricewise-backend/pkg/migrations"

	"github.com/redis/go-redis/v9"
)

type BrowserConfig struct {
	// Bin is the chromium binary, one is downloaded when empty.
	Bin                      string `json:"bin"`
	UserAgent                string `json:"user_agent"`
	Headful                  bool   `json:"headful"`
	NavigationTimeoutSeconds int    `json:"navigation_timeout_seconds"`
}

type IngestionConfig struct {
	PageDelayMs int `json:"page_delay_ms"`
	// Retries is left at the default when unset, 0 disables retrying.
	Retries        *int `json:"retries"`
	MaxPages       int  `json:"max_pages"`
	LockTTLMinutes int  `json:"lock_ttl_minutes"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

type Config struct {
	Port       int    `json:"port"`
	AdminToken string `json:"admin_token"`
	// Timezone the cron schedules are evaluated in.
	Timezone  string              `json:"timezone"`
	Database  migrations.Config   `json:"database"`
	Browser   BrowserConfig       `json:"browser"`
	Ingestion IngestionConfig     `json:"ingestion"`
	Schedules map[string]string   `json:"schedules"`
	Redis     *RedisConfig        `json:"redis"`
	Kafka     *events.KafkaConfig `json:"kafka"`
	Smtp      *notify.SmtpConfig  `json:"smtp"`
}

func (c Config) PaginatorOptions() ingest.PaginatorOptions {
	opts := ingest.DefaultPaginatorOptions()
	if c.Ingestion.PageDelayMs > 0 {
		opts.Delay = time.Duration(c.Ingestion.PageDelayMs) * time.Millisecond
	}
	if c.Ingestion.Retries != nil {
		opts.Retries = *c.Ingestion.Retries
	}
	opts.MaxPages = c.Ingestion.MaxPages
	return opts
}

func (c Config) RodOptions() browser.RodOptions {
	return browser.RodOptions{
		BinPath:           c.Browser.Bin,
		UserAgent:         c.Browser.UserAgent,
		Headful:           c.Browser.Headful,
		NavigationTimeout: time.Duration(c.Browser.NavigationTimeoutSeconds) * time.Second,
	}
}

type App struct {
	DB          *sql.DB
	Clock       chrono.StandardImpl
	Store       pricestore.Store
	Registry    ingest.Registry
	Coordinator ingest.Coordinator

	closers []func() error
}

// Open connects every backend named in cfg, the returned App must be closed.
func Open(ctx context.Context, cfg Config, tel telemetry.API) (app App, err error) {
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.Clock, err = chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		return app, fmt.Errorf("load timezone: %w", err)
	}

	app.DB, err = cfg.Database.OpenAndMigrate(db.Schema)
	if err != nil {
		return app, err
	}
	app.closers = append(app.closers, app.DB.Close)
	app.Store = pricestore.NewStore(app.DB, app.Clock)

	renderer := browser.NewRodRenderer(cfg.RodOptions(), tel)
	source, err := woolworths.NewSource(renderer, app.Clock, tel, woolworths.SourceOptions{})
	if err != nil {
		return app, err
	}
	app.Registry = ingest.NewRegistry(source)

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Redis != nil {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.closers = append(app.closers, client.Close)
		err = client.Ping(ctx).Err()
		if err != nil {
			return app, fmt.Errorf("connect redis: %w", err)
		}
		locker = lock.NewRedisLocker(client, cfg.Redis.Prefix)
	}

	publishers := events.Multi{}
	if cfg.Kafka != nil {
		producer, err := events.NewKafkaProducer(*cfg.Kafka)
		if err != nil {
			return app, fmt.Errorf("connect kafka: %w", err)
		}
		app.closers = append(app.closers, producer.Close)
		publishers = append(publishers, events.NewKafkaPublisher(producer, cfg.Kafka.Topic, tel))
	}
	if cfg.Smtp != nil {
		publishers = append(publishers, notify.NewSMTPNotifier(*cfg.Smtp, tel))
	}

	app.Coordinator = ingest.NewCoordinator(
		app.Registry,
		ingest.NewPaginator(cfg.PaginatorOptions(), app.Clock, tel),
		app.Store,
		locker,
		publishers,
		app.Clock,
		tel,
		ingest.CoordinatorOptions{
			LockTTL: time.Duration(cfg.Ingestion.LockTTLMinutes) * time.Minute,
		},
	)
	return app, nil
}

// Close releases backends in reverse order of opening.
func (a App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
