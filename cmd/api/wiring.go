package main

import (
	"context"
	"fmt"
	"time"

	"patient-access/internal/adapters/auth/introspect"
	"patient-access/internal/adapters/auth/jwtverifier"
	"patient-access/internal/adapters/cache/redislock"
	"patient-access/internal/adapters/directory/orgregistry"
	"patient-access/internal/adapters/messaging/rabbitmq"
	"patient-access/internal/adapters/storage/mongodb"
	"patient-access/internal/adapters/storage/postgres"
	"patient-access/internal/platform/config"
	"patient-access/internal/platform/logger"
	"patient-access/internal/platform/metrics"
	"patient-access/internal/ports/auth"
	"patient-access/internal/router"
)

const redisLockPrefix = "patient-access:lock:"

type dependencies struct {
	options router.Options
	closers []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// wire arma las router.Options a partir de la config: storage, lock, publisher, verifier y membresías.
func wire(ctx context.Context, cfg *config.Config, log logger.Logger) (*dependencies, error) {
	d := &dependencies{
		options: router.Options{
			Logger:                 log,
			Metrics:                metrics.New(),
			DefaultTimeWindowHours: cfg.DefaultTimeWindowHours,
			MaxTimeWindowHours:     cfg.MaxTimeWindowHours,
		},
	}

	fail := func(err error) (*dependencies, error) {
		d.close()
		return nil, err
	}

	if err := d.openStorage(ctx, cfg); err != nil {
		return fail(err)
	}

	if cfg.RedisAddr != "" {
		client, err := redislock.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, func() { _ = client.Close() })
		d.options.Lock = redislock.New(client, redisLockPrefix)
	}

	if cfg.RabbitMQURI != "" {
		pub, err := rabbitmq.Dial(cfg.RabbitMQURI, cfg.RabbitMQExchange)
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, func() { _ = pub.Close() })
		d.options.Publisher = pub
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		return fail(err)
	}
	d.options.AuthVerifier = verifier

	if cfg.OrgRegistryBaseURL != "" || cfg.AllowAllMemberships {
		res, err := orgregistry.New(orgregistry.Config{
			BaseURL:  cfg.OrgRegistryBaseURL,
			APIKey:   cfg.OrgRegistryAPIKey,
			Timeout:  cfg.UpstreamTimeout,
			AllowAll: cfg.AllowAllMemberships,
			CacheTTL: time.Minute,
		})
		if err != nil {
			return fail(fmt.Errorf("org registry: %w", err))
		}
		d.options.Membership = res
	}

	return d, nil
}

func (d *dependencies) openStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.StorageBackend {
	case "postgres":
		db, err := postgres.Open(cfg.DBDSN)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		d.options.Stores = router.PostgresStores(db)

	case "mongo":
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		})
		db := client.Database(cfg.MongoDatabase)
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			return err
		}
		d.options.Stores = router.MongoStores(db)

	default:
		d.options.Stores = router.MemoryStores()
	}
	return nil
}

// migrate aplica el schema (Postgres) o crea los índices (Mongo). En memoria no hay nada que hacer.
func migrate(ctx context.Context, cfg *config.Config) error {
	switch cfg.StorageBackend {
	case "postgres":
		db, err := postgres.Open(cfg.DBDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		return postgres.Migrate(ctx, db)

	case "mongo":
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		return mongodb.EnsureIndexes(ctx, client.Database(cfg.MongoDatabase))

	default:
		return fmt.Errorf("migrate: nothing to do for STORAGE_BACKEND=%s", cfg.StorageBackend)
	}
}

// newVerifier devuelve nil en modo dev: el middleware arma claims con X-Debug-*.
func newVerifier(cfg *config.Config) (auth.AuthVerifier, error) {
	switch cfg.AuthMode {
	case "jwt":
		return jwtverifier.New(cfg.JWTSecret, cfg.JWTIssuer)
	case "introspect":
		return introspect.New(introspect.Config{
			BaseURL: cfg.IntrospectBaseURL,
			APIKey:  cfg.IntrospectAPIKey,
			Timeout: cfg.UpstreamTimeout,
		})
	default:
		return nil, nil
	}
}
