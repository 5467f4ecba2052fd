package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"touristid/internal/digitalid/expiry"
	"touristid/internal/digitalid/metrics"
	"touristid/internal/digitalid/outbox"
	"touristid/internal/digitalid/ports"
	"touristid/internal/digitalid/reconcile"
	"touristid/internal/digitalid/service"
	"touristid/internal/digitalid/store/accesslog"
	"touristid/internal/digitalid/store/credential"
	"touristid/internal/digitalid/store/event"
	"touristid/internal/ledger/gateway"
	"touristid/internal/ledger/local"
	"touristid/internal/platform/config"
	"touristid/internal/platform/kafka"
	platformmetrics "touristid/internal/platform/metrics"
	"touristid/internal/platform/postgres"
	"touristid/internal/platform/redis"
	"touristid/pkg/platform/protect"
)

// infra holds the process-wide dependencies chosen from configuration.
type infra struct {
	db       *sql.DB
	redis    *redis.Client
	producer *kafka.Producer

	registry *platformmetrics.Registry
	metrics  *metrics.Metrics
	keyring  *protect.Keyring
	ledger   ports.Ledger
	stores   service.Stores
	tx       service.StoreTx
	queue    reconcile.Queue
	locker   expiry.Locker
	relay    *outbox.Relay
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *infra, err error) {
	i := &infra{registry: platformmetrics.NewRegistry()}
	defer func() {
		if err != nil {
			i.Close()
		}
	}()
	i.metrics = metrics.NewWithRegisterer(i.registry)

	i.keyring, err = protect.NewKeyring([]byte(cfg.PayloadMasterKey))
	if err != nil {
		return nil, fmt.Errorf("payload keyring: %w", err)
	}

	if cfg.LocalOnly() {
		log.Warn("LEDGER_GATEWAY_URL not set; using the in-process ledger")
		i.ledger = local.New(i.keyring, local.WithLogger(log))
	} else {
		i.ledger = gateway.New(gateway.Config{
			BaseURL:          cfg.Ledger.GatewayURL,
			APIKey:           cfg.Ledger.APIKey,
			Timeout:          cfg.Ledger.Timeout,
			MaxRetries:       cfg.Ledger.MaxRetries,
			BreakerThreshold: cfg.Ledger.BreakerThreshold,
			BreakerCooldown:  cfg.Ledger.BreakerCooldown,
		}, gateway.WithLogger(log))
	}

	if cfg.DatabaseURL == "" {
		i.stores = service.Stores{
			Credentials: credential.NewInMemory(),
			AccessLogs:  accesslog.NewInMemory(),
			Events:      event.NewInMemory(),
		}
		i.tx = service.NewInMemoryTx(i.stores)
	} else {
		i.db, err = postgres.Open(ctx, postgres.Config{URL: cfg.DatabaseURL, MaxOpenConns: 25, MaxIdleConns: 5})
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, i.db); err != nil {
			return nil, err
		}
		// Outbox rows are only written when a relay will publish them.
		var eventOpts []event.Option
		if len(cfg.Kafka.Brokers) == 0 {
			eventOpts = append(eventOpts, event.WithoutOutbox())
		}
		i.stores = service.Stores{
			Credentials: credential.NewPostgres(i.db),
			AccessLogs:  accesslog.NewPostgres(i.db),
			Events:      event.NewPostgres(i.db, eventOpts...),
		}
		i.tx = service.NewPostgresTx(i.db, cfg.StoreTimeout, eventOpts...)
	}

	i.redis, err = redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if i.redis != nil {
		i.queue = reconcile.NewRedisQueue(i.redis.Client)
		i.locker = expiry.NewRedisLocker(i.redis.Client)
	} else {
		log.Warn("REDIS_URL not set; pending writes are kept in memory")
		i.queue = reconcile.NewMemoryQueue()
		i.locker = expiry.LocalLocker{}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		if i.db == nil {
			return nil, errors.New("KAFKA_BROKERS requires DATABASE_URL: lifecycle events are relayed from the Postgres outbox")
		}
		i.producer, err = kafka.NewProducer(cfg.Kafka.Brokers,
			kafka.WithClientID(cfg.Kafka.ClientID),
			kafka.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}
		if err := i.producer.EnsureTopic(ctx, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return nil, err
		}
		i.relay = outbox.NewRelay(outbox.NewPostgresStore(i.db), i.producer,
			outbox.WithTopic(cfg.Kafka.Topic),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithInterval(cfg.Outbox.Interval),
			outbox.WithLogger(log),
			outbox.WithMetrics(i.metrics),
		)
	}
	return i, nil
}

func (i *infra) Close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}
