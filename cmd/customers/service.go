package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/jirikrizz/erihub-dev-sub006/config"
	"github.com/jirikrizz/erihub-dev-sub006/internal/repositories/customer"
	"github.com/jirikrizz/erihub-dev-sub006/internal/repositories/customeraccount"
	"github.com/jirikrizz/erihub-dev-sub006/internal/repositories/customermetric"
	"github.com/jirikrizz/erihub-dev-sub006/internal/repositories/order"
	"github.com/jirikrizz/erihub-dev-sub006/internal/repositories/settings"
	"github.com/jirikrizz/erihub-dev-sub006/internal/repositories/tagrule"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/graph"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/grouping"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/health"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/kafka"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/processor"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/redis"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/rules"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/scheduler"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/startup"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

var errNotReady = errors.New("processor not started")

// service holds the connections opened during startup. The consumer and
// scheduler are built before the processor exists, so they call through it.
type service struct {
	cfg    *config.Config
	logger ectologger.Logger
	health *health.Checker

	db        database.DB
	redis     *redis.Client
	graph     *graph.Client
	producer  *kafka.Producer
	notifier  *redis.Notifier
	processor *processor.Processor
	scheduler *scheduler.Scheduler

	subscriberCancel context.CancelFunc
	subscriberWG     sync.WaitGroup
}

func newService(cfg *config.Config, logger ectologger.Logger) *service {
	return &service{cfg: cfg, logger: logger, health: health.NewChecker()}
}

func (s *service) dependencies() []startup.StartupDependency {
	cfg := s.cfg

	endpoint := ""
	if cfg.TracingEnabled {
		endpoint = cfg.TracingEndpoint
	}
	deps := []startup.StartupDependency{
		tracing.NewProvider(tracing.ProviderConfig{
			ServiceName: cfg.AppName,
			Endpoint:    endpoint,
			Insecure:    cfg.TracingInsecure,
		}),
		startup.Func{
			Name:     "postgres",
			Requires: []string{"tracing"},
			OnStart:  s.startPostgres,
			OnStop: func(context.Context) error {
				if s.db == nil {
					return nil
				}
				return s.db.Close()
			},
		},
		startup.Func{
			Name:     "migrations",
			Requires: []string{"postgres"},
			OnStart: func(context.Context) error {
				return database.NewMigrationService(s.logger, cfg.Migration()).Migrate(cfg.DatabaseName, s.db)
			},
		},
		startup.Func{
			Name:    "redis",
			OnStart: s.startRedis,
			OnStop: func(context.Context) error {
				if s.redis == nil {
					return nil
				}
				return s.redis.Close()
			},
		},
	}

	rulesRequires := []string{"migrations", "redis"}
	if cfg.GraphEnabled {
		deps = append(deps, startup.Func{
			Name:    "graph",
			OnStart: s.startGraph,
			OnStop: func(ctx context.Context) error {
				if s.graph == nil {
					return nil
				}
				return s.graph.Close(ctx)
			},
		})
		rulesRequires = append(rulesRequires, "graph")
	}
	if cfg.KafkaProducerEnabled {
		deps = append(deps, startup.Func{
			Name: "kafka-producer",
			OnStart: func(context.Context) error {
				s.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, s.logger)
				return nil
			},
			OnStop: func(context.Context) error {
				if s.producer == nil {
					return nil
				}
				return s.producer.Close()
			},
		})
		rulesRequires = append(rulesRequires, "kafka-producer")
	}

	// "rules" builds the processor and loads the rule set before any work is accepted.
	deps = append(deps, startup.Func{
		Name:     "rules",
		Requires: rulesRequires,
		OnStart:  s.startProcessor,
	})

	if !cfg.RulesSubscriberOff {
		deps = append(deps, startup.Func{
			Name:     "rules-subscriber",
			Requires: []string{"redis", "rules"},
			OnStart:  s.startSubscriber,
			OnStop:   s.stopSubscriber,
		})
	}

	if cfg.KafkaConsumerEnabled {
		deps = append(deps, kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:         cfg.KafkaBrokers,
			Topic:           cfg.KafkaOrdersTopic,
			ConsumerGroup:   cfg.KafkaConsumerGroup,
			RetryBackoff:    cfg.KafkaRetryBackoff,
			MaxRetryBackoff: cfg.KafkaMaxRetryBackoff,
		}, s.logger, s.HandleOrderMessage))
	}

	if cfg.RecomputeEnabled {
		s.scheduler = scheduler.NewScheduler(s, scheduler.Config{
			PollInterval: cfg.RecomputeInterval,
			RunOnStart:   cfg.RecomputeOnStart,
		}, s.logger)
		deps = append(deps, s.scheduler)
	}
	return deps
}

func (s *service) startPostgres(ctx context.Context) error {
	db, err := database.Open(ctx, s.cfg.Connection(), s.logger)
	if err != nil {
		return err
	}
	s.db = db
	s.health.Register("postgres", db.PingContext, true)
	return nil
}

func (s *service) startRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     s.cfg.RedisHost,
		Port:     s.cfg.RedisPort,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
		PoolSize: s.cfg.RedisPoolSize,
	}, s.logger)
	if err != nil {
		return err
	}
	s.redis = client
	s.health.Register("redis", client.Ping, true)
	return nil
}

func (s *service) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Scheme:   s.cfg.GraphDBScheme,
		Host:     s.cfg.GraphDBHost,
		Port:     s.cfg.GraphDBPort,
		Username: s.cfg.GraphDBUser,
		Password: s.cfg.GraphDBPassword,
		Database: s.cfg.GraphDBName,
		Dialect:  s.cfg.GraphDBDialect,
	}, s.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("graph database unreachable: %w", err)
	}
	if err := client.EnsureSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return err
	}
	s.graph = client
	s.health.Register("graph", client.VerifyConnectivity, false)
	return nil
}

func (s *service) startProcessor(ctx context.Context) error {
	cfg := s.cfg
	s.notifier = redis.NewNotifier(s.redis, cfg.RedisRulesChannel)
	settingsRepo := settings.NewRepository(s.db, s.logger, settings.Defaults{
		IdentityPolicy: cfg.IdentityPolicy(),
		Classification: cfg.Classification(),
	})

	deps := processor.Dependencies{
		Customers:  customer.NewRepository(s.db, s.logger, cfg.Retry()),
		Accounts:   customeraccount.NewRepository(s.db, s.logger),
		Orders:     order.NewRepository(s.db, s.logger),
		Metrics:    customermetric.NewRepository(s.db, s.logger),
		Policy:     settingsRepo,
		Tx:         database.NewTransactor(s.db, cfg.Retry()),
		Engine:     rules.NewEngine(tagrule.NewRepository(s.db, s.logger), s.logger),
		Classifier: grouping.NewClassifier(settingsRepo, s.logger),
		Locker:     redis.NewLocker(s.redis, cfg.RedisLockPrefix),
		Notifier:   s.notifier,
	}
	// optional collaborators stay nil interfaces when disabled
	if s.producer != nil {
		deps.Events = s.producer
	}
	if s.graph != nil {
		deps.Graph = graph.NewCustomerProjector(s.graph, s.logger)
	}

	proc := processor.NewProcessor(deps, processor.Config{
		RecomputePageSize: cfg.RecomputePageSize,
		RecomputeLockKey:  cfg.RecomputeLockKey,
		RecomputeLockTTL:  cfg.RecomputeLockTTL,
	}, s.logger)
	if err := proc.Refresh(ctx); err != nil {
		return err
	}
	s.processor = proc
	return nil
}

func (s *service) startSubscriber(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.subscriberCancel = cancel

	s.subscriberWG.Add(1)
	go func() {
		defer s.subscriberWG.Done()
		if err := s.notifier.Subscribe(subCtx, s.handleRulesChanged); err != nil {
			s.logger.WithError(err).Error("Rules subscriber stopped")
		}
	}()
	return nil
}

func (s *service) stopSubscriber(context.Context) error {
	if s.subscriberCancel != nil {
		s.subscriberCancel()
	}
	s.subscriberWG.Wait()
	return nil
}

// handleRulesChanged refreshes the local rule set, then asks for a recompute
// so stored auto tags follow the new rules. Every worker triggers; the
// recompute lock lets only one of them run.
func (s *service) handleRulesChanged(ctx context.Context, event redis.RulesChangedEvent) error {
	if err := s.processor.HandleRulesChanged(ctx, event); err != nil {
		return err
	}
	if s.scheduler != nil {
		s.scheduler.Trigger()
	}
	return nil
}

// HandleOrderMessage is the order topic handler.
func (s *service) HandleOrderMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	if s.processor == nil {
		return errNotReady
	}
	return s.processor.HandleOrderMessage(ctx, msg)
}

// RecomputeAll lets the scheduler drive the processor.
func (s *service) RecomputeAll(ctx context.Context) (models.RecomputeStats, error) {
	if s.processor == nil {
		return models.RecomputeStats{}, errNotReady
	}
	return s.processor.RecomputeAll(ctx)
}
