package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
	"SignalEngine/internal/domain/service"
	"SignalEngine/internal/handler/api"
	"SignalEngine/internal/handler/ws"
	internalrepo "SignalEngine/internal/repository"
	"SignalEngine/internal/service/ratelimit"
	"SignalEngine/internal/services/classification"
	"SignalEngine/internal/services/evaluation"
	"SignalEngine/internal/services/history"
	"SignalEngine/internal/services/notification"
	"SignalEngine/internal/services/rules"
	"SignalEngine/internal/services/signals"
	"SignalEngine/internal/usecase"
	"SignalEngine/pkg/cache"
	pkgch "SignalEngine/pkg/clickhouse"
	"SignalEngine/pkg/config"
	pkghttp "SignalEngine/pkg/http"
	pkgkafka "SignalEngine/pkg/kafka"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/metrics"
	"SignalEngine/pkg/queue"
	"SignalEngine/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. With Kafka enabled, error logs are
// aggregated and shipped to the logs topic; the collector is attached before
// any component logger is derived so that all of them share it.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectInterval,
			CountThreshold: cfg.Log.CollectThreshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideRedisCache connects to Redis, or returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideSubscriberCache backs subscriber settings with a layered cache over
// Redis, or a process-local cache without it.
func ProvideSubscriberCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(rc, cache.WithLayeredMemoryTTL(cfg.Redis.LocalTTL))
}

// ProvideKeyLocker serialises per-key writes across instances when Redis is
// shared, and within the process otherwise.
func ProvideKeyLocker(cfg *config.Config, rc *cache.RedisCache) repository.KeyLocker {
	if rc == nil {
		return internalrepo.NewKeyedMutex()
	}
	return internalrepo.NewRedisLocker(rc, cfg.Redis.LockTTL)
}

// ProvideClickHouseClient connects to ClickHouse and creates the history
// archive table, or returns nil when the archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.HistorySchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideHistoryService builds the history store, mirrored to ClickHouse when
// a client is available.
func ProvideHistoryService(cfg *config.Config, ch *pkgch.Client, locker repository.KeyLocker, m repository.Metrics, l *logger.Logger) *history.Service {
	opts := []history.Option{history.WithLogger(l), history.WithMetrics(m)}
	if ch != nil {
		archive := internalrepo.NewClickHouseHistoryArchive(ch, cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table)
		archive.SetLogger(l)
		opts = append(opts, history.WithArchive(archive))
	}
	return history.NewService(internalrepo.NewMemoryHistoryRepository(cfg.History.MaxSize), locker, opts...)
}

func ProvideHistoryScheduler(svc *history.Service, l *logger.Logger) *history.Scheduler {
	return history.NewScheduler(svc, l)
}

// ProvideRulesEngine builds the rule engine seeded with the default rules
// and the configured rules file.
func ProvideRulesEngine(cfg *config.Config, locker repository.KeyLocker, l *logger.Logger) (*rules.Engine, error) {
	engine := rules.NewEngine(internalrepo.NewMemoryRuleRepository(), locker, rules.WithLogger(l))
	ctx := context.Background()
	if cfg.Engine.LoadDefaultRules {
		engine.LoadRules(ctx, rules.DefaultRules())
	}
	if cfg.Engine.RulesFile != "" {
		loaded, err := rules.ReadRulesFile(cfg.Engine.RulesFile)
		if err != nil {
			return nil, err
		}
		n := engine.LoadRules(ctx, loaded)
		l.Info("rules file loaded",
			logger.String("path", cfg.Engine.RulesFile),
			logger.Int("loaded", n),
			logger.Int("total", len(loaded)),
		)
	}
	return engine, nil
}

func ProvideGenerator(cfg *config.Config, m repository.Metrics, l *logger.Logger) *signals.Generator {
	return signals.NewGenerator(signals.Config{
		MinConfidence: cfg.Engine.MinConfidence,
		SignalExpiry:  cfg.Engine.SignalExpiry,
	}, signals.WithLogger(l), signals.WithMetrics(m))
}

func ProvideEvaluator(cfg *config.Config, l *logger.Logger) (*evaluation.Evaluator, error) {
	w := cfg.Evaluator.Weights
	return evaluation.NewEvaluator(models.Weights{
		Strength:      w.Strength,
		Confidence:    w.Confidence,
		AIAnalysis:    w.AIAnalysis,
		MarketContext: w.MarketContext,
	}, evaluation.WithLogger(l))
}

func ProvideClassifier(cfg *config.Config, l *logger.Logger) (*classification.Classifier, error) {
	s, c := cfg.Classifier.StrengthThresholds, cfg.Classifier.ConfidenceThresholds
	return classification.NewClassifier(
		models.StrengthThresholds{Extreme: s.Extreme, Strong: s.Strong, Medium: s.Medium, Weak: s.Weak},
		models.ConfidenceThresholds{High: c.High, Medium: c.Medium, Low: c.Low},
		classification.WithLogger(l),
	)
}

func ProvideHub(l *logger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvideChannels assembles the delivery channels. Email and sms are handed to
// an external gateway over Kafka and are only available with a producer.
func ProvideChannels(cfg *config.Config, hub *ws.Hub, producer *pkgkafka.Producer, l *logger.Logger) []service.Channel {
	webhook := cfg.Notification.Webhook
	channels := []service.Channel{
		notification.NewSystemChannel(hub, l),
		notification.NewWebhookChannel(
			pkghttp.NewClient(
				pkghttp.WithTimeout(webhook.Timeout),
				pkghttp.WithUserAgent(webhook.UserAgent),
				pkghttp.WithSigningSecret(webhook.Secret),
			),
			notification.BreakerSettings{ConsecutiveFailures: webhook.BreakerFailures, OpenTimeout: webhook.BreakerTimeout},
		),
	}
	if producer != nil {
		topic := cfg.Kafka.Topics.Notifications
		channels = append(channels,
			notification.NewEmailChannel(producer, topic),
			notification.NewSMSChannel(producer, topic),
		)
	}
	return channels
}

func ProvideNotificationService(
	cfg *config.Config,
	subs cache.Service,
	rc *cache.RedisCache,
	locker repository.KeyLocker,
	channels []service.Channel,
	m repository.Metrics,
	l *logger.Logger,
) (*notification.Service, error) {
	var defaults models.Thresholds
	if len(cfg.Notification.DefaultThresholds) > 0 {
		defaults = make(models.Thresholds, len(cfg.Notification.DefaultThresholds))
		for k, v := range cfg.Notification.DefaultThresholds {
			defaults[models.SignalType(k)] = v
		}
	}
	subOpts := []internalrepo.SubscriberOption{internalrepo.WithIndexLocker(locker)}
	if rc != nil {
		subOpts = append(subOpts, internalrepo.WithIndexStore(rc))
	}
	return notification.NewService(
		notification.Config{
			Enabled:           cfg.Notification.Enabled,
			DefaultThresholds: defaults,
			ChannelTimeout:    cfg.Notification.ChannelTimeout,
		},
		internalrepo.NewCacheSubscriberRepository(subs, subOpts...),
		internalrepo.NewMemoryNotificationRepository(cfg.Notification.HistoryLimit),
		notification.WithLogger(l),
		notification.WithMetrics(m),
		notification.WithChannels(channels...),
		notification.WithLimiter(ratelimit.New(cfg.Notification.UserRatePerSec, cfg.Notification.UserBurst)),
	)
}

// ProvideQueue creates the notification queue, or nil when it is disabled.
// The queue shares the Redis connection of the cache.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, m repository.Metrics, l *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:       cfg.Queue.Workers,
		RetryLimit:    cfg.Queue.RetryLimit,
		RetryDelay:    cfg.Queue.RetryDelay,
		MaxRetryDelay: cfg.Queue.MaxRetryDelay,
		PollInterval:  cfg.Queue.PollInterval,
		Reclaim:       cfg.Queue.Reclaim,
	}, rc.Client(), queue.ModeProducerConsumer,
		queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"),
		queue.WithObserver(m),
	)
}

// ProvideDispatcher hands notification fan-out to the queue workers when a
// queue is configured and runs it inline otherwise.
func ProvideDispatcher(q *queue.RedisQueue, n *notification.Service, l *logger.Logger) service.Dispatcher {
	if q == nil {
		return usecase.NewInlineDispatcher(n)
	}
	q.RegisterJob(usecase.NewNotifySignalJob(n, l))
	return usecase.NewQueueDispatcher(q)
}

func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.SignalPublisher {
	if producer == nil {
		return internalrepo.NopSignalPublisher{}
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topics.Signals)
}

func ProvidePipeline(
	gen *signals.Generator,
	eval *evaluation.Evaluator,
	class *classification.Classifier,
	engine *rules.Engine,
	hist *history.Service,
	dispatcher service.Dispatcher,
	pub repository.SignalPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.SignalPipeline {
	return usecase.NewSignalPipeline(usecase.PipelineDeps{
		Generator:  gen,
		Evaluator:  eval,
		Classifier: class,
		Rules:      engine,
		History:    hist,
		Dispatcher: dispatcher,
		Publisher:  pub,
		Metrics:    m,
		Logger:     l,
	})
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerStartOffset(c.StartOffset),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideAPIHandler builds the REST façade. The health check pings every
// enabled backing store.
func ProvideAPIHandler(
	cfg *config.Config,
	gen *signals.Generator,
	eval *evaluation.Evaluator,
	class *classification.Classifier,
	engine *rules.Engine,
	n *notification.Service,
	hist *history.Service,
	pipeline *usecase.SignalPipeline,
	hub *ws.Hub,
	rc *cache.RedisCache,
	ch *pkgch.Client,
	l *logger.Logger,
) *api.Handler {
	health := func(ctx context.Context) error {
		var errs []error
		if rc != nil {
			if err := rc.Client().Ping(ctx).Err(); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}
		if ch != nil {
			if err := ch.Health(ctx); err != nil {
				errs = append(errs, fmt.Errorf("clickhouse: %w", err))
			}
		}
		return errors.Join(errs...)
	}
	return api.NewHandler(api.Deps{
		Generator:  gen,
		Evaluator:  eval,
		Classifier: class,
		Rules:      engine,
		Notifier:   n,
		History:    hist,
		Pipeline:   pipeline,
		Hub:        hub,
		Limiter:    ratelimit.New(cfg.Server.RatePerSec, cfg.Server.RateBurst),
		Health:     health,
		Logger:     l,
	})
}

// ProvideApp assembles the application and the order its resources close in.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	handler *api.Handler,
	pipeline *usecase.SignalPipeline,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	scheduler *history.Scheduler,
	hub *ws.Hub,
	producer *pkgkafka.Producer,
	subs cache.Service,
	ch *pkgch.Client,
	m repository.Metrics,
) *server.App {
	opts := []server.Option{server.WithScheduler(scheduler)}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer,
			usecase.NewConsumerHooks(m, l),
			usecase.NewAIAnalysisHandler(cfg.Kafka.Topics.AIAnalysis, pipeline, m, l),
			usecase.NewOutcomeHandler(cfg.Kafka.Topics.Outcomes, pipeline, m, l),
		))
	}
	if q != nil {
		opts = append(opts, server.WithQueue(q))
	}

	// closed in reverse: log collector, producer, caches, clickhouse, hub
	opts = append(opts, server.WithCloser("websocket hub", func() error { hub.Close(); return nil }))
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	// the layered cache owns the redis connection
	opts = append(opts, server.WithCloser("subscriber cache", subs.Close))
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer.Close))
		opts = append(opts, server.WithCloser("log collector", func() error { l.RemoveCollector(); return nil }))
	}
	return server.New(cfg, l, handler, opts...)
}
