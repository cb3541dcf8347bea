package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"SaxoBridge/internal/domain/repository"
	"SaxoBridge/internal/handler/api"
	mid "SaxoBridge/internal/middleware"
	internalrepo "SaxoBridge/internal/repository"
	"SaxoBridge/internal/service/oauth"
	"SaxoBridge/internal/service/ratelimit"
	"SaxoBridge/internal/service/saxo"
	"SaxoBridge/internal/usecase"
	"SaxoBridge/pkg/cache"
	pkgch "SaxoBridge/pkg/clickhouse"
	"SaxoBridge/pkg/config"
	xhttp "SaxoBridge/pkg/http"
	pkgkafka "SaxoBridge/pkg/kafka"
	"SaxoBridge/pkg/logger"
	"SaxoBridge/pkg/metrics"
	"SaxoBridge/pkg/server"
)

// ProvideLogger builds the root logger from the logging section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideRedisCache connects to Redis when the token store or the
// symbol cache needs it; otherwise it returns nil.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if cfg.Tokens.Store != "redis" && !cfg.Cache.Layered {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCredentialStore selects the file or Redis token store.
func ProvideCredentialStore(cfg *config.Config, rc *cache.RedisCache) (repository.CredentialStore, error) {
	if cfg.Tokens.Store == "redis" {
		return internalrepo.NewRedisCredentialStore(rc.Client(), cfg.Redis.Prefix), nil
	}
	return internalrepo.NewFileCredentialStore(cfg.Tokens.Dir)
}

// ProvideSymbolCache returns the in-process cache, layered over Redis when enabled.
func ProvideSymbolCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if cfg.Cache.Layered && rc != nil {
		return cache.NewLayeredCache(rc, cfg.Cache.MemorySize, cfg.Cache.SymbolTTL)
	}
	return cache.NewMemoryCache(
		cache.WithMemoryMaxSize(cfg.Cache.MemorySize),
		cache.WithMemoryCleanup(time.Minute),
	)
}

func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(cfg.Saxo.HTTPTimeout))
}

func ProvideEndpoints(cfg *config.Config) saxo.Endpoints {
	return saxo.NewEndpoints(cfg.Saxo.AuthURL, cfg.Saxo.APIBaseURL, cfg.Saxo.WebSocketHost)
}

// ProvideSaxoAPI builds the throttled upstream REST surface.
func ProvideSaxoAPI(cfg *config.Config, client *xhttp.Client, endpoints saxo.Endpoints, m repository.Metrics) *saxo.API {
	limiter := ratelimit.New(cfg.Saxo.RequestRate, cfg.Saxo.RequestBurst)
	return saxo.NewAPI(saxo.NewRESTClient(client, limiter, m), endpoints)
}

func ProvideResolver(cfg *config.Config, a *saxo.API, c cache.Service, l *logger.Logger) *saxo.Resolver {
	return saxo.NewResolver(a, c, cfg.Cache.SymbolTTL, l)
}

func ProvideTransport(cfg *config.Config, l *logger.Logger) *saxo.Transport {
	return saxo.NewTransport(cfg.Saxo.PingInterval, l)
}

// ProvideTokenManager creates the OAuth token manager.
func ProvideTokenManager(
	cfg *config.Config,
	endpoints saxo.Endpoints,
	store repository.CredentialStore,
	client *xhttp.Client,
	l *logger.Logger,
	m repository.Metrics,
) *oauth.Manager {
	return oauth.NewManager(oauth.Config{
		Provider:     cfg.Saxo.Provider,
		ClientID:     cfg.Saxo.ClientID,
		ClientSecret: cfg.Saxo.ClientSecret,
		RedirectURL:  cfg.Saxo.RedirectURL,
		Workers:      cfg.Tokens.RefreshWorkers,
	}, endpoints, store, client, l, m)
}

// ProvideClickHouseClient connects and prepares the tick table when the
// archive backend is clickhouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Archive.Backend != usecase.BackendClickHouse {
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
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer when the archive backend is kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Archive.Backend != usecase.BackendKafka {
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

// ProvideTickStorage wraps the ClickHouse client and creates the tick table.
// The cleanup closes the client.
func ProvideTickStorage(client *pkgch.Client) (repository.TickStorage, func(), error) {
	if client == nil {
		return nil, func() {}, nil
	}
	store := internalrepo.NewClickHouseTickStorage(client, "ticks")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// ProvideTickPublisher wraps the Kafka producer. The cleanup closes it.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) (repository.TickPublisher, func()) {
	if producer == nil {
		return nil, func() {}
	}
	pub := internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.Topic)
	return pub, func() { _ = pub.Close() }
}

// ProvideTickArchiver returns nil when archiving is disabled.
func ProvideTickArchiver(
	cfg *config.Config,
	pub repository.TickPublisher,
	store repository.TickStorage,
	m repository.Metrics,
) *usecase.TickArchiver {
	if cfg.Archive.Backend == usecase.BackendNone {
		return nil
	}
	return usecase.NewTickArchiver(pub, store, m, cfg.Archive.Backend)
}

// ProvideTickPipeline builds the non-blocking archive buffer in front of
// the archiver; nil when archiving is disabled.
func ProvideTickPipeline(cfg *config.Config, archiver *usecase.TickArchiver, m repository.Metrics, l *logger.Logger) *mid.TickPipeline {
	if archiver == nil {
		return nil
	}
	return mid.NewTickPipeline(archiver, m,
		mid.WithMaxRPS(cfg.Archive.MaxRPS),
		mid.WithBufferSize(cfg.Archive.BufferSize),
		mid.WithBatch(cfg.Archive.BatchSize, cfg.Archive.FlushInterval),
		mid.WithStopTimeout(cfg.Archive.StopTimeout),
		mid.WithLogger(l.With(logger.String("component", "archive"))),
	)
}

// ProvideSessionManager creates the streaming session manager and
// subscribes it to token refreshes.
func ProvideSessionManager(
	cfg *config.Config,
	a *saxo.API,
	transport *saxo.Transport,
	tokens *oauth.Manager,
	resolver *saxo.Resolver,
	pipeline *mid.TickPipeline,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.SessionManager {
	var sink repository.TickSink
	if pipeline != nil {
		sink = pipeline
	}
	sm := usecase.NewSessionManager(a, transport, tokens, resolver, sink, m,
		l.With(logger.String("component", "sessions")), cfg.Stream.ListenerBuffer)
	tokens.SetRefreshListener(sm.OnTokenRefreshed)
	return sm
}

func ProvideHistoryWalker(a *saxo.API, tokens *oauth.Manager, resolver *saxo.Resolver, m repository.Metrics, l *logger.Logger) *usecase.HistoryWalker {
	return usecase.NewHistoryWalker(a, tokens, resolver, m, l.With(logger.String("component", "history")))
}

// ProvideHandler assembles the charting client routes.
func ProvideHandler(
	tokens *oauth.Manager,
	sm *usecase.SessionManager,
	walker *usecase.HistoryWalker,
	a *saxo.API,
	l *logger.Logger,
) xhttp.Handler {
	return api.NewBridgeHandler(tokens, api.NewSessions(sm), walker, a, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	handler xhttp.Handler,
	tokens *oauth.Manager,
	sm *usecase.SessionManager,
	pipeline *mid.TickPipeline,
) *server.App {
	return server.New(cfg, l, handler, tokens, sm, pipeline)
}
