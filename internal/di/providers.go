package di

import (
	"fmt"

	"MempoolOracle/internal/domain/repository"
	"MempoolOracle/internal/handler/api"
	"MempoolOracle/internal/handler/ws"
	mid "MempoolOracle/internal/middleware"
	internalrepo "MempoolOracle/internal/repository"
	"MempoolOracle/internal/service/bitcoin"
	"MempoolOracle/internal/service/feed"
	svcmetrics "MempoolOracle/internal/service/metrics"
	"MempoolOracle/internal/service/ratelimit"
	"MempoolOracle/internal/services/pricing"
	"MempoolOracle/internal/usecase"
	pkgcache "MempoolOracle/pkg/cache"
	"MempoolOracle/pkg/config"
	xhttp "MempoolOracle/pkg/http"
	pkgkafka "MempoolOracle/pkg/kafka"
	applogger "MempoolOracle/pkg/logger"
	"MempoolOracle/pkg/metrics"
	"MempoolOracle/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.BatchSize, cfg.Kafka.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. With Kafka and a logs topic
// configured, warn and error records are aggregated onto that topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, err
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectorConfig{
			Interval:   cfg.Kafka.LogInterval,
			MaxEntries: cfg.Kafka.LogMaxEntries,
			Topic:      cfg.Kafka.LogsTopic,
			Publisher:  producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideCache returns Redis when enabled, otherwise an in-process cache.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(64)), nil
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr()),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

func ProvideEstimateStore(c pkgcache.Service, cfg *config.Config) repository.EstimateStore {
	return internalrepo.NewCacheEstimateStore(c, cfg.Redis.TTL)
}

func ProvideEstimatePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return internalrepo.NoopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.EstimatesTopic)
}

// ProvideFeed selects the ZMQ or Kafka transaction source.
func ProvideFeed(cfg *config.Config, log *applogger.Logger) (repository.FeedSource, error) {
	f := cfg.Feed
	opts := []feed.Option{
		feed.WithReadTimeout(f.ReadTimeout),
		feed.WithBackoff(f.BackoffInitial, f.BackoffMax, f.FailThreshold),
		feed.WithBuffer(f.Buffer),
		feed.WithLogger(log.Component("feed")),
	}
	switch f.Type {
	case "kafka":
		l, err := feed.NewKafkaListener(feed.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   f.Topic,
			GroupID: f.GroupID,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("kafka feed: %w", err)
		}
		return l, nil
	default:
		return feed.NewZMQListener(f.Endpoint, f.Topic, opts...), nil
	}
}

func ProvideDecoder(cfg *config.Config) (*bitcoin.Decoder, error) {
	params, err := bitcoin.ParamsForNetwork(cfg.Feed.Network)
	if err != nil {
		return nil, err
	}
	return bitcoin.NewDecoder(bitcoin.WithParams(params), bitcoin.WithAddresses(cfg.Feed.Addresses)), nil
}

func ProvideEligibilityFilter(cfg *config.Config) *usecase.EligibilityFilter {
	f := cfg.Filter
	return usecase.NewEligibilityFilter(
		usecase.WithInputRange(f.MinInputs, f.MaxInputs),
		usecase.WithOutputCount(f.Outputs),
		usecase.WithAmountRange(f.MinBTC, f.MaxBTC),
	)
}

func ProvideEngine(cfg *config.Config) (*pricing.Engine, error) {
	p := cfg.Pricing
	var peaks []pricing.StencilPeak
	for _, sp := range p.Stencil {
		peaks = append(peaks, pricing.StencilPeak{USD: sp.USD, Weight: sp.Weight})
	}
	stencil, err := pricing.NewStencil(peaks)
	if err != nil {
		return nil, fmt.Errorf("pricing stencil: %w", err)
	}
	return pricing.NewEngine(
		pricing.WithWindow(p.Window),
		pricing.WithMinObservations(p.MinObservations),
		pricing.WithRateRange(p.MinRate, p.MaxRate),
		pricing.WithSmoothWeight(p.SmoothWeight),
		pricing.WithMinSharpness(p.MinSharpness),
		pricing.WithStencil(stencil),
	), nil
}

func ProvidePipeline(engine *pricing.Engine, m repository.Metrics, cfg *config.Config) (*mid.RealtimePipeline, error) {
	return mid.NewRealtimePipeline(engine, m,
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
		mid.WithPolicy(cfg.Pipeline.Policy),
	)
}

func ProvideTxCollector(
	source repository.FeedSource,
	decoder *bitcoin.Decoder,
	filter *usecase.EligibilityFilter,
	pipe *mid.RealtimePipeline,
	counters *usecase.Counters,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.TxCollector {
	return usecase.NewTxCollector(source, decoder, filter, pipe, counters, m, log)
}

func ProvideHub(m repository.Metrics, cfg *config.Config, log *applogger.Logger) *ws.Hub {
	return ws.NewHub(m,
		ws.WithEvictAfter(cfg.Broadcast.EvictAfterDrops),
		ws.WithHubLogger(log),
	)
}

func ProvideOrchestrator(
	cfg *config.Config,
	source repository.FeedSource,
	collector *usecase.TxCollector,
	pipe *mid.RealtimePipeline,
	engine *pricing.Engine,
	hub *ws.Hub,
	counters *usecase.Counters,
	pub repository.Publisher,
	store repository.EstimateStore,
	m repository.Metrics,
	log *applogger.Logger,
) (*usecase.Orchestrator, error) {
	return usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Feed:      source,
		Collector: collector,
		Pipeline:  pipe,
		Engine:    engine,
		Hub:       hub,
		Counters:  counters,
		Publisher: pub,
		Store:     store,
		Metrics:   m,
		Logger:    log,
	}, usecase.WithInterval(cfg.Broadcast.Interval))
}

func ProvideConnectLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Broadcast.ConnectBurst, cfg.Broadcast.ConnectRefillPerSec)
}

// ProvideHTTPServer mounts the API and websocket routes.
func ProvideHTTPServer(
	cfg *config.Config,
	orch *usecase.Orchestrator,
	hub *ws.Hub,
	limiter *ratelimit.Limiter,
	log *applogger.Logger,
) *xhttp.Server {
	b := cfg.Broadcast
	handlers := xhttp.Handlers{
		api.NewPriceHandler(orch, log),
		ws.NewHandler(hub, limiter, ws.ClientConfig{
			QueueSize:    b.ClientQueue,
			WriteTimeout: b.WriteTimeout,
			PongWait:     b.PongWait,
			PingPeriod:   b.PingPeriod,
		}, log),
	}
	s := cfg.Server
	return xhttp.NewServer(handlers,
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithSlowThreshold(s.SlowThreshold),
		xhttp.WithCORS(s.CORS == nil || *s.CORS),
		xhttp.WithMetrics(cfg.Metrics.Enabled == nil || *cfg.Metrics.Enabled),
		xhttp.WithLogger(log),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	orch *usecase.Orchestrator,
	httpServer *xhttp.Server,
	producer *pkgkafka.Producer,
	c pkgcache.Service,
) *server.App {
	opts := []server.AppOption{server.WithShutdownTimeout(cfg.Server.ShutdownTimeout)}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka", producer))
	}
	opts = append(opts, server.WithCloser("cache", c))
	return server.New(log, orch, httpServer, opts...)
}
