//go:build wireinject
// +build wireinject

package di

import (
	"MempoolOracle/internal/usecase"
	"MempoolOracle/pkg/config"
	"MempoolOracle/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,

		// Repositories
		ProvideEstimateStore,
		ProvideEstimatePublisher,
		ProvideFeed,

		// Pipeline
		ProvideDecoder,
		ProvideEligibilityFilter,
		ProvideEngine,
		ProvidePipeline,
		usecase.NewCounters,
		ProvideTxCollector,
		ProvideHub,
		ProvideOrchestrator,

		// HTTP surface
		ProvideConnectLimiter,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
