//go:build wireinject
// +build wireinject

package di

import (
	"SaxoBridge/pkg/config"
	"SaxoBridge/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application
// with a cleanup releasing the infrastructure clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideHTTPClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideCredentialStore,
		ProvideSymbolCache,
		ProvideTickStorage,
		ProvideTickPublisher,

		// Upstream
		ProvideEndpoints,
		ProvideSaxoAPI,
		ProvideResolver,
		ProvideTransport,
		ProvideTokenManager,

		// Use cases
		ProvideTickArchiver,
		ProvideTickPipeline,
		ProvideSessionManager,
		ProvideHistoryWalker,

		ProvideHandler,
		ProvideApp,
	)
	return nil, nil, nil
}
