//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalEngine/pkg/config"
	"SignalEngine/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisCache,
		ProvideSubscriberCache,
		ProvideKeyLocker,
		ProvideClickHouseClient,
		ProvideKafkaConsumer,
		ProvideQueue,

		// Domain services
		ProvideRulesEngine,
		ProvideGenerator,
		ProvideEvaluator,
		ProvideClassifier,
		ProvideHistoryService,
		ProvideHistoryScheduler,
		ProvideHub,
		ProvideChannels,
		ProvideNotificationService,

		// Use cases
		ProvideDispatcher,
		ProvideSignalPublisher,
		ProvidePipeline,

		// Transport and application
		ProvideAPIHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
