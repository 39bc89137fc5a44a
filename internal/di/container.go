package di

import (
	"context"
	"fmt"
	"net/http"

	awsDynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsEventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	appports "arbiter-backend/internal/application/ports"
	"arbiter-backend/internal/application/services"
	"arbiter-backend/internal/config"
	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/studio"
	"arbiter-backend/internal/infrastructure/observability"
	"arbiter-backend/internal/interfaces/http/rest"
	"arbiter-backend/internal/ports"
)

// NewContainer builds the full dependency graph by hand, composing the
// same providers the wire sets name. Development skips the AWS clients
// entirely; staging and production require them.
func NewContainer(ctx context.Context) (*Container, error) {
	loader := provideLoader()
	cfg, err := provideConfig(loader)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := provideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics := provideCollector(cfg)
	tracing, err := provideTracing(cfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	var ddbClient *awsDynamodb.Client
	var ebClient *awsEventbridge.Client
	if cfg.Environment != config.Development {
		awsCfg, err := provideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		ddbClient = provideDynamoDBClient(awsCfg, cfg)
		ebClient = provideEventBridgeClient(awsCfg, cfg)
	}

	catalog, err := provideCatalog(cfg)
	if err != nil {
		return nil, err
	}
	dimensions := provideDimensionRegistry()

	reports := provideReportStore(cfg, ddbClient, metrics, tracing, logger)
	rounds := provideRoundStore(cfg, ddbClient, metrics, tracing, logger)
	threads := provideThreadFetcher(cfg, logger)
	blobs := provideBlobStore(cfg, logger)
	stakes := provideStakeRegistry(cfg, logger)
	events := provideEventPublisher(cfg, ebClient, metrics, logger)

	audits := provideAuditService(
		catalog, dimensions, threads, blobs, provideSignatureOracle(),
		reports, events, metrics, logger)
	settlements := provideSettlementService(
		catalog, stakes, reports, rounds, events, metrics, logger)

	router := rest.NewRouter(audits, settlements, metrics, logger, provideRouterConfig(cfg))
	handler := provideHandler(router)

	c := newContainer(
		loader, cfg, logger, metrics, tracing,
		ddbClient, ebClient,
		catalog, dimensions,
		reports, rounds, threads, blobs, stakes, events,
		audits, settlements, handler)

	logger.Info("container initialized",
		zap.String("environment", string(cfg.Environment)),
		zap.Strings("config_sources", cfg.LoadedFrom),
		zap.Int("studios", len(cfg.Studios)))
	return c, nil
}

// newContainer assembles the container and registers the lifecycle
// hooks. Both the manual and the Wire path end here.
func newContainer(
	loader *config.Loader,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracing *observability.TracerProvider,
	ddbClient *awsDynamodb.Client,
	ebClient *awsEventbridge.Client,
	catalog *studio.Catalog,
	dimensions *analytics.Registry,
	reports appports.ReportStore,
	rounds appports.RoundStore,
	threads ports.ThreadFetcher,
	blobs ports.BlobStore,
	stakes ports.StakeRegistry,
	events ports.EventPublisher,
	audits *services.AuditService,
	settlements *services.SettlementService,
	handler http.Handler,
) *Container {
	c := &Container{
		Config:            cfg,
		Loader:            loader,
		Logger:            logger,
		Metrics:           metrics,
		Tracing:           tracing,
		DynamoDBClient:    ddbClient,
		EventBridgeClient: ebClient,
		Catalog:           catalog,
		Dimensions:        dimensions,
		Reports:           reports,
		Rounds:            rounds,
		Threads:           threads,
		Blobs:             blobs,
		Stakes:            stakes,
		Events:            events,
		AuditService:      audits,
		SettlementService: settlements,
		Handler:           handler,
	}

	// Reverse order on shutdown: the log is synced after everything
	// else has flushed.
	c.addShutdownFunction(func(context.Context) error {
		_ = logger.Sync()
		return nil
	})
	c.addShutdownFunction(func(ctx context.Context) error {
		return tracing.Shutdown(ctx)
	})
	return c
}

func (c *Container) addShutdownFunction(fn func(context.Context) error) {
	c.shutdownFunctions = append(c.shutdownFunctions, fn)
}

// AddShutdownFunction registers a hook to run during Shutdown, after
// the hooks the container itself registered.
func (c *Container) AddShutdownFunction(fn func(context.Context) error) {
	c.addShutdownFunction(fn)
}

// Shutdown runs the registered hooks in reverse registration order.
// Every hook runs; the first error is reported after all of them.
func (c *Container) Shutdown(ctx context.Context) error {
	var failed int
	for i := len(c.shutdownFunctions) - 1; i >= 0; i-- {
		if err := c.shutdownFunctions[i](ctx); err != nil {
			failed++
			c.Logger.Error("shutdown hook failed", zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("shutdown finished with %d failed hooks", failed)
	}
	return nil
}

// Validate checks that every dependency the request path needs is
// present. cmd calls it once before serving.
func (c *Container) Validate() error {
	if c.Config == nil {
		return fmt.Errorf("config not initialized")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger not initialized")
	}
	if c.Catalog == nil {
		return fmt.Errorf("studio catalog not initialized")
	}
	if c.Reports == nil || c.Rounds == nil {
		return fmt.Errorf("stores not initialized")
	}
	if c.AuditService == nil || c.SettlementService == nil {
		return fmt.Errorf("services not initialized")
	}
	if c.Handler == nil {
		return fmt.Errorf("http handler not initialized")
	}
	if c.Config.Environment != config.Development {
		if c.DynamoDBClient == nil {
			return fmt.Errorf("dynamodb client not initialized")
		}
		if c.EventBridgeClient == nil {
			return fmt.Errorf("eventbridge client not initialized")
		}
	}
	return nil
}
