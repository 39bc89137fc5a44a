package di

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	awsDynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsEventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	appports "arbiter-backend/internal/application/ports"
	"arbiter-backend/internal/application/services"
	"arbiter-backend/internal/config"
	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/studio"
	"arbiter-backend/internal/infrastructure/messaging"
	"arbiter-backend/internal/infrastructure/messaging/eventbridge"
	"arbiter-backend/internal/infrastructure/observability"
	infradynamodb "arbiter-backend/internal/infrastructure/persistence/dynamodb"
	"arbiter-backend/internal/infrastructure/persistence/memory"
	"arbiter-backend/internal/infrastructure/transport"
	"arbiter-backend/internal/interfaces/http/rest"
	"arbiter-backend/internal/ports"
)

// Configuration providers.

func provideLoader() *config.Loader {
	return config.NewLoader(os.Getenv("CONFIG_DIR"), config.GetEnvironment())
}

func provideConfig(loader *config.Loader) (*config.Config, error) {
	return loader.Load()
}

// Cross-cutting providers.

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
}

func provideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.Observability.MetricsNamespace)
}

func provideTracing(cfg *config.Config) (*observability.TracerProvider, error) {
	return observability.InitTracing(observability.TracingConfig{
		ServiceName: cfg.Observability.ServiceName,
		Environment: string(cfg.Environment),
		Endpoint:    cfg.Observability.OTLPEndpoint,
		SampleRate:  cfg.Observability.TraceSampleRate,
		Enabled:     cfg.Observability.TracingEnabled,
	})
}

// AWS providers.

func provideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// One shared HTTP client so warm Lambda containers reuse
	// connections across both AWS clients.
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	return awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion(cfg.AWS.Region),
		awsConfig.WithHTTPClient(httpClient),
	)
}

func provideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsDynamodb.Client {
	return awsDynamodb.NewFromConfig(awsCfg, func(o *awsDynamodb.Options) {
		o.RetryMaxAttempts = 3
		o.RetryMode = aws.RetryModeAdaptive
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
}

func provideEventBridgeClient(awsCfg aws.Config, cfg *config.Config) *awsEventbridge.Client {
	return awsEventbridge.NewFromConfig(awsCfg, func(o *awsEventbridge.Options) {
		o.RetryMaxAttempts = 3
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
}

// Store providers. Development keeps everything in memory so the
// service runs without AWS; other environments use DynamoDB. Both
// variants sit behind the traced decorators.

func provideReportStore(
	cfg *config.Config,
	client *awsDynamodb.Client,
	metrics *observability.Collector,
	tracing *observability.TracerProvider,
	logger *zap.Logger,
) appports.ReportStore {
	var inner appports.ReportStore
	if cfg.Environment == config.Development {
		inner = memory.NewReportStore()
	} else {
		inner = infradynamodb.NewReportStore(client, cfg.AWS.TableName, cfg.AWS.IndexName, logger)
	}
	return observability.NewInstrumentedReportStore(inner, metrics, tracing.Tracer())
}

func provideRoundStore(
	cfg *config.Config,
	client *awsDynamodb.Client,
	metrics *observability.Collector,
	tracing *observability.TracerProvider,
	logger *zap.Logger,
) appports.RoundStore {
	var inner appports.RoundStore
	if cfg.Environment == config.Development {
		inner = memory.NewRoundStore()
	} else {
		inner = infradynamodb.NewRoundStore(client, cfg.AWS.TableName, logger)
	}
	return observability.NewInstrumentedRoundStore(inner, metrics, tracing.Tracer())
}

// Upstream providers. Thread, blob and stake lookups are remote in
// every environment; development points them at local stubs through
// the default URLs.

func provideThreadFetcher(cfg *config.Config, logger *zap.Logger) ports.ThreadFetcher {
	return transport.NewThreadClient(
		cfg.Upstream.ThreadServiceURL,
		cfg.Upstream.RequestTimeout.Std(),
		breakerFrom(cfg.Upstream.Breaker, "thread-service"),
		logger,
	)
}

func provideBlobStore(cfg *config.Config, logger *zap.Logger) ports.BlobStore {
	return transport.NewBlobClient(
		cfg.Upstream.BlobGatewayURL,
		cfg.Upstream.RequestTimeout.Std(),
		breakerFrom(cfg.Upstream.Breaker, "blob-gateway"),
		logger,
	)
}

func provideStakeRegistry(cfg *config.Config, logger *zap.Logger) ports.StakeRegistry {
	return transport.NewStakeClient(
		cfg.Upstream.StakeLedgerURL,
		cfg.Upstream.RequestTimeout.Std(),
		breakerFrom(cfg.Upstream.Breaker, "stake-ledger"),
		logger,
	)
}

func breakerFrom(b config.Breaker, name string) transport.BreakerConfig {
	return transport.BreakerConfig{
		Name:             name,
		MaxRequests:      b.MaxRequests,
		Interval:         b.Interval.Std(),
		Timeout:          b.Timeout.Std(),
		FailureThreshold: b.FailureThreshold,
		MinRequests:      b.MinRequests,
	}
}

func provideEventPublisher(
	cfg *config.Config,
	client *awsEventbridge.Client,
	metrics *observability.Collector,
	logger *zap.Logger,
) ports.EventPublisher {
	if cfg.Environment == config.Development {
		return messaging.NewLogPublisher(logger)
	}
	return eventbridge.NewPublisher(client, cfg.AWS.EventBus, metrics, logger)
}

// Domain providers.

func provideCatalog(cfg *config.Config) (*studio.Catalog, error) {
	return cfg.Catalog()
}

func provideDimensionRegistry() *analytics.Registry {
	return analytics.NewRegistry()
}

// provideSignatureOracle returns no oracle: message signatures are
// attached and verified by the agent gateway before threads reach this
// service. Studios that require signatures still flag unsigned
// messages during the audit.
func provideSignatureOracle() ports.SignatureOracle {
	return nil
}

// Application providers.

func provideAuditService(
	catalog *studio.Catalog,
	registry *analytics.Registry,
	fetcher ports.ThreadFetcher,
	blobs ports.BlobStore,
	oracle ports.SignatureOracle,
	reports appports.ReportStore,
	events ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *services.AuditService {
	return services.NewAuditService(catalog, registry, fetcher, blobs, oracle, reports, events, metrics, logger)
}

func provideSettlementService(
	catalog *studio.Catalog,
	stakes ports.StakeRegistry,
	reports appports.ReportStore,
	rounds appports.RoundStore,
	events ports.EventPublisher,
	metrics *observability.Collector,
	logger *zap.Logger,
) *services.SettlementService {
	return services.NewSettlementService(catalog, stakes, reports, rounds, events, metrics, logger)
}

// Interface providers.

func provideRouterConfig(cfg *config.Config) rest.Config {
	return rest.Config{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout.Std(),
	}
}

func provideHandler(router *rest.Router) http.Handler {
	return router.Setup()
}
