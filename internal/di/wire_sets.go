package di

import (
	"github.com/google/wire"

	"arbiter-backend/internal/interfaces/http/rest"
)

// SuperSet combines the provider sets for the complete application.
// NewContainer composes the same providers by hand; the sets document
// the layering and let Wire regenerate the graph if that ever becomes
// worthwhile.
var SuperSet = wire.NewSet(
	ConfigProviders,
	InfrastructureProviders,
	DomainProviders,
	ApplicationProviders,
	InterfaceProviders,
	newContainer,
)

// ConfigProviders resolves configuration and the cross-cutting
// concerns every other layer needs.
var ConfigProviders = wire.NewSet(
	provideLoader,
	provideConfig,
	provideLogger,
	provideCollector,
	provideTracing,
)

// InfrastructureProviders builds the AWS clients and every
// implementation behind the ports.
var InfrastructureProviders = wire.NewSet(
	provideAWSConfig,
	provideDynamoDBClient,
	provideEventBridgeClient,

	provideReportStore,
	provideRoundStore,
	provideThreadFetcher,
	provideBlobStore,
	provideStakeRegistry,
	provideEventPublisher,
)

// DomainProviders builds the studio catalog and scoring setup.
var DomainProviders = wire.NewSet(
	provideCatalog,
	provideDimensionRegistry,
	provideSignatureOracle,
)

// ApplicationProviders builds the use-case services.
var ApplicationProviders = wire.NewSet(
	provideAuditService,
	provideSettlementService,
)

// InterfaceProviders builds the HTTP surface.
var InterfaceProviders = wire.NewSet(
	provideRouterConfig,
	rest.NewRouter,
	provideHandler,
)
