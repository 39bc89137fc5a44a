// Package di composes the service's dependency graph. Provider
// functions live in providers.go and are grouped into wire sets in
// wire_sets.go; NewContainer composes the same providers by hand, so
// the build does not depend on generated code.
package di

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	appports "arbiter-backend/internal/application/ports"
	"arbiter-backend/internal/application/services"
	"arbiter-backend/internal/config"
	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/studio"
	"arbiter-backend/internal/infrastructure/observability"
	"arbiter-backend/internal/ports"
)

// Container holds the composed application with lifecycle management.
type Container struct {
	// Configuration
	Config *config.Config
	Loader *config.Loader

	// Cross-cutting concerns
	Logger  *zap.Logger
	Metrics *observability.Collector
	Tracing *observability.TracerProvider

	// AWS clients. Nil in development, where persistence is in memory
	// and events go to the log publisher.
	DynamoDBClient    *dynamodb.Client
	EventBridgeClient *eventbridge.Client

	// Domain setup
	Catalog    *studio.Catalog
	Dimensions *analytics.Registry

	// Infrastructure behind the ports
	Reports appports.ReportStore
	Rounds  appports.RoundStore
	Threads ports.ThreadFetcher
	Blobs   ports.BlobStore
	Stakes  ports.StakeRegistry
	Events  ports.EventPublisher

	// Application services
	AuditService      *services.AuditService
	SettlementService *services.SettlementService

	// HTTP surface
	Handler http.Handler

	shutdownFunctions []func(context.Context) error
}
