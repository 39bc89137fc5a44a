// Package config provides layered configuration for the arbiter
// backend. Configuration is resolved from defaults, then base.yaml,
// then the environment-specific file, then local developer overrides,
// then environment variables, highest priority last. Invalid
// configuration fails startup; nothing is silently corrected.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"arbiter-backend/internal/domain/studio"
	appErrors "arbiter-backend/internal/errors"
)

// Environment is the deployment environment the service runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Duration wraps time.Duration so YAML files can carry values like
// "90s" or "2h".
type Duration time.Duration

// UnmarshalYAML accepts either a Go duration string or integer
// nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var nanos int64
	if err := value.Decode(&nanos); err != nil {
		return fmt.Errorf("invalid duration node: %w", err)
	}
	*d = Duration(nanos)
	return nil
}

// MarshalYAML renders the duration in Go notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full service configuration.
type Config struct {
	Environment   Environment    `yaml:"environment" validate:"required,oneof=development staging production"`
	Server        Server         `yaml:"server"`
	AWS           AWS            `yaml:"aws"`
	Upstream      Upstream       `yaml:"upstream"`
	Observability Observability  `yaml:"observability"`
	Studios       []StudioConfig `yaml:"studios" validate:"min=1,dive"`

	// LoadedFrom records which sources contributed, for startup logs.
	LoadedFrom []string `yaml:"-"`
}

// Server configures the HTTP listener.
type Server struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout     Duration `yaml:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	RequestTimeout  Duration `yaml:"request_timeout" validate:"gt=0"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// AWS configures the DynamoDB table and EventBridge bus.
type AWS struct {
	Region    string `yaml:"region" validate:"required"`
	TableName string `yaml:"table_name" validate:"required"`
	IndexName string `yaml:"index_name" validate:"required"`
	EventBus  string `yaml:"event_bus"`

	// Endpoint overrides the SDK endpoint for local stacks.
	Endpoint string `yaml:"endpoint"`
}

// Upstream configures the thread service, blob gateway and stake
// ledger clients.
type Upstream struct {
	ThreadServiceURL string   `yaml:"thread_service_url" validate:"required,url"`
	BlobGatewayURL   string   `yaml:"blob_gateway_url" validate:"required,url"`
	StakeLedgerURL   string   `yaml:"stake_ledger_url" validate:"required,url"`
	RequestTimeout   Duration `yaml:"request_timeout" validate:"gt=0"`
	Breaker          Breaker  `yaml:"breaker"`
}

// Breaker tunes the circuit breakers around the upstream clients.
type Breaker struct {
	MaxRequests      uint32   `yaml:"max_requests" validate:"min=1"`
	Interval         Duration `yaml:"interval" validate:"gt=0"`
	Timeout          Duration `yaml:"timeout" validate:"gt=0"`
	FailureThreshold float64  `yaml:"failure_threshold" validate:"gt=0,lte=1"`
	MinRequests      uint32   `yaml:"min_requests" validate:"min=1"`
}

// Observability configures logging, metrics and tracing.
type Observability struct {
	LogLevel         string  `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat        string  `yaml:"log_format" validate:"oneof=json console"`
	MetricsNamespace string  `yaml:"metrics_namespace" validate:"required"`
	ServiceName      string  `yaml:"service_name" validate:"required"`
	TracingEnabled   bool    `yaml:"tracing_enabled"`
	OTLPEndpoint     string  `yaml:"otlp_endpoint"`
	TraceSampleRate  float64 `yaml:"trace_sample_rate" validate:"gte=0,lte=1"`
}

// StudioConfig declares one studio. Weight-sum and dimension-name
// rules are enforced by the studio factory, not struct tags.
type StudioConfig struct {
	ID                string             `yaml:"id" validate:"required"`
	Name              string             `yaml:"name"`
	DimensionWeights  map[string]float64 `yaml:"dimension_weights" validate:"required,min=1"`
	CustomDimensions  []string           `yaml:"custom_dimensions"`
	MADMultiple       float64            `yaml:"mad_multiple" validate:"gte=0"`
	CommitWindow      Duration           `yaml:"commit_window" validate:"gte=0"`
	RevealWindow      Duration           `yaml:"reveal_window" validate:"gte=0"`
	MinVerifierStake  float64            `yaml:"min_verifier_stake" validate:"gte=0"`
	WorkerSplit       float64            `yaml:"worker_split" validate:"gte=0,lte=1"`
	AttributionMode   string             `yaml:"attribution_mode" validate:"omitempty,oneof=betweenness path_count"`
	RequireSignatures bool               `yaml:"require_signatures"`
}

func (s StudioConfig) params() studio.Params {
	return studio.Params{
		ID:               s.ID,
		Name:             s.Name,
		DimensionWeights: s.DimensionWeights,
		CustomDimensions: s.CustomDimensions,
		MADMultiple:      s.MADMultiple,
		CommitWindow:     s.CommitWindow.Std(),
		RevealWindow:     s.RevealWindow.Std(),
		MinVerifierStake: s.MinVerifierStake,
		AttributionMode:  s.AttributionMode,
		WorkerSplit:      s.WorkerSplit,
		RequireSignature: s.RequireSignatures,
	}
}

// Catalog builds the validated studio catalog from the configured
// studio declarations.
func (c *Config) Catalog() (*studio.Catalog, error) {
	studios := make([]*studio.Studio, 0, len(c.Studios))
	for _, sc := range c.Studios {
		st, err := studio.New(sc.params())
		if err != nil {
			return nil, err
		}
		studios = append(studios, st)
	}
	return studio.NewCatalog(studios...)
}

var structValidator = validator.New()

// Validate checks the configuration, including that every declared
// studio passes the studio factory.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			first := invalid[0]
			return appErrors.Config("CONFIG_INVALID",
				fmt.Sprintf("field %s fails rule %q", first.Namespace(), first.Tag())).
				WithCause(err).
				Build()
		}
		return appErrors.Config("CONFIG_INVALID", "configuration rejected").WithCause(err).Build()
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}
