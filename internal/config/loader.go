package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"arbiter-backend/internal/domain/analytics"
	"arbiter-backend/internal/domain/studio"
)

// Loader resolves configuration from the layered sources. Loading
// order, lowest to highest priority: defaults in code, base.yaml, the
// environment file, local.yaml (development only), environment
// variables.
type Loader struct {
	basePath    string
	environment Environment
	sources     []string
}

// NewLoader creates a loader rooted at basePath for the given
// environment.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	return &Loader{basePath: basePath, environment: env}
}

// Load resolves and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := defaultConfig(l.environment)
	l.sources = append(l.sources[:0], "defaults")

	if err := l.loadFile("base", cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load base config: %w", err)
	}
	envFile := strings.ToLower(string(l.environment))
	if err := l.loadFile(envFile, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s config: %w", envFile, err)
	}
	if l.environment == Development {
		if err := l.loadFile("local", cfg); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: failed to load local config: %v\n", err)
		}
	}

	applyEnvironment(cfg)
	l.sources = append(l.sources, "environment")
	cfg.LoadedFrom = append([]string(nil), l.sources...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, ext := range []string{"yaml", "yml"} {
		path := filepath.Join(l.basePath, name+"."+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		l.sources = append(l.sources, path)
		return nil
	}
	return os.ErrNotExist
}

// GetEnvironment reads the deployment environment from ARBITER_ENV,
// falling back to ENVIRONMENT, then development.
func GetEnvironment() Environment {
	for _, key := range []string{"ARBITER_ENV", "ENVIRONMENT"} {
		switch strings.ToLower(os.Getenv(key)) {
		case "production", "prod":
			return Production
		case "staging":
			return Staging
		case "development", "dev":
			return Development
		}
	}
	return Development
}

// Load resolves configuration from the conventional location. This is
// the entry point main uses.
func Load() (*Config, error) {
	basePath := os.Getenv("CONFIG_DIR")
	loader := NewLoader(basePath, GetEnvironment())
	return loader.Load()
}

// applyEnvironment overlays environment variables, the highest
// priority source.
func applyEnvironment(cfg *Config) {
	if val := os.Getenv("SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}

	if val := os.Getenv("AWS_REGION"); val != "" {
		cfg.AWS.Region = val
	}
	if val := os.Getenv("TABLE_NAME"); val != "" {
		cfg.AWS.TableName = val
	}
	if val := os.Getenv("INDEX_NAME"); val != "" {
		cfg.AWS.IndexName = val
	}
	if val := os.Getenv("EVENT_BUS_NAME"); val != "" {
		cfg.AWS.EventBus = val
	}
	if val := os.Getenv("AWS_ENDPOINT_URL"); val != "" {
		cfg.AWS.Endpoint = val
	}

	if val := os.Getenv("THREAD_SERVICE_URL"); val != "" {
		cfg.Upstream.ThreadServiceURL = val
	}
	if val := os.Getenv("BLOB_GATEWAY_URL"); val != "" {
		cfg.Upstream.BlobGatewayURL = val
	}
	if val := os.Getenv("STAKE_LEDGER_URL"); val != "" {
		cfg.Upstream.StakeLedgerURL = val
	}
	if val := os.Getenv("UPSTREAM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.Upstream.RequestTimeout = Duration(d)
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Observability.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Observability.LogFormat = val
	}
	if val := os.Getenv("METRICS_NAMESPACE"); val != "" {
		cfg.Observability.MetricsNamespace = val
	}
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		cfg.Observability.TracingEnabled, _ = strconv.ParseBool(val)
	}
	if val := os.Getenv("OTLP_ENDPOINT"); val != "" {
		cfg.Observability.OTLPEndpoint = val
	}
	if val := os.Getenv("TRACE_SAMPLE_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Observability.TraceSampleRate = rate
		}
	}
}

// defaultConfig returns the in-code defaults so the service can run
// with no files at all.
func defaultConfig(env Environment) *Config {
	weights := make(map[string]float64)
	dims := analytics.StandardDimensions()
	for _, d := range dims {
		weights[d] = 1.0 / float64(len(dims))
	}

	return &Config{
		Environment: env,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(30 * time.Second),
			CORSOrigins:     []string{"*"},
		},
		AWS: AWS{
			Region:    "us-east-1",
			TableName: "arbiter-" + strings.ToLower(string(env)),
			IndexName: "ThreadIndex",
			EventBus:  "default",
		},
		Upstream: Upstream{
			ThreadServiceURL: "http://localhost:9030",
			BlobGatewayURL:   "http://localhost:9031",
			StakeLedgerURL:   "http://localhost:9032",
			RequestTimeout:   Duration(10 * time.Second),
			Breaker: Breaker{
				MaxRequests:      5,
				Interval:         Duration(30 * time.Second),
				Timeout:          Duration(60 * time.Second),
				FailureThreshold: 0.8,
				MinRequests:      5,
			},
		},
		Observability: Observability{
			LogLevel:         "info",
			LogFormat:        "json",
			MetricsNamespace: "arbiter",
			ServiceName:      "arbiter-backend",
			TracingEnabled:   false,
			TraceSampleRate:  1.0,
		},
		Studios: []StudioConfig{
			{
				ID:               "default",
				Name:             "Default studio",
				DimensionWeights: weights,
				MADMultiple:      studio.DefaultMADMultiple,
				CommitWindow:     Duration(studio.DefaultCommitWindow),
				RevealWindow:     Duration(studio.DefaultRevealWindow),
				MinVerifierStake: 0,
				WorkerSplit:      studio.DefaultWorkerSplit,
				AttributionMode:  "betweenness",
			},
		},
	}
}
