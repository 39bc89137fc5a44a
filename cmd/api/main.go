// Package main is the arbiter backend entrypoint. The same binary
// serves a local HTTP listener during development and the API Gateway
// proxy integration when it runs inside AWS Lambda.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"arbiter-backend/internal/config"
	"arbiter-backend/internal/di"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	container, err := di.NewContainer(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	if err := container.Validate(); err != nil {
		log.Fatalf("Dependency graph incomplete: %v", err)
	}
	container.Logger.Info("dependencies ready",
		zap.Duration("startup", time.Since(start)))

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		runLambda(container)
		return
	}
	runServer(ctx, container)
}

// runLambda serves the router through the API Gateway V2 proxy. The
// container is built once per cold start and survives across
// invocations while Lambda keeps the process warm.
func runLambda(container *di.Container) {
	mux, ok := container.Handler.(*chi.Mux)
	if !ok {
		log.Fatal("Handler is not a chi mux")
	}
	adapter := chiadapter.NewV2(mux)

	coldStart := true
	handler := func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		resp, err := adapter.ProxyWithContextV2(ctx, req)
		if resp.Headers == nil {
			resp.Headers = make(map[string]string)
		}
		resp.Headers["X-Cold-Start"] = strconv.FormatBool(coldStart)
		coldStart = false
		if id := req.RequestContext.RequestID; id != "" {
			resp.Headers["X-Request-ID"] = id
		}
		return resp, err
	}

	container.Logger.Info("starting lambda handler")
	lambda.Start(handler)
}

// runServer runs the local HTTP listener with configuration hot reload
// and signal driven shutdown.
func runServer(ctx context.Context, container *di.Container) {
	cfg := container.Config

	watcher, err := config.NewWatcher(container.Loader, cfg, container.Logger)
	if err != nil {
		container.Logger.Warn("config hot reload unavailable", zap.Error(err))
	} else {
		watcher.OnChange(func(next *config.Config) {
			// Wiring is fixed at boot, so reloaded values only take
			// effect after a restart.
			container.Logger.Warn("configuration changed on disk, restart to apply",
				zap.Strings("sources", next.LoadedFrom))
		})
		defer watcher.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      container.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	go func() {
		container.Logger.Info("starting server",
			zap.String("address", srv.Addr),
			zap.String("environment", string(cfg.Environment)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			container.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout.Std())
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("server shutdown error", zap.Error(err))
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		log.Printf("Cleanup finished with errors: %v", err)
	}

	log.Println("Server stopped")
}
