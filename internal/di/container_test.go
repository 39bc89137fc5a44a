package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbiter-backend/internal/config"
	"arbiter-backend/internal/infrastructure/messaging"
	appErrors "arbiter-backend/internal/errors"
)

func developmentContainer(t *testing.T) *Container {
	t.Helper()
	t.Setenv("ARBITER_ENV", "development")
	t.Setenv("CONFIG_DIR", t.TempDir())

	container, err := NewContainer(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Shutdown(context.Background()))
	})
	return container
}

func TestNewContainer_DevelopmentBootsWithoutAWS(t *testing.T) {
	container := developmentContainer(t)
	require.NoError(t, container.Validate())

	assert.Nil(t, container.DynamoDBClient)
	assert.Nil(t, container.EventBridgeClient)
	assert.IsType(t, &messaging.LogPublisher{}, container.Events)

	_, err := container.Catalog.Get("default")
	assert.NoError(t, err)
}

func TestNewContainer_ServesHealthEndpoint(t *testing.T) {
	container := developmentContainer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	container.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "arbiter-backend", body["service"])
}

func TestNewContainer_RejectsInvalidConfiguration(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARBITER_ENV", "development")
	t.Setenv("CONFIG_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"),
		[]byte("server:\n  port: -1\n"), 0o644))

	_, err := NewContainer(context.Background())
	require.Error(t, err)
	assert.Equal(t, "CONFIG_INVALID", appErrors.CodeOf(err))
}

func TestContainer_ValidateFlagsMissingAWSClients(t *testing.T) {
	container := developmentContainer(t)
	require.NoError(t, container.Validate())

	// The same graph is incomplete for staging, which needs AWS.
	container.Config.Environment = config.Staging
	err := container.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "dynamodb client")
}
