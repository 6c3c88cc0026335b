package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"prepbot/internal/app"
	"prepbot/internal/config"
	"prepbot/internal/testutils"
)

func TestBootstrap_Resilience_DBDown(t *testing.T) {
	cfg := fileConfig(t)
	cfg.StateBackend = config.BackendPostgres
	cfg.DBHost = "localhost"
	cfg.DBPort = 54322 // Random port likely closed
	cfg.DBUser = "test"
	cfg.DBPass = "test"
	cfg.DBName = "test"

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg, nil)
	duration := time.Since(start)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to ping db")
	// attempts=1, so no backoff sleep
	assert.Less(t, duration, 2*time.Second)
}

func TestBootstrap_Resilience_WeaviateDown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	// Good DB, bad weaviate
	cfg := suite.GetAppConfig()
	cfg.WeaviateHost = "localhost:54322"
	cfg.BootstrapRetryAttempts = 2
	cfg.BootstrapRetryDelaySeconds = 1

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg, nil)
	duration := time.Since(start)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "weaviate schema error")
	assert.Greater(t, duration, 1*time.Second) // At least 1 delay
}
