package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepbot/internal/app"
	"prepbot/internal/testutils"
)

func TestBootstrap_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.GetAppConfig()

	deps, err := app.Bootstrap(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer deps.Close()
	require.NotNil(t, deps.DB)

	// Verify migration
	for _, table := range []string{"chunks", "processed_files", "failed_jobs", "settings"} {
		var exists bool
		err = deps.DB.QueryRow("SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	// Weaviate class exists and is empty
	n, err := deps.Index.Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	// Verify NSQ
	require.NotNil(t, deps.NSQProducer)
	assert.NoError(t, deps.NSQProducer.Ping())
}
