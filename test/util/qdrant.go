// Package util provides shared helpers for integration tests.
package util

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	// Shared endpoint for all tests in local dev
	sharedQdrantURL string
	containerOnce   sync.Once
	containerErr    error
)

// QdrantURL returns the base URL of a Qdrant instance for integration tests.
// - CI: connects to an external service via CI_QDRANT_URL
// - Local: starts a shared testcontainer (once per package)
// Tests are skipped when neither is available.
func QdrantURL(t *testing.T) string {
	if ciURL := os.Getenv("CI_QDRANT_URL"); ciURL != "" {
		t.Log("Using external Qdrant from CI_QDRANT_URL")
		return ciURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared Qdrant testcontainer for all tests")

		// testcontainers panics instead of returning an error when no
		// Docker environment is reachable; recover so the caller can skip.
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("starting qdrant container panicked: %v", r)
			}
		}()

		ctr, err := testcontainers.Run(ctx,
			"qdrant/qdrant:v1.12.4",
			testcontainers.WithExposedPorts("6333/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("Qdrant HTTP listening on 6333").
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start qdrant container: %w", err)
			return
		}

		endpoint, err := ctr.Endpoint(ctx, "http")
		if err != nil {
			containerErr = fmt.Errorf("failed to get qdrant endpoint: %w", err)
			return
		}

		sharedQdrantURL = endpoint
		t.Logf("Shared container ready: %s", sharedQdrantURL)
	})

	if containerErr != nil {
		t.Skipf("Qdrant unavailable (is Docker running?): %v", containerErr)
	}
	return sharedQdrantURL
}
