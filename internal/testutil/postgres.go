package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgres launches a throwaway pgvector-enabled Postgres container and
// returns its connection string. Tests calling it are skipped unless
// REPLYMATE_INTEGRATION is set, so the default test run stays hermetic.
func StartPostgres(t *testing.T) string {
	t.Helper()

	if os.Getenv("REPLYMATE_INTEGRATION") == "" {
		t.Skip("set REPLYMATE_INTEGRATION=1 to run container-backed tests")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("replymate_test"),
		postgres.WithUsername("replymate"),
		postgres.WithPassword("replymate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}
	return connStr
}
