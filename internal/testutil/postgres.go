// Package testutil provides shared test infrastructure, chiefly a throwaway
// PostgreSQL container with the pgvector extension for store tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"tabletop-rules-rag/internal/database"
)

const embeddingDim = 4

// SetupTestDB starts a pgvector-enabled PostgreSQL container, initializes the
// library schema with a small embedding dimension, and returns a connected
// store. The cleanup function closes the store and terminates the container.
//
// Usage:
//
//	db, cleanup := testutil.SetupTestDB(t)
//	defer cleanup()
func SetupTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("rules_test"),
		postgres.WithUsername("rules_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := database.NewDB(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Initialize(ctx, embeddingDim); err != nil {
		db.Close()
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	cleanup := func() {
		db.Close()
		_ = pgContainer.Terminate(context.Background())
	}

	return db, cleanup
}

// EmbeddingDim is the vector dimension the test schema uses.
func EmbeddingDim() int { return embeddingDim }
