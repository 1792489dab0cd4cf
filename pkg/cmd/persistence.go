// Package cmd provides common initialization for the command-line entrypoints.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/persistence/file"
	"github.com/cascadehq/cascade/pkg/persistence/postgresql"
	"github.com/cascadehq/cascade/pkg/persistence/redis"
)

// NewPersistence creates the storage backend from the database URL scheme.
// postgres:// and redis:// select their drivers; anything else is treated as
// a filesystem path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch provider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return store
	case "redis", "rediss":
		store, err := redis.NewPersistence(ctx, databaseURL)
		if err != nil {
			panic(err)
		}

		return store
	default:
		return file.NewPersistence(databaseURL)
	}
}

func provider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
