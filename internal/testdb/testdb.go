// Package testdb starts disposable postgres containers for repository tests.
package testdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// StartPostgres runs a postgres container with the schema applied and returns
// the container plus its connection string. The caller terminates the
// container.
func StartPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	schema, err := schemaPath()
	if err != nil {
		return nil, "", err
	}

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithInitScripts(schema),
		postgres.WithDatabase("marketplace"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start postgres: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return ctr, "", fmt.Errorf("connection string: %w", err)
	}
	return ctr, connStr, nil
}

// schemaPath walks up from the working directory to the module root, where
// migrations/schema.sql lives.
func schemaPath() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		p := filepath.Join(dir, "migrations", "schema.sql")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("migrations/schema.sql not found in any parent directory")
		}
		dir = parent
	}
}
