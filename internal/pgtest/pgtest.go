//go:build integration

// Package pgtest starts a throwaway PostgreSQL container with the schema
// applied, for integration tests.
package pgtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sungwon/newsletter-dispatch/internal/storage"
	"github.com/sungwon/newsletter-dispatch/migrations"
)

// Postgres is a running container and a pool connected to it.
type Postgres struct {
	DB        *storage.DB
	DSN       string
	container testcontainers.Container
}

// Start launches postgres:15-alpine, connects and runs the migrations.
func Start(ctx context.Context) (*Postgres, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}
	pg := &Postgres{container: container}

	host, err := container.Host(ctx)
	if err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("get container port: %w", err)
	}
	pg.DSN = fmt.Sprintf("postgres://test:test@%s:%s/test?sslmode=disable", host, port.Port())

	pg.DB, err = storage.NewDB(ctx, pg.DSN, 2, 20, 10*time.Second)
	if err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("create DB: %w", err)
	}
	if _, err := migrations.Up(ctx, pg.DB.Pool); err != nil {
		pg.Terminate(ctx)
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return pg, nil
}

// Terminate closes the pool and removes the container.
func (p *Postgres) Terminate(ctx context.Context) error {
	if p.DB != nil {
		p.DB.Close()
	}
	return p.container.Terminate(ctx)
}

// Truncate empties every table.
func (p *Postgres) Truncate(ctx context.Context) error {
	_, err := p.DB.Pool.Exec(ctx, `TRUNCATE idempotency, issue_delivery_queue, newsletter_issues, subscriptions`)
	return err
}

// AddSubscriber inserts a subscription row with the given status.
func (p *Postgres) AddSubscriber(ctx context.Context, email, status string) error {
	_, err := p.DB.Pool.Exec(ctx,
		`INSERT INTO subscriptions (id, email, name, status) VALUES ($1, $2, $3, $4)`,
		uuid.New(), email, "Reader", status)
	return err
}
