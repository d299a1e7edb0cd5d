package tests

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	SkipInfrastructureEnv = "SKIP_INFRASTRUCTURE"

	postgresImage = "postgres:16-alpine"
	postgresPort  = nat.Port("5432/tcp")
)

type PostgresOptions struct {
	User     string
	Password string
	Database string
	// ExistingURL is used as is when SKIP_INFRASTRUCTURE is set.
	ExistingURL string
}

// LocalTestFixture owns the throwaway infrastructure of an integration
// test run.
type LocalTestFixture struct {
	container   testcontainers.Container
	opts        PostgresOptions
	databaseURL string
}

func NewLocalTestFixture(opts PostgresOptions) *LocalTestFixture {
	return &LocalTestFixture{opts: opts}
}

func skipInfrastructure() bool {
	return os.Getenv(SkipInfrastructureEnv) == "true"
}

func (f *LocalTestFixture) Start(ctx context.Context) error {
	if skipInfrastructure() {
		if f.opts.ExistingURL == "" {
			return fmt.Errorf("%s is set but no database url was provided", SkipInfrastructureEnv)
		}
		f.databaseURL = f.opts.ExistingURL
		return nil
	}

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{string(postgresPort)},
		Env: map[string]string{
			"POSTGRES_USER":     f.opts.User,
			"POSTGRES_PASSWORD": f.opts.Password,
			"POSTGRES_DB":       f.opts.Database,
		},
		WaitingFor: wait.ForSQL(postgresPort, "postgres", func(host string, port nat.Port) string {
			return f.connectionString(host, port)
		}).WithStartupTimeout(time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}
	f.container = container

	host, err := container.Host(ctx)
	if err != nil {
		return err
	}

	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		return err
	}

	f.databaseURL = f.connectionString(host, port)

	return nil
}

func (f *LocalTestFixture) DatabaseURL() string {
	return f.databaseURL
}

func (f *LocalTestFixture) Stop(ctx context.Context) error {
	if skipInfrastructure() || f.container == nil {
		return nil
	}

	return f.container.Terminate(ctx)
}

func (f *LocalTestFixture) connectionString(host string, port nat.Port) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(f.opts.User, f.opts.Password),
		Host:     fmt.Sprintf("%s:%s", host, port.Port()),
		Path:     f.opts.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
