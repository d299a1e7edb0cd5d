package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"testing"
	"time"

	"github.com/eskrenkovic/numbers-party/internal/config"
	"github.com/eskrenkovic/numbers-party/internal/modules/tests"
	"github.com/eskrenkovic/numbers-party/internal/server"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	testPort     = 18080
	testAdminKey = "integration-admin-key"
)

type IntegrationTestFixture struct {
	client  *http.Client
	baseURL string
	db      *sql.DB
}

var fixture = IntegrationTestFixture{}

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	rootPath := "../../"
	if err := os.Setenv(config.RootPathEnv, rootPath); err != nil {
		log.Fatal(err)
	}

	localConfigPath := path.Join(rootPath, "config.local.env")
	if _, err := os.Stat(localConfigPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := os.WriteFile(localConfigPath, []byte("SKIP_INFRASTRUCTURE=false"), 0o600); err != nil {
				log.Fatal(err)
			}
		}
	}

	if err := godotenv.Load(localConfigPath); err != nil {
		log.Fatal(err)
	}

	if err := godotenv.Load(path.Join(rootPath, "config.env")); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	f := tests.NewLocalTestFixture(tests.PostgresOptions{
		User:        "numbers",
		Password:    "numbers",
		Database:    "numbers",
		ExistingURL: os.Getenv(config.DatabaseUrlEnv),
	})

	if err := f.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := f.Stop(ctx); err != nil {
			log.Println(err)
		}
	}()

	testEnv := map[string]string{
		config.DatabaseUrlEnv:     f.DatabaseURL(),
		config.PortEnv:            strconv.Itoa(testPort),
		config.GameConfigPathEnv:  "game.yaml",
		config.AdminKeyEnv:        testAdminKey,
		config.NotifierBackendEnv: string(config.NotifierPostgres),
	}
	for k, v := range testEnv {
		if err := os.Setenv(k, v); err != nil {
			log.Fatal(err)
		}
	}

	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	conf.Logger = zap.NewNop()

	if err := initFixture(conf); err != nil {
		log.Fatal(err)
	}
	defer func() { _ = fixture.db.Close() }()

	srv, err := server.NewHTTPServer(conf)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal(err)
		}
	}()
	defer func() {
		if err := srv.Stop(); err != nil {
			log.Println(err)
		}
	}()

	if err := waitHealthy(ctx, 30*time.Second); err != nil {
		log.Fatal(err)
	}

	return m.Run()
}

func initFixture(config config.Config) error {
	fixture.client = &http.Client{Timeout: 10 * time.Second}

	u := url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", "localhost", config.Port),
	}
	fixture.baseURL = u.String()

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return err
	}

	fixture.db = db

	return nil
}

func waitHealthy(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fixture.baseURL+"/health", nil)
		if err != nil {
			return err
		}

		if resp, err := fixture.client.Do(req); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("server did not become healthy: %w", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}
