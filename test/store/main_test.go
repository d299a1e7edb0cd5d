package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path"
	"testing"

	"github.com/eskrenkovic/numbers-party/internal/config"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/store"
	"github.com/eskrenkovic/numbers-party/internal/modules/tests"

	"github.com/eskrenkovic/migrate-go"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

var db *sql.DB

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	rootPath := "../../"

	// Optional, SKIP_INFRASTRUCTURE is read from here when present.
	_ = godotenv.Load(path.Join(rootPath, "config.local.env"))

	if err := godotenv.Load(path.Join(rootPath, "config.env")); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	f := tests.NewLocalTestFixture(tests.PostgresOptions{
		User:        "numbers",
		Password:    "numbers",
		Database:    "numbers_store",
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

	var err error
	if db, err = sql.Open("postgres", f.DatabaseURL()); err != nil {
		log.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	if err := migrate.Run(ctx, db, path.Join(rootPath, "db", "migrations")); err != nil {
		log.Fatal(err)
	}

	// Row layouts are cached lazily by tql and the tests below scan
	// from many goroutines.
	if err := store.NewPostgresStore(db).WarmScanCache(ctx); err != nil {
		log.Fatal(err)
	}

	return m.Run()
}
