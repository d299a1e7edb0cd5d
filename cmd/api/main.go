package main

import (
	"log"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/eskrenkovic/numbers-party/internal/config"
	"github.com/eskrenkovic/numbers-party/internal/server"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 {
		rootPath := os.Args[1]
		if rootPath == "" {
			log.Fatal("root directory path is empty")
		}

		// godotenv does not override variables that are already set.
		if err := os.Setenv(config.RootPathEnv, rootPath); err != nil {
			log.Fatal(err)
		}

		if err := godotenv.Load(path.Join(rootPath, "config.env")); err != nil {
			log.Fatal(err)
		}
	}

	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = conf.Logger.Sync() }()

	srv, err := server.NewHTTPServer(conf)
	if err != nil {
		conf.Logger.Fatal("failed to create server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		conf.Logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			conf.Logger.Error("server failed", zap.Error(err))
		}
	}

	if err := srv.Stop(); err != nil {
		conf.Logger.Error("failed to stop server", zap.Error(err))
	}
}
