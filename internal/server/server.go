package server

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/eskrenkovic/numbers-party/internal/config"
	"github.com/eskrenkovic/numbers-party/internal/modules/auth"
	authcommands "github.com/eskrenkovic/numbers-party/internal/modules/auth/commands"
	authdomain "github.com/eskrenkovic/numbers-party/internal/modules/auth/domain"
	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	gamesessioncommands "github.com/eskrenkovic/numbers-party/internal/modules/game-session/commands"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/engine"
	gamesessionqueries "github.com/eskrenkovic/numbers-party/internal/modules/game-session/queries"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/scheduler"
	"github.com/eskrenkovic/numbers-party/internal/modules/game-session/store"
	leaderboardqueries "github.com/eskrenkovic/numbers-party/internal/modules/leaderboard/queries"
	"github.com/eskrenkovic/numbers-party/internal/modules/notify"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/migrate-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Server interface {
	Start() error
	Stop() error
}

var _ Server = &HTTPServer{}

// HTTPServer acts as the composition root for an application.
type HTTPServer struct {
	server *http.Server
	logger *zap.Logger

	db     *sql.DB
	nc     *nats.Conn
	broker *notify.Broker

	// Background workers, started by Start and stopped by Stop.
	workers   []worker
	workerCtx context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type worker struct {
	name string
	run  func(ctx context.Context) error
}

func NewHTTPServer(config config.Config) (*HTTPServer, error) {
	baseCtx := context.Background()
	logger := config.Logger

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := migrate.Run(baseCtx, db, config.MigrationsPath); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to run migrations: %w", err), db.Close())
	}

	gameStore := store.NewPostgresStore(db)

	if err := warmScanCaches(baseCtx, db, gameStore); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	s := &HTTPServer{
		logger: logger,
		db:     db,
		broker: notify.NewBroker(notify.DefaultSubscriberBufferSize, logger.Named("broker")),
	}

	clock := clockwork.NewRealClock()

	publisher, err := s.configureNotifier(config, clock)
	if err != nil {
		return nil, errors.Join(err, s.closeResources())
	}

	gameEngine := engine.New(
		gameStore,
		publisher,
		clock,
		config.Game,
		logger.Named("engine"),
	)

	sched := scheduler.New(
		gameEngine,
		clock,
		scheduler.Config{IdlePoll: config.SchedulerIdlePoll},
		logger.Named("scheduler"),
	)
	gameEngine.SetWaker(sched)
	s.workers = append(s.workers, worker{name: "scheduler", run: sched.Run})

	tokenHasher := authdomain.NewTokenHasher(sha256.New)

	if err := registerHandlers(db, clock, tokenHasher, gameEngine, logger); err != nil {
		return nil, errors.Join(err, s.closeResources())
	}

	authenticated := auth.AuthenticationMiddleware(db, tokenHasher)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(core.CorrelationIDHTTPMiddleware)
	r.Use(core.LoggerHTTPMiddleware(logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Admin-Key", core.CorrelationIDHeader},
		ExposedHeaders: []string{core.CorrelationIDHeader},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			core.WriteResponse(w, r, http.StatusServiceUnavailable, core.ErrorResponse{Error: "database unavailable"})
			return
		}
		core.WriteOK(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/functions/v1", func(r chi.Router) {
		r.Post("/auth-login", authcommands.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Post("/auth-logout", authcommands.HandleLogout)

			r.Get("/game-current-session", gamesessionqueries.HandleGetCurrentSession)
			r.Get("/game-my-session", gamesessionqueries.HandleGetMySession)
			r.Post("/game-join-session", gamesessioncommands.HandleJoinSession)
			r.Post("/game-select-number", gamesessioncommands.HandleSelectNumber)
			r.Post("/game-leave-session", gamesessioncommands.HandleLeaveSession)

			r.Get("/game-leaderboard", leaderboardqueries.HandleGetLeaderboard)

			r.Handle("/realtime", notify.NewWebSocketHandler(s.broker, clock, notify.DefaultWebSocketConfig()))
		})

		r.With(auth.AdminKeyMiddleware(config.AdminKey)).
			Post("/game-reset-session", gamesessioncommands.HandleResetSession)
	})

	s.workerCtx, s.cancel = context.WithCancel(baseCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(config.Port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// configureNotifier picks where change events are published to and wires
// the path back into the local broker.
func (s *HTTPServer) configureNotifier(conf config.Config, clock clockwork.Clock) (notify.Publisher, error) {
	logger := s.logger.Named("notifier")

	switch conf.Notifier.Backend {
	case config.NotifierMemory:
		return s.broker, nil

	case config.NotifierPostgres:
		listenerConfig := notify.DefaultListenerConfig()
		listenerConfig.DatabaseURL = conf.DatabaseURL

		listener, err := notify.NewPostgresListener(listenerConfig, s.broker, clock, logger)
		if err != nil {
			return nil, err
		}
		s.workers = append(s.workers, worker{name: "postgres-listener", run: listener.Start})

		return notify.NewPostgresPublisher(s.db, listenerConfig.Channel), nil

	case config.NotifierNATS:
		natsConfig := notify.DefaultNATSConfig()
		natsConfig.URL = conf.Notifier.NATSURL

		var subscriber *notify.NATSSubscriber

		nc, err := notify.ConnectNATS(natsConfig, logger, func() {
			if subscriber != nil {
				subscriber.Resync()
			}
		})
		if err != nil {
			return nil, err
		}
		s.nc = nc

		subscriber = notify.NewNATSSubscriber(nc, natsConfig.SubjectPrefix, s.broker, clock, logger)
		s.workers = append(s.workers, worker{name: "nats-subscriber", run: subscriber.Start})

		return notify.NewNATSPublisher(nc, natsConfig.SubjectPrefix), nil
	}

	return nil, fmt.Errorf("unknown notifier backend '%s'", conf.Notifier.Backend)
}

// warmScanCaches runs before any request or worker so that tql's row
// layout cache is only written from one goroutine.
func warmScanCaches(ctx context.Context, db *sql.DB, gameStore *store.PostgresStore) error {
	if err := gameStore.WarmScanCache(ctx); err != nil {
		return err
	}

	if err := auth.WarmScanCache(ctx, db); err != nil {
		return err
	}

	return leaderboardqueries.WarmScanCache(ctx, db)
}

func registerHandlers(
	db *sql.DB,
	clock clockwork.Clock,
	tokenHasher *authdomain.TokenHasher,
	gameEngine *engine.Engine,
	logger *zap.Logger,
) error {
	requestLoggingBehavior := core.RequestLoggingBehavior{Logger: logger}
	handlerErrorLoggingBehavior := core.HandlerErrorLoggingBehavior{Logger: logger}
	requestValidationBehavior := core.RequestValidationBehavior{}

	mediator.RegisterPipelineBehavior(&requestLoggingBehavior)
	mediator.RegisterPipelineBehavior(&handlerErrorLoggingBehavior)
	mediator.RegisterPipelineBehavior(&requestValidationBehavior)

	// auth

	err := mediator.RegisterRequestHandler[authcommands.LoginCommand, authcommands.LoginResponse](
		authcommands.NewLoginCommandHandler(db, tokenHasher, clock),
	)
	if err != nil {
		return err
	}

	err = mediator.RegisterRequestHandler[authcommands.LogoutCommand, core.Unit](
		authcommands.NewLogoutCommandHandler(db, clock),
	)
	if err != nil {
		return err
	}

	// game-session

	err = mediator.RegisterRequestHandler[gamesessioncommands.JoinSessionCommand, gamesessioncommands.JoinSessionResponse](
		gamesessioncommands.NewJoinSessionCommandHandler(gameEngine),
	)
	if err != nil {
		return err
	}

	err = mediator.RegisterRequestHandler[gamesessioncommands.SelectNumberCommand, gamesessioncommands.SelectNumberResponse](
		gamesessioncommands.NewSelectNumberCommandHandler(gameEngine),
	)
	if err != nil {
		return err
	}

	err = mediator.RegisterRequestHandler[gamesessioncommands.LeaveSessionCommand, core.Unit](
		gamesessioncommands.NewLeaveSessionCommandHandler(gameEngine),
	)
	if err != nil {
		return err
	}

	err = mediator.RegisterRequestHandler[gamesessioncommands.ResetSessionCommand, core.Unit](
		gamesessioncommands.NewResetSessionCommandHandler(gameEngine),
	)
	if err != nil {
		return err
	}

	err = mediator.RegisterRequestHandler[gamesessionqueries.GetCurrentSessionQuery, gamesessionqueries.GetCurrentSessionResponse](
		gamesessionqueries.NewGetCurrentSessionQueryHandler(gameEngine),
	)
	if err != nil {
		return err
	}

	err = mediator.RegisterRequestHandler[gamesessionqueries.GetMySessionQuery, gamesessionqueries.GetMySessionResponse](
		gamesessionqueries.NewGetMySessionQueryHandler(gameEngine),
	)
	if err != nil {
		return err
	}

	// leaderboard

	return mediator.RegisterRequestHandler[leaderboardqueries.GetLeaderboardQuery, leaderboardqueries.GetLeaderboardResponse](
		leaderboardqueries.NewGetLeaderboardQueryHandler(db, clock),
	)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the background workers and blocks serving HTTP until Stop
// is called.
func (s *HTTPServer) Start() error {
	ctx := s.workerCtx

	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w worker) {
			defer s.wg.Done()

			if err := w.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("worker stopped", zap.String("worker", w.name), zap.Error(err))
			}
		}(w)
	}

	s.logger.Info("server listening", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)

	s.cancel()
	s.wg.Wait()

	return errors.Join(err, s.closeResources())
}

func (s *HTTPServer) closeResources() error {
	s.broker.Close()

	if s.nc != nil {
		s.nc.Close()
	}

	return s.db.Close()
}
