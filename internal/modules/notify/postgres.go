package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eskrenkovic/tql"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const DefaultPostgresChannel = "game_changes"

var _ Publisher = (*PostgresPublisher)(nil)

// PostgresPublisher sends events through NOTIFY so that every instance
// listening on the channel receives them.
type PostgresPublisher struct {
	db      *sql.DB
	channel string
}

func NewPostgresPublisher(db *sql.DB, channel string) *PostgresPublisher {
	if channel == "" {
		channel = DefaultPostgresChannel
	}

	return &PostgresPublisher{db: db, channel: channel}
}

func (p *PostgresPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// NOTIFY payloads are capped at 8000 bytes. Drop the row images
	// instead of the event, observers re-fetch anyway.
	if len(payload) >= 8000 {
		event.New, event.Old = nil, nil
		if payload, err = json.Marshal(event); err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
	}

	if _, err := tql.Exec(ctx, p.db, "SELECT pg_notify($1, $2);", p.channel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify channel %s: %w", p.channel, err)
	}

	return nil
}

type ListenerConfig struct {
	DatabaseURL          string
	Channel              string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		Channel:              DefaultPostgresChannel,
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
	}
}

// PostgresListener receives NOTIFY payloads and hands them to the local
// dispatcher.
type PostgresListener struct {
	listener *pq.Listener
	sink     Dispatcher
	clock    clockwork.Clock
	cfg      ListenerConfig
	logger   *zap.Logger
}

func NewPostgresListener(
	cfg ListenerConfig,
	sink Dispatcher,
	clock clockwork.Clock,
	logger *zap.Logger,
) (*PostgresListener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnectInterval,
		cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("listener event", zap.Int("event", int(ev)), zap.Error(err))
			}
		},
	)
	if err := l.Listen(cfg.Channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	logger.Info("listening for notifications", zap.String("channel", cfg.Channel))

	return &PostgresListener{
		listener: l,
		sink:     sink,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func (l *PostgresListener) Start(ctx context.Context) error {
	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				// The connection was re-established, anything sent in
				// between is lost.
				l.sink.Dispatch(ResyncEvent(l.clock.Now()))
				continue
			}

			l.handleNotification(note.Extra)
		case <-pingTicker.Chan():
			if err := l.listener.Ping(); err != nil {
				l.logger.Error("failed to ping listener", zap.Error(err))
			}
		}
	}
}

func (l *PostgresListener) handleNotification(payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		l.logger.Error("invalid notification payload", zap.Error(err))
		return
	}

	l.sink.Dispatch(event)
}
