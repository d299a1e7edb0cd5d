package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubjectPrefix = "game.changes"

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// ConnectNATS dials the server. onReconnect runs after every successful
// reconnect.
func ConnectNATS(cfg NATSConfig, logger *zap.Logger, onReconnect func()) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("numbers-party"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
			if onReconnect != nil {
				onReconnect()
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Error("nats error", fields...)
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return nc, nil
}

func subject(prefix string, table Table) string {
	if table == "" {
		return prefix + ".resync"
	}

	return prefix + "." + strings.ReplaceAll(string(table), ".", "_")
}

var _ Publisher = (*NATSPublisher)(nil)

type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.nc.Publish(subject(p.prefix, event.Table), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NATSSubscriber relays every event under the subject prefix to the
// local dispatcher.
type NATSSubscriber struct {
	nc     *nats.Conn
	prefix string
	sink   Dispatcher
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewNATSSubscriber(
	nc *nats.Conn,
	prefix string,
	sink Dispatcher,
	clock clockwork.Clock,
	logger *zap.Logger,
) *NATSSubscriber {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	return &NATSSubscriber{nc: nc, prefix: prefix, sink: sink, clock: clock, logger: logger}
}

func (s *NATSSubscriber) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe(s.prefix+".>", func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Error("invalid event payload", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}

		s.sink.Dispatch(event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	s.logger.Info("subscribed to events", zap.String("subject", sub.Subject))

	<-ctx.Done()

	s.logger.Info("subscriber shutting down")
	return sub.Unsubscribe()
}

// Resync tells local observers to re-fetch. Wire it as the reconnect
// callback of ConnectNATS.
func (s *NATSSubscriber) Resync() {
	s.sink.Dispatch(ResyncEvent(s.clock.Now()))
}
