package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
)

// NatsBus is a NATS-based event bus. Topics map directly to subjects.
type NatsBus struct {
	conn *nats.Conn
	log  *logger.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// NatsConfig holds NATS connection settings.
type NatsConfig struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// NewNatsBus connects to a NATS server.
func NewNatsBus(cfg NatsConfig, log *logger.Logger) (*NatsBus, error) {
	if cfg.URL == "" {
		return nil, errors.New(errors.CodeValidation, "nats url cannot be empty")
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithComponent("bus.nats")

	if cfg.Name == "" {
		cfg.Name = "cisi-search"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 60
	}

	conn, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to connect to nats", err)
	}

	return &NatsBus{conn: conn, log: log}, nil
}

// Publish publishes an event on the subject named by topic.
func (b *NatsBus) Publish(ctx context.Context, topic string, event Event) error {
	if b.isClosed() {
		return errors.ServiceUnavailableError("event bus")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to marshal event", err)
	}
	if err := b.conn.Publish(topic, data); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to publish to nats", err)
	}
	return nil
}

// Subscribe registers a handler for events on a subject.
func (b *NatsBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ServiceUnavailableError("event bus")
	}

	sub, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.log.WithError(err).Warn("dropping undecodable nats message", "subject", msg.Subject)
			return
		}
		if err := handler(context.Background(), event); err != nil {
			b.log.WithError(err).Warn("event handler failed", "subject", msg.Subject, "event_id", event.ID)
		}
	})
	if err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to subscribe to nats", err)
	}
	if err := b.conn.Flush(); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to flush nats subscription", err)
	}

	b.subs = append(b.subs, sub)
	return nil
}

// Close drains subscriptions and closes the connection.
func (b *NatsBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			b.log.WithError(err).Warn("failed to drain nats subscription", "subject", sub.Subject)
		}
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		b.log.WithError(err).Warn("nats flush on close failed")
	}
	b.conn.Close()
	return nil
}

func (b *NatsBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
