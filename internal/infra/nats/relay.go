package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	maxReconnects = 10
	reconnectWait = 2 * time.Second
)

// Relay publishes duel channel events as NATS subjects
// <prefix>.<channel>.<event>.
type Relay struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// Connect dials NATS with reconnect handling.
func Connect(url, prefix string, logger *zap.Logger) (*Relay, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name("aksara-duel-service"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("nats error", zap.Error(err))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewRelay(nc, prefix, logger), nil
}

// NewRelay wraps an existing connection.
func NewRelay(nc *nats.Conn, prefix string, logger *zap.Logger) *Relay {
	if prefix == "" {
		prefix = "duel"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{nc: nc, prefix: prefix, logger: logger}
}

func (r *Relay) Publish(_ context.Context, channel, event string, data []byte) error {
	if err := validToken(channel); err != nil {
		return err
	}
	if err := validToken(event); err != nil {
		return err
	}
	if err := r.nc.Publish(r.subject(channel, event), data); err != nil {
		return fmt.Errorf("publish %s/%s: %w", channel, event, err)
	}
	return nil
}

func (r *Relay) Subscribe(_ context.Context, channel string, handler func(event string, data []byte)) (func(), error) {
	if err := validToken(channel); err != nil {
		return nil, err
	}
	prefix := r.subject(channel, "")
	sub, err := r.nc.Subscribe(prefix+"*", func(msg *nats.Msg) {
		handler(strings.TrimPrefix(msg.Subject, prefix), msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			r.logger.Debug("nats unsubscribe", zap.String("channel", channel), zap.Error(err))
		}
	}, nil
}

// Close drains pending messages and closes the connection.
func (r *Relay) Close() error {
	return r.nc.Drain()
}

func (r *Relay) subject(channel, event string) string {
	return r.prefix + "." + channel + "." + event
}

func validToken(s string) error {
	if s == "" || strings.ContainsAny(s, ".*> \t") {
		return fmt.Errorf("invalid relay subject token %q", s)
	}
	return nil
}
