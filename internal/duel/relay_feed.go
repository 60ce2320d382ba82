package duel

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aksara-duel-service/internal/domain"
)

// Relay events exchanged on a duel channel.
const (
	EventClientReady     = "client-ready"
	EventAnswerSubmitted = "answer-submitted"
)

// Relay is a publish/subscribe channel service.
type Relay interface {
	Publish(ctx context.Context, channel, event string, data []byte) error
	Subscribe(ctx context.Context, channel string, handler func(event string, data []byte)) (func(), error)
}

// ChannelName returns the relay channel shared by both sides of a duel.
func ChannelName(duelID string) string {
	return "private-duel-" + duelID
}

type relayEnvelope struct {
	SenderID string              `json:"senderId"`
	PlayerID string              `json:"playerId,omitempty"`
	Stats    *domain.PlayerStats `json:"stats,omitempty"`
}

// RelayFeed exchanges ready and stats events with a remote opponent over a
// relay channel. Every feed has its own sender id so it can drop its own echoes.
type RelayFeed struct {
	relay    Relay
	channel  string
	playerID string
	senderID string
	logger   *zap.Logger

	mu     sync.Mutex
	cancel func()
}

func NewRelayFeed(relay Relay, duelID, playerID string, logger *zap.Logger) *RelayFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayFeed{
		relay:    relay,
		channel:  ChannelName(duelID),
		playerID: playerID,
		senderID: uuid.NewString(),
		logger:   logger,
	}
}

func (f *RelayFeed) Start(ctx context.Context, sink Sink) error {
	cancel, err := f.relay.Subscribe(ctx, f.channel, func(event string, data []byte) {
		f.handle(sink, event, data)
	})
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
	return nil
}

func (f *RelayFeed) AnnounceReady(ctx context.Context) error {
	return f.publish(ctx, EventClientReady, relayEnvelope{SenderID: f.senderID, PlayerID: f.playerID})
}

func (f *RelayFeed) PublishStats(ctx context.Context, stats domain.PlayerStats) error {
	return f.publish(ctx, EventAnswerSubmitted, relayEnvelope{SenderID: f.senderID, PlayerID: f.playerID, Stats: &stats})
}

func (f *RelayFeed) Close() error {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (f *RelayFeed) publish(ctx context.Context, event string, env relayEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return f.relay.Publish(ctx, f.channel, event, data)
}

func (f *RelayFeed) handle(sink Sink, event string, data []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Warn("drop malformed relay event", zap.String("event", event), zap.Error(err))
		return
	}
	if env.SenderID == f.senderID {
		return
	}
	switch event {
	case EventClientReady:
		sink.OnOpponentReady()
	case EventAnswerSubmitted:
		if env.Stats == nil {
			f.logger.Warn("drop stats event without stats", zap.String("channel", f.channel))
			return
		}
		sink.ApplyOpponent(*env.Stats)
	default:
		f.logger.Debug("ignore relay event", zap.String("event", event))
	}
}
