package client

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"aksara-duel-service/internal/domain"
)

// placeholderDrawing is sent for drawing questions; the server decides what it depicts.
var placeholderDrawing = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Bot plays one duel through a Client.
type Bot struct {
	client   *Client
	accuracy float64
	tick     time.Duration
	minThink float64
	maxThink float64
	clock    clockwork.Clock
	rnd      *rand.Rand
	logger   *zap.Logger
}

type BotOption func(*Bot)

// WithAccuracy sets the share of multiple choice questions answered correctly.
func WithAccuracy(a float64) BotOption {
	return func(b *Bot) { b.accuracy = a }
}

// WithTick scales the countdown wait and thinking time.
func WithTick(d time.Duration) BotOption {
	return func(b *Bot) {
		if d > 0 {
			b.tick = d
		}
	}
}

// WithThinkTime bounds the delay before each answer, in ticks.
func WithThinkTime(min, max float64) BotOption {
	return func(b *Bot) { b.minThink, b.maxThink = min, max }
}

func WithBotClock(c clockwork.Clock) BotOption {
	return func(b *Bot) { b.clock = c }
}

func WithBotRand(r *rand.Rand) BotOption {
	return func(b *Bot) { b.rnd = r }
}

func WithBotLogger(l *zap.Logger) BotOption {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBot(c *Client, opts ...BotOption) *Bot {
	b := &Bot{
		client:   c,
		accuracy: 0.75,
		tick:     time.Second,
		minThink: 2,
		maxThink: 4,
		clock:    clockwork.NewRealClock(),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Play searches for a match and answers every question, returning the final
// room state.
func (b *Bot) Play(ctx context.Context) (domain.RoomState, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan Event, 16)
	readErr := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			ev, err := b.client.Next(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := b.client.FindMatch(ctx); err != nil {
		return domain.RoomState{}, err
	}

	var (
		quiz     domain.QuizSet
		progress int
		answer   <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return domain.RoomState{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return domain.RoomState{}, <-readErr
			}
			switch ev.Type {
			case domain.MsgSearching:
				b.logger.Info("searching for opponent")
			case domain.MsgMatchFound:
				mf, err := ev.MatchFound()
				if err != nil {
					return domain.RoomState{}, err
				}
				quiz = mf.Quiz
				b.logger.Info("match found", zap.String("room", mf.RoomID), zap.Strings("players", mf.Players))
				answer = b.clock.After(time.Duration(mf.Countdown)*b.tick + b.think())
			case domain.MsgGameUpdate:
				if st, err := ev.State(); err == nil {
					b.logger.Debug("game update", zap.Int("time_left", st.TimeLeft))
				}
			case domain.MsgGameEnd:
				return ev.State()
			case domain.MsgOpponentDisconnected:
				return domain.RoomState{}, ErrOpponentLeft
			}
		case <-answer:
			answer = nil
			q, err := quiz.Question(progress)
			if err != nil {
				continue
			}
			text, drawing := b.respond(q)
			if err := b.client.Submit(ctx, progress, text, drawing); err != nil {
				return domain.RoomState{}, err
			}
			progress++
			if progress < quiz.Len() {
				answer = b.clock.After(b.think())
			}
		}
	}
}

func (b *Bot) think() time.Duration {
	units := b.minThink
	if b.maxThink > b.minThink {
		units += (b.maxThink - b.minThink) * b.rnd.Float64()
	}
	return time.Duration(units * float64(b.tick))
}

func (b *Bot) respond(q domain.Question) (string, []byte) {
	if q.Type == domain.QuestionDrawing {
		return "", placeholderDrawing
	}
	if b.rnd.Float64() < b.accuracy {
		return q.CorrectOption, nil
	}
	for _, opt := range q.Options {
		if opt != q.CorrectOption {
			return opt, nil
		}
	}
	return q.CorrectOption, nil
}
