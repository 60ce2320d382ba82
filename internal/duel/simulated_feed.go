package duel

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"aksara-duel-service/internal/domain"
	"aksara-duel-service/internal/scoring"
)

// SimulatedFeed plays a local opponent. It answers each question after a
// thinking delay, gets multiple choice right three times out of four and
// always passes drawings with confidence in [0.75, 1).
type SimulatedFeed struct {
	quiz        domain.QuizSet
	initialTime int
	countdown   int
	tick        time.Duration
	clock       clockwork.Clock

	mu      sync.Mutex
	rnd     *rand.Rand
	sink    Sink
	stats   domain.PlayerStats
	readyAt time.Time
	ready   bool
	timer   clockwork.Timer
	closed  bool
}

// SimulatedOption configures a SimulatedFeed.
type SimulatedOption func(*SimulatedFeed)

func WithSimulatedClock(c clockwork.Clock) SimulatedOption {
	return func(f *SimulatedFeed) { f.clock = c }
}

func WithSimulatedRand(r *rand.Rand) SimulatedOption {
	return func(f *SimulatedFeed) { f.rnd = r }
}

// NewSimulatedFeed builds an opponent for the duel described by cfg.
func NewSimulatedFeed(cfg Config, opts ...SimulatedOption) *SimulatedFeed {
	if cfg.InitialTime <= 0 {
		cfg.InitialTime = scoring.DefaultInitialTime
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	f := &SimulatedFeed{
		quiz:        cfg.Quiz,
		initialTime: cfg.InitialTime,
		countdown:   cfg.Countdown,
		tick:        cfg.Tick,
		clock:       clockwork.NewRealClock(),
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:       domain.NewPlayerStats(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *SimulatedFeed) Start(_ context.Context, sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
	return nil
}

// AnnounceReady answers the handshake immediately and schedules the first
// answer for after the countdown.
func (f *SimulatedFeed) AnnounceReady(_ context.Context) error {
	f.mu.Lock()
	if f.ready || f.closed || f.sink == nil {
		f.mu.Unlock()
		return nil
	}
	f.ready = true
	f.readyAt = f.clock.Now()
	sink := f.sink
	f.scheduleLocked(f.units(float64(f.countdown)))
	f.mu.Unlock()

	sink.OnOpponentReady()
	return nil
}

// PublishStats is a no-op; the simulated opponent ignores the local player.
func (f *SimulatedFeed) PublishStats(context.Context, domain.PlayerStats) error {
	return nil
}

func (f *SimulatedFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	return nil
}

func (f *SimulatedFeed) scheduleLocked(delay time.Duration) {
	q, err := f.quiz.Question(f.stats.Progress)
	if err != nil {
		return
	}
	think := 2 + 2*f.rnd.Float64()
	if q.Type == domain.QuestionDrawing {
		think = 4 + 3*f.rnd.Float64()
	}
	f.timer = f.clock.AfterFunc(delay+f.units(think), f.answer)
}

func (f *SimulatedFeed) answer() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	q, err := f.quiz.Question(f.stats.Progress)
	if err != nil {
		f.mu.Unlock()
		return
	}
	left := f.timeLeftLocked()
	if left == 0 {
		f.mu.Unlock()
		return
	}

	var eval domain.Evaluation
	if q.Type == domain.QuestionDrawing {
		eval = domain.Evaluation{Correct: true, Confidence: 0.75 + 0.25*f.rnd.Float64()}
	} else {
		eval = domain.Evaluation{Correct: f.rnd.Float64() > 0.25}
	}
	f.stats.Record(eval, q.Type == domain.QuestionDrawing, f.quiz.Len(), left)
	stats := f.stats.Clone()
	f.timer = nil
	f.scheduleLocked(f.units(1.5))
	sink := f.sink
	f.mu.Unlock()

	sink.ApplyOpponent(stats)
}

// timeLeftLocked mirrors the shared clock the local machine runs.
func (f *SimulatedFeed) timeLeftLocked() int {
	startsAt := f.readyAt.Add(time.Duration(f.countdown) * f.tick)
	elapsed := int(f.clock.Since(startsAt) / f.tick)
	if elapsed < 0 {
		elapsed = 0
	}
	left := f.initialTime - elapsed
	if left < 0 {
		return 0
	}
	return left
}

func (f *SimulatedFeed) units(n float64) time.Duration {
	return time.Duration(n * float64(f.tick))
}
