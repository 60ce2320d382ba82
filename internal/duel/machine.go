// Package duel runs one side of a timed 1v1 quiz. Each participant owns a
// Machine; the opponent's progress arrives through an OpponentFeed.
package duel

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"aksara-duel-service/internal/domain"
	"aksara-duel-service/internal/scoring"
)

// State is the duel lifecycle as seen by one participant.
type State string

const (
	StateConnecting       State = "connecting"
	StateCountdown        State = "countdown"
	StatePlaying          State = "playing"
	StateWaitingForFinish State = "waiting_for_finish"
	StateFinished         State = "finished"
)

// DefaultCountdown is the number of ticks between the ready handshake and play.
const DefaultCountdown = 3

// Evaluator decides whether a submission answers a question.
type Evaluator interface {
	Evaluate(ctx context.Context, q domain.Question, sub domain.Submission) (domain.Evaluation, error)
}

// Sink receives opponent events. Machine implements it.
type Sink interface {
	OnOpponentReady()
	ApplyOpponent(stats domain.PlayerStats)
}

// OpponentFeed connects a Machine to its opponent.
type OpponentFeed interface {
	// Start begins delivering opponent events to sink.
	Start(ctx context.Context, sink Sink) error
	AnnounceReady(ctx context.Context) error
	PublishStats(ctx context.Context, stats domain.PlayerStats) error
	Close() error
}

// Config describes one duel.
type Config struct {
	DuelID      string
	Quiz        domain.QuizSet
	InitialTime int
	Countdown   int
	// Tick is the length of one clock unit. Defaults to one second.
	Tick time.Duration
}

// View is an immutable snapshot of a Machine.
type View struct {
	DuelID    string
	State     State
	Countdown int
	TimeLeft  int
	// Question is the next unanswered question while playing.
	Question *domain.Question
	Self     domain.PlayerStats
	Opponent domain.PlayerStats
	// Result is set once finished; First is the local player.
	Result *scoring.Result
}

// Machine is the per-participant duel state machine.
type Machine struct {
	cfg       Config
	feed      OpponentFeed
	evaluator Evaluator
	clock     clockwork.Clock
	logger    *zap.Logger
	onChange  func(View)

	mu            sync.Mutex
	state         State
	started       bool
	closed        bool
	opponentReady bool
	countdown     int
	timeLeft      int
	self          domain.PlayerStats
	opponent      domain.PlayerStats
	result        *scoring.Result
	ticker        clockwork.Ticker
	stopTicks     chan struct{}
}

// Option configures a Machine.
type Option func(*Machine)

func WithClock(c clockwork.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithOnChange registers a hook called with a fresh View after every transition.
func WithOnChange(fn func(View)) Option {
	return func(m *Machine) { m.onChange = fn }
}

func NewMachine(cfg Config, feed OpponentFeed, evaluator Evaluator, opts ...Option) *Machine {
	if cfg.InitialTime <= 0 {
		cfg.InitialTime = scoring.DefaultInitialTime
	}
	if cfg.Countdown < 0 {
		cfg.Countdown = 0
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	m := &Machine{
		cfg:       cfg,
		feed:      feed,
		evaluator: evaluator,
		clock:     clockwork.NewRealClock(),
		logger:    zap.NewNop(),
		state:     StateConnecting,
		countdown: cfg.Countdown,
		timeLeft:  cfg.InitialTime,
		self:      domain.NewPlayerStats(),
		opponent:  domain.NewPlayerStats(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the feed and announces readiness.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return domain.ErrInvalidState
	}
	m.started = true
	m.mu.Unlock()

	if err := m.feed.Start(ctx, m); err != nil {
		return err
	}
	m.logger.Debug("duel ready announced", zap.String("duel_id", m.cfg.DuelID))
	return m.feed.AnnounceReady(ctx)
}

// OnOpponentReady starts the countdown on the first ready from the opponent
// and acknowledges it once so a late subscriber learns we are present.
func (m *Machine) OnOpponentReady() {
	m.mu.Lock()
	if m.closed || m.opponentReady {
		m.mu.Unlock()
		return
	}
	m.opponentReady = true
	if m.state == StateConnecting {
		m.beginCountdownLocked()
	}
	v := m.viewLocked()
	m.mu.Unlock()

	if err := m.feed.AnnounceReady(context.Background()); err != nil {
		m.logger.Warn("acknowledge ready", zap.String("duel_id", m.cfg.DuelID), zap.Error(err))
	}
	m.notify(v)
}

// clampStats bounds a remote snapshot to the quiz so counters stay consistent.
func clampStats(s *domain.PlayerStats, total int) {
	if s.Progress > total {
		s.Progress = total
	}
	if s.Progress < 0 {
		s.Progress = 0
	}
	if s.Correct < 0 {
		s.Correct = 0
	}
	if s.Incorrect < 0 {
		s.Incorrect = 0
	}
	if s.Correct > s.Progress {
		s.Correct = s.Progress
	}
	if s.Correct+s.Incorrect > s.Progress {
		s.Incorrect = s.Progress - s.Correct
	}
	if s.Score > s.Correct {
		s.Score = s.Correct
	}
	if s.Score < 0 {
		s.Score = 0
	}
}

// ApplyOpponent replaces the opponent snapshot with the latest one received.
func (m *Machine) ApplyOpponent(stats domain.PlayerStats) {
	m.mu.Lock()
	if m.closed || m.state == StateFinished {
		m.mu.Unlock()
		return
	}
	stats = stats.Clone()
	clampStats(&stats, m.cfg.Quiz.Len())
	m.opponent = stats
	if m.state == StateWaitingForFinish && m.opponent.Finished(m.cfg.Quiz.Len()) {
		m.finishLocked()
	}
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
}

// Submit answers the current question. On any error the question stays
// unanswered and may be submitted again.
func (m *Machine) Submit(ctx context.Context, sub domain.Submission) error {
	m.mu.Lock()
	q, err := m.acceptLocked()
	progress := m.self.Progress
	m.mu.Unlock()
	if err != nil {
		return err
	}

	sub.QuestionIndex = progress
	eval, err := m.evaluator.Evaluate(ctx, q, sub)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, err := m.acceptLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.self.Progress != progress {
		m.mu.Unlock()
		return domain.ErrOutOfOrder
	}
	total := m.cfg.Quiz.Len()
	m.self.Record(eval, q.Type == domain.QuestionDrawing, total, m.timeLeft)
	if m.self.Finished(total) {
		if m.opponent.Finished(total) {
			m.finishLocked()
		} else {
			m.state = StateWaitingForFinish
		}
	}
	stats := m.self.Clone()
	v := m.viewLocked()
	m.mu.Unlock()

	if err := m.feed.PublishStats(ctx, stats); err != nil {
		m.logger.Warn("publish stats", zap.String("duel_id", m.cfg.DuelID), zap.Error(err))
	}
	m.notify(v)
	return nil
}

// View returns the current snapshot.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Close stops the clock and the feed. It is safe to call more than once.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopTickerLocked()
	m.mu.Unlock()
	return m.feed.Close()
}

func (m *Machine) acceptLocked() (domain.Question, error) {
	if m.closed || m.state != StatePlaying {
		return domain.Question{}, domain.ErrInvalidState
	}
	if m.timeLeft <= 0 {
		return domain.Question{}, domain.ErrTimeExpired
	}
	if m.self.Finished(m.cfg.Quiz.Len()) {
		return domain.Question{}, domain.ErrQuizComplete
	}
	return m.cfg.Quiz.Question(m.self.Progress)
}

func (m *Machine) beginCountdownLocked() {
	m.state = StateCountdown
	m.countdown = m.cfg.Countdown
	if m.countdown == 0 {
		m.state = StatePlaying
	}
	m.ticker = m.clock.NewTicker(m.cfg.Tick)
	m.stopTicks = make(chan struct{})
	go m.run(m.ticker, m.stopTicks)
}

func (m *Machine) run(t clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			m.tick()
		}
	}
}

func (m *Machine) tick() {
	m.mu.Lock()
	switch m.state {
	case StateCountdown:
		m.countdown--
		if m.countdown <= 0 {
			m.countdown = 0
			m.state = StatePlaying
		}
	case StatePlaying, StateWaitingForFinish:
		m.timeLeft--
		if m.timeLeft <= 0 {
			m.timeLeft = 0
			m.finishLocked()
		}
	default:
		m.mu.Unlock()
		return
	}
	v := m.viewLocked()
	m.mu.Unlock()
	m.notify(v)
}

func (m *Machine) finishLocked() {
	m.state = StateFinished
	res := scoring.Compare(m.self, m.opponent, m.cfg.InitialTime)
	m.result = &res
	m.stopTickerLocked()
	m.logger.Info("duel finished",
		zap.String("duel_id", m.cfg.DuelID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int64("self_score", res.FirstRounded),
		zap.Int64("opponent_score", res.SecondRounded),
	)
}

func (m *Machine) stopTickerLocked() {
	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.stopTicks)
	m.ticker = nil
}

func (m *Machine) viewLocked() View {
	v := View{
		DuelID:    m.cfg.DuelID,
		State:     m.state,
		Countdown: m.countdown,
		TimeLeft:  m.timeLeft,
		Self:      m.self.Clone(),
		Opponent:  m.opponent.Clone(),
	}
	if m.state == StatePlaying {
		if q, err := m.cfg.Quiz.Question(m.self.Progress); err == nil {
			v.Question = &q
		}
	}
	if m.result != nil {
		res := *m.result
		v.Result = &res
	}
	return v
}

func (m *Machine) notify(v View) {
	if m.onChange != nil {
		m.onChange(v)
	}
}
