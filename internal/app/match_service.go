package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"aksara-duel-service/internal/domain"
	"aksara-duel-service/internal/scoring"
)

// Peer is a connected client the service can push messages to. Send must not
// block; it reports false when the message was dropped.
type Peer interface {
	ID() string
	Send(msg domain.Message) bool
}

// RoomRepository abstracts where live rooms are kept (in-memory, Redis, etc).
type RoomRepository interface {
	Save(ctx context.Context, room *Room)
	Get(roomID string) (*Room, bool)
	Delete(ctx context.Context, roomID string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizSet, error)
}

// Evaluator decides whether a submission answers a question.
type Evaluator interface {
	Evaluate(ctx context.Context, q domain.Question, sub domain.Submission) (domain.Evaluation, error)
}

// ResultRecorder persists finished duels.
type ResultRecorder interface {
	Record(ctx context.Context, rec domain.DuelRecord) error
}

// MatchConfig holds the duel parameters announced in match_found.
type MatchConfig struct {
	QuizID      string
	InitialTime int
	Countdown   int
	// Tick is the length of one clock unit. Defaults to one second.
	Tick time.Duration
	// Grace is added to the room deadline so answers sent at timeLeft=1 still land.
	Grace   time.Duration
	Shuffle bool
}

// MatchService pairs peers and relays duel progress between them.
type MatchService struct {
	mu        sync.Mutex
	waiting   Peer
	peerRooms map[string]string

	rooms     RoomRepository
	quizzes   QuizRepository
	evaluator Evaluator
	recorder  ResultRecorder

	cfg    MatchConfig
	clock  clockwork.Clock
	logger *zap.Logger
	rnd    *rand.Rand
	newID  func() string
}

// Option configures a MatchService.
type Option func(*MatchService)

// WithClock swaps the clock; tests pass a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(s *MatchService) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *MatchService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRecorder(r ResultRecorder) Option {
	return func(s *MatchService) { s.recorder = r }
}

func WithRand(r *rand.Rand) Option {
	return func(s *MatchService) { s.rnd = r }
}

// WithIDGenerator overrides room id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *MatchService) { s.newID = fn }
}

func NewMatchService(rooms RoomRepository, quizzes QuizRepository, evaluator Evaluator, cfg MatchConfig, opts ...Option) *MatchService {
	if cfg.InitialTime <= 0 {
		cfg.InitialTime = scoring.DefaultInitialTime
	}
	if cfg.Countdown < 0 {
		cfg.Countdown = 0
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	s := &MatchService{
		peerRooms: make(map[string]string),
		rooms:     rooms,
		quizzes:   quizzes,
		evaluator: evaluator,
		cfg:       cfg,
		clock:     clockwork.NewRealClock(),
		logger:    zap.NewNop(),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		newID:     func() string { return "room-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindMatch queues the peer or pairs it with the waiting one. A peer that
// cannot be paired because the quiz failed to load keeps waiting.
func (s *MatchService) FindMatch(ctx context.Context, p Peer) error {
	s.mu.Lock()
	pairing, err := s.queueLocked(p)
	s.mu.Unlock()
	if err != nil || !pairing {
		return err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, s.cfg.QuizID)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The queue may have changed while the quiz was loading.
	pairing, qerr := s.queueLocked(p)
	if qerr != nil || !pairing {
		return qerr
	}
	if err != nil {
		p.Send(domain.Message{Type: domain.MsgSearching})
		s.logger.Warn("quiz load failed, peer kept searching", zap.String("peer", p.ID()), zap.Error(err))
		return err
	}
	if s.cfg.Shuffle {
		quiz = quiz.Shuffled(s.rnd)
	}

	first := s.waiting
	s.waiting = nil

	now := s.clock.Now()
	startsAt := now.Add(time.Duration(s.cfg.Countdown) * s.cfg.Tick)
	room := newRoom(s.newID(), quiz, first, p, s.cfg.InitialTime, s.cfg.Tick, startsAt, s.clock.Now)
	roomID := room.id
	room.deadline = s.clock.AfterFunc(
		time.Duration(s.cfg.Countdown+s.cfg.InitialTime)*s.cfg.Tick+s.cfg.Grace,
		func() { s.expire(roomID) },
	)

	s.rooms.Save(ctx, room)
	s.peerRooms[first.ID()] = roomID
	s.peerRooms[p.ID()] = roomID

	room.broadcast(domain.Message{Type: domain.MsgMatchFound, Payload: domain.MatchFound{
		RoomID:      roomID,
		Players:     []string{first.ID(), p.ID()},
		Quiz:        quiz,
		InitialTime: s.cfg.InitialTime,
		Countdown:   s.cfg.Countdown,
	}})
	s.logger.Info("match found",
		zap.String("room", roomID),
		zap.String("first", first.ID()),
		zap.String("second", p.ID()),
		zap.Int("questions", quiz.Len()),
	)
	return nil
}

// queueLocked reports whether p can be paired with the waiting peer. Otherwise
// p either becomes the waiting peer or is rejected as already matched.
func (s *MatchService) queueLocked(p Peer) (bool, error) {
	if roomID, ok := s.peerRooms[p.ID()]; ok {
		s.logger.Debug("find_match from matched peer", zap.String("peer", p.ID()), zap.String("room", roomID))
		return false, domain.ErrAlreadyMatched
	}
	if s.waiting == nil || s.waiting.ID() == p.ID() {
		s.waiting = p
		p.Send(domain.Message{Type: domain.MsgSearching})
		s.logger.Debug("peer waiting", zap.String("peer", p.ID()))
		return false, nil
	}
	return true, nil
}

// SubmitAnswer evaluates an answer from a matched peer and broadcasts the new
// room state. Evaluation runs without holding the service lock.
func (s *MatchService) SubmitAnswer(ctx context.Context, peerID string, sub domain.Submission) error {
	s.mu.Lock()
	room, question, err := s.acceptLocked(peerID, sub)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	eval, err := s.evaluator.Evaluate(ctx, question, sub)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The room may have ended or the answer may have been duplicated while evaluating.
	current, _, err := s.acceptLocked(peerID, sub)
	if err != nil {
		return err
	}
	if current != room {
		return domain.ErrRoomNotFound
	}

	now := s.clock.Now()
	stats := room.stats[peerID]
	stats.Record(eval, question.Type == domain.QuestionDrawing, room.quiz.Len(), room.timeLeft(now))
	s.logger.Debug("answer recorded",
		zap.String("room", room.id),
		zap.String("peer", peerID),
		zap.Int("progress", stats.Progress),
		zap.Bool("correct", eval.Correct),
	)

	if room.allFinished() {
		s.finishLocked(ctx, room)
		return nil
	}
	s.rooms.Save(ctx, room)
	room.broadcast(domain.Message{Type: domain.MsgGameUpdate, Payload: room.state(now)})
	return nil
}

// Disconnect drops the peer from the queue or tears down its room. The
// opponent is told once; nothing is recorded for the abandoned duel.
func (s *MatchService) Disconnect(ctx context.Context, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(ctx, peerID, nil)
}

// Leave is Disconnect bound to one connection. It is a no-op when p has
// already been replaced by a newer connection with the same id.
func (s *MatchService) Leave(ctx context.Context, p Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(ctx, p.ID(), p)
}

func (s *MatchService) leaveLocked(ctx context.Context, peerID string, conn Peer) {
	if s.waiting != nil && s.waiting.ID() == peerID {
		if conn != nil && s.waiting != conn {
			return
		}
		s.waiting = nil
		s.logger.Debug("waiting peer left", zap.String("peer", peerID))
		return
	}

	roomID, ok := s.peerRooms[peerID]
	if !ok {
		return
	}
	room, ok := s.rooms.Get(roomID)
	if !ok {
		delete(s.peerRooms, peerID)
		return
	}
	if conn != nil && room.peer(peerID) != conn {
		return
	}
	if opp := room.opponentOf(peerID); opp != nil {
		opp.Send(domain.Message{Type: domain.MsgOpponentDisconnected})
	}
	s.removeLocked(ctx, room)
	s.logger.Info("room closed on disconnect", zap.String("room", roomID), zap.String("peer", peerID))
}

// Waiting returns the id of the queued peer, if any.
func (s *MatchService) Waiting() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiting == nil {
		return "", false
	}
	return s.waiting.ID(), true
}

// RoomOf returns the live state of the room the peer is in.
func (s *MatchService) RoomOf(peerID string) (domain.RoomState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.peerRooms[peerID]
	if !ok {
		return domain.RoomState{}, false
	}
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.RoomState{}, false
	}
	return room.state(s.clock.Now()), true
}

// ActiveRooms counts rooms that still have players attached.
func (s *MatchService) ActiveRooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.peerRooms))
	for _, id := range s.peerRooms {
		seen[id] = struct{}{}
	}
	return len(seen)
}

func (s *MatchService) acceptLocked(peerID string, sub domain.Submission) (*Room, domain.Question, error) {
	roomID, ok := s.peerRooms[peerID]
	if !ok {
		return nil, domain.Question{}, domain.ErrNotInRoom
	}
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.Question{}, domain.ErrRoomNotFound
	}
	if room.status == domain.RoomFinished {
		return nil, domain.Question{}, domain.ErrRoomFinished
	}
	if s.clock.Now().Before(room.startsAt) {
		return nil, domain.Question{}, domain.ErrInvalidState
	}
	stats := room.stats[peerID]
	if stats.Finished(room.quiz.Len()) {
		return nil, domain.Question{}, domain.ErrQuizComplete
	}
	if sub.QuestionIndex != stats.Progress {
		return nil, domain.Question{}, domain.ErrOutOfOrder
	}
	if room.timeLeft(s.clock.Now()) == 0 {
		return nil, domain.Question{}, domain.ErrTimeExpired
	}
	q, err := room.quiz.Question(sub.QuestionIndex)
	if err != nil {
		return nil, domain.Question{}, err
	}
	return room, q, nil
}

func (s *MatchService) expire(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms.Get(roomID)
	if !ok || room.status == domain.RoomFinished {
		return
	}
	s.logger.Info("room clock expired", zap.String("room", roomID))
	s.finishLocked(context.Background(), room)
}

func (s *MatchService) finishLocked(ctx context.Context, room *Room) {
	room.status = domain.RoomFinished
	final := room.state(s.clock.Now())
	room.broadcast(domain.Message{Type: domain.MsgGameEnd, Payload: final})
	s.removeLocked(ctx, room)

	s.logger.Info("duel finished",
		zap.String("room", room.id),
		zap.String("winner", final.Result.Winner),
	)
	if s.recorder == nil {
		return
	}
	ids := room.PlayerIDs()
	rec := domain.DuelRecord{
		RoomID:     room.id,
		QuizID:     room.quiz.ID,
		Players:    ids,
		Stats:      final.Players,
		Result:     *final.Result,
		FinishedAt: s.clock.Now().Unix(),
	}
	go func() {
		recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.recorder.Record(recCtx, rec); err != nil {
			s.logger.Warn("record duel result", zap.String("room", rec.RoomID), zap.Error(err))
		}
	}()
}

func (s *MatchService) removeLocked(ctx context.Context, room *Room) {
	room.stopDeadline()
	s.rooms.Delete(ctx, room.id)
	for _, id := range room.PlayerIDs() {
		if s.peerRooms[id] == room.id {
			delete(s.peerRooms, id)
		}
	}
}
