package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"aksara-duel-service/internal/app"
	"aksara-duel-service/internal/domain"
	"aksara-duel-service/internal/evaluate"
	"aksara-duel-service/internal/infra/memory"
	"aksara-duel-service/internal/scoring"
)

type fakePeer struct {
	id   string
	mu   sync.Mutex
	msgs []domain.Message
}

func newPeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(msg domain.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return true
}

func (p *fakePeer) messages() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Message(nil), p.msgs...)
}

func (p *fakePeer) count(msgType string) int {
	n := 0
	for _, m := range p.messages() {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

func (p *fakePeer) last(msgType string) (domain.Message, bool) {
	msgs := p.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == msgType {
			return msgs[i], true
		}
	}
	return domain.Message{}, false
}

type captureRecorder struct {
	records chan domain.DuelRecord
}

func (r *captureRecorder) Record(_ context.Context, rec domain.DuelRecord) error {
	r.records <- rec
	return nil
}

func sixQuestionQuiz() domain.QuizSet {
	return domain.QuizSet{
		ID: "aksara-basics",
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionMultipleChoice, Prompt: "KA", Options: []string{"ꦏ", "ꦒ", "ꦤ", "ꦱ"}, CorrectOption: "ꦏ"},
			{ID: "q2", Type: domain.QuestionMultipleChoice, Prompt: "NA", Options: []string{"ꦤ", "ꦏ", "ꦩ", "ꦫ"}, CorrectOption: "ꦤ"},
			{ID: "q3", Type: domain.QuestionDrawing, Prompt: "Draw HA", TargetGlyph: "ꦲ"},
			{ID: "q4", Type: domain.QuestionMultipleChoice, Prompt: "SA", Options: []string{"ꦱ", "ꦮ", "ꦭ", "ꦥ"}, CorrectOption: "ꦱ"},
			{ID: "q5", Type: domain.QuestionMultipleChoice, Prompt: "RA", Options: []string{"ꦫ", "ꦢ", "ꦠ", "ꦗ"}, CorrectOption: "ꦫ"},
			{ID: "q6", Type: domain.QuestionDrawing, Prompt: "Draw DHA", TargetGlyph: "ꦝ"},
		},
	}
}

type harness struct {
	svc      *app.MatchService
	clock    *clockwork.FakeClock
	rooms    *memory.RoomStore
	recorder *captureRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rooms := memory.NewRoomStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.QuizSet{
		"aksara-basics": sixQuestionQuiz(),
	}), 5*time.Minute)
	recorder := &captureRecorder{records: make(chan domain.DuelRecord, 4)}
	n := 0
	svc := app.NewMatchService(rooms, quizzes, evaluate.NewSimulated(rand.New(rand.NewSource(1))),
		app.MatchConfig{QuizID: "aksara-basics", InitialTime: 120, Countdown: 3, Grace: 2 * time.Second},
		app.WithClock(clock),
		app.WithRecorder(recorder),
		app.WithIDGenerator(func() string { n++; return fmt.Sprintf("room-%d", n) }),
	)
	return &harness{svc: svc, clock: clock, rooms: rooms, recorder: recorder}
}

func (h *harness) pair(t *testing.T, a, b *fakePeer) string {
	t.Helper()
	ctx := context.Background()
	if err := h.svc.FindMatch(ctx, a); err != nil {
		t.Fatalf("find match a: %v", err)
	}
	if err := h.svc.FindMatch(ctx, b); err != nil {
		t.Fatalf("find match b: %v", err)
	}
	msg, ok := a.last(domain.MsgMatchFound)
	if !ok {
		t.Fatalf("expected match_found for %s", a.id)
	}
	return msg.Payload.(domain.MatchFound).RoomID
}

func submitCorrect(t *testing.T, svc *app.MatchService, peerID string, index int) {
	t.Helper()
	q := sixQuestionQuiz().Questions[index]
	sub := domain.Submission{QuestionIndex: index, Answer: q.CorrectOption, Drawing: []byte{1}}
	if q.Type == domain.QuestionDrawing {
		sub.Answer = ""
	}
	if err := svc.SubmitAnswer(context.Background(), peerID, sub); err != nil {
		t.Fatalf("submit %d for %s: %v", index, peerID, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSingleSearcherStaysWaiting(t *testing.T) {
	h := newHarness(t)
	a := newPeer("a")

	if err := h.svc.FindMatch(context.Background(), a); err != nil {
		t.Fatalf("find match: %v", err)
	}
	if err := h.svc.FindMatch(context.Background(), a); err != nil {
		t.Fatalf("repeat find match: %v", err)
	}
	if a.count(domain.MsgSearching) != 2 || a.count(domain.MsgMatchFound) != 0 {
		t.Fatalf("expected two searching acks and no match, got %+v", a.messages())
	}
	if id, ok := h.svc.Waiting(); !ok || id != "a" {
		t.Fatalf("expected a waiting, got %q %v", id, ok)
	}
	if h.svc.ActiveRooms() != 0 {
		t.Fatalf("expected no rooms")
	}
}

func TestTwoSearchersMakeOneRoom(t *testing.T) {
	h := newHarness(t)
	a, b := newPeer("a"), newPeer("b")
	roomID := h.pair(t, a, b)

	if _, ok := h.svc.Waiting(); ok {
		t.Fatalf("waiting slot should be empty")
	}
	if h.svc.ActiveRooms() != 1 || h.rooms.Len() != 1 {
		t.Fatalf("expected exactly one room")
	}
	msg, ok := b.last(domain.MsgMatchFound)
	if !ok {
		t.Fatalf("expected match_found for b")
	}
	found := msg.Payload.(domain.MatchFound)
	if found.RoomID != roomID || len(found.Players) != 2 || found.Players[0] != "a" || found.Players[1] != "b" {
		t.Fatalf("unexpected match_found payload %+v", found)
	}
	if found.Quiz.Len() != 6 || found.InitialTime != 120 || found.Countdown != 3 {
		t.Fatalf("unexpected duel parameters %+v", found)
	}

	if err := h.svc.FindMatch(context.Background(), a); !errors.Is(err, domain.ErrAlreadyMatched) {
		t.Fatalf("expected matched peer to be refused, got %v", err)
	}

	c := newPeer("c")
	_ = h.svc.FindMatch(context.Background(), c)
	if id, _ := h.svc.Waiting(); id != "c" {
		t.Fatalf("expected third peer to wait")
	}
}

func TestSubmitBroadcastsAndKeepsCountersConsistent(t *testing.T) {
	h := newHarness(t)
	a, b := newPeer("a"), newPeer("b")
	h.pair(t, a, b)
	h.clock.Advance(3 * time.Second)

	submitCorrect(t, h.svc, "a", 0)
	if err := h.svc.SubmitAnswer(context.Background(), "b", domain.Submission{QuestionIndex: 0, Answer: "wrong"}); err != nil {
		t.Fatalf("submit wrong: %v", err)
	}

	for _, p := range []*fakePeer{a, b} {
		if p.count(domain.MsgGameUpdate) != 2 {
			t.Fatalf("expected 2 updates for %s, got %d", p.id, p.count(domain.MsgGameUpdate))
		}
		for _, m := range p.messages() {
			if m.Type != domain.MsgGameUpdate {
				continue
			}
			for id, st := range m.Payload.(domain.RoomState).Players {
				if st.Correct+st.Incorrect != st.Progress {
					t.Fatalf("counters inconsistent for %s: %+v", id, st)
				}
			}
		}
	}
	msg, _ := a.last(domain.MsgGameUpdate)
	state := msg.Payload.(domain.RoomState)
	if state.Players["a"].Score != 1 || state.Players["b"].Incorrect != 1 {
		t.Fatalf("unexpected stats %+v", state.Players)
	}
	if state.Status != domain.RoomPlaying || state.Result != nil {
		t.Fatalf("room should still be playing")
	}
}

func TestDuplicateSubmissionDoesNotDoubleCount(t *testing.T) {
	h := newHarness(t)
	a, b := newPeer("a"), newPeer("b")
	h.pair(t, a, b)
	h.clock.Advance(3 * time.Second)

	submitCorrect(t, h.svc, "a", 0)
	err := h.svc.SubmitAnswer(context.Background(), "a", domain.Submission{QuestionIndex: 0, Answer: "ꦏ"})
	if !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("expected duplicate to be rejected, got %v", err)
	}
	err = h.svc.SubmitAnswer(context.Background(), "a", domain.Submission{QuestionIndex: 4, Answer: "ꦫ"})
	if !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("expected skipped index to be rejected, got %v", err)
	}
	state, ok := h.svc.RoomOf("a")
	if !ok || state.Players["a"].Progress != 1 {
		t.Fatalf("expected progress 1, got %+v", state.Players["a"])
	}
	if a.count(domain.MsgGameUpdate) != 1 {
		t.Fatalf("rejected submissions must not broadcast")
	}
}

func TestBothFinishedEndsRoom(t *testing.T) {
	h := newHarness(t)
	a, b := newPeer("a"), newPeer("b")
	roomID := h.pair(t, a, b)
	h.clock.Advance(23 * time.Second)

	for i := 0; i < 6; i++ {
		submitCorrect(t, h.svc, "a", i)
	}
	for i := 0; i < 6; i++ {
		q := sixQuestionQuiz().Questions[i]
		sub := domain.Submission{QuestionIndex: i, Answer: q.CorrectOption, Drawing: []byte{1}}
		if i < 3 && q.Type == domain.QuestionMultipleChoice {
			sub.Answer = "wrong"
		}
		if q.Type == domain.QuestionDrawing {
			sub.Answer = ""
		}
		if err := h.svc.SubmitAnswer(context.Background(), "b", sub); err != nil {
			t.Fatalf("submit b %d: %v", i, err)
		}
	}

	for _, p := range []*fakePeer{a, b} {
		if p.count(domain.MsgGameEnd) != 1 {
			t.Fatalf("expected one game_end for %s", p.id)
		}
	}
	msg, _ := b.last(domain.MsgGameEnd)
	final := msg.Payload.(domain.RoomState)
	if final.Status != domain.RoomFinished || final.Result == nil || final.Result.Winner != "a" {
		t.Fatalf("expected a to win, got %+v", final.Result)
	}
	if ft := final.Players["a"].FinishTime; ft == nil || *ft != 100 {
		t.Fatalf("expected finish time 100, got %v", ft)
	}
	if h.rooms.Len() != 0 || h.svc.ActiveRooms() != 0 {
		t.Fatalf("room should be deleted after game_end")
	}
	if err := h.svc.SubmitAnswer(context.Background(), "a", domain.Submission{}); !errors.Is(err, domain.ErrNotInRoom) {
		t.Fatalf("expected finished room to be gone, got %v", err)
	}

	select {
	case rec := <-h.recorder.records:
		if rec.RoomID != roomID || rec.Result.Winner != "a" || rec.QuizID != "aksara-basics" {
			t.Fatalf("unexpected record %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected the finished duel to be recorded")
	}
}

func TestIdenticalPlayersTie(t *testing.T) {
	// Multiple choice only, so both players end with identical stats.
	h := newMCOnlyHarness(t)
	c, d := newPeer("c"), newPeer("d")
	h.pair(t, c, d)
	h.clock.Advance(3 * time.Second)
	for i := 0; i < 2; i++ {
		for _, id := range []string{"c", "d"} {
			if err := h.svc.SubmitAnswer(context.Background(), id, domain.Submission{QuestionIndex: i, AnswerIndex: 0}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
	}
	msg, ok := c.last(domain.MsgGameEnd)
	if !ok {
		t.Fatalf("expected game_end")
	}
	res := msg.Payload.(domain.RoomState).Result
	if res.Winner != "" || res.Scores["c"] != res.Scores["d"] {
		t.Fatalf("expected tie with equal scores, got %+v", res)
	}
}

func newMCOnlyHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rooms := memory.NewRoomStore()
	quiz := domain.QuizSet{ID: "mc", Questions: []domain.Question{
		{ID: "q1", Type: domain.QuestionMultipleChoice, Options: []string{"ꦏ", "ꦒ"}, CorrectOption: "ꦏ"},
		{ID: "q2", Type: domain.QuestionMultipleChoice, Options: []string{"ꦤ", "ꦩ"}, CorrectOption: "ꦤ"},
	}}
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.QuizSet{"mc": quiz}), time.Minute)
	svc := app.NewMatchService(rooms, quizzes, evaluate.NewSimulated(nil),
		app.MatchConfig{QuizID: "mc", InitialTime: 120, Countdown: 3},
		app.WithClock(clock),
	)
	return &harness{svc: svc, clock: clock, rooms: rooms}
}

func TestDisconnectNotifiesOpponentOnce(t *testing.T) {
	h := newHarness(t)
	a, b := newPeer("a"), newPeer("b")
	h.pair(t, a, b)
	h.clock.Advance(3 * time.Second)

	submitCorrect(t, h.svc, "a", 0)
	submitCorrect(t, h.svc, "a", 1)
	updatesBefore := b.count(domain.MsgGameUpdate)

	h.svc.Disconnect(context.Background(), "a")
	h.svc.Disconnect(context.Background(), "a")

	if b.count(domain.MsgOpponentDisconnected) != 1 {
		t.Fatalf("expected exactly one opponent_disconnected, got %d", b.count(domain.MsgOpponentDisconnected))
	}
	if h.rooms.Len() != 0 || h.svc.ActiveRooms() != 0 {
		t.Fatalf("room should be deleted on disconnect")
	}
	if err := h.svc.SubmitAnswer(context.Background(), "b", domain.Submission{QuestionIndex: 0, Answer: "ꦏ"}); !errors.Is(err, domain.ErrNotInRoom) {
		t.Fatalf("expected survivor to be out of the room, got %v", err)
	}
	if b.count(domain.MsgGameUpdate) != updatesBefore || b.count(domain.MsgGameEnd) != 0 {
		t.Fatalf("no further room messages expected after disconnect")
	}

	h.clock.Advance(10 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	if b.count(domain.MsgGameEnd) != 0 {
		t.Fatalf("deadline fired for a torn-down room")
	}
}

func TestDisconnectClearsWaitingSlot(t *testing.T) {
	h := newHarness(t)
	a, b := newPeer("a"), newPeer("b")

	_ = h.svc.FindMatch(context.Background(), a)
	h.svc.Disconnect(context.Background(), "a")
	if _, ok := h.svc.Waiting(); ok {
		t.Fatalf("waiting slot should be cleared")
	}
	_ = h.svc.FindMatch(context.Background(), b)
	if b.count(domain.MsgMatchFound) != 0 {
		t.Fatalf("b must not be paired with a departed peer")
	}
}

func TestClockExpiryRejectsAnswersAndEndsRoom(t *testing.T) {
	h := newHarness(t)
	a, b := newPeer("a"), newPeer("b")
	h.pair(t, a, b)
	h.clock.Advance(3 * time.Second)

	for i := 0; i < 6; i++ {
		submitCorrect(t, h.svc, "a", i)
	}
	submitCorrect(t, h.svc, "b", 0)

	// The whole clock has run; the deadline still waits for the grace period.
	h.clock.Advance(120 * time.Second)
	err := h.svc.SubmitAnswer(context.Background(), "b", domain.Submission{QuestionIndex: 1, Answer: "ꦤ"})
	if !errors.Is(err, domain.ErrTimeExpired) {
		t.Fatalf("expected expired clock, got %v", err)
	}

	h.clock.Advance(2 * time.Second)
	waitFor(t, "game_end after deadline", func() bool { return b.count(domain.MsgGameEnd) == 1 })
	msg, _ := a.last(domain.MsgGameEnd)
	final := msg.Payload.(domain.RoomState)
	if final.TimeLeft != 0 || final.Result.Winner != "a" {
		t.Fatalf("expected a to win at clock exhaustion, got %+v", final)
	}
	if final.Players["b"].FinishTime != nil {
		t.Fatalf("non-finisher must have no finish time")
	}
	want := scoring.Round(scoring.PerformanceScore(final.Players["a"], 120))
	if final.Result.Scores["a"] != want {
		t.Fatalf("expected score %d, got %d", want, final.Result.Scores["a"])
	}
	waitFor(t, "room removed", func() bool { return h.svc.ActiveRooms() == 0 })
}

func TestSubmitDuringCountdownIsRejected(t *testing.T) {
	h := newHarness(t)
	a, b := newPeer("a"), newPeer("b")
	h.pair(t, a, b)

	err := h.svc.SubmitAnswer(context.Background(), "a", domain.Submission{QuestionIndex: 0, Answer: "ꦏ"})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected countdown submission to be rejected, got %v", err)
	}
	h.clock.Advance(2 * time.Second)
	err = h.svc.SubmitAnswer(context.Background(), "a", domain.Submission{QuestionIndex: 0, Answer: "ꦏ"})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected rejection before the last countdown tick, got %v", err)
	}
	if a.count(domain.MsgGameUpdate) != 0 || b.count(domain.MsgGameUpdate) != 0 {
		t.Fatalf("rejected submissions must not broadcast")
	}
	if state, _ := h.svc.RoomOf("a"); state.Players["a"].Progress != 0 {
		t.Fatalf("expected no progress during countdown, got %+v", state.Players["a"])
	}

	h.clock.Advance(time.Second)
	submitCorrect(t, h.svc, "a", 0)
	state, _ := h.svc.RoomOf("a")
	if state.Players["a"].Progress != 1 || state.TimeLeft != 120 {
		t.Fatalf("expected first answer at the start of the clock, got %+v", state)
	}
}

type failingQuizzes struct {
	err   error
	calls int
}

func (f *failingQuizzes) GetQuiz(context.Context, string) (domain.QuizSet, error) {
	f.calls++
	return domain.QuizSet{}, f.err
}

func TestQuizLoadFailureKeepsPeersSearching(t *testing.T) {
	quizzes := &failingQuizzes{err: domain.ErrQuizNotFound}
	svc := app.NewMatchService(memory.NewRoomStore(), quizzes, evaluate.NewSimulated(nil),
		app.MatchConfig{QuizID: "missing", InitialTime: 120},
		app.WithClock(clockwork.NewFakeClock()),
	)
	a, b := newPeer("a"), newPeer("b")

	if err := svc.FindMatch(context.Background(), a); err != nil {
		t.Fatalf("find match a: %v", err)
	}
	err := svc.FindMatch(context.Background(), b)
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz error, got %v", err)
	}
	if quizzes.calls != 1 {
		t.Fatalf("expected one quiz load, got %d", quizzes.calls)
	}
	if b.count(domain.MsgSearching) != 1 || b.count(domain.MsgMatchFound) != 0 {
		t.Fatalf("expected b to be told it is searching, got %+v", b.messages())
	}
	if id, ok := svc.Waiting(); !ok || id != "a" {
		t.Fatalf("expected a to keep the waiting slot, got %q %v", id, ok)
	}
	if svc.ActiveRooms() != 0 {
		t.Fatalf("no room may be created without a quiz")
	}
}

func TestStaleConnectionLeaveKeepsReplacement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale, fresh := newPeer("u"), newPeer("u")

	_ = h.svc.FindMatch(ctx, stale)
	_ = h.svc.FindMatch(ctx, fresh)
	h.svc.Leave(ctx, stale)
	if id, ok := h.svc.Waiting(); !ok || id != "u" {
		t.Fatalf("old connection must not clear the new one's slot")
	}

	other := newPeer("v")
	if err := h.svc.FindMatch(ctx, other); err != nil {
		t.Fatalf("find match: %v", err)
	}
	if fresh.count(domain.MsgMatchFound) != 1 || stale.count(domain.MsgMatchFound) != 0 {
		t.Fatalf("expected the new connection to be paired")
	}

	h.svc.Leave(ctx, stale)
	if h.svc.ActiveRooms() != 1 || other.count(domain.MsgOpponentDisconnected) != 0 {
		t.Fatalf("old connection must not tear down the new one's room")
	}

	h.svc.Leave(ctx, fresh)
	if h.svc.ActiveRooms() != 0 || other.count(domain.MsgOpponentDisconnected) != 1 {
		t.Fatalf("expected the live connection to close the room")
	}
}
