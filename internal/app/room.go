package app

import (
	"time"

	"github.com/jonboulle/clockwork"

	"aksara-duel-service/internal/domain"
	"aksara-duel-service/internal/scoring"
)

// Room is one live duel between exactly two peers. All mutation happens under
// MatchService.mu; stores only hold the pointer.
type Room struct {
	id          string
	quiz        domain.QuizSet
	players     [2]Peer
	stats       map[string]*domain.PlayerStats
	status      domain.RoomStatus
	initialTime int
	tick        time.Duration
	startsAt    time.Time
	now         func() time.Time
	deadline    clockwork.Timer
}

// NewRoom is exported for infrastructure layers and tests that seed rooms.
func NewRoom(id string, quiz domain.QuizSet, a, b Peer, initialTime int, startsAt time.Time, now func() time.Time) *Room {
	return newRoom(id, quiz, a, b, initialTime, time.Second, startsAt, now)
}

func newRoom(id string, quiz domain.QuizSet, a, b Peer, initialTime int, tick time.Duration, startsAt time.Time, now func() time.Time) *Room {
	sa, sb := domain.NewPlayerStats(), domain.NewPlayerStats()
	return &Room{
		id:          id,
		quiz:        quiz,
		players:     [2]Peer{a, b},
		stats:       map[string]*domain.PlayerStats{a.ID(): &sa, b.ID(): &sb},
		status:      domain.RoomPlaying,
		initialTime: initialTime,
		tick:        tick,
		startsAt:    startsAt,
		now:         now,
	}
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Quiz returns the quiz both players answer.
func (r *Room) Quiz() domain.QuizSet { return r.quiz }

// PlayerIDs returns the two peer ids in pairing order.
func (r *Room) PlayerIDs() [2]string {
	return [2]string{r.players[0].ID(), r.players[1].ID()}
}

// Snapshot returns the room state at the room's current clock.
func (r *Room) Snapshot() domain.RoomState {
	return r.state(r.now())
}

func (r *Room) peer(peerID string) Peer {
	for _, p := range r.players {
		if p.ID() == peerID {
			return p
		}
	}
	return nil
}

func (r *Room) opponentOf(peerID string) Peer {
	switch peerID {
	case r.players[0].ID():
		return r.players[1]
	case r.players[1].ID():
		return r.players[0]
	}
	return nil
}

// timeLeft counts whole ticks since the countdown ended, clamped to [0, initialTime].
func (r *Room) timeLeft(now time.Time) int {
	if now.Before(r.startsAt) {
		return r.initialTime
	}
	left := r.initialTime - int(now.Sub(r.startsAt)/r.tick)
	if left < 0 {
		return 0
	}
	return left
}

func (r *Room) allFinished() bool {
	total := r.quiz.Len()
	for _, s := range r.stats {
		if !s.Finished(total) {
			return false
		}
	}
	return true
}

func (r *Room) result() domain.RoomResult {
	first, second := r.players[0].ID(), r.players[1].ID()
	cmp := scoring.Compare(*r.stats[first], *r.stats[second], r.initialTime)
	res := domain.RoomResult{
		Scores: map[string]int64{first: cmp.FirstRounded, second: cmp.SecondRounded},
	}
	switch cmp.Outcome {
	case scoring.OutcomeFirst:
		res.Winner = first
	case scoring.OutcomeSecond:
		res.Winner = second
	}
	return res
}

func (r *Room) state(now time.Time) domain.RoomState {
	players := make(map[string]domain.PlayerStats, len(r.stats))
	for id, s := range r.stats {
		players[id] = s.Clone()
	}
	st := domain.RoomState{
		RoomID:   r.id,
		Status:   r.status,
		TimeLeft: r.timeLeft(now),
		Players:  players,
	}
	if r.status == domain.RoomFinished {
		res := r.result()
		st.Result = &res
	}
	return st
}

func (r *Room) broadcast(msg domain.Message) {
	for _, p := range r.players {
		p.Send(msg)
	}
}

func (r *Room) stopDeadline() {
	if r.deadline != nil {
		r.deadline.Stop()
		r.deadline = nil
	}
}
