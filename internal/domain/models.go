package domain

import (
	"fmt"
	"math/rand"
)

// QuestionType discriminates the two question shapes a quiz can carry.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionDrawing        QuestionType = "drawing"
)

// Question is either a multiple-choice question (Options + CorrectOption) or a
// drawing question (TargetGlyph).
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`
	CorrectOption string       `json:"correctOption,omitempty"`
	TargetGlyph   string       `json:"targetGlyph,omitempty"`
}

// Validate checks the union invariants of a question.
func (q Question) Validate() error {
	switch q.Type {
	case QuestionMultipleChoice:
		hits := 0
		for _, opt := range q.Options {
			if opt == q.CorrectOption {
				hits++
			}
		}
		if hits != 1 {
			return fmt.Errorf("question %s: correct option must appear exactly once, found %d", q.ID, hits)
		}
	case QuestionDrawing:
		if len(q.Options) > 0 {
			return fmt.Errorf("question %s: drawing questions carry no options", q.ID)
		}
		if q.TargetGlyph == "" {
			return fmt.Errorf("question %s: missing target glyph", q.ID)
		}
	default:
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
	return nil
}

// QuizSet is the ordered question sequence shared by both duel participants.
type QuizSet struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Len returns the number of questions.
func (q QuizSet) Len() int { return len(q.Questions) }

// Question returns the question at index i.
func (q QuizSet) Question(i int) (Question, error) {
	if i < 0 || i >= len(q.Questions) {
		return Question{}, ErrQuestionNotFound
	}
	return q.Questions[i], nil
}

// Validate checks every question in the set.
func (q QuizSet) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %s: no questions", q.ID)
	}
	for _, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Shuffled returns a deep copy with question order and multiple-choice option
// order randomized. The receiver is left untouched.
func (q QuizSet) Shuffled(rnd *rand.Rand) QuizSet {
	out := QuizSet{ID: q.ID, Questions: make([]Question, len(q.Questions))}
	for i, question := range q.Questions {
		cp := question
		if len(question.Options) > 0 {
			cp.Options = append([]string(nil), question.Options...)
			rnd.Shuffle(len(cp.Options), func(a, b int) {
				cp.Options[a], cp.Options[b] = cp.Options[b], cp.Options[a]
			})
		}
		out.Questions[i] = cp
	}
	rnd.Shuffle(len(out.Questions), func(a, b int) {
		out.Questions[a], out.Questions[b] = out.Questions[b], out.Questions[a]
	})
	return out
}

// PlayerStats is the per-player progress record replicated between peers.
type PlayerStats struct {
	Progress       int       `json:"progress"`
	Score          int       `json:"score"`
	Correct        int       `json:"correct"`
	Incorrect      int       `json:"incorrect"`
	AccuracyScores []float64 `json:"accuracyScores"`
	AvgAccuracy    float64   `json:"avgAccuracy"`
	FinishTime     *int      `json:"finishTime"`
}

// NewPlayerStats returns zeroed stats with a non-nil accuracy slice so the
// JSON form is always an array.
func NewPlayerStats() PlayerStats {
	return PlayerStats{AccuracyScores: []float64{}}
}

// Finished reports whether the player answered every question of a quiz of the given length.
func (s PlayerStats) Finished(total int) bool {
	return s.Progress >= total
}

// Record applies one evaluated answer. timeLeft is the shared clock value used
// for finishTime when this answer completes the quiz.
func (s *PlayerStats) Record(eval Evaluation, drawing bool, total, timeLeft int) {
	s.Progress++
	if eval.Correct {
		s.Score++
		s.Correct++
	} else {
		s.Incorrect++
	}
	if drawing {
		s.AccuracyScores = append(s.AccuracyScores, eval.Confidence)
		sum := 0.0
		for _, a := range s.AccuracyScores {
			sum += a
		}
		s.AvgAccuracy = sum / float64(len(s.AccuracyScores))
	}
	if s.Progress >= total && s.FinishTime == nil {
		ft := timeLeft
		s.FinishTime = &ft
	}
}

// Clone returns a copy that shares no memory with s.
func (s PlayerStats) Clone() PlayerStats {
	cp := s
	cp.AccuracyScores = append([]float64{}, s.AccuracyScores...)
	if s.FinishTime != nil {
		ft := *s.FinishTime
		cp.FinishTime = &ft
	}
	return cp
}

// Submission is a player's answer to the question at QuestionIndex.
type Submission struct {
	QuestionIndex int
	AnswerIndex   int
	Answer        string
	Drawing       []byte
}

// Evaluation is the outcome of checking a submission.
type Evaluation struct {
	Correct    bool    `json:"correct"`
	Confidence float64 `json:"confidence"`
}

// RoomStatus is the server-side lifecycle of a room.
type RoomStatus string

const (
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// RoomResult is attached to the terminal room state.
type RoomResult struct {
	Scores map[string]int64 `json:"scores"`
	// Winner is empty on a tie.
	Winner string `json:"winner"`
}

// RoomState is the payload of game_update and game_end.
type RoomState struct {
	RoomID   string                 `json:"roomId"`
	Status   RoomStatus             `json:"status"`
	TimeLeft int                    `json:"timeLeft"`
	Players  map[string]PlayerStats `json:"players"`
	Result   *RoomResult            `json:"result,omitempty"`
}

// MatchFound is the payload of match_found.
type MatchFound struct {
	RoomID      string   `json:"roomId"`
	Players     []string `json:"players"`
	Quiz        QuizSet  `json:"quiz"`
	InitialTime int      `json:"initialTime"`
	Countdown   int      `json:"countdown"`
}

// DuelRecord is what gets persisted once a room finishes.
type DuelRecord struct {
	RoomID     string
	QuizID     string
	Players    [2]string
	Stats      map[string]PlayerStats
	Result     RoomResult
	FinishedAt int64
}
