// Package evaluate decides whether a submitted answer is correct.
package evaluate

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"aksara-duel-service/internal/domain"
)

// Prediction is what the drawing-recognition service returns.
type Prediction struct {
	Label      string
	Confidence float64 // 0..1
}

// Predictor recognizes a drawn glyph.
type Predictor interface {
	Predict(ctx context.Context, image []byte) (Prediction, error)
}

// Simulated treats every drawing as correct with a random confidence in
// [0.75, 1.0). It stands in for the classifier when none is wired.
type Simulated struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulated(rnd *rand.Rand) *Simulated {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulated{rnd: rnd}
}

func (s *Simulated) Evaluate(_ context.Context, q domain.Question, sub domain.Submission) (domain.Evaluation, error) {
	if q.Type == domain.QuestionMultipleChoice {
		return multipleChoice(q, sub)
	}
	s.mu.Lock()
	confidence := 0.75 + s.rnd.Float64()*0.25
	s.mu.Unlock()
	return domain.Evaluation{Correct: true, Confidence: confidence}, nil
}

// Classifier sends drawings to a Predictor.
type Classifier struct {
	predictor Predictor
}

func NewClassifier(p Predictor) *Classifier {
	return &Classifier{predictor: p}
}

func (c *Classifier) Evaluate(ctx context.Context, q domain.Question, sub domain.Submission) (domain.Evaluation, error) {
	if q.Type == domain.QuestionMultipleChoice {
		return multipleChoice(q, sub)
	}
	if len(sub.Drawing) == 0 {
		return domain.Evaluation{}, domain.ErrInvalidAnswer
	}
	pred, err := c.predictor.Predict(ctx, sub.Drawing)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
	}
	return domain.Evaluation{
		Correct:    pred.Label == q.TargetGlyph,
		Confidence: pred.Confidence,
	}, nil
}

// multipleChoice accepts either the literal option text or an index into Options.
func multipleChoice(q domain.Question, sub domain.Submission) (domain.Evaluation, error) {
	answer := sub.Answer
	if answer == "" {
		if sub.AnswerIndex < 0 || sub.AnswerIndex >= len(q.Options) {
			return domain.Evaluation{}, domain.ErrInvalidAnswer
		}
		answer = q.Options[sub.AnswerIndex]
	}
	return domain.Evaluation{Correct: answer == q.CorrectOption}, nil
}
