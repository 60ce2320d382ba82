package cli

import "aksara-duel-service/internal/domain"

// sampleQuizzes is served when no Postgres quiz store is configured.
func sampleQuizzes() map[string]domain.QuizSet {
	return map[string]domain.QuizSet{
		"aksara-basics": {
			ID: "aksara-basics",
			Questions: []domain.Question{
				{ID: "ka", Type: domain.QuestionMultipleChoice, Prompt: "Which letter is KA?", Options: []string{"ꦏ", "ꦒ", "ꦤ", "ꦱ"}, CorrectOption: "ꦏ"},
				{ID: "na", Type: domain.QuestionMultipleChoice, Prompt: "Which letter is NA?", Options: []string{"ꦤ", "ꦏ", "ꦩ", "ꦫ"}, CorrectOption: "ꦤ"},
				{ID: "ha", Type: domain.QuestionDrawing, Prompt: "Draw HA", TargetGlyph: "ꦲ"},
				{ID: "sa", Type: domain.QuestionMultipleChoice, Prompt: "Which letter is SA?", Options: []string{"ꦱ", "ꦮ", "ꦭ", "ꦥ"}, CorrectOption: "ꦱ"},
				{ID: "ra", Type: domain.QuestionMultipleChoice, Prompt: "Which letter is RA?", Options: []string{"ꦫ", "ꦢ", "ꦠ", "ꦗ"}, CorrectOption: "ꦫ"},
				{ID: "dha", Type: domain.QuestionDrawing, Prompt: "Draw DHA", TargetGlyph: "ꦝ"},
			},
		},
	}
}
