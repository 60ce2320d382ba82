package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"aksara-duel-service/internal/domain"
)

type duelResult struct {
	bun.BaseModel `bun:"table:duel_results"`

	RoomID       string                        `bun:"room_id,pk"`
	QuizID       string                        `bun:"quiz_id,notnull"`
	FirstPlayer  string                        `bun:"first_player,notnull"`
	SecondPlayer string                        `bun:"second_player,notnull"`
	Winner       string                        `bun:"winner,notnull"`
	FirstScore   int64                         `bun:"first_score"`
	SecondScore  int64                         `bun:"second_score"`
	Stats        map[string]domain.PlayerStats `bun:"stats,type:jsonb"`
	FinishedAt   time.Time                     `bun:"finished_at,notnull"`
}

// ResultRecorder stores finished duels with bun.
type ResultRecorder struct {
	db *bun.DB
}

func NewResultRecorder(db *bun.DB) *ResultRecorder {
	return &ResultRecorder{db: db}
}

// Record inserts a finished duel. Recording the same room twice is a no-op.
func (r *ResultRecorder) Record(ctx context.Context, rec domain.DuelRecord) error {
	row := &duelResult{
		RoomID:       rec.RoomID,
		QuizID:       rec.QuizID,
		FirstPlayer:  rec.Players[0],
		SecondPlayer: rec.Players[1],
		Winner:       rec.Result.Winner,
		FirstScore:   rec.Result.Scores[rec.Players[0]],
		SecondScore:  rec.Result.Scores[rec.Players[1]],
		Stats:        rec.Stats,
		FinishedAt:   time.Unix(rec.FinishedAt, 0).UTC(),
	}
	if _, err := r.db.NewInsert().Model(row).On("CONFLICT (room_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert duel result: %w", err)
	}
	return nil
}

// RecentForPlayer returns the newest duels the player took part in.
func (r *ResultRecorder) RecentForPlayer(ctx context.Context, playerID string, limit int) ([]domain.DuelRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []duelResult
	err := r.db.NewSelect().
		Model(&rows).
		Where("first_player = ? OR second_player = ?", playerID, playerID).
		Order("finished_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select duel results: %w", err)
	}
	out := make([]domain.DuelRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// PurgeBefore deletes duels finished before cutoff and returns how many went.
func (r *ResultRecorder) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*duelResult)(nil)).
		Where("finished_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge duel results: %w", err)
	}
	return res.RowsAffected()
}

func (row duelResult) record() domain.DuelRecord {
	return domain.DuelRecord{
		RoomID:  row.RoomID,
		QuizID:  row.QuizID,
		Players: [2]string{row.FirstPlayer, row.SecondPlayer},
		Stats:   row.Stats,
		Result: domain.RoomResult{
			Scores: map[string]int64{
				row.FirstPlayer:  row.FirstScore,
				row.SecondPlayer: row.SecondScore,
			},
			Winner: row.Winner,
		},
		FinishedAt: row.FinishedAt.Unix(),
	}
}
