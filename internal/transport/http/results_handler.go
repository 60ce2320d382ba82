package http

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"aksara-duel-service/internal/domain"
)

// ResultHistory lists finished duels a player took part in.
type ResultHistory interface {
	RecentForPlayer(ctx context.Context, playerID string, limit int) ([]domain.DuelRecord, error)
}

type ResultsHandler struct {
	history ResultHistory
	logger  *zap.Logger
}

func NewResultsHandler(history ResultHistory, logger *zap.Logger) *ResultsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsHandler{history: history, logger: logger}
}

type duelSummary struct {
	RoomID     string                        `json:"roomId"`
	QuizID     string                        `json:"quizId"`
	Players    [2]string                     `json:"players"`
	Stats      map[string]domain.PlayerStats `json:"stats"`
	Scores     map[string]int64              `json:"scores"`
	Winner     string                        `json:"winner"`
	FinishedAt int64                         `json:"finishedAt"`
}

// List serves GET /duels?player=<id>&limit=<n>.
func (h *ResultsHandler) List(w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	if player == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "player is required"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	records, err := h.history.RecentForPlayer(r.Context(), player, limit)
	if err != nil {
		h.logger.Error("list duel results", zap.String("player", player), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
		return
	}
	out := make([]duelSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, duelSummary{
			RoomID:     rec.RoomID,
			QuizID:     rec.QuizID,
			Players:    rec.Players,
			Stats:      rec.Stats,
			Scores:     rec.Result.Scores,
			Winner:     rec.Result.Winner,
			FinishedAt: rec.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
