package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Publisher fans an event out to every subscriber of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, data []byte) error
}

type RelayHandler struct {
	publisher Publisher
	logger    *zap.Logger
}

func NewRelayHandler(publisher Publisher, logger *zap.Logger) *RelayHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayHandler{publisher: publisher, logger: logger}
}

type triggerRequest struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Trigger publishes a client event on a duel channel.
func (h *RelayHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: "Method not allowed"})
		return
	}
	var req triggerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Missing required fields"})
		return
	}
	if req.Channel == "" || req.Event == "" || len(req.Data) == 0 || string(req.Data) == "null" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Missing required fields"})
		return
	}
	if err := h.publisher.Publish(r.Context(), req.Channel, req.Event, req.Data); err != nil {
		h.logger.Error("relay publish failed",
			zap.String("channel", req.Channel),
			zap.String("event", req.Event),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Event triggered successfully"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
