package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aksara-duel-service/internal/app"
	"aksara-duel-service/internal/domain"
	"aksara-duel-service/internal/identity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 32
)

// TokenVerifier resolves a bearer token to the player it was issued for.
type TokenVerifier interface {
	Verify(token string) (identity.Identity, error)
}

type WSHandler struct {
	service  *app.MatchService
	verifier TokenVerifier
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler wires the matchmaking protocol. With a nil verifier every
// connection gets a fresh anonymous id; otherwise ?token= is required.
func NewWSHandler(service *app.MatchService, verifier TokenVerifier, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service:  service,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitPayload struct {
	QuestionIndex *int   `json:"questionIndex"`
	AnswerIndex   int    `json:"answerIndex"`
	Answer        string `json:"answer,omitempty"`
	// Drawing is the base64-encoded image of a drawing answer.
	Drawing []byte `json:"drawing,omitempty"`
}

// wsPeer queues outbound messages for the connection's writer goroutine.
type wsPeer struct {
	id     string
	mu     sync.Mutex
	send   chan domain.Message
	closed bool
}

func (p *wsPeer) ID() string { return p.id }

// Send never blocks; a full queue drops the message.
func (p *wsPeer) Send(msg domain.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func (p *wsPeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

// ServeWS upgrades HTTP requests to websockets and wires them into matchmaking.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	peerID, err := h.peerID(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	peer := &wsPeer{id: peerID, send: make(chan domain.Message, sendBuffer)}
	log := h.logger.With(zap.String("peer_id", peerID))
	log.Debug("peer connected")

	writerDone := make(chan struct{})
	go h.writePump(conn, peer, log, writerDone)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("ws read ended", zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.dispatch(ctx, peer, inbound, log)
	}

	h.service.Leave(context.Background(), peer)
	peer.close()
	<-writerDone
	log.Debug("peer disconnected")
}

func (h *WSHandler) dispatch(ctx context.Context, peer *wsPeer, inbound inboundMessage, log *zap.Logger) {
	switch inbound.Type {
	case domain.MsgFindMatch:
		if err := h.service.FindMatch(ctx, peer); err != nil {
			logStateError(log, inbound.Type, err)
		}
	case domain.MsgSubmitAnswer:
		var payload submitPayload
		if len(inbound.Payload) == 0 {
			log.Warn("drop submit_answer without payload")
			return
		}
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionIndex == nil {
			log.Warn("drop malformed submit_answer", zap.ByteString("payload", inbound.Payload))
			return
		}
		err := h.service.SubmitAnswer(ctx, peer.ID(), domain.Submission{
			QuestionIndex: *payload.QuestionIndex,
			AnswerIndex:   payload.AnswerIndex,
			Answer:        payload.Answer,
			Drawing:       payload.Drawing,
		})
		if err != nil {
			logStateError(log, inbound.Type, err)
		}
	default:
		log.Warn("drop unsupported message", zap.String("type", inbound.Type))
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, peer *wsPeer, log *zap.Logger, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()
	for {
		select {
		case msg, ok := <-peer.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				conn.Close()
				drain(peer.send)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				drain(peer.send)
				return
			}
		}
	}
}

func (h *WSHandler) peerID(r *http.Request) (string, error) {
	if h.verifier == nil {
		return "peer-" + uuid.NewString(), nil
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", domain.ErrUnauthorized
	}
	id, err := h.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return id.UserID, nil
}

// logStateError records rejected operations. They never reach the client.
func logStateError(log *zap.Logger, msgType string, err error) {
	switch {
	case errors.Is(err, domain.ErrClassifierUnavailable):
		log.Warn("answer evaluation failed", zap.String("type", msgType), zap.Error(err))
	case errors.Is(err, domain.ErrQuizNotFound):
		log.Error("quiz unavailable", zap.String("type", msgType), zap.Error(err))
	default:
		log.Debug("ignored message", zap.String("type", msgType), zap.Error(err))
	}
}

func drain(ch <-chan domain.Message) {
	for range ch {
	}
}
