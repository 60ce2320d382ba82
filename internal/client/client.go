// Package client speaks the duel matchmaking protocol over a websocket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"aksara-duel-service/internal/domain"
)

// ErrOpponentLeft is returned when the room closes because the other player disconnected.
var ErrOpponentLeft = errors.New("opponent disconnected")

// Event is one server message with its payload left undecoded.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e Event) MatchFound() (domain.MatchFound, error) {
	var mf domain.MatchFound
	if e.Type != domain.MsgMatchFound {
		return mf, fmt.Errorf("event %s is not %s", e.Type, domain.MsgMatchFound)
	}
	err := json.Unmarshal(e.Payload, &mf)
	return mf, err
}

// State decodes game_update and game_end payloads.
func (e Event) State() (domain.RoomState, error) {
	var st domain.RoomState
	if e.Type != domain.MsgGameUpdate && e.Type != domain.MsgGameEnd {
		return st, fmt.Errorf("event %s carries no room state", e.Type)
	}
	err := json.Unmarshal(e.Payload, &st)
	return st, err
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type submitPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	AnswerIndex   int    `json:"answerIndex"`
	Answer        string `json:"answer,omitempty"`
	Drawing       []byte `json:"drawing,omitempty"`
}

type Client struct {
	conn *websocket.Conn
}

// Dial connects to the duel endpoint. token is appended as ?token= when set.
func Dial(ctx context.Context, endpoint, token string) (*Client, error) {
	if token != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(1 << 20)
	return &Client{conn: conn}, nil
}

func (c *Client) FindMatch(ctx context.Context) error {
	return wsjson.Write(ctx, c.conn, outbound{Type: domain.MsgFindMatch})
}

// Submit answers the question at questionIndex. Multiple choice answers go in
// answer, drawings in drawing.
func (c *Client) Submit(ctx context.Context, questionIndex int, answer string, drawing []byte) error {
	return wsjson.Write(ctx, c.conn, outbound{
		Type: domain.MsgSubmitAnswer,
		Payload: submitPayload{
			QuestionIndex: questionIndex,
			Answer:        answer,
			Drawing:       drawing,
		},
	})
}

// Next blocks until the server sends a message.
func (c *Client) Next(ctx context.Context) (Event, error) {
	var ev Event
	if err := wsjson.Read(ctx, c.conn, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
