package domain

// Message types of the matchmaking protocol.
const (
	MsgFindMatch            = "find_match"
	MsgSubmitAnswer         = "submit_answer"
	MsgSearching            = "searching"
	MsgMatchFound           = "match_found"
	MsgGameUpdate           = "game_update"
	MsgGameEnd              = "game_end"
	MsgOpponentDisconnected = "opponent_disconnected"
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}
