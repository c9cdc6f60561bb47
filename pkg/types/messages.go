// Package types defines the wire protocol between clients and the realtime
// layer. Events mirror the room actor's outputs one to one.
package types

import "encoding/json"

// Client -> Server message types.
const (
	MsgMakeMove      = "make_move"
	MsgOpeningChoice = "opening_choice"
)

// ClientMessage is every inbound frame; unused fields stay zero.
type ClientMessage struct {
	Type   string `json:"type"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Choice string `json:"choice,omitempty"` // black | white | place_more
}

// Server -> Client event types.
const (
	EvtStateSnapshot        = "state_snapshot"
	EvtError                = "error"
	EvtOpponentDisconnected = "opponent_disconnected"
	EvtDisconnectCountdown  = "disconnect_countdown"
	EvtOpponentReconnected  = "opponent_reconnected"
	EvtAutoWin              = "auto_win"
	EvtForfeitLoss          = "forfeit_loss"
	EvtGameOver             = "game_over"
	EvtNextGame             = "next_game"
	EvtSeriesComplete       = "series_complete"
	EvtRoomPendingForfeit   = "room_pending_forfeit"
)

// ServerEvent is every outbound frame. Payload shape depends on Type.
type ServerEvent struct {
	Type    string          `json:"type"`
	Version int64           `json:"version,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload echoes the authoritative state so the client can resync.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Phase        string `json:"phase,omitempty"`
	ActivePlayer string `json:"active_player,omitempty"`
}

type CountdownPayload struct {
	DisconnectedPlayer string `json:"disconnected_player"`
	SecondsLeft        int    `json:"seconds_left"`
}

type DisconnectPayload struct {
	PlayerID    string `json:"player_id"`
	GraceMillis int64  `json:"grace_ms"`
}

type GameOverPayload struct {
	WinnerID   string `json:"winner_id,omitempty"` // empty on draw
	Reason     string `json:"reason"`
	GameNumber int    `json:"game_number"`
	Score      string `json:"score"`
}

type ForfeitPayload struct {
	WinnerID    string `json:"winner_id"`
	LoserID     string `json:"loser_id"`
	WinnerDelta int    `json:"winner_delta"`
	LoserDelta  int    `json:"loser_delta"`
	FinalScore  string `json:"final_score"`
}

type NextGamePayload struct {
	GameNumber int    `json:"game_number"`
	Score      string `json:"score"`
	OpenerID   string `json:"opener_id"`
}

type SeriesCompletePayload struct {
	WinnerID    string            `json:"winner_id"`
	FinalScore  string            `json:"final_score"`
	Points      map[string]int    `json:"points,omitempty"`
	RankChanges map[string]string `json:"rank_changes,omitempty"`
}
