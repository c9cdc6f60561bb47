// Package match holds the authoritative per-game state transition: it
// composes the board engine and the opening protocol, enforces turn order
// and time budgets, and produces the versioned GameState blob the store
// persists. All functions are pure: state in, state out, and the input is
// never mutated when an action is rejected.
package match

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/gomoku-arena/arena-backend/internal/board"
	"github.com/gomoku-arena/arena-backend/internal/opening"
)

type GamePhase string

const (
	PhaseOpening GamePhase = "opening"
	PhaseMain    GamePhase = "main"
)

// EndReason tags how a finished game ended.
type EndReason string

const (
	EndFiveInRow EndReason = "five_in_row"
	EndTimeout   EndReason = "timeout"
	EndForfeit   EndReason = "forfeit"
	EndDraw      EndReason = "draw"
)

// Move is an accepted main-phase stone. Immutable once recorded.
type Move struct {
	X        int        `json:"x"`
	Y        int        `json:"y"`
	PlayerID string     `json:"player_id"`
	Color    board.Cell `json:"color"`
	Seq      int        `json:"seq"`
	At       time.Time  `json:"at"`
}

const SchemaVersion = 1

// GameState is one game's full authoritative state.
type GameState struct {
	SchemaVersion int              `json:"schema_version"`
	GameID        string           `json:"game_id"`
	Player1       string           `json:"player1"`
	Player2       string           `json:"player2"`
	Phase         GamePhase        `json:"phase"`
	Board         board.Board      `json:"board"`
	Moves         []Move           `json:"moves"`
	CurrentTurn   board.Cell       `json:"current_turn"`
	BlackPlayer   string           `json:"black_player,omitempty"`
	WhitePlayer   string           `json:"white_player,omitempty"`
	Opening       *opening.State   `json:"opening,omitempty"`
	OpeningLog    []opening.Action `json:"opening_log,omitempty"`
	TimeBudgets   map[string]int64 `json:"time_budgets_ms"`
	Forbidden     bool             `json:"forbidden_rules"`
	Winner        string           `json:"winner,omitempty"`
	Finished      bool             `json:"finished"`
	EndReason     EndReason        `json:"end_reason,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
}

type Options struct {
	OpeningEnabled bool
	ForbiddenRules bool
	TimeBudget     time.Duration // per player, per game
}

// New creates a game. With the opening enabled the game starts in
// opening/placement; otherwise player1 is Black, player2 is White, and Black
// moves first.
func New(gameID, player1, player2 string, opts Options, now time.Time) GameState {
	s := GameState{
		SchemaVersion: SchemaVersion,
		GameID:        gameID,
		Player1:       player1,
		Player2:       player2,
		Moves:         []Move{},
		TimeBudgets: map[string]int64{
			player1: opts.TimeBudget.Milliseconds(),
			player2: opts.TimeBudget.Milliseconds(),
		},
		StartedAt: now,
	}
	if opts.OpeningEnabled {
		op := opening.New(player1, player2)
		s.Phase = PhaseOpening
		s.Opening = &op
	} else {
		s.Phase = PhaseMain
		s.BlackPlayer = player1
		s.WhitePlayer = player2
		s.CurrentTurn = board.Black
	}
	s.Forbidden = opts.ForbiddenRules
	return s
}

// ValidationError is a local, synchronous, non-fatal rejection. It echoes
// the authoritative phase and active player so the client can resync.
type ValidationError struct {
	Code         string    `json:"code"`
	Reason       string    `json:"reason,omitempty"`
	Phase        GamePhase `json:"phase"`
	ActivePlayer string    `json:"active_player"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (phase=%s active=%s)", e.Code, e.Reason, e.Phase, e.ActivePlayer)
}

const (
	CodeWrongTurn     = "wrong_turn"
	CodeWrongPhase    = "wrong_phase"
	CodeOccupied      = "occupied"
	CodeOutOfBounds   = "out_of_bounds"
	CodeForbidden     = "forbidden"
	CodeTimeExhausted = "time_exhausted"
	CodeFinished      = "game_finished"
	CodeUnknownPlayer = "unknown_player"
)

func (s GameState) reject(code, reason string) (GameState, error) {
	return s, &ValidationError{
		Code:         code,
		Reason:       reason,
		Phase:        s.Phase,
		ActivePlayer: s.ActivePlayer(),
	}
}

// ActivePlayer is whoever's action the game is waiting on.
func (s GameState) ActivePlayer() string {
	if s.Phase == PhaseOpening && s.Opening != nil {
		return s.Opening.ActivePlayer
	}
	return s.ColorPlayer(s.CurrentTurn)
}

// PlayerColor returns the color assigned to playerID, Empty before colors
// are fixed.
func (s GameState) PlayerColor(playerID string) board.Cell {
	switch playerID {
	case s.BlackPlayer:
		return board.Black
	case s.WhitePlayer:
		return board.White
	default:
		return board.Empty
	}
}

func (s GameState) ColorPlayer(c board.Cell) string {
	switch c {
	case board.Black:
		return s.BlackPlayer
	case board.White:
		return s.WhitePlayer
	default:
		return ""
	}
}

func (s GameState) knownPlayer(playerID string) bool {
	return playerID == s.Player1 || playerID == s.Player2
}

// PlaceStone applies a stone from playerID. During the opening it delegates
// to the protocol; during main it validates turn order and cell, applies the
// stone, and runs last-move win detection.
func PlaceStone(s GameState, playerID string, x, y int, now time.Time) (GameState, error) {
	if s.Finished {
		return s.reject(CodeFinished, "game is over")
	}
	if !s.knownPlayer(playerID) {
		return s.reject(CodeUnknownPlayer, playerID)
	}
	if s.TimeBudgets[playerID] <= 0 {
		return s.reject(CodeTimeExhausted, "time budget exhausted")
	}

	if s.Phase == PhaseOpening {
		return s.openingPlacement(playerID, x, y, now)
	}
	return s.mainMove(playerID, x, y, now)
}

func (s GameState) mainMove(playerID string, x, y int, now time.Time) (GameState, error) {
	color := s.PlayerColor(playerID)
	if color != s.CurrentTurn {
		return s.reject(CodeWrongTurn, "not your turn")
	}
	if !board.InBounds(x, y) {
		return s.reject(CodeOutOfBounds, fmt.Sprintf("(%d,%d)", x, y))
	}
	if s.Board.At(x, y) != board.Empty {
		return s.reject(CodeOccupied, fmt.Sprintf("(%d,%d)", x, y))
	}
	if s.Forbidden {
		if fc := board.CheckForbidden(&s.Board, x, y, color); fc.Forbidden {
			return s.reject(CodeForbidden, string(fc.Reason))
		}
	}

	next := s
	next.Board[y*board.Size+x] = color
	next.Moves = append(append([]Move{}, s.Moves...), Move{
		X: x, Y: y, PlayerID: playerID, Color: color, Seq: len(s.Moves) + 1, At: now,
	})

	if w := board.WinnerAt(&next.Board, x, y); w != board.Empty {
		next.Winner = next.ColorPlayer(w)
		next.Finished = true
		next.EndReason = EndFiveInRow
		return next, nil
	}
	if next.Board.StoneCount() == board.Size*board.Size {
		next.Finished = true
		next.EndReason = EndDraw
		return next, nil
	}
	next.CurrentTurn = s.CurrentTurn.Opponent()
	return next, nil
}

func (s GameState) openingPlacement(playerID string, x, y int, now time.Time) (GameState, error) {
	op, err := opening.ApplyPlacement(*s.Opening, playerID, x, y, now)
	if err != nil {
		return s, translateOpeningErr(s, err)
	}
	next := s
	next.Opening = &op
	return next, nil
}

// OpeningChoice applies a color / place_more decision; only valid while the
// game is in the opening phase. Completion of the protocol performs the
// one-time transition into main.
func OpeningChoice(s GameState, playerID string, choice opening.Choice, now time.Time) (GameState, error) {
	if s.Finished {
		return s.reject(CodeFinished, "game is over")
	}
	if s.Phase != PhaseOpening || s.Opening == nil {
		return s.reject(CodeWrongPhase, "no opening in progress")
	}
	if !s.knownPlayer(playerID) {
		return s.reject(CodeUnknownPlayer, playerID)
	}
	if s.TimeBudgets[playerID] <= 0 {
		return s.reject(CodeTimeExhausted, "time budget exhausted")
	}

	op, err := opening.ApplyChoice(*s.Opening, playerID, choice, now)
	if err != nil {
		return s, translateOpeningErr(s, err)
	}
	next := s
	next.Opening = &op
	if op.Phase == opening.PhaseComplete {
		next = next.enterMain(op)
	}
	return next, nil
}

// OpeningTimeout applies the protocol's default action for the active
// player, used when their clock runs out during the opening.
func OpeningTimeout(s GameState, rnd *rand.Rand, now time.Time) (GameState, error) {
	if s.Phase != PhaseOpening || s.Opening == nil {
		return s.reject(CodeWrongPhase, "no opening in progress")
	}
	op, err := opening.ApplyTimeout(*s.Opening, rnd, now)
	if err != nil {
		return s, translateOpeningErr(s, err)
	}
	next := s
	next.Opening = &op
	if op.Phase == opening.PhaseComplete {
		next = next.enterMain(op)
	}
	return next, nil
}

// enterMain folds the completed opening into main-game state: tentative
// stones get their final colors on the board, Black moves first, and the
// protocol state collapses into the audit log.
func (s GameState) enterMain(op opening.State) GameState {
	next := s
	for _, st := range op.StonesFor(board.Black) {
		next.Board[st.Y*board.Size+st.X] = board.Black
	}
	for _, st := range op.StonesFor(board.White) {
		next.Board[st.Y*board.Size+st.X] = board.White
	}
	next.BlackPlayer = op.BlackPlayer
	next.WhitePlayer = op.WhitePlayer
	next.CurrentTurn = board.Black
	next.Phase = PhaseMain
	next.OpeningLog = op.Log
	next.Opening = nil
	return next
}

// ChargeTime deducts wall-clock spend from a player's budget, flooring at
// zero. The caller owns the clock; this keeps the accounting in one place.
func ChargeTime(s GameState, playerID string, spent time.Duration) GameState {
	next := s
	budgets := make(map[string]int64, len(s.TimeBudgets))
	for k, v := range s.TimeBudgets {
		budgets[k] = v
	}
	ms := budgets[playerID] - spent.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	budgets[playerID] = ms
	next.TimeBudgets = budgets
	return next
}

// TimeoutLoss ends the game against playerID when their budget is gone.
func TimeoutLoss(s GameState, playerID string) GameState {
	next := s
	next.Finished = true
	next.EndReason = EndTimeout
	if playerID == s.Player1 {
		next.Winner = s.Player2
	} else {
		next.Winner = s.Player1
	}
	return next
}

func translateOpeningErr(s GameState, err error) error {
	code := CodeWrongPhase
	switch {
	case errors.Is(err, opening.ErrWrongPlayer):
		code = CodeWrongTurn
	case errors.Is(err, opening.ErrOutOfBounds):
		code = CodeOutOfBounds
	case errors.Is(err, opening.ErrCellTaken):
		code = CodeOccupied
	}
	return &ValidationError{
		Code:         code,
		Reason:       err.Error(),
		Phase:        s.Phase,
		ActivePlayer: s.ActivePlayer(),
	}
}
