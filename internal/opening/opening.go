// Package opening implements the Swap2 opening protocol: a pre-game phase
// that neutralizes first-move advantage by letting the second player choose
// colors after seeing the opening stones.
package opening

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/gomoku-arena/arena-backend/internal/board"
)

var ErrWrongPlayer = errors.New("not this player's action")
var ErrWrongAction = errors.New("action not valid in current phase")
var ErrOutOfBounds = errors.New("position out of bounds")
var ErrCellTaken = errors.New("cell already holds a tentative stone")
var ErrBadChoice = errors.New("unknown choice")
var ErrComplete = errors.New("opening already complete")

type Phase string

const (
	PhasePlacement   Phase = "placement"
	PhaseChoice      Phase = "choice"
	PhaseExtra       Phase = "extra"
	PhaseFinalChoice Phase = "final_choice"
	PhaseComplete    Phase = "complete"
)

type Choice string

const (
	ChoiceBlack     Choice = "black"
	ChoiceWhite     Choice = "white"
	ChoicePlaceMore Choice = "place_more"
)

// Stone is a tentative placement made before colors are fixed.
type Stone struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	PlacedBy string `json:"placed_by"`
	Order    int    `json:"order"`
}

// ActionKind labels entries of the audit log.
type ActionKind string

const (
	ActionPlace  ActionKind = "place"
	ActionChoose ActionKind = "choose"
)

// Action is one accepted protocol step, retained in order for replay.
type Action struct {
	Kind     ActionKind `json:"kind"`
	PlayerID string     `json:"player_id"`
	X        int        `json:"x,omitempty"`
	Y        int        `json:"y,omitempty"`
	Choice   Choice     `json:"choice,omitempty"`
	At       time.Time  `json:"at"`
}

// FinalChoice records who picked which color, for audit.
type FinalChoice struct {
	Chooser string `json:"chooser"`
	Color   Choice `json:"color"`
}

// State is the full protocol state. It is a value: Apply-style functions
// return a new state and never mutate their input on error.
type State struct {
	SchemaVersion int          `json:"schema_version"`
	Phase         Phase        `json:"phase"`
	Player1       string       `json:"player1"`
	Player2       string       `json:"player2"`
	ActivePlayer  string       `json:"active_player"`
	Stones        []Stone      `json:"stones"`
	FinalChoice   *FinalChoice `json:"final_choice,omitempty"`
	BlackPlayer   string       `json:"black_player,omitempty"`
	WhitePlayer   string       `json:"white_player,omitempty"`
	Log           []Action     `json:"log"`
}

const SchemaVersion = 1

// New starts the protocol in placement with player1 active and no stones.
func New(player1, player2 string) State {
	return State{
		SchemaVersion: SchemaVersion,
		Phase:         PhasePlacement,
		Player1:       player1,
		Player2:       player2,
		ActivePlayer:  player1,
		Stones:        []Stone{},
		Log:           []Action{},
	}
}

// RuleError wraps a protocol violation with the authoritative phase and
// active player echoed back so the caller can resync.
type RuleError struct {
	Err          error
	Phase        Phase
	ActivePlayer string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%v (phase=%s active=%s)", e.Err, e.Phase, e.ActivePlayer)
}

func (e *RuleError) Unwrap() error { return e.Err }

func (s State) reject(err error) (State, error) {
	return s, &RuleError{Err: err, Phase: s.Phase, ActivePlayer: s.ActivePlayer}
}

func (s State) hasStoneAt(x, y int) bool {
	for _, st := range s.Stones {
		if st.X == x && st.Y == y {
			return true
		}
	}
	return false
}

// ApplyPlacement handles a tentative stone during placement or extra.
func ApplyPlacement(s State, playerID string, x, y int, now time.Time) (State, error) {
	switch s.Phase {
	case PhasePlacement, PhaseExtra:
	case PhaseComplete:
		return s.reject(ErrComplete)
	default:
		return s.reject(ErrWrongAction)
	}
	if playerID != s.ActivePlayer {
		return s.reject(ErrWrongPlayer)
	}
	if !board.InBounds(x, y) {
		return s.reject(ErrOutOfBounds)
	}
	if s.hasStoneAt(x, y) {
		return s.reject(ErrCellTaken)
	}

	next := s
	next.Stones = append(append([]Stone{}, s.Stones...), Stone{
		X: x, Y: y, PlacedBy: playerID, Order: len(s.Stones) + 1,
	})
	next.Log = append(append([]Action{}, s.Log...), Action{
		Kind: ActionPlace, PlayerID: playerID, X: x, Y: y, At: now,
	})

	switch {
	case next.Phase == PhasePlacement && len(next.Stones) == 3:
		next.Phase = PhaseChoice
		next.ActivePlayer = next.Player2
	case next.Phase == PhaseExtra && len(next.Stones) == 5:
		next.Phase = PhaseFinalChoice
		next.ActivePlayer = next.Player1
	}
	return next, nil
}

// ApplyChoice handles the color/place_more decision in choice and the final
// color decision in final_choice.
func ApplyChoice(s State, playerID string, choice Choice, now time.Time) (State, error) {
	switch s.Phase {
	case PhaseChoice, PhaseFinalChoice:
	case PhaseComplete:
		return s.reject(ErrComplete)
	default:
		return s.reject(ErrWrongAction)
	}
	if playerID != s.ActivePlayer {
		return s.reject(ErrWrongPlayer)
	}

	switch choice {
	case ChoiceBlack, ChoiceWhite:
	case ChoicePlaceMore:
		if s.Phase != PhaseChoice {
			return s.reject(ErrBadChoice)
		}
	default:
		return s.reject(ErrBadChoice)
	}

	next := s
	next.Log = append(append([]Action{}, s.Log...), Action{
		Kind: ActionChoose, PlayerID: playerID, Choice: choice, At: now,
	})

	if choice == ChoicePlaceMore {
		next.Phase = PhaseExtra
		next.ActivePlayer = next.Player2
		return next, nil
	}

	next.FinalChoice = &FinalChoice{Chooser: playerID, Color: choice}
	if choice == ChoiceBlack {
		next.BlackPlayer = playerID
		next.WhitePlayer = next.counterpart(playerID)
	} else {
		next.WhitePlayer = playerID
		next.BlackPlayer = next.counterpart(playerID)
	}
	next.Phase = PhaseComplete
	next.ActivePlayer = next.BlackPlayer // black moves first in main
	return next, nil
}

func (s State) counterpart(playerID string) string {
	if playerID == s.Player1 {
		return s.Player2
	}
	return s.Player1
}

// ApplyTimeout performs the default action for the active player: a uniform
// random placement on a cell without a tentative stone during
// placement/extra, and a conservative "black" selection during
// choice/final_choice. The board holds nothing but the tentative stones
// until the protocol completes, so the tentative set is the whole occupancy
// picture.
func ApplyTimeout(s State, rnd *rand.Rand, now time.Time) (State, error) {
	switch s.Phase {
	case PhasePlacement, PhaseExtra:
		free := make([][2]int, 0, board.Size*board.Size)
		for y := 0; y < board.Size; y++ {
			for x := 0; x < board.Size; x++ {
				if !s.hasStoneAt(x, y) {
					free = append(free, [2]int{x, y})
				}
			}
		}
		pick := free[rnd.Intn(len(free))]
		return ApplyPlacement(s, s.ActivePlayer, pick[0], pick[1], now)
	case PhaseChoice, PhaseFinalChoice:
		return ApplyChoice(s, s.ActivePlayer, ChoiceBlack, now)
	default:
		return s.reject(ErrComplete)
	}
}

// StonesFor returns the tentative stones that become color c once the
// protocol completes: odd orders are Black, even orders are White (stones 1,
// 3, 5 are black, 2 and 4 white, per Swap2 convention).
func (s State) StonesFor(c board.Cell) []Stone {
	var out []Stone
	for _, st := range s.Stones {
		black := st.Order%2 == 1
		if (c == board.Black && black) || (c == board.White && !black) {
			out = append(out, st)
		}
	}
	return out
}
