package match

import (
	"encoding/json"
	"fmt"

	"github.com/gomoku-arena/arena-backend/internal/opening"
)

// Marshal encodes the game as its versioned persistence blob.
func Marshal(s GameState) ([]byte, error) {
	return json.Marshal(s)
}

// Restore rebuilds a GameState from a persisted blob. A game mid-opening
// with a damaged protocol state gets best-effort recovery: stones already
// placed are preserved and the protocol phase is re-derived from them,
// falling back to a fresh placement phase.
func Restore(data []byte) (GameState, error) {
	var s GameState
	if err := json.Unmarshal(data, &s); err != nil {
		return GameState{}, err
	}
	if s.SchemaVersion != SchemaVersion {
		return GameState{}, fmt.Errorf("unsupported game schema version %d", s.SchemaVersion)
	}
	if s.Moves == nil {
		s.Moves = []Move{}
	}
	if s.TimeBudgets == nil {
		s.TimeBudgets = map[string]int64{}
	}

	if s.Phase == PhaseOpening {
		if s.Opening == nil {
			op := opening.New(s.Player1, s.Player2)
			s.Opening = &op
		} else {
			op := opening.Recover(*s.Opening)
			s.Opening = &op
		}
	}
	return s, nil
}
