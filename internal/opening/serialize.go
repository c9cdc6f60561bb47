package opening

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes the state as a versioned JSON blob.
func Marshal(s State) ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal decodes a versioned blob, rejecting unknown schema versions so a
// future format change fails loudly instead of being silently misread.
func Unmarshal(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, err
	}
	if s.SchemaVersion != SchemaVersion {
		return State{}, fmt.Errorf("unsupported opening schema version %d", s.SchemaVersion)
	}
	if s.Stones == nil {
		s.Stones = []Stone{}
	}
	if s.Log == nil {
		s.Log = []Action{}
	}
	return s, nil
}

// Recover rebuilds a usable state from a possibly damaged one, preserving
// any stones already placed. If the phase or active player cannot be made
// consistent with the stone count, the protocol resets to placement keeping
// the stones it can.
func Recover(s State) State {
	if s.Player1 == "" || s.Player2 == "" {
		return s
	}
	if s.SchemaVersion == 0 {
		s.SchemaVersion = SchemaVersion
	}
	if s.Stones == nil {
		s.Stones = []Stone{}
	}
	if s.Log == nil {
		s.Log = []Action{}
	}

	n := len(s.Stones)
	switch {
	case s.Phase == PhaseComplete && s.BlackPlayer != "" && s.WhitePlayer != "":
		return s
	case n < 3:
		s.Phase = PhasePlacement
		s.ActivePlayer = s.Player1
	case n == 3:
		// Could be choice, or extra with no extra stone yet. Choice is the
		// safe reset: it re-asks player2 for a decision.
		s.Phase = PhaseChoice
		s.ActivePlayer = s.Player2
	case n == 4:
		s.Phase = PhaseExtra
		s.ActivePlayer = s.Player2
	default:
		if n > 5 {
			s.Stones = s.Stones[:5]
		}
		s.Phase = PhaseFinalChoice
		s.ActivePlayer = s.Player1
	}
	s.BlackPlayer = ""
	s.WhitePlayer = ""
	s.FinalChoice = nil
	for i := range s.Stones {
		s.Stones[i].Order = i + 1
	}
	return s
}
