package opening

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func mustPlace(t *testing.T, s State, player string, x, y int) State {
	t.Helper()
	next, err := ApplyPlacement(s, player, x, y, t0)
	if err != nil {
		t.Fatalf("place (%d,%d) by %s: %v", x, y, player, err)
	}
	return next
}

func mustChoose(t *testing.T, s State, player string, c Choice) State {
	t.Helper()
	next, err := ApplyChoice(s, player, c, t0)
	if err != nil {
		t.Fatalf("choose %s by %s: %v", c, player, err)
	}
	return next
}

func TestNew_StartsInPlacementWithPlayer1Active(t *testing.T) {
	s := New("p1", "p2")
	if s.Phase != PhasePlacement {
		t.Fatalf("phase: got %s, want placement", s.Phase)
	}
	if s.ActivePlayer != "p1" {
		t.Fatalf("active: got %s, want p1", s.ActivePlayer)
	}
	if len(s.Stones) != 0 {
		t.Fatalf("stones: got %d, want 0", len(s.Stones))
	}
}

func TestPlacement_ThreeStonesTransitionToChoice(t *testing.T) {
	s := New("p1", "p2")
	s = mustPlace(t, s, "p1", 7, 7)
	s = mustPlace(t, s, "p1", 7, 8)
	s = mustPlace(t, s, "p1", 8, 7)

	if s.Phase != PhaseChoice {
		t.Fatalf("phase after 3 placements: got %s, want choice", s.Phase)
	}
	if s.ActivePlayer != "p2" {
		t.Fatalf("active: got %s, want p2", s.ActivePlayer)
	}

	// A fourth placement by player1 is rejected and does not mutate state.
	_, err := ApplyPlacement(s, "p1", 9, 9, t0)
	var re *RuleError
	if !errors.As(err, &re) {
		t.Fatalf("want RuleError, got %v", err)
	}
	if re.Phase != PhaseChoice || re.ActivePlayer != "p2" {
		t.Fatalf("error echo: got phase=%s active=%s", re.Phase, re.ActivePlayer)
	}
	if len(s.Stones) != 3 {
		t.Fatalf("state mutated on rejected action")
	}
}

func TestPlacement_Rejections(t *testing.T) {
	s := New("p1", "p2")
	s = mustPlace(t, s, "p1", 7, 7)

	cases := []struct {
		name    string
		player  string
		x, y    int
		wantErr error
	}{
		{name: "wrong player", player: "p2", x: 1, y: 1, wantErr: ErrWrongPlayer},
		{name: "out of bounds", player: "p1", x: 15, y: 0, wantErr: ErrOutOfBounds},
		{name: "negative coordinate", player: "p1", x: -1, y: 0, wantErr: ErrOutOfBounds},
		{name: "tentative cell taken", player: "p1", x: 7, y: 7, wantErr: ErrCellTaken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ApplyPlacement(s, tc.player, tc.x, tc.y, t0)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestChoice_BlackAssignsChooserBlack(t *testing.T) {
	s := New("p1", "p2")
	s = mustPlace(t, s, "p1", 7, 7)
	s = mustPlace(t, s, "p1", 7, 8)
	s = mustPlace(t, s, "p1", 8, 7)
	s = mustChoose(t, s, "p2", ChoiceBlack)

	if s.Phase != PhaseComplete {
		t.Fatalf("phase: got %s, want complete", s.Phase)
	}
	if s.BlackPlayer != "p2" || s.WhitePlayer != "p1" {
		t.Fatalf("colors: black=%s white=%s", s.BlackPlayer, s.WhitePlayer)
	}
	if s.ActivePlayer != "p2" {
		t.Fatalf("black must move first, active=%s", s.ActivePlayer)
	}
}

func TestChoice_WhiteAssignsCounterpartBlack(t *testing.T) {
	s := New("p1", "p2")
	s = mustPlace(t, s, "p1", 7, 7)
	s = mustPlace(t, s, "p1", 7, 8)
	s = mustPlace(t, s, "p1", 8, 7)
	s = mustChoose(t, s, "p2", ChoiceWhite)

	if s.BlackPlayer != "p1" || s.WhitePlayer != "p2" {
		t.Fatalf("colors: black=%s white=%s", s.BlackPlayer, s.WhitePlayer)
	}
}

func TestPlaceMore_TwoExtraStonesThenFinalChoice(t *testing.T) {
	s := New("p1", "p2")
	s = mustPlace(t, s, "p1", 7, 7)
	s = mustPlace(t, s, "p1", 7, 8)
	s = mustPlace(t, s, "p1", 8, 7)
	s = mustChoose(t, s, "p2", ChoicePlaceMore)

	if s.Phase != PhaseExtra || s.ActivePlayer != "p2" {
		t.Fatalf("after place_more: phase=%s active=%s", s.Phase, s.ActivePlayer)
	}

	s = mustPlace(t, s, "p2", 9, 9)
	if s.Phase != PhaseExtra {
		t.Fatalf("one extra stone must not advance phase, got %s", s.Phase)
	}
	s = mustPlace(t, s, "p2", 10, 10)

	if s.Phase != PhaseFinalChoice || s.ActivePlayer != "p1" {
		t.Fatalf("after 5 stones: phase=%s active=%s", s.Phase, s.ActivePlayer)
	}

	// place_more is not available in final_choice.
	if _, err := ApplyChoice(s, "p1", ChoicePlaceMore, t0); !errors.Is(err, ErrBadChoice) {
		t.Fatalf("want ErrBadChoice, got %v", err)
	}

	s = mustChoose(t, s, "p1", ChoiceBlack)
	if s.BlackPlayer != "p1" || s.WhitePlayer != "p2" {
		t.Fatalf("final choice black: black=%s white=%s", s.BlackPlayer, s.WhitePlayer)
	}
	if len(s.Stones) != 5 {
		t.Fatalf("stones: got %d, want 5", len(s.Stones))
	}
}

func TestAuditLog_RetainsFullSequence(t *testing.T) {
	s := New("p1", "p2")
	s = mustPlace(t, s, "p1", 7, 7)
	s = mustPlace(t, s, "p1", 7, 8)
	s = mustPlace(t, s, "p1", 8, 7)
	s = mustChoose(t, s, "p2", ChoicePlaceMore)
	s = mustPlace(t, s, "p2", 9, 9)
	s = mustPlace(t, s, "p2", 10, 10)
	s = mustChoose(t, s, "p1", ChoiceWhite)

	if len(s.Log) != 7 {
		t.Fatalf("audit log: got %d entries, want 7", len(s.Log))
	}
	if s.Log[3].Kind != ActionChoose || s.Log[3].Choice != ChoicePlaceMore {
		t.Fatalf("log[3]: got %+v", s.Log[3])
	}
	if s.Log[6].PlayerID != "p1" || s.Log[6].Choice != ChoiceWhite {
		t.Fatalf("log[6]: got %+v", s.Log[6])
	}
}

func TestTimeout_PlacementAutoPlacesRandomEmptyCell(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	s := New("p1", "p2")

	s, err := ApplyTimeout(s, rnd, t0)
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if len(s.Stones) != 1 || s.Stones[0].PlacedBy != "p1" {
		t.Fatalf("auto-placement missing: %+v", s.Stones)
	}
}

func TestTimeout_ChoiceDefaultsToBlack(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	s := New("p1", "p2")
	s = mustPlace(t, s, "p1", 7, 7)
	s = mustPlace(t, s, "p1", 7, 8)
	s = mustPlace(t, s, "p1", 8, 7)

	s, err := ApplyTimeout(s, rnd, t0)
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if s.Phase != PhaseComplete || s.BlackPlayer != "p2" {
		t.Fatalf("timeout in choice must pick black for p2, got phase=%s black=%s", s.Phase, s.BlackPlayer)
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	s := New("p1", "p2")
	s = mustPlace(t, s, "p1", 7, 7)
	s = mustPlace(t, s, "p1", 7, 8)
	s = mustPlace(t, s, "p1", 8, 7)
	s = mustChoose(t, s, "p2", ChoicePlaceMore)
	s = mustPlace(t, s, "p2", 9, 9)

	blob, err := Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(blob)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Phase != s.Phase || got.ActivePlayer != s.ActivePlayer {
		t.Fatalf("round trip: phase=%s active=%s", got.Phase, got.ActivePlayer)
	}
	if len(got.Stones) != len(s.Stones) {
		t.Fatalf("round trip stones: got %d, want %d", len(got.Stones), len(s.Stones))
	}
	for i := range s.Stones {
		if got.Stones[i] != s.Stones[i] {
			t.Fatalf("stone %d: got %+v, want %+v", i, got.Stones[i], s.Stones[i])
		}
	}
}

func TestUnmarshal_RejectsUnknownSchemaVersion(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"schema_version":99,"phase":"placement"}`)); err == nil {
		t.Fatalf("want schema version error")
	}
}

func TestRecover_PreservesStonesAndResetsPhase(t *testing.T) {
	cases := []struct {
		name       string
		stones     int
		wantPhase  Phase
		wantActive string
	}{
		{name: "no stones", stones: 0, wantPhase: PhasePlacement, wantActive: "p1"},
		{name: "two stones", stones: 2, wantPhase: PhasePlacement, wantActive: "p1"},
		{name: "three stones", stones: 3, wantPhase: PhaseChoice, wantActive: "p2"},
		{name: "four stones", stones: 4, wantPhase: PhaseExtra, wantActive: "p2"},
		{name: "five stones", stones: 5, wantPhase: PhaseFinalChoice, wantActive: "p1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := State{SchemaVersion: SchemaVersion, Player1: "p1", Player2: "p2", Phase: Phase("garbage")}
			for i := 0; i < tc.stones; i++ {
				s.Stones = append(s.Stones, Stone{X: i, Y: i, PlacedBy: "p1", Order: i + 1})
			}

			got := Recover(s)
			if got.Phase != tc.wantPhase || got.ActivePlayer != tc.wantActive {
				t.Fatalf("got phase=%s active=%s, want phase=%s active=%s",
					got.Phase, got.ActivePlayer, tc.wantPhase, tc.wantActive)
			}
			if len(got.Stones) != tc.stones {
				t.Fatalf("stones not preserved: got %d, want %d", len(got.Stones), tc.stones)
			}
		})
	}
}
