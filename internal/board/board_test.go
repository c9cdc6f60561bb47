package board

import "testing"

// placeRun puts n stones of color c in a line starting at (x, y).
func placeRun(b *Board, x, y, dx, dy, n int, c Cell) {
	for i := 0; i < n; i++ {
		b[(y+dy*i)*Size+(x+dx*i)] = c
	}
}

func TestWinner_RunLengthBoundaries(t *testing.T) {
	cases := []struct {
		name string
		n    int
		want Cell
	}{
		{name: "four in a row is not a win", n: 4, want: Empty},
		{name: "exactly five wins", n: 5, want: Black},
		{name: "overline of six still wins", n: 6, want: Black},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var b Board
			placeRun(&b, 3, 7, 1, 0, tc.n, Black)
			if got := Winner(&b); got != tc.want {
				t.Fatalf("Winner: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWinner_AllDirections(t *testing.T) {
	dirs := []struct {
		name   string
		dx, dy int
	}{
		{"horizontal", 1, 0},
		{"vertical", 0, 1},
		{"diagonal down-right", 1, 1},
		{"diagonal up-right", 1, -1},
	}

	for _, d := range dirs {
		t.Run(d.name, func(t *testing.T) {
			var b Board
			placeRun(&b, 7, 7, d.dx, d.dy, 5, White)
			if got := Winner(&b); got != White {
				t.Fatalf("Winner: got %v, want White", got)
			}
		})
	}
}

func TestWinnerAt_AgreesWithFullScan(t *testing.T) {
	var b Board
	placeRun(&b, 2, 2, 1, 1, 5, Black)
	placeRun(&b, 0, 10, 1, 0, 4, White)

	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			if b.At(x, y) == Empty {
				continue
			}
			fast := WinnerAt(&b, x, y)
			full := Winner(&b)
			// The full scan reports the global winner; the fast path only
			// sees lines through (x, y). They must agree whenever the fast
			// path claims a winner, and the fast path must find the win on
			// every stone of the winning run.
			if fast != Empty && fast != full {
				t.Fatalf("(%d,%d): WinnerAt=%v, Winner=%v", x, y, fast, full)
			}
			if b.At(x, y) == full && full != Empty && fast != full {
				t.Fatalf("(%d,%d): winning stone not detected by WinnerAt", x, y)
			}
		}
	}
}

func TestWinnerAt_BrokenRunIsNoWin(t *testing.T) {
	var b Board
	placeRun(&b, 0, 0, 1, 0, 4, Black)
	b[0*Size+4] = White // cap the line at four
	if got := WinnerAt(&b, 0, 0); got != Empty {
		t.Fatalf("WinnerAt on broken run: got %v, want Empty", got)
	}
}

func TestPlace_Validation(t *testing.T) {
	var b Board
	if err := b.Place(7, 7, Black); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := b.Place(7, 7, White); err != ErrOccupied {
		t.Fatalf("want ErrOccupied, got %v", err)
	}
	if err := b.Place(15, 3, White); err != ErrOutOfBounds {
		t.Fatalf("want ErrOutOfBounds, got %v", err)
	}
	if err := b.Place(-1, 3, White); err != ErrOutOfBounds {
		t.Fatalf("want ErrOutOfBounds, got %v", err)
	}
}

func TestForbidden_DoubleThree(t *testing.T) {
	var b Board
	// Two open twos crossing at (7,7): placing there creates two open threes.
	placeRun(&b, 5, 7, 1, 0, 2, Black) // (5,7) (6,7) horizontal
	placeRun(&b, 7, 5, 0, 1, 2, Black) // (7,5) (7,6) vertical

	got := CheckForbidden(&b, 7, 7, Black)
	if !got.Forbidden || got.Reason != ReasonDoubleThree {
		t.Fatalf("want 3-3, got %+v", got)
	}
}

func TestForbidden_DoubleFour(t *testing.T) {
	var b Board
	// Two open threes crossing at (7,7): placing there creates two fours.
	placeRun(&b, 4, 7, 1, 0, 3, Black) // (4,7)..(6,7)
	placeRun(&b, 7, 4, 0, 1, 3, Black) // (7,4)..(7,6)

	got := CheckForbidden(&b, 7, 7, Black)
	if !got.Forbidden || got.Reason != ReasonDoubleFour {
		t.Fatalf("want 4-4, got %+v", got)
	}
}

func TestForbidden_SingleOpenThreeIsLegal(t *testing.T) {
	var b Board
	placeRun(&b, 5, 7, 1, 0, 2, Black)

	if got := CheckForbidden(&b, 7, 7, Black); got.Forbidden {
		t.Fatalf("single open three should be legal, got %+v", got)
	}
}

func TestForbidden_BlockedThreeDoesNotCount(t *testing.T) {
	var b Board
	// Horizontal three would be blocked on one end by White.
	placeRun(&b, 5, 7, 1, 0, 2, Black)
	b[7*Size+4] = White // blocks the left end
	placeRun(&b, 7, 5, 0, 1, 2, Black)

	// Vertical line still makes one open three, horizontal has one closed
	// end, so this is a single open three plus a half-open three: legal.
	if got := CheckForbidden(&b, 7, 7, Black); got.Forbidden {
		t.Fatalf("half-open three should not count toward 3-3, got %+v", got)
	}
}

func TestForbidden_WhiteNeverRestricted(t *testing.T) {
	var b Board
	placeRun(&b, 5, 7, 1, 0, 2, White)
	placeRun(&b, 7, 5, 0, 1, 2, White)

	if got := CheckForbidden(&b, 7, 7, White); got.Forbidden {
		t.Fatalf("white must never be forbidden, got %+v", got)
	}
}
