package board

// The four scan directions; the reverse of each is covered by walking backward.
var directions = [4][2]int{
	{1, 0},  // horizontal
	{0, 1},  // vertical
	{1, 1},  // diagonal down-right
	{1, -1}, // diagonal up-right
}

// Winner scans the whole board and returns the first player found with five
// or more in a row, or Empty when there is no winner.
func Winner(b *Board) Cell {
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			c := b.At(x, y)
			if c == Empty {
				continue
			}
			for _, d := range directions {
				if runLength(b, x, y, d[0], d[1], c) >= 5 {
					return c
				}
			}
		}
	}
	return Empty
}

// WinnerAt checks only the four lines through (x, y). It must agree with
// Winner on any board where a stone exists at that position, and is the
// per-move fast path.
func WinnerAt(b *Board, x, y int) Cell {
	if !InBounds(x, y) {
		return Empty
	}
	c := b.At(x, y)
	if c == Empty {
		return Empty
	}
	for _, d := range directions {
		if runLength(b, x, y, d[0], d[1], c) >= 5 {
			return c
		}
	}
	return Empty
}

// runLength counts consecutive stones of color c on the line through (x, y)
// in direction (dx, dy), walking both forward and backward from the anchor.
func runLength(b *Board, x, y, dx, dy int, c Cell) int {
	n := 1
	for i := 1; ; i++ {
		nx, ny := x+dx*i, y+dy*i
		if !InBounds(nx, ny) || b.At(nx, ny) != c {
			break
		}
		n++
	}
	for i := 1; ; i++ {
		nx, ny := x-dx*i, y-dy*i
		if !InBounds(nx, ny) || b.At(nx, ny) != c {
			break
		}
		n++
	}
	return n
}
