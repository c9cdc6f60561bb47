package board

import "errors"

// Size is the board edge length. The game is always played on 15x15.
const Size = 15

var ErrOutOfBounds = errors.New("position out of bounds")
var ErrOccupied = errors.New("cell occupied")

type Cell uint8

const (
	Empty Cell = iota
	Black
	White
)

func (c Cell) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// Opponent returns the other stone color. Empty maps to Empty.
func (c Cell) Opponent() Cell {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

// Board is the canonical flat representation, indexed y*Size+x.
type Board [Size * Size]Cell

func InBounds(x, y int) bool {
	return x >= 0 && x < Size && y >= 0 && y < Size
}

func (b *Board) At(x, y int) Cell {
	return b[y*Size+x]
}

// Place sets a stone, rejecting out-of-bounds and occupied cells.
func (b *Board) Place(x, y int, c Cell) error {
	if !InBounds(x, y) {
		return ErrOutOfBounds
	}
	if b[y*Size+x] != Empty {
		return ErrOccupied
	}
	b[y*Size+x] = c
	return nil
}

func (b *Board) StoneCount() int {
	n := 0
	for _, c := range b {
		if c != Empty {
			n++
		}
	}
	return n
}

// EmptyCells lists every open position, used for timeout auto-placement.
func (b *Board) EmptyCells() [][2]int {
	cells := make([][2]int, 0, Size*Size)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			if b[y*Size+x] == Empty {
				cells = append(cells, [2]int{x, y})
			}
		}
	}
	return cells
}
