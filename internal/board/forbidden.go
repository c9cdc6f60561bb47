package board

// ForbiddenReason tags why a move is illegal for Black.
type ForbiddenReason string

const (
	ReasonDoubleThree ForbiddenReason = "3-3"
	ReasonDoubleFour  ForbiddenReason = "4-4"
)

type ForbiddenCheck struct {
	Forbidden bool
	Reason    ForbiddenReason
}

// CheckForbidden simulates placing c at (x, y) and reports whether the move
// creates two or more simultaneous open threes (3-3) or open fours (4-4).
// Only Black is subject to forbidden-move rules; White is never restricted.
func CheckForbidden(b *Board, x, y int, c Cell) ForbiddenCheck {
	if c != Black {
		return ForbiddenCheck{}
	}
	if !InBounds(x, y) || b.At(x, y) != Empty {
		return ForbiddenCheck{}
	}

	sim := *b
	sim[y*Size+x] = c

	openThrees := 0
	openFours := 0
	for _, d := range directions {
		run, open := lineShape(&sim, x, y, d[0], d[1], c)
		switch {
		case run == 3 && open == 2:
			openThrees++
		case run == 4 && open >= 1:
			openFours++
		}
	}

	if openFours >= 2 {
		return ForbiddenCheck{Forbidden: true, Reason: ReasonDoubleFour}
	}
	if openThrees >= 2 {
		return ForbiddenCheck{Forbidden: true, Reason: ReasonDoubleThree}
	}
	return ForbiddenCheck{}
}

// lineShape returns the run length through (x, y) along (dx, dy) and how many
// of its two ends are open (an in-bounds empty cell).
func lineShape(b *Board, x, y, dx, dy int, c Cell) (run, open int) {
	run = 1

	fx, fy := x+dx, y+dy
	for InBounds(fx, fy) && b.At(fx, fy) == c {
		run++
		fx, fy = fx+dx, fy+dy
	}
	if InBounds(fx, fy) && b.At(fx, fy) == Empty {
		open++
	}

	bx, by := x-dx, y-dy
	for InBounds(bx, by) && b.At(bx, by) == c {
		run++
		bx, by = bx-dx, by-dy
	}
	if InBounds(bx, by) && b.At(bx, by) == Empty {
		open++
	}
	return run, open
}
