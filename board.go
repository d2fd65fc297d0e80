// Board geometry. Positions are color-relative: every token enters its
// ring at step 0 and travels the same 57-step sequence, so movement and
// capture logic never needs to know the absolute board layout. Mapping
// steps to physical cells is the client's job.

package main

// Color identifies one of the four player seats, assigned in join order.
type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorBlue   Color = "blue"
)

var turnColors = [maxPlayers]Color{ColorRed, ColorGreen, ColorYellow, ColorBlue}

// colorForOrdinal returns the color of the nth joiner.
func colorForOrdinal(n int) Color {
	return turnColors[n%maxPlayers]
}

const (
	// stepCount is the length of the shared main ring.
	stepCount = 52

	// pathLength is the total travel per token: the 52 ring steps plus
	// the 5 home-column steps. A token landing exactly on pathLength has
	// finished; anything beyond is an overshoot.
	pathLength = 57

	tokensPerPlayer = 4
	maxPlayers      = 4
	minPlayers      = 2
)

// Star cells on the ring where capture never occurs.
var safeCells = map[int]struct{}{
	0: {}, 8: {}, 13: {}, 21: {}, 26: {}, 34: {}, 39: {}, 47: {},
}

// isSafe reports whether a ring step is exempt from capture. Steps at or
// beyond stepCount sit in a color's own home column, which no opponent
// shares, so they are treated as safe as well.
func isSafe(step int) bool {
	if step >= stepCount {
		return true
	}
	_, ok := safeCells[step]
	return ok
}

// entryStep returns the step a color's tokens enter the board on. All
// positions being color-relative, every color enters at 0; the function
// exists so callers never hard-code the entry point.
func entryStep(Color) int {
	return 0
}
