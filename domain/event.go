package domain

// Color is an RGB triple attached to a drawing event.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// DrawingEvent represents one immutable drawing action to be replayed by
// all room members.
type DrawingEvent struct {
	X     float64
	Y     float64
	Color Color
	Size  uint32
}
