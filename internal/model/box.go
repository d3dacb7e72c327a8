package model

// RectF is a detection rectangle in frame pixels as returned by the engine.
type RectF struct {
	X1, Y1, X2, Y2 float64
}

// Box is a detection rectangle rounded to integer pixels.
type Box struct {
	Index  int
	Left   int
	Top    int
	Right  int
	Bottom int
}

// Coordinates returns the box as [left, top, right, bottom].
func (b Box) Coordinates() [4]int {
	return [4]int{b.Left, b.Top, b.Right, b.Bottom}
}
