package keypoints

import "github.com/chenBenjamin97/rink-minimap/pkg/geometry"

//Horizontal is the row of a quadrant
type Horizontal int

const (
	Top              Horizontal = -1
	HorizontalCenter Horizontal = 0
	Bottom           Horizontal = 1
)

//Vertical is the column of a quadrant
type Vertical int

const (
	Left           Vertical = -1
	VerticalCenter Vertical = 0
	Right          Vertical = 1
)

//Quadrant is one of the nine cells around an anchor center point
type Quadrant struct {
	H Horizontal
	V Vertical
}

func (q Quadrant) Ambiguous() bool {
	return q.H == HorizontalCenter && q.V == VerticalCenter
}

//FlipHorizontal swaps top and bottom
func (q Quadrant) FlipHorizontal() Quadrant {
	return Quadrant{H: -q.H, V: q.V}
}

//Anchor is the origin of quadrant reasoning. A point lying exactly on an explicit axis
//falls in the center cell of that axis; on an implicit axis it falls on the bottom/right side.
type Anchor struct {
	Point     geometry.Point
	ExplicitX bool
	ExplicitY bool
}

func (a Anchor) Quadrant(p geometry.Point) Quadrant {
	q := Quadrant{H: Bottom, V: Right}
	switch {
	case p.Y < a.Point.Y:
		q.H = Top
	case p.Y == a.Point.Y && a.ExplicitY:
		q.H = HorizontalCenter
	}
	switch {
	case p.X < a.Point.X:
		q.V = Left
	case p.X == a.Point.X && a.ExplicitX:
		q.V = VerticalCenter
	}
	return q
}
