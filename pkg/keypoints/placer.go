package keypoints

import (
	"math"
	"sort"

	"github.com/chenBenjamin97/rink-minimap/pkg/field"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
)

//MinCorrespondences is the smallest number of key points a homography can be fitted on
const MinCorrespondences = 4

//Extracted is what the placer learned from one frame. KeyPoints maps a minimap landmark to its camera pixel.
type Extracted struct {
	KeyPoints  map[KeyPoint]geometry.Point
	Mask       geometry.Mask
	FieldBBox  geometry.BoundingBox
	Resolution geometry.Resolution
}

//Enough reports whether a homography can be fitted. When it can't, the operator has to place points.
func (e Extracted) Enough() bool {
	return len(e.KeyPoints) >= MinCorrespondences
}

//Override replaces or adds operator placed correspondences
func (e *Extracted) Override(points map[KeyPoint]geometry.Point) {
	if e.KeyPoints == nil {
		e.KeyPoints = make(map[KeyPoint]geometry.Point, len(points))
	}
	for k, p := range points {
		e.KeyPoints[k] = p
	}
}

//Sorted returns the key points in a stable order
func (e Extracted) Sorted() []KeyPoint {
	out := make([]KeyPoint, 0, len(e.KeyPoints))
	for k := range e.KeyPoints {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

func (e Extracted) Close() {
	e.Mask.Close()
}

//Placer assigns detected landmarks to minimap key points for one camera pose
type Placer struct {
	Config     Config
	Position   CameraPosition
	Resolution geometry.Resolution
	//Anchor is the operator supplied center point, in camera pixels
	Anchor *geometry.Point
}

type placement struct {
	points map[KeyPoint]geometry.Point
}

//set keeps the first landmark placed on k
func (pl placement) set(k KeyPoint, p geometry.Point) {
	if _, ok := pl.points[k]; !ok {
		pl.points[k] = p
	}
}

//Place never fails: landmarks that can't be placed are skipped. The returned mask is a clone of the field mask.
func (p Placer) Place(d field.Data) Extracted {
	out := Extracted{KeyPoints: make(map[KeyPoint]geometry.Point), Resolution: p.Resolution}
	if d.Field == nil {
		return out
	}
	out.Mask = d.Field.Mask.Clone()
	out.FieldBBox = d.Field.BBox

	anchor := p.anchor(d)
	pl := placement{points: out.KeyPoints}
	quadrant := func(pt geometry.Point) Quadrant {
		return p.Position.Transform(anchor.Quadrant(pt))
	}

	for _, c := range d.RedCircles {
		if k, ok := p.Config.redCircle(quadrant(c.Center)); ok {
			pl.set(k, c.Center)
		}
	}

	for _, b := range d.BlueLines {
		upper, lower := b.Line().Upper()
		q := quadrant(upper)
		k, ok := p.Config.blueLine(q)
		kFlipped, okFlipped := p.Config.blueLine(q.FlipHorizontal())
		if ok && okFlipped {
			pl.set(k, upper)
			pl.set(kFlipped, lower)
		}
	}

	if d.RedCenterLine != nil {
		top, bottom := p.orient(d.RedCenterLine.Line(), anchor.Point)
		pl.set(p.Config.CenterLineTop, top)
		pl.set(p.Config.CenterLineBottom, bottom)
	}

	if d.BlueCircle != nil {
		pl.set(p.Config.CenterCircle, d.BlueCircle.Center)
	}

	if p.Position.seesGoals() {
		for _, z := range d.GoalZones {
			q := quadrant(z.Center)
			if q.Ambiguous() {
				continue
			}
			if k, ok := p.Config.goalZone(q.V); ok {
				pl.set(k, z.Center)
			}
		}
		p.placeGoalLines(pl, d.GoalLines, quadrant, anchor.Point)
	}

	return out
}

func (p Placer) anchor(d field.Data) Anchor {
	switch {
	case p.Anchor != nil:
		return Anchor{Point: *p.Anchor, ExplicitX: true, ExplicitY: true}
	case d.BlueCircle != nil:
		return Anchor{Point: d.BlueCircle.Center}
	default:
		return Anchor{Point: d.Field.BBox.Center()}
	}
}

//orient returns the endpoints of l ordered top to bottom in minimap orientation
func (p Placer) orient(l geometry.Line, anchor geometry.Point) (geometry.Point, geometry.Point) {
	a := p.Position.transformVector(l.A.Sub(anchor))
	b := p.Position.transformVector(l.B.Sub(anchor))
	if a.Y <= b.Y {
		return l.A, l.B
	}
	return l.B, l.A
}

//down is the camera space direction that points to the bottom of the minimap
func (p Placer) down() geometry.Point {
	switch p.Position.rotation() {
	case flipBoth:
		return geometry.Pt(0, -1)
	case rotateLeft:
		return geometry.Pt(-1, 0)
	case rotateRight:
		return geometry.Pt(1, 0)
	}
	return geometry.Pt(0, 1)
}

//placeGoalLines pairs goal line segments per side. Two segments of one side are merged into one line
//spanning both; a lone segment is oriented against the merged line of the other side (or the pose's
//down direction) and stands for the whole goal line, so both the top and after-zone key points are placed.
func (p Placer) placeGoalLines(pl placement, goalLines []field.Instance, quadrant func(geometry.Point) Quadrant, anchor geometry.Point) {
	type sided struct {
		line geometry.Line
		dist float64
	}
	sides := make(map[Vertical][]sided)
	for _, g := range goalLines {
		l := g.Line()
		q := quadrant(l.Center())
		if q.V == VerticalCenter {
			continue
		}
		sides[q.V] = append(sides[q.V], sided{line: l, dist: math.Min(l.A.Norm(), l.B.Norm())})
	}

	merged := make(map[Vertical]geometry.Line)
	for side, lines := range sides {
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].dist < lines[j].dist })
		if len(lines) < 2 {
			continue
		}
		var ends []geometry.Point
		for _, s := range lines {
			ends = append(ends, s.line.A, s.line.B)
		}
		top, bottom := p.span(ends, anchor)
		merged[side] = geometry.Line{A: top, B: bottom}
	}

	for _, side := range []Vertical{Left, Right} {
		lines := sides[side]
		if len(lines) == 0 {
			continue
		}
		line, ok := merged[side]
		if !ok {
			ref := p.down()
			if other, ok := merged[-side]; ok {
				ref = other.Direction()
			}
			line = lines[0].line
			if line.Direction().Dot(ref) < 0 {
				line = line.Reversed()
			}
		}
		topKey, bottomKey, ok := p.Config.goalLine(side)
		if !ok {
			continue
		}
		pl.set(topKey, line.A)
		pl.set(bottomKey, line.B)
	}
}

//span returns the topmost and bottommost of points in minimap orientation
func (p Placer) span(points []geometry.Point, anchor geometry.Point) (geometry.Point, geometry.Point) {
	top, bottom := points[0], points[0]
	topY, bottomY := math.Inf(1), math.Inf(-1)
	for _, pt := range points {
		y := p.Position.transformVector(pt.Sub(anchor)).Y
		if y < topY {
			top, topY = pt, y
		}
		if y > bottomY {
			bottom, bottomY = pt, y
		}
	}
	return top, bottom
}
