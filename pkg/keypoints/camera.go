package keypoints

import (
	"fmt"

	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
)

//CameraPosition is where the broadcast camera stands relative to the minimap. Values are part of the wire contract.
type CameraPosition int

const (
	TopLeftCorner CameraPosition = iota + 1
	TopMiddlePoint
	TopRightCorner
	BottomLeftCorner
	BottomMiddlePoint
	BottomRightCorner
	RightSideCamera
	LeftSideCamera
)

var positionNames = map[CameraPosition]string{
	TopLeftCorner:     "top_left_corner",
	TopMiddlePoint:    "top_middle_point",
	TopRightCorner:    "top_right_corner",
	BottomLeftCorner:  "bottom_left_corner",
	BottomMiddlePoint: "bottom_middle_point",
	BottomRightCorner: "bottom_right_corner",
	RightSideCamera:   "right_side_camera",
	LeftSideCamera:    "left_side_camera",
}

func (p CameraPosition) String() string {
	if name, ok := positionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("CameraPosition(%d)", int(p))
}

func (p CameraPosition) Valid() bool {
	_, ok := positionNames[p]
	return ok
}

//ParseCameraPosition accepts the snake_case name of a position
func ParseCameraPosition(s string) (CameraPosition, error) {
	for p, name := range positionNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown camera position %q", s)
}

type rotation int

const (
	identity rotation = iota
	flipBoth
	rotateLeft
	rotateRight
)

func (p CameraPosition) rotation() rotation {
	switch p {
	case TopLeftCorner, TopMiddlePoint, TopRightCorner:
		return flipBoth
	case RightSideCamera:
		return rotateLeft
	case LeftSideCamera:
		return rotateRight
	default:
		return identity
	}
}

//middle cameras film center ice: goal zones and goal lines are out of frame, so detections of them are discarded
func (p CameraPosition) seesGoals() bool {
	return p != TopMiddlePoint && p != BottomMiddlePoint
}

//Transform rewrites a camera space quadrant into minimap space
func (p CameraPosition) Transform(q Quadrant) Quadrant {
	r, c := int(q.H), int(q.V)
	switch p.rotation() {
	case flipBoth:
		r, c = -r, -c
	case rotateLeft:
		r, c = -c, r
	case rotateRight:
		r, c = c, -r
	}
	return Quadrant{H: Horizontal(r), V: Vertical(c)}
}

//transformVector rewrites an offset from the anchor into minimap orientation, consistent with Transform
func (p CameraPosition) transformVector(d geometry.Point) geometry.Point {
	switch p.rotation() {
	case flipBoth:
		return geometry.Pt(-d.X, -d.Y)
	case rotateLeft:
		return geometry.Pt(d.Y, -d.X)
	case rotateRight:
		return geometry.Pt(-d.Y, d.X)
	}
	return d
}
