package keypoints

import (
	"fmt"

	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
)

//KeyPoint is a landmark position on the minimap image, in pixels. It doubles as the landmark's name.
type KeyPoint struct {
	X int `json:"x" mapstructure:"x"`
	Y int `json:"y" mapstructure:"y"`
}

func (k KeyPoint) Point() geometry.Point {
	return geometry.Pt(float64(k.X), float64(k.Y))
}

func (k KeyPoint) String() string {
	return fmt.Sprintf("(%d,%d)", k.X, k.Y)
}

//Config names every landmark of the minimap template
type Config struct {
	TopLeftFieldPoint     KeyPoint `mapstructure:"top_left_field_point"`
	TopRightFieldPoint    KeyPoint `mapstructure:"top_right_field_point"`
	BottomLeftFieldPoint  KeyPoint `mapstructure:"bottom_left_field_point"`
	BottomRightFieldPoint KeyPoint `mapstructure:"bottom_right_field_point"`

	LeftGoalZone  KeyPoint `mapstructure:"left_goal_zone"`
	RightGoalZone KeyPoint `mapstructure:"right_goal_zone"`

	CenterLineTop    KeyPoint `mapstructure:"center_line_top"`
	CenterLineBottom KeyPoint `mapstructure:"center_line_bottom"`

	LeftBlueLineTop     KeyPoint `mapstructure:"left_blue_line_top"`
	LeftBlueLineBottom  KeyPoint `mapstructure:"left_blue_line_bottom"`
	RightBlueLineTop    KeyPoint `mapstructure:"right_blue_line_top"`
	RightBlueLineBottom KeyPoint `mapstructure:"right_blue_line_bottom"`

	TopLeftRedCircle     KeyPoint `mapstructure:"top_left_red_circle"`
	BottomLeftRedCircle  KeyPoint `mapstructure:"bottom_left_red_circle"`
	TopRightRedCircle    KeyPoint `mapstructure:"top_right_red_circle"`
	BottomRightRedCircle KeyPoint `mapstructure:"bottom_right_red_circle"`

	CenterCircle KeyPoint `mapstructure:"center_circle"`

	LeftGoalLineTop              KeyPoint `mapstructure:"left_goal_line_top"`
	LeftGoalLineAfterZoneBottom  KeyPoint `mapstructure:"left_goal_line_after_zone_bottom"`
	RightGoalLineTop             KeyPoint `mapstructure:"right_goal_line_top"`
	RightGoalLineAfterZoneBottom KeyPoint `mapstructure:"right_goal_line_after_zone_bottom"`
}

//DefaultConfig matches the bundled 1280x720 rink template (40px margin, 6px per foot lengthwise)
func DefaultConfig() Config {
	return Config{
		TopLeftFieldPoint:     KeyPoint{40, 40},
		TopRightFieldPoint:    KeyPoint{1240, 40},
		BottomLeftFieldPoint:  KeyPoint{40, 680},
		BottomRightFieldPoint: KeyPoint{1240, 680},

		LeftGoalZone:  KeyPoint{124, 360},
		RightGoalZone: KeyPoint{1156, 360},

		CenterLineTop:    KeyPoint{640, 40},
		CenterLineBottom: KeyPoint{640, 680},

		LeftBlueLineTop:     KeyPoint{490, 40},
		LeftBlueLineBottom:  KeyPoint{490, 680},
		RightBlueLineTop:    KeyPoint{790, 40},
		RightBlueLineBottom: KeyPoint{790, 680},

		TopLeftRedCircle:     KeyPoint{226, 194},
		BottomLeftRedCircle:  KeyPoint{226, 526},
		TopRightRedCircle:    KeyPoint{1054, 194},
		BottomRightRedCircle: KeyPoint{1054, 526},

		CenterCircle: KeyPoint{640, 360},

		LeftGoalLineTop:              KeyPoint{106, 83},
		LeftGoalLineAfterZoneBottom:  KeyPoint{106, 637},
		RightGoalLineTop:             KeyPoint{1174, 83},
		RightGoalLineAfterZoneBottom: KeyPoint{1174, 637},
	}
}

//Named returns every key point with its configuration name
func (c Config) Named() map[string]KeyPoint {
	return map[string]KeyPoint{
		"top_left_field_point":              c.TopLeftFieldPoint,
		"top_right_field_point":             c.TopRightFieldPoint,
		"bottom_left_field_point":           c.BottomLeftFieldPoint,
		"bottom_right_field_point":          c.BottomRightFieldPoint,
		"left_goal_zone":                    c.LeftGoalZone,
		"right_goal_zone":                   c.RightGoalZone,
		"center_line_top":                   c.CenterLineTop,
		"center_line_bottom":                c.CenterLineBottom,
		"left_blue_line_top":                c.LeftBlueLineTop,
		"left_blue_line_bottom":             c.LeftBlueLineBottom,
		"right_blue_line_top":               c.RightBlueLineTop,
		"right_blue_line_bottom":            c.RightBlueLineBottom,
		"top_left_red_circle":               c.TopLeftRedCircle,
		"bottom_left_red_circle":            c.BottomLeftRedCircle,
		"top_right_red_circle":              c.TopRightRedCircle,
		"bottom_right_red_circle":           c.BottomRightRedCircle,
		"center_circle":                     c.CenterCircle,
		"left_goal_line_top":                c.LeftGoalLineTop,
		"left_goal_line_after_zone_bottom":  c.LeftGoalLineAfterZoneBottom,
		"right_goal_line_top":               c.RightGoalLineTop,
		"right_goal_line_after_zone_bottom": c.RightGoalLineAfterZoneBottom,
	}
}

//Validate checks that every key point lies on the minimap and that no two names share a position
func (c Config) Validate(minimap geometry.Resolution) error {
	seen := make(map[KeyPoint]string)
	for name, k := range c.Named() {
		if k.X < 0 || k.Y < 0 || k.X > minimap.Width || k.Y > minimap.Height {
			return fmt.Errorf("key point %s %v is outside the %dx%d minimap", name, k, minimap.Width, minimap.Height)
		}
		if other, ok := seen[k]; ok {
			return fmt.Errorf("key points %s and %s share position %v", name, other, k)
		}
		seen[k] = name
	}
	return nil
}

//FieldBox is the rink rectangle spanned by the four field corners, in minimap pixels
func (c Config) FieldBox() geometry.BoundingBox {
	b := geometry.NewBoundingBox(c.TopLeftFieldPoint.Point().X, c.TopLeftFieldPoint.Point().Y,
		c.BottomRightFieldPoint.Point().X, c.BottomRightFieldPoint.Point().Y)
	for _, k := range []KeyPoint{c.TopRightFieldPoint, c.BottomLeftFieldPoint} {
		b = b.Union(geometry.BoundingBox{Min: k.Point(), Max: k.Point()})
	}
	return b
}

func (c Config) redCircle(q Quadrant) (KeyPoint, bool) {
	switch q {
	case Quadrant{Top, Left}:
		return c.TopLeftRedCircle, true
	case Quadrant{Bottom, Left}:
		return c.BottomLeftRedCircle, true
	case Quadrant{Top, Right}:
		return c.TopRightRedCircle, true
	case Quadrant{Bottom, Right}:
		return c.BottomRightRedCircle, true
	}
	return KeyPoint{}, false
}

func (c Config) blueLine(q Quadrant) (KeyPoint, bool) {
	switch q {
	case Quadrant{Top, Left}:
		return c.LeftBlueLineTop, true
	case Quadrant{Bottom, Left}:
		return c.LeftBlueLineBottom, true
	case Quadrant{Top, Right}:
		return c.RightBlueLineTop, true
	case Quadrant{Bottom, Right}:
		return c.RightBlueLineBottom, true
	}
	return KeyPoint{}, false
}

func (c Config) goalZone(v Vertical) (KeyPoint, bool) {
	switch v {
	case Left:
		return c.LeftGoalZone, true
	case Right:
		return c.RightGoalZone, true
	}
	return KeyPoint{}, false
}

//goalLine returns the top and after-zone bottom key points of one side
func (c Config) goalLine(v Vertical) (KeyPoint, KeyPoint, bool) {
	switch v {
	case Left:
		return c.LeftGoalLineTop, c.LeftGoalLineAfterZoneBottom, true
	case Right:
		return c.RightGoalLineTop, c.RightGoalLineAfterZoneBottom, true
	}
	return KeyPoint{}, KeyPoint{}, false
}
