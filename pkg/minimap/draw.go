package minimap

import (
	"image"
	"image/color"
	"strconv"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"gocv.io/x/gocv"
)

//DefaultRadius is the dot radius in minimap pixels
const DefaultRadius = 25

//Colors are plain RGB values, gocv swaps them into the BGR order of the Mat when drawing
var (
	homeColor    = color.RGBA{R: 255, G: 157, B: 0}
	awayColor    = color.RGBA{R: 0, G: 138, B: 255}
	refereeColor = color.RGBA{R: 156, G: 156, B: 156}
	unknownColor = color.RGBA{R: 232, G: 232, B: 232}
	outlineColor = color.RGBA{R: 64, G: 64, B: 64}
	labelColor   = color.RGBA{R: 24, G: 24, B: 24}
)

const (
	labelFont      = gocv.FontHersheySimplex
	labelScale     = 0.6
	labelThickness = 1
)

//Aliases maps a tracking id to the name the operator gave that player
type Aliases map[int]string

//dotColor picks the fill color of a player dot
func dotColor(p entity.PlayerData) color.RGBA {
	if p.Class == entity.ClassReferee {
		return refereeColor
	}
	if p.Team == nil {
		return unknownColor
	}
	switch *p.Team {
	case entity.TeamHome:
		return homeColor
	case entity.TeamAway:
		return awayColor
	default:
		return unknownColor
	}
}

//label returns the text written on a player dot
func label(p entity.PlayerData, aliases Aliases) string {
	if alias, ok := aliases[p.TrackingID]; ok && alias != "" {
		return alias
	}
	if p.Class == entity.ClassReferee {
		return "R"
	}
	return strconv.Itoa(p.TrackingID)
}

//plotPlayer draws one player dot with its label on frame. size is the unpadded minimap resolution.
func plotPlayer(frame *gocv.Mat, size geometry.Resolution, p entity.PlayerData, radius int, aliases Aliases) {
	pos, err := p.Position.Clip(geometry.UnitBox).FromRelative(size)
	if err != nil {
		return
	}
	center := pos.Image()

	gocv.CircleWithParams(frame, center, radius, dotColor(p), -1, gocv.LineAA, 0)
	gocv.CircleWithParams(frame, center, radius, outlineColor, 1, gocv.LineAA, 0)

	text := label(p, aliases)
	textSize := gocv.GetTextSize(text, labelFont, labelScale, labelThickness)
	//baseline sits in the bottom half of the dot
	origin := image.Pt(center.X-textSize.X/2, center.Y+radius/2)
	gocv.PutTextWithParams(frame, text, origin, labelFont, labelScale, labelColor, labelThickness, gocv.LineAA, false)
}

//Draw renders players on a copy of base. The caller owns the returned Mat.
func Draw(base gocv.Mat, size geometry.Resolution, players []entity.PlayerData, radius int, aliases Aliases) gocv.Mat {
	frame := base.Clone()
	for _, p := range players {
		plotPlayer(&frame, size, p, radius, aliases)
	}
	return frame
}
