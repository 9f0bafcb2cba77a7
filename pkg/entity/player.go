package entity

import (
	"fmt"

	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
)

//PlayerClass is the class index emitted by the players detector. Values are part of the wire contract.
type PlayerClass int

const (
	ClassPlayer  PlayerClass = 0
	ClassReferee PlayerClass = 1
	ClassGoalie  PlayerClass = 2
)

//PlayerClassesNum is the number of classes the players detector is configured with
const PlayerClassesNum = 3

func (c PlayerClass) String() string {
	switch c {
	case ClassPlayer:
		return "Player"
	case ClassReferee:
		return "Referee"
	case ClassGoalie:
		return "Goalie"
	default:
		return fmt.Sprintf("PlayerClass(%d)", int(c))
	}
}

func (c PlayerClass) Valid() bool {
	return c == ClassPlayer || c == ClassReferee || c == ClassGoalie
}

//Team values are part of the wire contract
type Team int

const (
	TeamHome Team = 1
	TeamAway Team = 2
)

//Teams lists every team in label order
var Teams = []Team{TeamHome, TeamAway}

func (t Team) String() string {
	switch t {
	case TeamHome:
		return "Home"
	case TeamAway:
		return "Away"
	default:
		return fmt.Sprintf("Team(%d)", int(t))
	}
}

func (t Team) Valid() bool {
	return t == TeamHome || t == TeamAway
}

//TeamPtr is a helper for the optional team of a PlayerData
func TeamPtr(t Team) *Team {
	return &t
}

//RawPlayerTrackingData is one tracked detection in camera space
type RawPlayerTrackingData struct {
	TrackingID  int                  `json:"tracking_id"`
	BoundingBox geometry.BoundingBox `json:"bounding_box"`
	Class       PlayerClass          `json:"player_class"`
	Score       float64              `json:"score"`
}

//PlayerData is one player of one frame, ready for storage and minimap rendering.
//Position is relative to the minimap, BoundingBox relative to the camera frame.
type PlayerData struct {
	TrackingID          int                  `json:"tracking_id"`
	Position            geometry.Point       `json:"position"`
	BoundingBoxOnCamera geometry.BoundingBox `json:"bounding_box_on_camera"`
	Class               PlayerClass          `json:"class_id"`
	Team                *Team                `json:"team_id"`
}

type FrameData struct {
	FrameID int          `json:"frame_id"`
	Players []PlayerData `json:"players"`
}
