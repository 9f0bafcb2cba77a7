package entity

import (
	"fmt"
	"path"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
)

//ProjectState is the processing stage a video reached
type ProjectState int

const (
	StateUploaded ProjectState = iota + 1
	StateCorrected
	StateMapped
	StateDatasetReady
	StateProcessed
	StateMinimapRendered
)

var stateNames = map[ProjectState]string{
	StateUploaded:        "Uploaded",
	StateCorrected:       "Corrected",
	StateMapped:          "Mapped",
	StateDatasetReady:    "DatasetReady",
	StateProcessed:       "Processed",
	StateMinimapRendered: "MinimapRendered",
}

func (s ProjectState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ProjectState(%d)", int(s))
}

//CanTransition reports whether a video in state s may move to next.
//Stages only move forward one step at a time; a stage may be rerun (next == s) and
//a later stage may fall back to an earlier one when its inputs change (e.g. remapping).
func (s ProjectState) CanTransition(next ProjectState) bool {
	if _, ok := stateNames[next]; !ok {
		return false
	}
	return next <= s+1
}

//File names inside a video directory
const (
	FieldMaskFileName = "field_mask.jpeg"
	MinimapFileName   = "output_map.mp4"
	SourceVideoPrefix = "source_video"
	PlayableVideoName = "video.mp4"
)

type Video struct {
	ID              int64        `json:"id" db:"id"`
	ProjectID       int64        `json:"project_id" db:"project_id"`
	Directory       string       `json:"directory" db:"directory"`
	SourceFile      string       `json:"source_file" db:"source_file"`
	PlayableFile    string       `json:"playable_file" db:"playable_file"`
	FPS             float64      `json:"fps" db:"fps"`
	Width           int          `json:"width" db:"width"`
	Height          int          `json:"height" db:"height"`
	FrameCount      int          `json:"frame_count" db:"frame_count"`
	CameraPosition  int          `json:"camera_position" db:"camera_position"`
	AnchorX         *float64     `json:"anchor_x" db:"anchor_x"`
	AnchorY         *float64     `json:"anchor_y" db:"anchor_y"`
	HintTimestampMS float64      `json:"hint_timestamp_ms" db:"hint_timestamp_ms"`
	State           ProjectState `json:"state" db:"state"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

//Anchor returns the operator supplied anchor center point in camera pixels, if any
func (v Video) Anchor() *geometry.Point {
	if v.AnchorX == nil || v.AnchorY == nil {
		return nil
	}
	p := geometry.Pt(*v.AnchorX, *v.AnchorY)
	return &p
}

func (v Video) FrameResolution() geometry.Resolution {
	return geometry.Resolution{Width: v.Width, Height: v.Height}
}

func (v Video) PlayablePath(staticRoot string) string {
	return path.Join(staticRoot, v.Directory, v.PlayableFile)
}

func (v Video) FieldMaskPath(staticRoot string) string {
	return path.Join(staticRoot, v.Directory, FieldMaskFileName)
}

func (v Video) MinimapPath(staticRoot string) string {
	return path.Join(staticRoot, v.Directory, MinimapFileName)
}

//MapPoint is one camera↔minimap correspondence, both sides relative
type MapPoint struct {
	ID       int64          `json:"id"`
	VideoID  int64          `json:"video_id"`
	Camera   geometry.Point `json:"camera"`
	Minimap  geometry.Point `json:"minimap"`
	Operator bool           `json:"operator"`
}

//Subset is a short frame range the operator labeled with teams
type Subset struct {
	ID        int64       `json:"id"`
	VideoID   int64       `json:"video_id"`
	FromFrame int         `json:"from_frame"`
	ToFrame   int         `json:"to_frame"`
	Frames    []FrameData `json:"frames"`
}

type PlayerAlias struct {
	VideoID    int64  `json:"video_id"`
	TrackingID int    `json:"tracking_id"`
	Alias      string `json:"alias"`
}

//DatasetInfo summarizes the team dataset and the classifier trained on it
type DatasetInfo struct {
	VideoID   int64     `json:"video_id" db:"video_id"`
	Home      int       `json:"home" db:"home"`
	Away      int       `json:"away" db:"away"`
	Accuracy  float64   `json:"accuracy" db:"accuracy"`
	Precision float64   `json:"precision" db:"precision"`
	Recall    float64   `json:"recall" db:"recall"`
	F1        float64   `json:"f1" db:"f1"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
