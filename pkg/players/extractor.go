package players

import (
	"fmt"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/inference"
	"github.com/chenBenjamin97/rink-minimap/pkg/tracker"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

//FieldBoxScale shrinks the field box before gating so benches and the crowd behind the glass fall outside
const FieldBoxScale = 0.8

//TeamPredictor tells the team of a BGR player patch
type TeamPredictor interface {
	Predict(patch gocv.Mat) (entity.Team, error)
}

//Projector maps points relative to the camera frame to points relative to the minimap
type Projector interface {
	Transform(points ...geometry.Point) []geometry.Point
}

//Extractor turns the players detector output of one frame into PlayerData. It keeps tracker state,
//so one Extractor serves one video and must see frames in order.
type Extractor struct {
	FieldMask geometry.Mask
	FieldBBox geometry.BoundingBox
	Projector Projector
	Tracker   *tracker.Tracker
	//Teams may be nil while no classifier is trained yet; every team is then left unset
	Teams     TeamPredictor
	Threshold float64
	Log       logrus.FieldLogger
}

func NewExtractor(mask geometry.Mask, fieldBBox geometry.BoundingBox, projector Projector, tr *tracker.Tracker, teams TeamPredictor, log logrus.FieldLogger) *Extractor {
	return &Extractor{
		FieldMask: mask,
		FieldBBox: fieldBBox,
		Projector: projector,
		Tracker:   tr,
		Teams:     teams,
		Threshold: inference.DefaultScoreThreshold,
		Log:       log,
	}
}

//OnField reports whether a ground contact pixel is on the playing surface
func (e *Extractor) OnField(p geometry.Point) bool {
	return e.FieldMask.Contains(p) && e.FieldBBox.Scale(FieldBoxScale).Contains(p)
}

//Extract gates, tracks, labels and projects the detections of one BGR frame.
//dets stay owned by the caller.
func (e *Extractor) Extract(frameID int, frame gocv.Mat, dets inference.Instances) ([]entity.PlayerData, error) {
	res := geometry.Resolution{Width: frame.Cols(), Height: frame.Rows()}
	if !res.Valid() {
		return nil, fmt.Errorf("frame %d: %w", frameID, geometry.ErrInvalidResolution)
	}

	var kept []tracker.Detection
	for _, d := range dets {
		if d.Score <= e.Threshold {
			continue
		}
		class := entity.PlayerClass(d.Class)
		if !class.Valid() {
			continue
		}
		if !e.OnField(d.Box.BottomCenter()) {
			continue
		}
		kept = append(kept, tracker.Detection{Box: d.Box, Score: d.Score, Class: class})
	}

	tracked, err := e.Tracker.Update(frameID, kept)
	if err != nil {
		return nil, err
	}

	out := make([]entity.PlayerData, 0, len(tracked))
	for _, t := range tracked {
		pd := entity.PlayerData{TrackingID: t.TrackingID, Class: t.Class}

		if t.Class != entity.ClassReferee && e.Teams != nil {
			patch := t.BoundingBox.CutOut(frame)
			if !patch.Empty() {
				team, err := e.Teams.Predict(patch)
				if err != nil {
					patch.Close()
					return nil, fmt.Errorf("frame %d track %d: %w", frameID, t.TrackingID, err)
				}
				pd.Team = entity.TeamPtr(team)
			}
			patch.Close()
		}

		ground, _ := t.BoundingBox.BottomCenter().ToRelative(res)
		pd.Position = e.Projector.Transform(ground)[0].Clip(geometry.UnitBox)

		box, _ := t.BoundingBox.ToRelative(res)
		pd.BoundingBoxOnCamera = box.Clip(geometry.UnitBox)

		out = append(out, pd)
	}

	if e.Log != nil {
		e.Log.WithFields(logrus.Fields{
			"frame_id":   frameID,
			"detections": len(dets),
			"on_field":   len(kept),
		}).Trace("Players extracted")
	}
	return out, nil
}
