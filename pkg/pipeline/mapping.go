package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/field"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/homography"
	"github.com/chenBenjamin97/rink-minimap/pkg/keypoints"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository"
	"github.com/chenBenjamin97/rink-minimap/pkg/video"
	"github.com/sirupsen/logrus"
)

//MapRequest describes the camera pose of a video and the frame its field is detected on
type MapRequest struct {
	CameraPosition keypoints.CameraPosition
	//Anchor is an operator placed center point in camera pixels
	Anchor *geometry.Point
	HintMS float64
	//Override holds operator placed key points in camera pixels, they win over detected ones
	Override map[keypoints.KeyPoint]geometry.Point
}

//MapResult is the stored mapping of a video and how well the homography fits it
type MapResult struct {
	Points    []entity.MapPoint `json:"points"`
	MeanError float64           `json:"mean_error"`
	MaxError  float64           `json:"max_error"`
}

//Map detects the field on the hint frame, places key points and stores the correspondences.
//The field mask is stored as soon as the field is found, so an operator can complete a failed mapping with SaveMapping.
func (c *Coordinator) Map(ctx context.Context, videoID int64, req MapRequest) (res MapResult, err error) {
	if !req.CameraPosition.Valid() {
		return MapResult{}, apperr.Newf(apperr.KindInvalidInput, "camera position %d is unknown", req.CameraPosition)
	}

	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return MapResult{}, err
	}
	v, err := client.Videos.Get(ctx, videoID)
	if err != nil {
		return MapResult{}, err
	}
	if err := atLeast(v, entity.StateCorrected); err != nil {
		return MapResult{}, err
	}
	if err := guard(v, entity.StateMapped); err != nil {
		return MapResult{}, err
	}

	counter := progress.NewCounter(c.progress, videoID, jobID(ctx), progress.StageMap, 3)
	defer func() { counter.Finish(ctx, err) }()

	release, err := c.lockFiles(ctx, v)
	if err != nil {
		return MapResult{}, err
	}
	defer release()

	data, err := c.detectField(ctx, v, req.HintMS)
	if err != nil {
		return MapResult{}, err
	}
	defer data.Close()
	counter.Add(ctx, 1)

	resolution := v.FrameResolution()
	placer := keypoints.Placer{
		Config:     c.cfg.KeyPoints,
		Position:   req.CameraPosition,
		Resolution: resolution,
		Anchor:     req.Anchor,
	}
	ex := placer.Place(data)
	defer ex.Close()
	ex.Override(req.Override)

	if err := video.WriteFieldMask(v.FieldMaskPath(c.static()), ex.Mask); err != nil {
		return MapResult{}, err
	}
	counter.Add(ctx, 1)

	if !ex.Enough() {
		return MapResult{}, apperr.Newf(apperr.KindNotEnoughFieldPoints,
			"placed %d key points, %d are needed", len(ex.KeyPoints), keypoints.MinCorrespondences)
	}

	pairs := homography.FromKeyPoints(ex)
	solver, err := homography.FitAbsolute(pairs, resolution, c.cfg.MinimapSize.Rect())
	if err != nil {
		return MapResult{}, err
	}

	points := make([]entity.MapPoint, 0, len(pairs))
	for _, k := range ex.Sorted() {
		camera, _ := ex.KeyPoints[k].ToRelative(resolution)
		minimap, _ := k.Point().ToRelative(c.cfg.MinimapSize)
		_, operator := req.Override[k]
		points = append(points, entity.MapPoint{VideoID: videoID, Camera: camera, Minimap: minimap, Operator: operator})
	}

	v.CameraPosition = int(req.CameraPosition)
	v.HintTimestampMS = req.HintMS
	v.AnchorX, v.AnchorY = nil, nil
	if req.Anchor != nil {
		x, y := req.Anchor.X, req.Anchor.Y
		v.AnchorX, v.AnchorY = &x, &y
	}
	v.State = entity.StateMapped
	if err := c.storeMapping(ctx, client, v, points); err != nil {
		return MapResult{}, err
	}
	counter.Add(ctx, 1)

	res = MapResult{Points: points}
	res.MeanError, res.MaxError = solver.ReprojectionError(pairs)
	c.logger(ctx, videoID).WithFields(logrus.Fields{
		"camera_position": req.CameraPosition.String(),
		"key_points":      len(points),
		"operator_points": len(req.Override),
		"mean_error":      res.MeanError,
		"max_error":       res.MaxError,
	}).Info("Video mapped")
	return res, nil
}

//detectField runs the field detector on the frame shown at hintMS and folds its landmarks.
//The caller holds the file locks of v.
func (c *Coordinator) detectField(ctx context.Context, v entity.Video, hintMS float64) (field.Data, error) {
	reader, err := video.Open(v.PlayablePath(c.static()))
	if err != nil {
		return field.Data{}, err
	}
	frame, err := reader.FrameAt(ctx, hintMS)
	reader.Close()
	if err != nil {
		return field.Data{}, err
	}
	defer frame.Close()

	future, err := c.fieldDetector.Enqueue(ctx, frame)
	if err != nil {
		return field.Data{}, err
	}
	dets, err := future.Wait(ctx)
	if err != nil {
		settle(future)
		return field.Data{}, err
	}
	defer dets[0].Close()

	instances := field.FromDetections(dets[0])
	defer func() {
		for _, inst := range instances {
			inst.Mask.Close()
		}
	}()
	return field.Construct(instances)
}

//SaveMapping stores operator placed correspondences, given relative to the camera frame and the minimap
func (c *Coordinator) SaveMapping(ctx context.Context, videoID int64, points []entity.MapPoint) (MapResult, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return MapResult{}, err
	}
	v, err := client.Videos.Get(ctx, videoID)
	if err != nil {
		return MapResult{}, err
	}
	if err := atLeast(v, entity.StateCorrected); err != nil {
		return MapResult{}, err
	}
	if err := guard(v, entity.StateMapped); err != nil {
		return MapResult{}, err
	}

	pairs := make([]homography.Correspondence, 0, len(points))
	for i := range points {
		points[i].VideoID = videoID
		points[i].Operator = true
		pairs = append(pairs, homography.Correspondence{Camera: points[i].Camera, Minimap: points[i].Minimap})
	}
	solver, err := homography.Fit(pairs, v.FrameResolution(), c.cfg.MinimapSize)
	if err != nil {
		return MapResult{}, err
	}

	v.State = entity.StateMapped
	if err := c.storeMapping(ctx, client, v, points); err != nil {
		return MapResult{}, err
	}

	res := MapResult{Points: points}
	res.MeanError, res.MaxError = solver.ReprojectionError(absolute(pairs, v.FrameResolution(), c.cfg.MinimapSize))
	c.logger(ctx, videoID).WithField("key_points", len(points)).Info("Operator mapping saved")
	return res, nil
}

func (c *Coordinator) storeMapping(ctx context.Context, client repository.Client, v entity.Video, points []entity.MapPoint) error {
	return repository.WithTx(ctx, client, func(tx repository.Client) error {
		if err := tx.MapData.Replace(ctx, v.ID, points); err != nil {
			return err
		}
		return tx.Videos.Update(ctx, v)
	})
}

func absolute(pairs []homography.Correspondence, camera, minimap geometry.Resolution) []homography.Correspondence {
	out := make([]homography.Correspondence, len(pairs))
	for i, p := range pairs {
		out[i].Camera, _ = p.Camera.FromRelative(camera)
		out[i].Minimap, _ = p.Minimap.FromRelative(minimap)
	}
	return out
}

//solver fits the homography on the stored correspondences of v
func (c *Coordinator) solver(ctx context.Context, client repository.Client, v entity.Video) (*homography.Solver, error) {
	points, err := client.MapData.Get(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidProjectState, "video %d has no mapping", v.ID)
	}
	pairs := make([]homography.Correspondence, len(points))
	for i, p := range points {
		pairs[i] = homography.Correspondence{Camera: p.Camera, Minimap: p.Minimap}
	}
	return homography.Fit(pairs, v.FrameResolution(), c.cfg.MinimapSize)
}

//fieldMask reads the stored field mask of v, the whole frame counts as field when none was stored
func (c *Coordinator) fieldMask(v entity.Video) (geometry.Mask, geometry.BoundingBox, error) {
	path := v.FieldMaskPath(c.static())
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.log.WithField("video_id", v.ID).Warn("No field mask stored, using the whole frame")
		res := v.FrameResolution()
		return geometry.MaskFromRect(res, res.Rect()), res.Rect(), nil
	}
	mask, err := video.ReadFieldMask(path)
	if err != nil {
		return geometry.Mask{}, geometry.BoundingBox{}, err
	}
	box, err := mask.BoundingBox()
	if err != nil {
		mask.Close()
		return geometry.Mask{}, geometry.BoundingBox{}, fmt.Errorf("field mask of video %d: %w", v.ID, err)
	}
	return mask, box, nil
}
