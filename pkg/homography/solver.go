package homography

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/keypoints"
	"gocv.io/x/gocv"
)

//RANSAC parameters of the fit. The threshold is in minimap pixels.
const (
	ReprojectionThreshold = 4.0
	MaxIterations         = 2000
	Confidence            = 0.9
)

//Correspondence pairs a camera point with the minimap point it shows
type Correspondence struct {
	Camera  geometry.Point `json:"camera"`
	Minimap geometry.Point `json:"minimap"`
}

//Solver maps camera points onto the minimap. It is immutable once fitted.
type Solver struct {
	h       geometry.Homography
	inv     geometry.Homography
	camera  geometry.Resolution
	minimap geometry.Resolution
	bounds  geometry.BoundingBox
}

//Fit fits a solver on pairs given relative to the camera frame and to the minimap
func Fit(pairs []Correspondence, camera, minimap geometry.Resolution) (*Solver, error) {
	if !camera.Valid() || !minimap.Valid() {
		return nil, geometry.ErrInvalidResolution
	}
	abs := make([]Correspondence, len(pairs))
	for i, p := range pairs {
		c, _ := p.Camera.FromRelative(camera)
		m, _ := p.Minimap.FromRelative(minimap)
		abs[i] = Correspondence{Camera: c, Minimap: m}
	}
	return FitAbsolute(abs, camera, minimap.Rect())
}

//FitAbsolute fits a solver on pairs given in camera and minimap pixels. Transformed points are clipped to minimapRect.
func FitAbsolute(pairs []Correspondence, camera geometry.Resolution, minimapRect geometry.BoundingBox) (*Solver, error) {
	if len(pairs) < keypoints.MinCorrespondences {
		return nil, apperr.Newf(apperr.KindNotEnoughFieldPoints,
			"homography needs %d correspondences, got %d", keypoints.MinCorrespondences, len(pairs))
	}
	if !camera.Valid() {
		return nil, geometry.ErrInvalidResolution
	}

	src := gocv.NewMatWithSize(len(pairs), 1, gocv.MatTypeCV64FC2)
	defer src.Close()
	dst := gocv.NewMatWithSize(len(pairs), 1, gocv.MatTypeCV64FC2)
	defer dst.Close()
	for i, p := range pairs {
		src.SetDoubleAt(i, 0, p.Camera.X)
		src.SetDoubleAt(i, 1, p.Camera.Y)
		dst.SetDoubleAt(i, 0, p.Minimap.X)
		dst.SetDoubleAt(i, 1, p.Minimap.Y)
	}

	inliers := gocv.NewMat()
	defer inliers.Close()
	m := gocv.FindHomography(src, &dst, gocv.HomograpyMethodRANSAC, ReprojectionThreshold, &inliers, MaxIterations, Confidence)
	defer m.Close()

	h, err := geometry.HomographyFromMat(m)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotEnoughFieldPoints, fmt.Errorf("degenerate correspondences: %w", err))
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotEnoughFieldPoints, fmt.Errorf("degenerate correspondences: %w", err))
	}

	return &Solver{
		h:      h,
		inv:    inv,
		camera: camera,
		minimap: geometry.Resolution{
			Width:  int(math.Ceil(minimapRect.Max.X)),
			Height: int(math.Ceil(minimapRect.Max.Y)),
		},
		bounds: minimapRect,
	}, nil
}

//FromKeyPoints turns placed key points into pixel correspondences, in a stable order
func FromKeyPoints(ex keypoints.Extracted) []Correspondence {
	out := make([]Correspondence, 0, len(ex.KeyPoints))
	for _, k := range ex.Sorted() {
		out = append(out, Correspondence{Camera: ex.KeyPoints[k], Minimap: k.Point()})
	}
	return out
}

//Matrix returns the camera pixel to minimap pixel transform
func (s *Solver) Matrix() geometry.Homography {
	return s.h
}

func (s *Solver) MinimapResolution() geometry.Resolution {
	return s.minimap
}

//Transform maps points relative to the camera frame to points relative to the minimap, clipped to [0,1]²
func (s *Solver) Transform(points ...geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(points))
	for i, p := range points {
		abs, _ := p.FromRelative(s.camera)
		rel, _ := s.transform(abs).ToRelative(s.minimap)
		out[i] = rel.Clip(geometry.UnitBox)
	}
	return out
}

//TransformAbsolute maps camera pixels to minimap pixels clipped to the minimap rectangle
func (s *Solver) TransformAbsolute(points ...geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(points))
	for i, p := range points {
		out[i] = s.transform(p)
	}
	return out
}

func (s *Solver) transform(p geometry.Point) geometry.Point {
	m := s.h.Apply(p)
	if math.IsNaN(m.X) || math.IsNaN(m.Y) {
		return s.bounds.Center()
	}
	return m.Clip(s.bounds)
}

//Inverse maps points relative to the minimap back to points relative to the camera frame. Results are not clipped.
func (s *Solver) Inverse(points ...geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(points))
	for i, p := range points {
		abs, _ := p.FromRelative(s.minimap)
		rel, _ := s.inv.Apply(abs).ToRelative(s.camera)
		out[i] = rel
	}
	return out
}

//WarpImage projects a camera frame onto the minimap plane. The caller owns the returned Mat.
func (s *Solver) WarpImage(img gocv.Mat) gocv.Mat {
	m := s.h.Mat()
	defer m.Close()

	out := gocv.NewMat()
	gocv.WarpPerspective(img, &out, m, image.Pt(s.minimap.Width, s.minimap.Height))
	return out
}

//ReprojectionError returns the mean and max distance, in minimap pixels, between
//the transformed camera side of pairs and their minimap side. pairs are in pixels and are not clipped.
func (s *Solver) ReprojectionError(pairs []Correspondence) (float64, float64) {
	if len(pairs) == 0 {
		return 0, 0
	}
	dists := make([]float64, len(pairs))
	var sum float64
	for i, p := range pairs {
		dists[i] = s.h.Apply(p.Camera).Dist(p.Minimap)
		sum += dists[i]
	}
	sort.Float64s(dists)
	return sum / float64(len(pairs)), dists[len(dists)-1]
}
