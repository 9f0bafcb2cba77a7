package inference

import (
	"context"

	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"gocv.io/x/gocv"
)

//DefaultScoreThreshold drops every detection scoring at or below it
const DefaultScoreThreshold = 0.5

//Instance is one detection of a detector, in the coordinate frame of the input image
type Instance struct {
	Mask  geometry.Mask
	Box   geometry.BoundingBox
	Class int
	Score float64
}

//Instances are the detections of one image. Whoever holds them must Close them.
type Instances []Instance

func (is Instances) Close() {
	for _, i := range is {
		i.Mask.Close()
	}
}

//Filter keeps detections scoring strictly above threshold and closes the masks of the others
func (is Instances) Filter(threshold float64) Instances {
	kept := make(Instances, 0, len(is))
	for _, i := range is {
		if i.Score > threshold {
			kept = append(kept, i)
		} else {
			i.Mask.Close()
		}
	}
	return kept
}

//OfClass returns the detections of class c, sharing their masks with is
func (is Instances) OfClass(c int) Instances {
	var out Instances
	for _, i := range is {
		if i.Class == c {
			out = append(out, i)
		}
	}
	return out
}

//Input is one BGR image handed to a detector
type Input struct {
	Image  gocv.Mat
	Height int
	Width  int
}

func NewInput(img gocv.Mat) Input {
	return Input{Image: img, Height: img.Rows(), Width: img.Cols()}
}

//Model is a black box detector bound to one device.
//Predict returns exactly one Instances per input, in input order.
type Model interface {
	Predict(ctx context.Context, inputs []Input) ([]Instances, error)
	Close() error
}
