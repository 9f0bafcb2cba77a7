package team

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

//InputSize is the side of the square patch the backbone sees
const InputSize = 150

//Backbone turns a BGR patch into a feature vector. Its weights are never trained.
type Backbone interface {
	Features(patch gocv.Mat) ([]float64, error)
	Close() error
}

//NetBackbone runs the feature layers of a pretrained classification network exported to ONNX
type NetBackbone struct {
	mu     sync.Mutex
	net    gocv.Net
	output string
}

//NewNetBackbone loads an ONNX model; output names the feature layer, empty for the last one
func NewNetBackbone(path, output string) (*NetBackbone, error) {
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("NewNetBackbone: could not read %s", path)
	}
	return &NetBackbone{net: net, output: output}, nil
}

//Features converts to RGB, resizes to 150x150 and normalizes each channel with mean 0.5 and std 0.5
func (b *NetBackbone) Features(patch gocv.Mat) ([]float64, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("empty patch")
	}
	blob := gocv.BlobFromImage(patch, 1.0/127.5, image.Pt(InputSize, InputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.net.SetInput(blob, "")
	out := b.net.Forward(b.output)
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	features := make([]float64, len(data))
	for i, v := range data {
		features[i] = float64(v)
	}
	return features, nil
}

func (b *NetBackbone) Close() error {
	return b.net.Close()
}
