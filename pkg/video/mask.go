package video

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"gocv.io/x/gocv"
)

//WriteFieldMask stores mask as a grayscale image, the format is picked from the path extension
func WriteFieldMask(path string, mask geometry.Mask) error {
	if mask.Empty() {
		return geometry.ErrEmptyMask
	}
	if !gocv.IMWrite(path, mask.Mat()) {
		return fmt.Errorf("could not write field mask to %s", path)
	}
	return nil
}

//ReadFieldMask loads a mask written by WriteFieldMask. Compression noise is removed by
//thresholding at half intensity.
func ReadFieldMask(path string) (geometry.Mask, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return geometry.Mask{}, apperr.Wrap(apperr.KindNotFound, fmt.Errorf("field mask %s: %w", path, err))
	}

	gray := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer gray.Close()
	if gray.Empty() {
		return geometry.Mask{}, apperr.Newf(apperr.KindInvalidFileFormat, "field mask %s is not an image", path)
	}

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, 127, 255, gocv.ThresholdBinary)
	return geometry.MaskFromMat(bin), nil
}
