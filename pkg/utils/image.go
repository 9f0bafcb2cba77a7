package utils

import (
	"image/color"

	"gocv.io/x/gocv"
)

//Even rounds n up to the next even number, as yuv420p encoders need even frame sizes
func Even(n int) int {
	return n + n%2
}

//PadEven returns a copy of img grown on its right and bottom edges to even dimensions.
//The caller owns the returned Mat.
func PadEven(img gocv.Mat, fill color.RGBA) gocv.Mat {
	right := Even(img.Cols()) - img.Cols()
	bottom := Even(img.Rows()) - img.Rows()
	if right == 0 && bottom == 0 {
		return img.Clone()
	}

	out := gocv.NewMat()
	gocv.CopyMakeBorder(img, &out, 0, bottom, 0, right, gocv.BorderConstant, fill)
	return out
}
