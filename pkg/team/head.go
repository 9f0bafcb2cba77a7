package team

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

//Head is a linear softmax classifier over backbone features
type Head struct {
	w *mat.Dense //classes × features
	b *mat.VecDense
}

//NewHead returns a zero initialized head. A single linear layer has no symmetry to break.
func NewHead(features, classes int) *Head {
	return &Head{w: mat.NewDense(classes, features, nil), b: mat.NewVecDense(classes, nil)}
}

func (h *Head) Features() int {
	_, c := h.w.Dims()
	return c
}

//probabilities returns the softmax of x·Wᵀ + b for every row of x
func (h *Head) probabilities(x mat.Matrix) *mat.Dense {
	n, _ := x.Dims()
	classes, _ := h.w.Dims()

	var logits mat.Dense
	logits.Mul(x, h.w.T())
	out := mat.NewDense(n, classes, nil)
	for i := 0; i < n; i++ {
		maxLogit := math.Inf(-1)
		for c := 0; c < classes; c++ {
			v := logits.At(i, c) + h.b.AtVec(c)
			logits.Set(i, c, v)
			maxLogit = math.Max(maxLogit, v)
		}
		var sum float64
		for c := 0; c < classes; c++ {
			e := math.Exp(logits.At(i, c) - maxLogit)
			out.Set(i, c, e)
			sum += e
		}
		for c := 0; c < classes; c++ {
			out.Set(i, c, out.At(i, c)/sum)
		}
	}
	return out
}

//Predict returns the most probable class of one feature vector
func (h *Head) Predict(features []float64) int {
	p := h.probabilities(mat.NewDense(1, len(features), features))
	best, bestP := 0, -1.0
	_, classes := p.Dims()
	for c := 0; c < classes; c++ {
		if p.At(0, c) > bestP {
			best, bestP = c, p.At(0, c)
		}
	}
	return best
}

//gradients returns the mean cross-entropy loss of the batch and its gradients
func (h *Head) gradients(x *mat.Dense, labels []int) (float64, *mat.Dense, *mat.VecDense) {
	n, _ := x.Dims()
	p := h.probabilities(x)

	var loss float64
	for i, l := range labels {
		loss -= math.Log(math.Max(p.At(i, l), 1e-12))
		p.Set(i, l, p.At(i, l)-1)
	}
	p.Scale(1/float64(n), p)

	var dw mat.Dense
	dw.Mul(p.T(), x)

	classes, _ := h.w.Dims()
	db := mat.NewVecDense(classes, nil)
	for c := 0; c < classes; c++ {
		db.SetVec(c, mat.Sum(p.ColView(c)))
	}
	return loss / float64(n), &dw, db
}

//adam keeps the moment estimates of one Head
type adam struct {
	lr, beta1, beta2, eps float64
	step                  int
	mw, vw                *mat.Dense
	mb, vb                *mat.VecDense
}

func newAdam(h *Head, lr float64) *adam {
	r, c := h.w.Dims()
	return &adam{
		lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8,
		mw: mat.NewDense(r, c, nil), vw: mat.NewDense(r, c, nil),
		mb: mat.NewVecDense(r, nil), vb: mat.NewVecDense(r, nil),
	}
}

func (a *adam) update(h *Head, dw *mat.Dense, db *mat.VecDense) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))

	rows, cols := h.w.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g := dw.At(r, c)
			m := a.beta1*a.mw.At(r, c) + (1-a.beta1)*g
			v := a.beta2*a.vw.At(r, c) + (1-a.beta2)*g*g
			a.mw.Set(r, c, m)
			a.vw.Set(r, c, v)
			h.w.Set(r, c, h.w.At(r, c)-a.lr*(m/c1)/(math.Sqrt(v/c2)+a.eps))
		}
		g := db.AtVec(r)
		m := a.beta1*a.mb.AtVec(r) + (1-a.beta1)*g
		v := a.beta2*a.vb.AtVec(r) + (1-a.beta2)*g*g
		a.mb.SetVec(r, m)
		a.vb.SetVec(r, v)
		h.b.SetVec(r, h.b.AtVec(r)-a.lr*(m/c1)/(math.Sqrt(v/c2)+a.eps))
	}
}

func (h *Head) clone() *Head {
	return &Head{w: mat.DenseCopyOf(h.w), b: mat.VecDenseCopyOf(h.b)}
}
