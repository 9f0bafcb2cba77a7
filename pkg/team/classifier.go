package team

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

type TrainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	TrainRatio   float64
	MinPerTeam   int
	//Patience stops training after that many epochs without a better validation F1, 0 disables it
	Patience int
	Seed     int64
}

var BaseTrainConfig = TrainConfig{
	Epochs:       100,
	BatchSize:    32,
	LearningRate: 1e-3,
	TrainRatio:   0.67,
	MinPerTeam:   MinExamplesPerTeam,
	Patience:     0,
	Seed:         1,
}

//Classifier predicts the team of a player patch. It is built per video and thrown away afterwards.
type Classifier struct {
	backbone Backbone
	head     *Head
	Metrics  Metrics
}

func label(t entity.Team) int {
	if t == entity.TeamAway {
		return 1
	}
	return 0
}

func teamOf(label int) entity.Team {
	return entity.Teams[label]
}

//Train checks ds, splits it, and fits a fresh two way head on frozen backbone features.
//A cancelled ctx returns ctx's error and no classifier.
func Train(ctx context.Context, ds Dataset, backbone Backbone, cfg TrainConfig, log logrus.FieldLogger) (*Classifier, error) {
	if err := ds.Check(cfg.MinPerTeam); err != nil {
		return nil, err
	}
	trainSet, valSet := StratifiedSplit(ds, cfg.TrainRatio, cfg.Seed)

	xTrain, yTrain, err := featurize(ctx, backbone, trainSet)
	if err != nil {
		return nil, err
	}
	xVal, yVal, err := featurize(ctx, backbone, valSet)
	if err != nil {
		return nil, err
	}

	rnd := rand.New(rand.NewSource(cfg.Seed))
	head := NewHead(xTrain.RawMatrix().Cols, len(entity.Teams))
	opt := newAdam(head, cfg.LearningRate)

	best, bestF1, stale := head.clone(), -1.0, 0
	var bestMetrics Metrics
	order := make([]int, len(yTrain))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rnd.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		var loss float64
		var batches int
		for start := 0; start < len(order); start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			x, y := batch(xTrain, yTrain, order[start:end])
			l, dw, db := head.gradients(x, y)
			opt.update(head, dw, db)
			loss += l
			batches++
		}

		m := evaluate(head, xVal, yVal)
		log.WithFields(logrus.Fields{
			"epoch":     epoch,
			"loss":      loss / float64(batches),
			"accuracy":  m.Accuracy,
			"precision": m.Precision,
			"recall":    m.Recall,
			"f1":        m.F1,
		}).Debug("Team classifier epoch")

		if cfg.Patience <= 0 {
			best, bestMetrics = head, m
			continue
		}
		if m.F1 > bestF1 {
			best, bestF1, bestMetrics, stale = head.clone(), m.F1, m, 0
			continue
		}
		stale++
		if stale >= cfg.Patience {
			log.WithField("epoch", epoch).Info("Team classifier stopped early")
			break
		}
	}

	log.WithFields(logrus.Fields{
		"train":    len(yTrain),
		"val":      len(yVal),
		"accuracy": bestMetrics.Accuracy,
		"f1":       bestMetrics.F1,
	}).Info("Team classifier trained")

	return &Classifier{backbone: backbone, head: best, Metrics: bestMetrics}, nil
}

func featurize(ctx context.Context, backbone Backbone, ds Dataset) (*mat.Dense, []int, error) {
	if ds.Len() == 0 {
		return mat.NewDense(1, 1, nil), nil, nil
	}
	var rows [][]float64
	labels := make([]int, 0, ds.Len())
	for _, s := range ds.Samples {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		f, err := backbone.Features(s.Patch)
		if err != nil {
			return nil, nil, fmt.Errorf("backbone features: %w", err)
		}
		if len(rows) > 0 && len(f) != len(rows[0]) {
			return nil, nil, fmt.Errorf("backbone returned %d features, expected %d", len(f), len(rows[0]))
		}
		rows = append(rows, f)
		labels = append(labels, label(s.Team))
	}

	x := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		x.SetRow(i, r)
	}
	return x, labels, nil
}

func batch(x *mat.Dense, y []int, idx []int) (*mat.Dense, []int) {
	_, cols := x.Dims()
	bx := mat.NewDense(len(idx), cols, nil)
	by := make([]int, len(idx))
	for i, j := range idx {
		bx.SetRow(i, x.RawRowView(j))
		by[i] = y[j]
	}
	return bx, by
}

func evaluate(h *Head, x *mat.Dense, y []int) Metrics {
	if len(y) == 0 {
		return Metrics{}
	}
	predicted := make([]int, len(y))
	for i := range y {
		predicted[i] = h.Predict(x.RawRowView(i))
	}
	return computeMetrics(predicted, y, len(entity.Teams))
}

//Predict returns the team wearing the uniform in a BGR patch
func (c *Classifier) Predict(patch gocv.Mat) (entity.Team, error) {
	f, err := c.backbone.Features(patch)
	if err != nil {
		return 0, err
	}
	if len(f) != c.head.Features() {
		return 0, fmt.Errorf("backbone returned %d features, head expects %d", len(f), c.head.Features())
	}
	return teamOf(c.head.Predict(f)), nil
}
