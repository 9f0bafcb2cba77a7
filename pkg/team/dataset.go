package team

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"gocv.io/x/gocv"
)

//MinExamplesPerTeam is how many labeled patches each team needs before training
const MinExamplesPerTeam = 50

//Sample is one BGR player patch labeled with its team
type Sample struct {
	Patch gocv.Mat
	Team  entity.Team
}

//Dataset owns the patches of its samples
type Dataset struct {
	Samples []Sample
}

func (d *Dataset) Add(patch gocv.Mat, t entity.Team) {
	d.Samples = append(d.Samples, Sample{Patch: patch, Team: t})
}

func (d Dataset) Len() int {
	return len(d.Samples)
}

//Count returns how many samples each team has
func (d Dataset) Count() map[entity.Team]int {
	out := make(map[entity.Team]int, len(entity.Teams))
	for _, t := range entity.Teams {
		out[t] = 0
	}
	for _, s := range d.Samples {
		out[s.Team]++
	}
	return out
}

//Check fails with NotEnoughPlayersUniformExamples when a team has fewer than minPerTeam samples
func (d Dataset) Check(minPerTeam int) error {
	counts := d.Count()
	for _, t := range entity.Teams {
		if counts[t] < minPerTeam {
			return apperr.Wrap(apperr.KindNotEnoughPlayersUniformExamples,
				fmt.Errorf("team %s has %d examples, need %d", t, counts[t], minPerTeam))
		}
	}
	return nil
}

func (d Dataset) Close() {
	for _, s := range d.Samples {
		s.Patch.Close()
	}
}

//StratifiedSplit splits d so each team keeps the same share in both parts. Patches are shared with d.
func StratifiedSplit(d Dataset, ratio float64, seed int64) (Dataset, Dataset) {
	rnd := rand.New(rand.NewSource(seed))
	var train, val Dataset
	for _, t := range entity.Teams {
		var idx []int
		for i, s := range d.Samples {
			if s.Team == t {
				idx = append(idx, i)
			}
		}
		rnd.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })

		cut := int(float64(len(idx))*ratio + 0.5)
		for n, i := range idx {
			if n < cut {
				train.Samples = append(train.Samples, d.Samples[i])
			} else {
				val.Samples = append(val.Samples, d.Samples[i])
			}
		}
	}
	return train, val
}

//FrameSource reads single frames of a video
type FrameSource interface {
	//Frame returns frame frameID in BGR. The caller owns the Mat.
	Frame(ctx context.Context, frameID int) (gocv.Mat, error)
}

//BuildDataset cuts a patch out of every labeled non referee player of every subset frame
func BuildDataset(ctx context.Context, src FrameSource, subsets []entity.Subset) (Dataset, error) {
	var ds Dataset
	for _, subset := range subsets {
		for _, fd := range subset.Frames {
			if err := ctx.Err(); err != nil {
				ds.Close()
				return Dataset{}, err
			}
			if !hasLabels(fd) {
				continue
			}

			frame, err := src.Frame(ctx, fd.FrameID)
			if err != nil {
				ds.Close()
				return Dataset{}, fmt.Errorf("read frame %d: %w", fd.FrameID, err)
			}
			res := geometry.Resolution{Width: frame.Cols(), Height: frame.Rows()}
			for _, p := range fd.Players {
				if p.Team == nil || p.Class == entity.ClassReferee {
					continue
				}
				box, err := p.BoundingBoxOnCamera.FromRelative(res)
				if err != nil {
					continue
				}
				patch := box.CutOut(frame)
				if patch.Empty() {
					patch.Close()
					continue
				}
				ds.Add(patch, *p.Team)
			}
			frame.Close()
		}
	}
	return ds, nil
}

func hasLabels(fd entity.FrameData) bool {
	for _, p := range fd.Players {
		if p.Team != nil {
			return true
		}
	}
	return false
}
