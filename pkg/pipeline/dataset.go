package pipeline

import (
	"context"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/players"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository"
	"github.com/chenBenjamin97/rink-minimap/pkg/team"
	"github.com/chenBenjamin97/rink-minimap/pkg/tracker"
	"github.com/chenBenjamin97/rink-minimap/pkg/video"
	"github.com/sirupsen/logrus"
)

//ProposeSubset tracks frames [from, to) so the operator can label teams on them.
//Teams are filled in when a classifier was already trained for the video.
func (c *Coordinator) ProposeSubset(ctx context.Context, videoID int64, from, to int) (entity.Subset, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return entity.Subset{}, err
	}
	v, err := client.Videos.Get(ctx, videoID)
	if err != nil {
		return entity.Subset{}, err
	}
	if err := atLeast(v, entity.StateMapped); err != nil {
		return entity.Subset{}, err
	}
	if err := c.checkRange(v, from, to); err != nil {
		return entity.Subset{}, err
	}

	solver, err := c.solver(ctx, client, v)
	if err != nil {
		return entity.Subset{}, err
	}
	release, err := c.lockFiles(ctx, v)
	if err != nil {
		return entity.Subset{}, err
	}
	defer release()

	mask, fieldBox, err := c.fieldMask(v)
	if err != nil {
		return entity.Subset{}, err
	}
	defer mask.Close()

	reader, err := video.Open(v.PlayablePath(c.static()))
	if err != nil {
		return entity.Subset{}, err
	}
	defer reader.Close()

	logger := c.logger(ctx, videoID)
	var teams players.TeamPredictor
	if classifier := c.cached(videoID); classifier != nil {
		teams = classifier
	}
	ex := players.NewExtractor(mask, fieldBox, solver, tracker.New(c.cfg.Tracker), teams, logger)
	ex.Threshold = c.cfg.ScoreThreshold

	subset := entity.Subset{VideoID: videoID, FromFrame: from, ToFrame: to}
	err = c.extract(ctx, reader, from, to, ex, func(ctx context.Context, frameID int, found []entity.PlayerData) error {
		subset.Frames = append(subset.Frames, entity.FrameData{FrameID: frameID, Players: found})
		return nil
	})
	if err != nil {
		return entity.Subset{}, err
	}

	logger.WithFields(logrus.Fields{"from": from, "to": to, "tracks": ex.Tracker.LastID()}).Info("Subset proposed")
	return subset, nil
}

func (c *Coordinator) checkRange(v entity.Video, from, to int) error {
	switch {
	case from < 0 || to <= from:
		return apperr.Newf(apperr.KindInvalidInput, "frame range [%d, %d) is empty", from, to)
	case v.FrameCount > 0 && to > v.FrameCount:
		return apperr.Newf(apperr.KindInvalidInput, "frame range ends at %d, video has %d frames", to, v.FrameCount)
	case c.cfg.MaxSubsetFrames > 0 && to-from > c.cfg.MaxSubsetFrames:
		return apperr.Newf(apperr.KindInvalidInput, "frame range holds %d frames, at most %d are allowed", to-from, c.cfg.MaxSubsetFrames)
	}
	return nil
}

//SaveSubset stores an operator labeled subset. Every player but the referees must carry a known team
//on every frame, and frames must lie inside the subset range.
func (c *Coordinator) SaveSubset(ctx context.Context, s entity.Subset) (int64, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return 0, err
	}
	v, err := client.Videos.Get(ctx, s.VideoID)
	if err != nil {
		return 0, err
	}
	if err := atLeast(v, entity.StateMapped); err != nil {
		return 0, err
	}
	if err := c.checkRange(v, s.FromFrame, s.ToFrame); err != nil {
		return 0, err
	}
	for _, f := range s.Frames {
		if f.FrameID < s.FromFrame || f.FrameID >= s.ToFrame {
			return 0, apperr.Newf(apperr.KindInvalidInput, "frame %d is outside [%d, %d)", f.FrameID, s.FromFrame, s.ToFrame)
		}
		for _, p := range f.Players {
			switch {
			case p.Class == entity.ClassReferee && p.Team != nil:
				return 0, apperr.Newf(apperr.KindInvalidInput, "frame %d track %d: referees have no team", f.FrameID, p.TrackingID)
			case p.Class == entity.ClassReferee:
			case p.Team == nil:
				return 0, apperr.Newf(apperr.KindInvalidInput, "frame %d track %d: team is missing", f.FrameID, p.TrackingID)
			case !p.Team.Valid():
				return 0, apperr.Newf(apperr.KindInvalidInput, "frame %d track %d: team %d is unknown", f.FrameID, p.TrackingID, *p.Team)
			}
		}
	}
	return client.Subsets.Save(ctx, s)
}

//Subsets lists the labeled subsets of a video
func (c *Coordinator) Subsets(ctx context.Context, videoID int64) ([]entity.Subset, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return nil, err
	}
	return client.Subsets.List(ctx, videoID)
}

func (c *Coordinator) DeleteSubset(ctx context.Context, videoID, id int64) error {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return err
	}
	return client.Subsets.Delete(ctx, videoID, id)
}

//TrainDataset builds the team dataset from the labeled subsets and trains the video's classifier
func (c *Coordinator) TrainDataset(ctx context.Context, videoID int64) (info entity.DatasetInfo, err error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return entity.DatasetInfo{}, err
	}
	v, err := client.Videos.Get(ctx, videoID)
	if err != nil {
		return entity.DatasetInfo{}, err
	}
	if err := atLeast(v, entity.StateMapped); err != nil {
		return entity.DatasetInfo{}, err
	}
	if err := guard(v, entity.StateDatasetReady); err != nil {
		return entity.DatasetInfo{}, err
	}

	counter := progress.NewCounter(c.progress, videoID, jobID(ctx), progress.StageDataset, 2)
	defer func() { counter.Finish(ctx, err) }()

	ds, err := c.buildDataset(ctx, client, v)
	if err != nil {
		return entity.DatasetInfo{}, err
	}
	defer ds.Close()
	counter.Add(ctx, 1)

	classifier, err := team.Train(ctx, ds, c.backbone, c.cfg.Train, c.logger(ctx, videoID))
	if err != nil {
		return entity.DatasetInfo{}, err
	}
	counter.Add(ctx, 1)

	counts := ds.Count()
	info = entity.DatasetInfo{
		VideoID:   videoID,
		Home:      counts[entity.TeamHome],
		Away:      counts[entity.TeamAway],
		Accuracy:  classifier.Metrics.Accuracy,
		Precision: classifier.Metrics.Precision,
		Recall:    classifier.Metrics.Recall,
		F1:        classifier.Metrics.F1,
	}
	err = repository.WithTx(ctx, client, func(tx repository.Client) error {
		if err := tx.Dataset.Save(ctx, info); err != nil {
			return err
		}
		return tx.Videos.SetState(ctx, videoID, entity.StateDatasetReady)
	})
	if err != nil {
		return entity.DatasetInfo{}, err
	}
	c.cache(videoID, classifier)
	return info, nil
}

func (c *Coordinator) buildDataset(ctx context.Context, client repository.Client, v entity.Video) (team.Dataset, error) {
	subsets, err := client.Subsets.List(ctx, v.ID)
	if err != nil {
		return team.Dataset{}, err
	}
	if len(subsets) == 0 {
		return team.Dataset{}, apperr.Newf(apperr.KindNotEnoughPlayersUniformExamples, "video %d has no labeled subsets", v.ID)
	}
	release, err := c.lockFiles(ctx, v)
	if err != nil {
		return team.Dataset{}, err
	}
	defer release()

	reader, err := video.Open(v.PlayablePath(c.static()))
	if err != nil {
		return team.Dataset{}, err
	}
	defer reader.Close()
	return team.BuildDataset(ctx, reader, subsets)
}

func (c *Coordinator) cached(videoID int64) *team.Classifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifiers[videoID]
}

func (c *Coordinator) cache(videoID int64, classifier *team.Classifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classifiers[videoID] = classifier
}

//forget discards the classifier of a video once its players are stored
func (c *Coordinator) forget(videoID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.classifiers, videoID)
}

//classifier returns the trained classifier of v. Classifiers live in memory only,
//so after a restart it is trained again from the stored subsets.
func (c *Coordinator) classifier(ctx context.Context, client repository.Client, v entity.Video) (*team.Classifier, error) {
	if classifier := c.cached(v.ID); classifier != nil {
		return classifier, nil
	}
	c.logger(ctx, v.ID).Info("Retraining team classifier")
	ds, err := c.buildDataset(ctx, client, v)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	classifier, err := team.Train(ctx, ds, c.backbone, c.cfg.Train, c.logger(ctx, v.ID))
	if err != nil {
		return nil, err
	}
	c.cache(v.ID, classifier)
	return classifier, nil
}
