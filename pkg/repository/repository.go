package repository

import (
	"context"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
)

type Repository interface {
	//NewClient returns a client bound to the database, or to a new transaction when tx is set
	NewClient(ctx context.Context, tx bool) (Client, error)
}

type Videos interface {
	Create(ctx context.Context, v entity.Video) (int64, error)
	//Get fails with apperr.ErrNotFound for an unknown id
	Get(ctx context.Context, id int64) (entity.Video, error)
	Update(ctx context.Context, v entity.Video) error
	SetState(ctx context.Context, id int64, state entity.ProjectState) error
}

type MapData interface {
	Get(ctx context.Context, videoID int64) ([]entity.MapPoint, error)
	Replace(ctx context.Context, videoID int64, points []entity.MapPoint) error
}

type Subsets interface {
	List(ctx context.Context, videoID int64) ([]entity.Subset, error)
	Save(ctx context.Context, s entity.Subset) (int64, error)
	Delete(ctx context.Context, videoID, id int64) error
}

//Frames stores the per-frame player data of processed videos
type Frames interface {
	Insert(ctx context.Context, videoID int64, frames []entity.FrameData) error
	//Range returns the stored frames with from <= frame_id < to in ascending order, a negative to means all
	Range(ctx context.Context, videoID int64, from, to int) ([]entity.FrameData, error)
	Count(ctx context.Context, videoID int64) (int, error)
	DeleteAll(ctx context.Context, videoID int64) error
}

type PlayerData interface {
	//KillTracking removes the records of trackID with frame_id >= fromFrame and returns how many went away
	KillTracking(ctx context.Context, videoID int64, trackID, fromFrame int) (int64, error)
	Tracks(ctx context.Context, videoID int64) ([]int, error)
}

type Dataset interface {
	Save(ctx context.Context, d entity.DatasetInfo) error
	Get(ctx context.Context, videoID int64) (entity.DatasetInfo, error)
}

type Aliases interface {
	List(ctx context.Context, videoID int64) ([]entity.PlayerAlias, error)
	Set(ctx context.Context, a entity.PlayerAlias) error
}

//Client bundles every storage capability the analysis core needs. A transactional client
//can open nested transactions with Begin; Commit and Rollback end the innermost one.
type Client struct {
	Videos     Videos
	MapData    MapData
	Subsets    Subsets
	Frames     Frames
	PlayerData PlayerData
	Dataset    Dataset
	Aliases    Aliases

	Begin    func(ctx context.Context) (Client, error)
	Commit   func() error
	Rollback func() error
}

//WithTx runs fn inside a transaction of client (nested when client already is one).
//fn's error rolls the transaction back, otherwise it is committed.
func WithTx(ctx context.Context, client Client, fn func(tx Client) error) (err error) {
	tx, err := client.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

//AliasMap indexes aliases by tracking id
func AliasMap(aliases []entity.PlayerAlias) map[int]string {
	out := make(map[int]string, len(aliases))
	for _, a := range aliases {
		out[a.TrackingID] = a.Alias
	}
	return out
}
