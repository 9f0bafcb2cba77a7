package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository"
	"github.com/stretchr/testify/require"
)

func frame(id int, tracks ...int) entity.FrameData {
	f := entity.FrameData{FrameID: id}
	for _, t := range tracks {
		f.Players = append(f.Players, entity.PlayerData{TrackingID: t, Class: entity.ClassPlayer})
	}
	return f
}

func TestNestedTransactions(t *testing.T) {
	ctx := context.Background()
	store := New()

	db, err := store.NewClient(ctx, false)
	require.NoError(t, err)
	id, err := db.Videos.Create(ctx, entity.Video{Directory: "d", State: entity.StateUploaded})
	require.NoError(t, err)

	tx, err := store.NewClient(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.Videos.SetState(ctx, id, entity.StateCorrected))

	//a failed inner transaction leaves the outer one untouched
	err = repository.WithTx(ctx, tx, func(inner repository.Client) error {
		require.NoError(t, inner.Frames.Insert(ctx, id, []entity.FrameData{frame(0, 1)}))
		return errors.New("abort")
	})
	require.Error(t, err)
	n, err := tx.Frames.Count(ctx, id)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, repository.WithTx(ctx, tx, func(inner repository.Client) error {
		return inner.Frames.Insert(ctx, id, []entity.FrameData{frame(0, 1), frame(1, 1)})
	}))

	//nothing is visible outside before the outer commit
	v, err := db.Videos.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, entity.StateUploaded, v.State)

	require.NoError(t, tx.Commit())
	require.Error(t, tx.Commit())

	v, err = db.Videos.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, entity.StateCorrected, v.State)
	n, err = db.Frames.Count(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	store := New()
	tx, err := store.NewClient(ctx, true)
	require.NoError(t, err)
	_, err = tx.Videos.Create(ctx, entity.Video{})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	db, _ := store.NewClient(ctx, false)
	_, err = db.Videos.Get(ctx, 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestKillTracking(t *testing.T) {
	ctx := context.Background()
	db, _ := New().NewClient(ctx, false)

	var fs []entity.FrameData
	for i := 0; i < 6; i++ {
		fs = append(fs, frame(i, 1, 2))
	}
	require.NoError(t, db.Frames.Insert(ctx, 7, fs))

	removed, err := db.PlayerData.KillTracking(ctx, 7, 2, 4)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	got, err := db.Frames.Range(ctx, 7, 0, -1)
	require.NoError(t, err)
	require.Len(t, got, 6)
	for _, f := range got {
		if f.FrameID >= 4 {
			require.Len(t, f.Players, 1, "frame %d", f.FrameID)
			require.Equal(t, 1, f.Players[0].TrackingID)
		} else {
			require.Len(t, f.Players, 2, "frame %d", f.FrameID)
		}
	}

	tracks, err := db.PlayerData.Tracks(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, tracks)

	window, err := db.Frames.Range(ctx, 7, 2, 4)
	require.NoError(t, err)
	require.Equal(t, 2, window[0].FrameID)
	require.Equal(t, 3, window[1].FrameID)
}

func TestAliasesAndSubsets(t *testing.T) {
	ctx := context.Background()
	db, _ := New().NewClient(ctx, false)

	require.NoError(t, db.Aliases.Set(ctx, entity.PlayerAlias{VideoID: 1, TrackingID: 9, Alias: "Crosby"}))
	require.NoError(t, db.Aliases.Set(ctx, entity.PlayerAlias{VideoID: 1, TrackingID: 4, Alias: "Letang"}))
	list, err := db.Aliases.List(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, map[int]string{4: "Letang", 9: "Crosby"}, repository.AliasMap(list))

	late, err := db.Subsets.Save(ctx, entity.Subset{VideoID: 1, FromFrame: 100, ToFrame: 110})
	require.NoError(t, err)
	_, err = db.Subsets.Save(ctx, entity.Subset{VideoID: 1, FromFrame: 10, ToFrame: 20})
	require.NoError(t, err)

	subs, err := db.Subsets.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, 10, subs[0].FromFrame)

	require.NoError(t, db.Subsets.Delete(ctx, 1, late))
	subs, _ = db.Subsets.List(ctx, 1)
	require.Len(t, subs, 1)

	_, err = db.Subsets.Save(ctx, entity.Subset{ID: 999, VideoID: 1})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCommitKeepsWritesMadeOutsideTheTransaction(t *testing.T) {
	ctx := context.Background()
	store := New()
	db, err := store.NewClient(ctx, false)
	require.NoError(t, err)

	first, err := db.Videos.Create(ctx, entity.Video{Directory: "a", State: entity.StateMapped})
	require.NoError(t, err)

	tx, err := store.NewClient(ctx, true)
	require.NoError(t, err)
	require.NoError(t, repository.WithTx(ctx, tx, func(inner repository.Client) error {
		return inner.Frames.Insert(ctx, first, []entity.FrameData{frame(0, 1)})
	}))
	require.NoError(t, tx.Videos.SetState(ctx, first, entity.StateProcessed))

	//another video is imported and labeled while the transaction is open
	second, err := db.Videos.Create(ctx, entity.Video{Directory: "b", State: entity.StateUploaded})
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.NoError(t, db.Aliases.Set(ctx, entity.PlayerAlias{VideoID: second, TrackingID: 3, Alias: "Ovechkin"}))
	subset, err := db.Subsets.Save(ctx, entity.Subset{VideoID: second, FromFrame: 0, ToFrame: 5})
	require.NoError(t, err)

	require.NoError(t, tx.Commit())

	v, err := db.Videos.Get(ctx, second)
	require.NoError(t, err)
	require.Equal(t, "b", v.Directory)
	list, err := db.Aliases.List(ctx, second)
	require.NoError(t, err)
	require.Equal(t, map[int]string{3: "Ovechkin"}, repository.AliasMap(list))
	subs, err := db.Subsets.List(ctx, second)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, subset, subs[0].ID)

	v, err = db.Videos.Get(ctx, first)
	require.NoError(t, err)
	require.Equal(t, entity.StateProcessed, v.State)
	n, err := db.Frames.Count(ctx, first)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	third, err := db.Videos.Create(ctx, entity.Video{Directory: "c"})
	require.NoError(t, err)
	require.NotContains(t, []int64{first, second, subset}, third)
}

func TestIDsAreNeverReusedAcrossTransactions(t *testing.T) {
	ctx := context.Background()
	store := New()
	db, _ := store.NewClient(ctx, false)

	tx, err := store.NewClient(ctx, true)
	require.NoError(t, err)
	inTx, err := tx.Videos.Create(ctx, entity.Video{Directory: "tx"})
	require.NoError(t, err)
	outside, err := db.Videos.Create(ctx, entity.Video{Directory: "root"})
	require.NoError(t, err)
	require.NotEqual(t, inTx, outside)

	require.NoError(t, tx.Commit())
	for id, dir := range map[int64]string{inTx: "tx", outside: "root"} {
		v, err := db.Videos.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, dir, v.Directory)
	}
}

func TestKillTrackingInsideTransaction(t *testing.T) {
	ctx := context.Background()
	store := New()
	db, _ := store.NewClient(ctx, false)
	require.NoError(t, db.Frames.Insert(ctx, 3, []entity.FrameData{frame(0, 1, 2), frame(1, 1, 2)}))

	tx, err := store.NewClient(ctx, true)
	require.NoError(t, err)
	removed, err := tx.PlayerData.KillTracking(ctx, 3, 2, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	tracks, _ := db.PlayerData.Tracks(ctx, 3)
	require.Equal(t, []int{1, 2}, tracks)
	require.NoError(t, tx.Commit())

	got, err := db.Frames.Range(ctx, 3, 1, 2)
	require.NoError(t, err)
	require.Len(t, got[0].Players, 1)
	require.Equal(t, 1, got[0].Players[0].TrackingID)
}
