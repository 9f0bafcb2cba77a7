package postgres

import (
	"context"
	"database/sql"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/sirupsen/logrus"
)

//insertChunk keeps a multi row insert well below the 65535 parameters postgres accepts
const insertChunk = 1000

type frameRow struct {
	VideoID int64 `db:"video_id"`
	FrameID int   `db:"frame_id"`
}

type playerRow struct {
	VideoID    int64                       `db:"video_id"`
	FrameID    int                         `db:"frame_id"`
	TrackingID int                         `db:"tracking_id"`
	X          float64                     `db:"x"`
	Y          float64                     `db:"y"`
	BBox       jsonb[geometry.BoundingBox] `db:"bbox"`
	ClassID    int                         `db:"class_id"`
	TeamID     sql.NullInt64               `db:"team_id"`
}

func toPlayerRow(videoID int64, frameID int, p entity.PlayerData) playerRow {
	row := playerRow{
		VideoID:    videoID,
		FrameID:    frameID,
		TrackingID: p.TrackingID,
		X:          p.Position.X,
		Y:          p.Position.Y,
		BBox:       jsonb[geometry.BoundingBox]{V: p.BoundingBoxOnCamera},
		ClassID:    int(p.Class),
	}
	if p.Team != nil {
		row.TeamID = sql.NullInt64{Int64: int64(*p.Team), Valid: true}
	}
	return row
}

func (row playerRow) player() entity.PlayerData {
	p := entity.PlayerData{
		TrackingID:          row.TrackingID,
		Position:            geometry.Pt(row.X, row.Y),
		BoundingBoxOnCamera: row.BBox.V,
		Class:               entity.PlayerClass(row.ClassID),
	}
	if row.TeamID.Valid {
		p.Team = entity.TeamPtr(entity.Team(row.TeamID.Int64))
	}
	return p
}

type framesRepository struct {
	q   SQLExecutor
	log logrus.FieldLogger
}

func (r *framesRepository) Insert(ctx context.Context, videoID int64, frames []entity.FrameData) error {
	frameRows := make([]frameRow, 0, len(frames))
	var playerRows []playerRow
	for _, f := range frames {
		frameRows = append(frameRows, frameRow{VideoID: videoID, FrameID: f.FrameID})
		for _, p := range f.Players {
			playerRows = append(playerRows, toPlayerRow(videoID, f.FrameID, p))
		}
	}

	for start := 0; start < len(frameRows); start += insertChunk {
		end := min(start+insertChunk, len(frameRows))
		if err := r.insert(ctx, videoID, queryInsertFrames, frameRows[start:end]); err != nil {
			return err
		}
	}
	for start := 0; start < len(playerRows); start += insertChunk {
		end := min(start+insertChunk, len(playerRows))
		if err := r.insert(ctx, videoID, queryInsertPlayerData, playerRows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *framesRepository) insert(ctx context.Context, videoID int64, query string, rows interface{}) error {
	bound, args, err := named(r.q, query, rows)
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, bound, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id": videoID,
			"error":    err.Error(),
		}).Error("Database error when inserting frame data")
		return err
	}
	return nil
}

func (r *framesRepository) Range(ctx context.Context, videoID int64, from, to int) ([]entity.FrameData, error) {
	argsKV := map[string]interface{}{"video_id": videoID, "from": from, "to": to}

	query, args, err := named(r.q, queryRangeFrames, argsKV)
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := r.q.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, err
	}

	query, args, err = named(r.q, queryRangePlayerData, argsKV)
	if err != nil {
		return nil, err
	}
	var rows []playerRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id": videoID,
			"error":    err.Error(),
		}).Error("Range player data execution err")
		return nil, err
	}

	out := make([]entity.FrameData, len(ids))
	index := make(map[int]int, len(ids))
	for i, id := range ids {
		out[i] = entity.FrameData{FrameID: id, Players: []entity.PlayerData{}}
		index[id] = i
	}
	for _, row := range rows {
		if i, ok := index[row.FrameID]; ok {
			out[i].Players = append(out[i].Players, row.player())
		}
	}
	return out, nil
}

func (r *framesRepository) Count(ctx context.Context, videoID int64) (int, error) {
	query, args, err := named(r.q, queryCountFrames, map[string]interface{}{"video_id": videoID})
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.q.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *framesRepository) DeleteAll(ctx context.Context, videoID int64) error {
	query, args, err := named(r.q, queryDeleteFrames, map[string]interface{}{"video_id": videoID})
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, query, args...)
	return err
}

type playerDataRepository struct {
	q   SQLExecutor
	log logrus.FieldLogger
}

func (r *playerDataRepository) KillTracking(ctx context.Context, videoID int64, trackID, fromFrame int) (int64, error) {
	query, args, err := named(r.q, queryKillTracking, map[string]interface{}{
		"video_id":    videoID,
		"tracking_id": trackID,
		"from":        fromFrame,
	})
	if err != nil {
		return 0, err
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id":    videoID,
			"tracking_id": trackID,
			"error":       err.Error(),
		}).Error("Database error when killing tracking")
		return 0, err
	}
	return res.RowsAffected()
}

func (r *playerDataRepository) Tracks(ctx context.Context, videoID int64) ([]int, error) {
	query, args, err := named(r.q, queryListTracks, map[string]interface{}{"video_id": videoID})
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := r.q.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, err
	}
	return ids, nil
}
