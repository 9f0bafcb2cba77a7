package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/sirupsen/logrus"
)

type mapPointRow struct {
	ID       int64   `db:"id"`
	VideoID  int64   `db:"video_id"`
	CameraX  float64 `db:"camera_x"`
	CameraY  float64 `db:"camera_y"`
	MinimapX float64 `db:"minimap_x"`
	MinimapY float64 `db:"minimap_y"`
	Operator bool    `db:"operator"`
}

type mapDataRepository struct {
	q   SQLExecutor
	log logrus.FieldLogger
}

func (r *mapDataRepository) Get(ctx context.Context, videoID int64) ([]entity.MapPoint, error) {
	query, args, err := named(r.q, queryGetMapPoints, map[string]interface{}{"video_id": videoID})
	if err != nil {
		return nil, err
	}
	var rows []mapPointRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id": videoID,
			"error":    err.Error(),
		}).Error("Get map points execution err")
		return nil, err
	}

	out := make([]entity.MapPoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.MapPoint{
			ID:       row.ID,
			VideoID:  row.VideoID,
			Camera:   geometry.Pt(row.CameraX, row.CameraY),
			Minimap:  geometry.Pt(row.MinimapX, row.MinimapY),
			Operator: row.Operator,
		})
	}
	return out, nil
}

//Replace swaps the whole point set of a video; run it inside a transaction
func (r *mapDataRepository) Replace(ctx context.Context, videoID int64, points []entity.MapPoint) error {
	query, args, err := named(r.q, queryDeleteMapPoints, map[string]interface{}{"video_id": videoID})
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	rows := make([]mapPointRow, 0, len(points))
	for _, p := range points {
		rows = append(rows, mapPointRow{
			VideoID:  videoID,
			CameraX:  p.Camera.X,
			CameraY:  p.Camera.Y,
			MinimapX: p.Minimap.X,
			MinimapY: p.Minimap.Y,
			Operator: p.Operator,
		})
	}
	query, args, err = named(r.q, queryInsertMapPoints, rows)
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id": videoID,
			"error":    err.Error(),
		}).Error("Database error when inserting map points")
		return err
	}
	return nil
}

type subsetRow struct {
	ID        int64                     `db:"id"`
	VideoID   int64                     `db:"video_id"`
	FromFrame int                       `db:"from_frame"`
	ToFrame   int                       `db:"to_frame"`
	Frames    jsonb[[]entity.FrameData] `db:"frames"`
}

type subsetsRepository struct {
	q   SQLExecutor
	log logrus.FieldLogger
}

func (r *subsetsRepository) List(ctx context.Context, videoID int64) ([]entity.Subset, error) {
	query, args, err := named(r.q, queryListSubsets, map[string]interface{}{"video_id": videoID})
	if err != nil {
		return nil, err
	}
	var rows []subsetRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id": videoID,
			"error":    err.Error(),
		}).Error("List subsets execution err")
		return nil, err
	}

	out := make([]entity.Subset, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.Subset{
			ID:        row.ID,
			VideoID:   row.VideoID,
			FromFrame: row.FromFrame,
			ToFrame:   row.ToFrame,
			Frames:    row.Frames.V,
		})
	}
	return out, nil
}

//Save creates s when its ID is zero and updates it otherwise
func (r *subsetsRepository) Save(ctx context.Context, s entity.Subset) (int64, error) {
	frames := s.Frames
	if frames == nil {
		frames = []entity.FrameData{}
	}
	row := subsetRow{
		ID:        s.ID,
		VideoID:   s.VideoID,
		FromFrame: s.FromFrame,
		ToFrame:   s.ToFrame,
		Frames:    jsonb[[]entity.FrameData]{V: frames},
	}

	if s.ID == 0 {
		query, args, err := named(r.q, queryCreateSubset, row)
		if err != nil {
			return 0, err
		}
		var id int64
		if err := r.q.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			r.log.WithFields(logrus.Fields{
				"video_id": s.VideoID,
				"error":    err.Error(),
			}).Error("Database error when creating subset")
			return 0, err
		}
		return id, nil
	}

	query, args, err := named(r.q, queryUpdateSubset, row)
	if err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, apperr.Newf(apperr.KindNotFound, "subset %d not found", s.ID)
	}
	return s.ID, nil
}

func (r *subsetsRepository) Delete(ctx context.Context, videoID, id int64) error {
	query, args, err := named(r.q, queryDeleteSubset, map[string]interface{}{"video_id": videoID, "id": id})
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.Newf(apperr.KindNotFound, "subset %d not found", id)
	}
	return nil
}

type datasetRepository struct {
	q   SQLExecutor
	log logrus.FieldLogger
}

func (r *datasetRepository) Save(ctx context.Context, d entity.DatasetInfo) error {
	query, args, err := named(r.q, queryUpsertDataset, d)
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id": d.VideoID,
			"error":    err.Error(),
		}).Error("Database error when saving dataset info")
		return err
	}
	return nil
}

func (r *datasetRepository) Get(ctx context.Context, videoID int64) (entity.DatasetInfo, error) {
	query, args, err := named(r.q, queryGetDataset, map[string]interface{}{"video_id": videoID})
	if err != nil {
		return entity.DatasetInfo{}, err
	}
	var d entity.DatasetInfo
	if err := r.q.GetContext(ctx, &d, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.DatasetInfo{}, apperr.Newf(apperr.KindNotFound, "no dataset for video %d", videoID)
		}
		return entity.DatasetInfo{}, err
	}
	return d, nil
}

type aliasRow struct {
	VideoID    int64  `db:"video_id"`
	TrackingID int    `db:"tracking_id"`
	Alias      string `db:"alias"`
}

type aliasesRepository struct {
	q   SQLExecutor
	log logrus.FieldLogger
}

func (r *aliasesRepository) List(ctx context.Context, videoID int64) ([]entity.PlayerAlias, error) {
	query, args, err := named(r.q, queryListAliases, map[string]interface{}{"video_id": videoID})
	if err != nil {
		return nil, err
	}
	var rows []aliasRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]entity.PlayerAlias, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.PlayerAlias(row))
	}
	return out, nil
}

//Set stores the alias of a track, an empty alias removes it
func (r *aliasesRepository) Set(ctx context.Context, a entity.PlayerAlias) error {
	q := queryUpsertAlias
	if a.Alias == "" {
		q = queryDeleteAlias
	}
	query, args, err := named(r.q, q, aliasRow(a))
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id":    a.VideoID,
			"tracking_id": a.TrackingID,
			"error":       err.Error(),
		}).Error("Database error when setting alias")
		return err
	}
	return nil
}
