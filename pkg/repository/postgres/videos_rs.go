package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/sirupsen/logrus"
)

type videosRepository struct {
	q   SQLExecutor
	log logrus.FieldLogger
}

func (r *videosRepository) Create(ctx context.Context, v entity.Video) (int64, error) {
	query, args, err := named(r.q, queryCreateVideo, v)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := r.q.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		r.log.WithFields(logrus.Fields{
			"directory": v.Directory,
			"error":     err.Error(),
		}).Error("Database error when creating video")
		return 0, err
	}
	return id, nil
}

func (r *videosRepository) Get(ctx context.Context, id int64) (entity.Video, error) {
	query, args, err := named(r.q, queryGetVideo, map[string]interface{}{"id": id})
	if err != nil {
		return entity.Video{}, err
	}

	var v entity.Video
	if err := r.q.QueryRowxContext(ctx, query, args...).StructScan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Video{}, apperr.Newf(apperr.KindNotFound, "video %d not found", id)
		}
		r.log.WithFields(logrus.Fields{
			"video_id": id,
			"error":    err.Error(),
		}).Error("Get video execution err")
		return entity.Video{}, err
	}
	return v, nil
}

func (r *videosRepository) Update(ctx context.Context, v entity.Video) error {
	query, args, err := named(r.q, queryUpdateVideo, v)
	if err != nil {
		return err
	}
	return r.exec(ctx, v.ID, query, args)
}

func (r *videosRepository) SetState(ctx context.Context, id int64, state entity.ProjectState) error {
	query, args, err := named(r.q, querySetVideoState, map[string]interface{}{"id": id, "state": int(state)})
	if err != nil {
		return err
	}
	return r.exec(ctx, id, query, args)
}

//exec runs an update of one video, reporting NotFound when no row matched
func (r *videosRepository) exec(ctx context.Context, id int64, query string, args []interface{}) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id": id,
			"error":    err.Error(),
		}).Error("Database error when updating video")
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.Newf(apperr.KindNotFound, "video %d not found", id)
	}
	return nil
}
