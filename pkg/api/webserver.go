package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/keypoints"
	"github.com/chenBenjamin97/rink-minimap/pkg/pipeline"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (s *Server) routes() {
	apiRoutes := s.engine.Group("/api")

	apiRoutes.POST("/videos", s.upload)

	videos := apiRoutes.Group("/videos/:id")
	videos.GET("", s.video)
	videos.GET("/files", s.files)

	videos.POST("/correct", s.job(progress.StageCorrect, s.analyzer.Correct))
	videos.POST("/map", s.mapVideo)
	videos.GET("/mapping", s.mapping)
	videos.PUT("/mapping", s.saveMapping)

	videos.POST("/subsets/propose", s.proposeSubset)
	videos.GET("/subsets", s.subsets)
	videos.POST("/subsets", s.saveSubset)
	videos.DELETE("/subsets/:subset", s.deleteSubset)

	videos.POST("/dataset", s.job(progress.StageDataset, func(ctx context.Context, id int64) error {
		_, err := s.analyzer.TrainDataset(ctx, id)
		return err
	}))
	videos.GET("/dataset", s.dataset)

	videos.POST("/process", s.job(progress.StageProcess, s.analyzer.Process))
	videos.POST("/render", s.job(progress.StageRender, s.analyzer.Render))
	videos.GET("/progress", s.progress)
	videos.DELETE("/job", s.cancel)

	videos.GET("/minimap", s.minimap)
	videos.GET("/frames", s.frames)
	videos.GET("/tracks", s.tracks)
	videos.DELETE("/tracks/:track", s.killTrack)
	videos.GET("/aliases", s.aliases)
	videos.PUT("/aliases/:track", s.setAlias)
}

//fail answers with the status matching err's kind
func (s *Server) fail(ctx *gin.Context, err error, operation string) {
	status := apperr.HTTPStatus(err)
	entry := s.log.WithFields(logrus.Fields{
		requestIDKey: ctx.GetString(requestIDKey),
		"path":       ctx.FullPath(),
		"operation":  operation,
		"error":      err.Error(),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
	ctx.AbortWithStatusJSON(status, gin.H{
		"error":      err.Error(),
		"kind":       apperr.KindOf(err).String(),
		"request_id": ctx.GetString(requestIDKey),
	})
}

func (s *Server) bind(ctx *gin.Context, req interface{}) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		s.fail(ctx, apperr.Wrap(apperr.KindInvalidInput, err), "parse_request_body")
		return false
	}
	if err := s.validator.Struct(req); err != nil {
		s.fail(ctx, apperr.Wrap(apperr.KindInvalidInput, err), "validate_request_body")
		return false
	}
	return true
}

func param(ctx *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, apperr.Newf(apperr.KindInvalidInput, "%s %q is not a number", name, ctx.Param(name))
	}
	return v, nil
}

func query(ctx *gin.Context, name string, fallback int) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Newf(apperr.KindInvalidInput, "query %s %q is not a number", name, raw)
	}
	return v, nil
}

//videoID parses the :id parameter, failing the request when it is malformed
func (s *Server) videoID(ctx *gin.Context) (int64, bool) {
	id, err := param(ctx, "id")
	if err != nil {
		s.fail(ctx, err, "parse_video_id")
		return 0, false
	}
	return id, true
}

func (s *Server) request(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), s.timeout)
}

//job starts fn in the background for the video of the request and answers with the job id
func (s *Server) job(stage progress.Stage, fn func(ctx context.Context, videoID int64) error) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := s.videoID(ctx)
		if !ok {
			return
		}
		c, cancel := s.request(ctx)
		defer cancel()
		if _, err := s.analyzer.Video(c, id); err != nil {
			s.fail(ctx, err, "get_video")
			return
		}

		job, err := s.jobs.Start(s.base, id, stage, func(jobCtx context.Context) error {
			return fn(jobCtx, id)
		})
		if err != nil {
			s.fail(ctx, err, "start_"+string(stage))
			return
		}
		ctx.JSON(http.StatusAccepted, job)
	}
}

func (s *Server) upload(ctx *gin.Context) {
	file, header, err := ctx.Request.FormFile("video")
	if err != nil {
		s.fail(ctx, apperr.Wrap(apperr.KindInvalidInput, err), "read_form_file")
		return
	}
	defer file.Close()
	s.log.WithFields(logrus.Fields{
		requestIDKey: ctx.GetString(requestIDKey),
		"name":       header.Filename,
		"size":       header.Size,
	}).Info("Received new video")

	v, err := s.analyzer.Import(ctx.Request.Context(), header.Filename, header.Size, file)
	if err != nil {
		s.fail(ctx, err, "import_video")
		return
	}
	ctx.JSON(http.StatusCreated, v)
}

func (s *Server) video(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	v, err := s.analyzer.Video(c, id)
	if err != nil {
		s.fail(ctx, err, "get_video")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"video": v, "state": v.State.String()})
}

func (s *Server) files(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	files, err := s.analyzer.Files(c, id)
	if err != nil {
		s.fail(ctx, err, "list_files")
		return
	}
	ctx.JSON(http.StatusOK, files)
}

type keyPointRequest struct {
	Name string  `json:"name" validate:"required"`
	X    float64 `json:"x" validate:"gte=0"`
	Y    float64 `json:"y" validate:"gte=0"`
}

type mapRequest struct {
	CameraPosition string            `json:"camera_position" validate:"required"`
	AnchorX        *float64          `json:"anchor_x" validate:"omitempty,gte=0"`
	AnchorY        *float64          `json:"anchor_y" validate:"omitempty,gte=0"`
	HintMS         float64           `json:"hint_ms" validate:"gte=0"`
	Override       []keyPointRequest `json:"override" validate:"dive"`
}

func (s *Server) mapVideo(ctx *gin.Context) {
	_, ok := s.videoID(ctx)
	if !ok {
		return
	}
	var req mapRequest
	if !s.bind(ctx, &req) {
		return
	}
	position, err := keypoints.ParseCameraPosition(req.CameraPosition)
	if err != nil {
		s.fail(ctx, apperr.Wrap(apperr.KindInvalidInput, err), "parse_camera_position")
		return
	}

	mr := pipeline.MapRequest{CameraPosition: position, HintMS: req.HintMS}
	if req.AnchorX != nil && req.AnchorY != nil {
		anchor := geometry.Pt(*req.AnchorX, *req.AnchorY)
		mr.Anchor = &anchor
	}
	if len(req.Override) > 0 {
		mr.Override = make(map[keypoints.KeyPoint]geometry.Point, len(req.Override))
		for _, o := range req.Override {
			k, ok := s.analyzer.KeyPoint(o.Name)
			if !ok {
				s.fail(ctx, apperr.Newf(apperr.KindInvalidInput, "key point %q is unknown", o.Name), "parse_override")
				return
			}
			mr.Override[k] = geometry.Pt(o.X, o.Y)
		}
	}

	s.job(progress.StageMap, func(c context.Context, videoID int64) error {
		_, err := s.analyzer.Map(c, videoID, mr)
		return err
	})(ctx)
}

func (s *Server) mapping(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	points, err := s.analyzer.Mapping(c, id)
	if err != nil {
		s.fail(ctx, err, "get_mapping")
		return
	}
	ctx.JSON(http.StatusOK, points)
}

type pointRequest struct {
	CameraX  float64 `json:"camera_x" validate:"gte=0,lte=1"`
	CameraY  float64 `json:"camera_y" validate:"gte=0,lte=1"`
	MinimapX float64 `json:"minimap_x" validate:"gte=0,lte=1"`
	MinimapY float64 `json:"minimap_y" validate:"gte=0,lte=1"`
}

type saveMappingRequest struct {
	Points []pointRequest `json:"points" validate:"min=4,dive"`
}

func (s *Server) saveMapping(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	var req saveMappingRequest
	if !s.bind(ctx, &req) {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	points := make([]entity.MapPoint, len(req.Points))
	for i, p := range req.Points {
		points[i] = entity.MapPoint{
			Camera:  geometry.Pt(p.CameraX, p.CameraY),
			Minimap: geometry.Pt(p.MinimapX, p.MinimapY),
		}
	}
	res, err := s.analyzer.SaveMapping(c, id, points)
	if err != nil {
		s.fail(ctx, err, "save_mapping")
		return
	}
	ctx.JSON(http.StatusOK, res)
}

type rangeRequest struct {
	From int `json:"from" validate:"gte=0"`
	To   int `json:"to" validate:"gtfield=From"`
}

func (s *Server) proposeSubset(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	var req rangeRequest
	if !s.bind(ctx, &req) {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	subset, err := s.analyzer.ProposeSubset(c, id, req.From, req.To)
	if err != nil {
		s.fail(ctx, err, "propose_subset")
		return
	}
	ctx.JSON(http.StatusOK, subset)
}

func (s *Server) subsets(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	list, err := s.analyzer.Subsets(c, id)
	if err != nil {
		s.fail(ctx, err, "list_subsets")
		return
	}
	ctx.JSON(http.StatusOK, list)
}

func (s *Server) saveSubset(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	var subset entity.Subset
	if err := ctx.ShouldBindJSON(&subset); err != nil {
		s.fail(ctx, apperr.Wrap(apperr.KindInvalidInput, err), "parse_request_body")
		return
	}
	subset.VideoID = id
	c, cancel := s.request(ctx)
	defer cancel()

	subsetID, err := s.analyzer.SaveSubset(c, subset)
	if err != nil {
		s.fail(ctx, err, "save_subset")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"id": subsetID})
}

func (s *Server) deleteSubset(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	subsetID, err := param(ctx, "subset")
	if err != nil {
		s.fail(ctx, err, "parse_subset_id")
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	if err := s.analyzer.DeleteSubset(c, id, subsetID); err != nil {
		s.fail(ctx, err, "delete_subset")
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (s *Server) dataset(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	info, err := s.analyzer.DatasetInfo(c, id)
	if err != nil {
		s.fail(ctx, err, "get_dataset")
		return
	}
	ctx.JSON(http.StatusOK, info)
}

func (s *Server) progress(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	status, err := s.analyzer.Progress(c, id)
	if err != nil {
		s.fail(ctx, err, "get_progress")
		return
	}
	_, running := s.jobs.Get(id)
	ctx.JSON(http.StatusOK, gin.H{"status": status, "running": running})
}

func (s *Server) cancel(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	if !s.jobs.Cancel(id) {
		s.fail(ctx, apperr.Newf(apperr.KindNotFound, "video %d has no running job", id), "cancel_job")
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (s *Server) minimap(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	path, err := s.analyzer.MinimapFile(c, id)
	if err != nil {
		s.fail(ctx, err, "get_minimap")
		return
	}
	ctx.Header("Content-Type", "video/mp4")
	http.ServeFile(ctx.Writer, ctx.Request, path)
}

func (s *Server) frames(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	from, err := query(ctx, "from", 0)
	if err != nil {
		s.fail(ctx, err, "parse_query")
		return
	}
	to, err := query(ctx, "to", -1)
	if err != nil {
		s.fail(ctx, err, "parse_query")
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	frames, err := s.analyzer.Frames(c, id, from, to)
	if err != nil {
		s.fail(ctx, err, "get_frames")
		return
	}
	ctx.JSON(http.StatusOK, frames)
}

func (s *Server) tracks(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	tracks, err := s.analyzer.Tracks(c, id)
	if err != nil {
		s.fail(ctx, err, "get_tracks")
		return
	}
	ctx.JSON(http.StatusOK, tracks)
}

func (s *Server) killTrack(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	track, err := param(ctx, "track")
	if err != nil {
		s.fail(ctx, err, "parse_track_id")
		return
	}
	from, err := query(ctx, "from", 0)
	if err != nil {
		s.fail(ctx, err, "parse_query")
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	removed, err := s.analyzer.KillTracking(c, id, int(track), from)
	if err != nil {
		s.fail(ctx, err, "kill_tracking")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) aliases(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	list, err := s.analyzer.Aliases(c, id)
	if err != nil {
		s.fail(ctx, err, "list_aliases")
		return
	}
	ctx.JSON(http.StatusOK, list)
}

type aliasRequest struct {
	Alias string `json:"alias" validate:"max=64"`
}

func (s *Server) setAlias(ctx *gin.Context) {
	id, ok := s.videoID(ctx)
	if !ok {
		return
	}
	track, err := param(ctx, "track")
	if err != nil {
		s.fail(ctx, err, "parse_track_id")
		return
	}
	var req aliasRequest
	if !s.bind(ctx, &req) {
		return
	}
	c, cancel := s.request(ctx)
	defer cancel()

	if err := s.analyzer.SetAlias(c, entity.PlayerAlias{VideoID: id, TrackingID: int(track), Alias: req.Alias}); err != nil {
		s.fail(ctx, err, "set_alias")
		return
	}
	ctx.Status(http.StatusNoContent)
}
