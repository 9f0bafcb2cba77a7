package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/keypoints"
	"github.com/chenBenjamin97/rink-minimap/pkg/log"
	"github.com/chenBenjamin97/rink-minimap/pkg/pipeline"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

//fakeAnalyzer knows video 1 only. Methods it does not override panic.
type fakeAnalyzer struct {
	Analyzer
	processed chan int64
	release   chan struct{}
	killed    [3]int64
}

func (f *fakeAnalyzer) Video(_ context.Context, id int64) (entity.Video, error) {
	if id != 1 {
		return entity.Video{}, apperr.Newf(apperr.KindNotFound, "video %d not found", id)
	}
	return entity.Video{ID: 1, State: entity.StateDatasetReady}, nil
}

func (f *fakeAnalyzer) Process(ctx context.Context, id int64) error {
	f.processed <- id
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAnalyzer) KillTracking(_ context.Context, id int64, track, from int) (int64, error) {
	f.killed = [3]int64{id, int64(track), int64(from)}
	return 7, nil
}

func (f *fakeAnalyzer) KeyPoint(name string) (keypoints.KeyPoint, bool) {
	k, ok := keypoints.DefaultConfig().Named()[name]
	return k, ok
}

func (f *fakeAnalyzer) Progress(_ context.Context, id int64) (progress.Status, error) {
	return progress.Status{Stage: progress.StageProcess, Done: 3, Total: 10}, nil
}

func newServer(t *testing.T) (*Server, *fakeAnalyzer, *pipeline.Jobs) {
	gin.SetMode(gin.TestMode)
	fake := &fakeAnalyzer{processed: make(chan int64, 1), release: make(chan struct{})}
	jobs := pipeline.NewJobs(progress.NewMemory(), log.Discard())
	t.Cleanup(func() {
		jobs.Cancel(1)
		jobs.Wait()
	})

	s, err := NewServer(
		WithGin(gin.New()),
		WithAnalyzer(fake),
		WithJobs(jobs),
		WithLogger(log.Discard()),
		WithValidator(validator.New()),
	)
	require.NoError(t, err)
	return s, fake, jobs
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServerNeedsParts(t *testing.T) {
	_, err := NewServer(WithGin(gin.New()))
	require.Error(t, err)
	_, err = NewServer(WithGin(gin.New()), WithRequestTimeout(0))
	require.Error(t, err)
}

func TestGetVideo(t *testing.T) {
	s, _, _ := newServer(t)

	rec := do(s, http.MethodGet, "/api/videos/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "DatasetReady", decode(t, rec)["state"])
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = do(s, http.MethodGet, "/api/videos/9", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NotFound", decode(t, rec)["kind"])

	rec = do(s, http.MethodGet, "/api/videos/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "InvalidInput", decode(t, rec)["kind"])
}

func TestProcessRunsInTheBackground(t *testing.T) {
	s, fake, jobs := newServer(t)

	rec := do(s, http.MethodPost, "/api/videos/1/process", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	require.Len(t, body["id"], 26)
	require.Equal(t, "process", body["stage"])

	select {
	case id := <-fake.processed:
		require.EqualValues(t, 1, id)
	case <-time.After(5 * time.Second):
		t.Fatal("process did not start")
	}

	rec = do(s, http.MethodPost, "/api/videos/1/render", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(s, http.MethodGet, "/api/videos/1/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decode(t, rec)["running"])

	job, ok := jobs.Get(1)
	require.True(t, ok)
	close(fake.release)
	require.NoError(t, job.Err())

	rec = do(s, http.MethodPost, "/api/videos/9/process", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJob(t *testing.T) {
	s, fake, jobs := newServer(t)

	require.Equal(t, http.StatusAccepted, do(s, http.MethodPost, "/api/videos/1/process", "").Code)
	<-fake.processed
	job, ok := jobs.Get(1)
	require.True(t, ok)

	require.Equal(t, http.StatusNoContent, do(s, http.MethodDelete, "/api/videos/1/job", "").Code)
	require.ErrorIs(t, job.Err(), context.Canceled)
	require.Equal(t, http.StatusNotFound, do(s, http.MethodDelete, "/api/videos/1/job", "").Code)
}

func TestKillTrack(t *testing.T) {
	s, fake, _ := newServer(t)

	rec := do(s, http.MethodDelete, "/api/videos/1/tracks/3?from=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 7, decode(t, rec)["removed"])
	require.Equal(t, [3]int64{1, 3, 10}, fake.killed)

	rec = do(s, http.MethodDelete, "/api/videos/1/tracks/3?from=soon", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapValidation(t *testing.T) {
	s, _, _ := newServer(t)

	cases := map[string]string{
		"unknown position": `{"camera_position":"blimp"}`,
		"missing position": `{"hint_ms":100}`,
		"negative hint":    `{"camera_position":"top_middle_point","hint_ms":-1}`,
		"unknown override": `{"camera_position":"top_middle_point","override":[{"name":"penalty_box","x":1,"y":2}]}`,
		"malformed body":   `{"camera_position":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/api/videos/1/map", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "InvalidInput", decode(t, rec)["kind"])
		})
	}
}

func TestSaveMappingNeedsFourPoints(t *testing.T) {
	s, _, _ := newServer(t)

	point := `{"camera_x":0.1,"camera_y":0.1,"minimap_x":0.2,"minimap_y":0.2}`
	rec := do(s, http.MethodPut, "/api/videos/1/mapping", `{"points":[`+point+`,`+point+`,`+point+`]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPut, "/api/videos/1/mapping", `{"points":[`+strings.Repeat(point+`,`, 3)+`{"camera_x":1.5}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProposeSubsetValidatesRange(t *testing.T) {
	s, _, _ := newServer(t)
	rec := do(s, http.MethodPost, "/api/videos/1/subsets/propose", `{"from":10,"to":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
