package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/chenBenjamin97/rink-minimap/pkg/log"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	key  string
	body []byte
	err  error
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = aws.StringValue(input.Key)
	b, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3manager.UploadOutput{Location: "https://bucket.example/" + f.key}, nil
}

func TestS3UploadsFileUnderPrefix(t *testing.T) {
	file := filepath.Join(t.TempDir(), "output_map.mp4")
	require.NoError(t, os.WriteFile(file, []byte("minimap"), 0o644))

	up := &fakeUploader{}
	s := &S3{uploader: up, bucket: "bucket", prefix: "minimaps", log: log.Discard()}

	loc, err := s.Upload(context.Background(), "42/output_map.mp4", file)
	require.NoError(t, err)
	require.Equal(t, "minimaps/42/output_map.mp4", up.key)
	require.Equal(t, []byte("minimap"), up.body)
	require.Equal(t, "https://bucket.example/minimaps/42/output_map.mp4", loc)
}

func TestS3UploadFailures(t *testing.T) {
	s := &S3{uploader: &fakeUploader{err: errors.New("denied")}, bucket: "bucket", log: log.Discard()}

	_, err := s.Upload(context.Background(), "k", filepath.Join(t.TempDir(), "missing.mp4"))
	require.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = s.Upload(context.Background(), "k", file)
	require.EqualError(t, err, "denied")
}

func TestNopKeepsLocalPath(t *testing.T) {
	loc, err := Nop{}.Upload(context.Background(), "k", "/static/a.mp4")
	require.NoError(t, err)
	require.Equal(t, "/static/a.mp4", loc)
}
