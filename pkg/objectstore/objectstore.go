package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"
)

//Uploader copies a finished artifact to long term storage and returns where it went
type Uploader interface {
	Upload(ctx context.Context, key, file string) (string, error)
}

//Nop keeps artifacts on the local disk only
type Nop struct{}

func (Nop) Upload(_ context.Context, _, file string) (string, error) {
	return file, nil
}

type S3Config struct {
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	//Endpoint is set for S3 compatible stores such as MinIO
	Endpoint string
}

type uploadAPI interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

type S3 struct {
	uploader uploadAPI
	bucket   string
	prefix   string
	log      logrus.FieldLogger
}

func NewS3(cfg S3Config, log logrus.FieldLogger) (*S3, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3{
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		log:      log,
	}, nil
}

func (s *S3) Key(key string) string {
	return path.Join(s.prefix, key)
}

func (s *S3) Upload(ctx context.Context, key, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return s.upload(ctx, s.Key(key), f)
}

func (s *S3) upload(ctx context.Context, key string, body io.Reader) (string, error) {
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"bucket": s.bucket,
			"key":    key,
			"error":  err.Error(),
		}).Error("Failed to upload artifact")
		return "", err
	}

	s.log.WithFields(logrus.Fields{
		"bucket":   s.bucket,
		"key":      key,
		"location": out.Location,
	}).Info("Artifact uploaded")
	return out.Location, nil
}
