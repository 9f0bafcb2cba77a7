package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultTTL      = 24 * time.Hour
	DefaultInterval = 500 * time.Millisecond
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	//Interval is the smallest gap between two intermediate updates of one video
	Interval time.Duration
}

//Redis stores the last status of every video under minimap:progress:<video id>.
//Intermediate updates are throttled, final ones are always written.
type Redis struct {
	client   redis.Cmdable
	ttl      time.Duration
	interval time.Duration
	log      logrus.FieldLogger

	limiters *limiters
}

//Dial connects to the configured server and checks it answers
func Dial(ctx context.Context, cfg RedisConfig, log logrus.FieldLogger) (*Redis, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	log.Info(fmt.Sprintf("Connecting to Redis at %s...", cfg.Addr))
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Successfully connected to Redis")

	return NewRedis(client, cfg.TTL, cfg.Interval, log), client, nil
}

func NewRedis(client redis.Cmdable, ttl, interval time.Duration, log logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Redis{
		client:   client,
		ttl:      ttl,
		interval: interval,
		log:      log,
		limiters: newLimiters(),
	}
}

func Key(videoID int64) string {
	return fmt.Sprintf("minimap:progress:%d", videoID)
}

func (r *Redis) Report(ctx context.Context, videoID int64, s Status) error {
	limiter := r.limiters.get(videoID, r.interval)
	if !s.Final() && s.Done != 0 && !limiter.Allow() {
		return nil
	}
	if s.Final() {
		r.limiters.forget(videoID)
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, Key(videoID), b, r.ttl).Err(); err != nil {
		r.log.WithFields(logrus.Fields{
			"video_id": videoID,
			"error":    err.Error(),
		}).Warn("Failed to report progress")
		return err
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, videoID int64) (Status, error) {
	val, err := r.client.Get(ctx, Key(videoID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, apperr.Newf(apperr.KindNotFound, "no progress for video %d", videoID)
	}
	if err != nil {
		return Status{}, err
	}

	var s Status
	if err := json.Unmarshal(val, &s); err != nil {
		return Status{}, fmt.Errorf("decode progress of video %d: %w", videoID, err)
	}
	return s, nil
}
