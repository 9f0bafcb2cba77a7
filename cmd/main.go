package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/chenBenjamin97/rink-minimap/pkg/api"
	"github.com/chenBenjamin97/rink-minimap/pkg/config"
	"github.com/chenBenjamin97/rink-minimap/pkg/emitter"
	"github.com/chenBenjamin97/rink-minimap/pkg/inference"
	"github.com/chenBenjamin97/rink-minimap/pkg/log"
	"github.com/chenBenjamin97/rink-minimap/pkg/minimap"
	"github.com/chenBenjamin97/rink-minimap/pkg/objectstore"
	"github.com/chenBenjamin97/rink-minimap/pkg/pipeline"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository/memory"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository/postgres"
	"github.com/chenBenjamin97/rink-minimap/pkg/resources"
	"github.com/chenBenjamin97/rink-minimap/pkg/team"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path of the yaml configuration, config.yaml in the working directory by default")
	flag.Parse()

	//.env is optional, the environment may already carry every override
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Error: Could not read config file, got '%v'", err)
	}
	logger := log.NewLogger(cfg.Log.Dir)

	//create missing directories from config file
	for _, dir := range []string{cfg.Directory.Static, cfg.Directory.Temp, cfg.Log.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatalf("Error Creating '%s' directory, got '%v'", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutting down server...")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(err)
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	var reporter progress.Reporter = progress.NewMemory()
	if cfg.Redis.Addr != "" {
		r, client, err := progress.Dial(ctx, progress.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
			Interval: cfg.Redis.Interval,
		}, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		reporter = r
	}

	var frames emitter.Emitter = emitter.Nop{}
	if cfg.MQTT.Broker != "" {
		m, err := emitter.Connect(ctx, emitter.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Prefix:   cfg.MQTT.Prefix,
			QoS:      cfg.MQTT.QoS,
		}, logger)
		if err != nil {
			return err
		}
		frames = m
	}
	defer frames.Close()

	var store objectstore.Uploader = objectstore.Nop{}
	if cfg.S3.Bucket != "" {
		s3, err := objectstore.NewS3(objectstore.S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
		}, logger)
		if err != nil {
			return err
		}
		store = s3
	}

	locks := resources.NewLockMap()
	disk := resources.NewDisk(cfg.Volumes(), cfg.Disk.OverProvision, resources.StatfsFree, logger)

	fieldModel, err := inference.StartSubprocess(ctx, cfg.FieldDetector(), logger)
	if err != nil {
		return err
	}
	playersModel, err := inference.StartSubprocess(ctx, cfg.PlayersDetector(), logger)
	if err != nil {
		return err
	}

	//both detectors share one device, its lock serializes their forward passes
	device := inference.NewDeviceLocks().Get(cfg.NN.Device)
	workerOptions := []inference.WorkerOption{
		inference.WithScoreThreshold(cfg.NN.ScoreThreshold),
		inference.WithMaxBatchSize(cfg.NN.MaxBatchSize),
		inference.WithLogger(logger),
	}
	fieldWorker := inference.NewWorker("field", fieldModel, device, workerOptions...)
	playersWorker := inference.NewWorker("players", playersModel, device, workerOptions...)
	defer fieldWorker.Close()
	defer playersWorker.Close()

	backbone, err := team.NewNetBackbone(cfg.NN.TeamBackbonePath, cfg.NN.TeamBackboneLayer)
	if err != nil {
		return err
	}
	defer backbone.Close()

	coord, err := pipeline.New(cfg.Pipeline(), repo,
		pipeline.WithDetectors(fieldWorker, playersWorker),
		pipeline.WithBackbone(backbone),
		pipeline.WithEncoders(minimap.NewFFmpeg(cfg.Encoder(), logger)),
		pipeline.WithResources(locks, disk),
		pipeline.WithProgress(reporter),
		pipeline.WithEmitter(frames),
		pipeline.WithUploader(store),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fieldWorker.Run(gctx) })
	g.Go(func() error { return playersWorker.Run(gctx) })
	g.Go(func() error {
		locks.RunGC(gctx, cfg.Locks.GCInterval, cfg.Locks.MaxIdle, logger)
		return nil
	})

	gin.SetMode(gin.ReleaseMode)
	server, err := api.NewServer(
		api.WithGin(gin.New()),
		api.WithAnalyzer(coord),
		api.WithJobs(coord.Jobs),
		api.WithLogger(logger),
		api.WithBaseContext(gctx),
	)
	if err != nil {
		return err
	}
	g.Go(func() error { return server.Run(gctx, ":"+cfg.HTTP.Port) })

	err = g.Wait()
	coord.Jobs.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openRepository(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (repository.Repository, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Warn("No database configured, keeping everything in memory")
		return memory.New(), func() {}, nil
	}
	db, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return postgres.New(db, logger), func() { db.Close() }, nil
}
