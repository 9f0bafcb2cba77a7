package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/field"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/inference"
	"github.com/chenBenjamin97/rink-minimap/pkg/keypoints"
	"github.com/chenBenjamin97/rink-minimap/pkg/minimap"
	"github.com/chenBenjamin97/rink-minimap/pkg/pipeline"
	"github.com/chenBenjamin97/rink-minimap/pkg/resources"
	"github.com/chenBenjamin97/rink-minimap/pkg/team"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

//EnvPrefix prefixes every environment override, e.g. MINIMAP_DATABASE_DSN
const EnvPrefix = "MINIMAP"

type Config struct {
	Minimap         MinimapConfig   `mapstructure:"minimap_config"`
	NN              NNConfig        `mapstructure:"nn_config"`
	VideoProcessing VideoProcessing `mapstructure:"video_processing"`
	Team            TeamConfig      `mapstructure:"team"`

	ExtractionWorkers   int `mapstructure:"players_data_extraction_workers" validate:"gte=1,lt=20"`
	RenderingWorkers    int `mapstructure:"minimap_rendering_workers" validate:"gte=1,lt=64"`
	PrefetchFrameBuffer int `mapstructure:"prefetch_frame_buffer" validate:"gte=1"`

	Directory Directory `mapstructure:"directory"`
	Disk      Disk      `mapstructure:"disk"`
	Locks     Locks     `mapstructure:"locks"`
	Log       Log       `mapstructure:"log"`

	HTTP     HTTP     `mapstructure:"http"`
	Database Database `mapstructure:"database"`
	Redis    Redis    `mapstructure:"redis"`
	MQTT     MQTT     `mapstructure:"mqtt"`
	S3       S3       `mapstructure:"s3"`
}

type MinimapConfig struct {
	Image     string           `mapstructure:"image"`
	Width     int              `mapstructure:"width" validate:"gt=0"`
	Height    int              `mapstructure:"height" validate:"gt=0"`
	KeyPoints keypoints.Config `mapstructure:",squash"`
}

type NNConfig struct {
	FieldWeightsPath  string  `mapstructure:"field_weights_path" validate:"required"`
	PlayerWeightsPath string  `mapstructure:"player_weights_path" validate:"required"`
	TeamBackbonePath  string  `mapstructure:"team_backbone_path"`
	TeamBackboneLayer string  `mapstructure:"team_backbone_layer"`
	Device            string  `mapstructure:"device" validate:"required"`
	MaxBatchSize      int     `mapstructure:"max_batch_size" validate:"gte=1,lt=50"`
	ScoreThreshold    float64 `mapstructure:"score_threshold" validate:"gte=0,lt=1"`
	FieldMinSizeTest  int     `mapstructure:"field_min_size_test" validate:"gte=0"`
	Python            string  `mapstructure:"python" validate:"required"`
	WorkerScript      string  `mapstructure:"worker_script" validate:"required"`
	RGB               bool    `mapstructure:"rgb"`
}

type VideoProcessing struct {
	FFmpeg              string `mapstructure:"ffmpeg" validate:"required"`
	HWAccel             string `mapstructure:"hwaccel"`
	HWAccelOutputFormat string `mapstructure:"hwaccel_output_format"`
	VideoWidth          int    `mapstructure:"video_width" validate:"gte=0"`
	VideoHeight         int    `mapstructure:"video_height" validate:"gte=0"`
	Codec               string `mapstructure:"codec" validate:"required"`
	Preset              string `mapstructure:"preset"`
	CRF                 int    `mapstructure:"crf" validate:"gte=0,lte=51"`
}

type TeamConfig struct {
	Epochs     int   `mapstructure:"epochs" validate:"gte=1"`
	BatchSize  int   `mapstructure:"batch_size" validate:"gte=1"`
	MinPerTeam int   `mapstructure:"min_per_team" validate:"gte=1"`
	Patience   int   `mapstructure:"patience" validate:"gte=0"`
	Seed       int64 `mapstructure:"seed"`
}

type Directory struct {
	Static string `mapstructure:"static" validate:"required"`
	Temp   string `mapstructure:"temp" validate:"required"`
}

type Disk struct {
	OverProvision float64 `mapstructure:"over_provision" validate:"gte=1"`
}

type Locks struct {
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	GCInterval time.Duration `mapstructure:"gc_interval" validate:"gt=0"`
	MaxIdle    time.Duration `mapstructure:"max_idle" validate:"gt=0"`
}

type Log struct {
	Dir string `mapstructure:"dir"`
}

type HTTP struct {
	Port string `mapstructure:"port" validate:"required,numeric"`
}

type Database struct {
	DSN string `mapstructure:"dsn"`
}

type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl"`
	Interval time.Duration `mapstructure:"interval"`
}

type MQTT struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
	QoS      byte   `mapstructure:"qos" validate:"lte=2"`
}

type S3 struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket" validate:"required_with=Region"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
}

func setDefaults(v *viper.Viper) {
	for name, k := range keypoints.DefaultConfig().Named() {
		v.SetDefault("minimap_config."+name+".x", k.X)
		v.SetDefault("minimap_config."+name+".y", k.Y)
	}
	v.SetDefault("minimap_config.image", "assets/rink.png")
	v.SetDefault("minimap_config.width", 1280)
	v.SetDefault("minimap_config.height", 720)

	v.SetDefault("nn_config.field_weights_path", "")
	v.SetDefault("nn_config.player_weights_path", "")
	v.SetDefault("nn_config.team_backbone_path", "")
	v.SetDefault("nn_config.team_backbone_layer", "")
	v.SetDefault("nn_config.device", "cpu")
	v.SetDefault("nn_config.max_batch_size", 4)
	v.SetDefault("nn_config.score_threshold", inference.DefaultScoreThreshold)
	v.SetDefault("nn_config.field_min_size_test", 700)
	v.SetDefault("nn_config.python", "python3")
	v.SetDefault("nn_config.worker_script", "scripts/detector_worker.py")
	v.SetDefault("nn_config.rgb", false)

	v.SetDefault("video_processing.ffmpeg", minimap.BaseEncoderConfig.Binary)
	v.SetDefault("video_processing.hwaccel", "")
	v.SetDefault("video_processing.hwaccel_output_format", "")
	v.SetDefault("video_processing.video_width", 0)
	v.SetDefault("video_processing.video_height", 0)
	v.SetDefault("video_processing.codec", minimap.BaseEncoderConfig.Codec)
	v.SetDefault("video_processing.preset", minimap.BaseEncoderConfig.Preset)
	v.SetDefault("video_processing.crf", minimap.BaseEncoderConfig.CRF)

	v.SetDefault("team.epochs", 100)
	v.SetDefault("team.batch_size", 32)
	v.SetDefault("team.min_per_team", 50)
	v.SetDefault("team.patience", 0)
	v.SetDefault("team.seed", 1)

	v.SetDefault("players_data_extraction_workers", 4)
	v.SetDefault("minimap_rendering_workers", 4)
	v.SetDefault("prefetch_frame_buffer", 8)

	v.SetDefault("directory.static", "./static")
	v.SetDefault("directory.temp", "./temp")
	v.SetDefault("disk.over_provision", resources.DefaultOverProvision)
	v.SetDefault("locks.timeout", resources.DefaultLockTimeout)
	v.SetDefault("locks.gc_interval", time.Minute)
	v.SetDefault("locks.max_idle", 10*time.Minute)
	v.SetDefault("log.dir", "./logs")

	v.SetDefault("http.port", "8080")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("redis.interval", 500*time.Millisecond)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "rink-minimap")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.prefix", "minimap")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "minimaps")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.endpoint", "")
}

//Load reads the yaml file at path, or config.yaml in the working directory when path is empty.
//Every key can be overridden from the environment with the MINIMAP_ prefix.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Minimap.KeyPoints.Validate(c.MinimapResolution()); err != nil {
		return fmt.Errorf("invalid minimap_config: %w", err)
	}
	return nil
}

func (c *Config) MinimapResolution() geometry.Resolution {
	return geometry.Resolution{Width: c.Minimap.Width, Height: c.Minimap.Height}
}

func (c *Config) Volumes() map[resources.Volume]string {
	return map[resources.Volume]string{
		resources.VolumeStatic: c.Directory.Static,
		resources.VolumeTemp:   c.Directory.Temp,
	}
}

func (c *Config) Encoder() minimap.EncoderConfig {
	return minimap.EncoderConfig{
		Binary:              c.VideoProcessing.FFmpeg,
		Codec:               c.VideoProcessing.Codec,
		CRF:                 c.VideoProcessing.CRF,
		Preset:              c.VideoProcessing.Preset,
		HWAccel:             c.VideoProcessing.HWAccel,
		HWAccelOutputFormat: c.VideoProcessing.HWAccelOutputFormat,
	}
}

//FieldDetector describes the field segmentation worker
func (c *Config) FieldDetector() inference.SubprocessConfig {
	return inference.SubprocessConfig{
		Python:      c.NN.Python,
		Script:      c.NN.WorkerScript,
		Weights:     c.NN.FieldWeightsPath,
		Classes:     field.ClassesNum,
		MinSizeTest: c.NN.FieldMinSizeTest,
		Device:      c.NN.Device,
		RGB:         c.NN.RGB,
	}
}

//PlayersDetector describes the players detection worker, run at the native input size
func (c *Config) PlayersDetector() inference.SubprocessConfig {
	return inference.SubprocessConfig{
		Python:  c.NN.Python,
		Script:  c.NN.WorkerScript,
		Weights: c.NN.PlayerWeightsPath,
		Classes: entity.PlayerClassesNum,
		Device:  c.NN.Device,
		RGB:     c.NN.RGB,
	}
}

func (c *Config) Train() team.TrainConfig {
	cfg := team.BaseTrainConfig
	cfg.Epochs = c.Team.Epochs
	cfg.BatchSize = c.Team.BatchSize
	cfg.MinPerTeam = c.Team.MinPerTeam
	cfg.Patience = c.Team.Patience
	cfg.Seed = c.Team.Seed
	return cfg
}

//Pipeline assembles the coordinator settings
func (c *Config) Pipeline() pipeline.Config {
	cfg := pipeline.BaseConfig
	cfg.FFmpeg = c.VideoProcessing.FFmpeg
	cfg.KeyPoints = c.Minimap.KeyPoints
	cfg.MinimapImage = c.Minimap.Image
	cfg.MinimapSize = c.MinimapResolution()
	cfg.InFlight = c.ExtractionWorkers
	cfg.Prefetch = c.PrefetchFrameBuffer
	cfg.Render.Workers = c.RenderingWorkers
	cfg.Render.QueueSize = c.PrefetchFrameBuffer
	cfg.Train = c.Train()
	cfg.ScoreThreshold = c.NN.ScoreThreshold
	cfg.LockTimeout = c.Locks.Timeout
	return cfg
}
