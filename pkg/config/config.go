package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "MEDIAKIT"

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Storage      StorageConfig
	Media        MediaConfig
	Video        VideoConfig
	Remote       RemoteConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEDIAKIT_APP_ENV" default:"development"`
	LogLevel     string `envconfig:"MEDIAKIT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDIAKIT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MEDIAKIT_DB_DSN"`
	Driver string `envconfig:"MEDIAKIT_DB_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`

	MaxOpenConns    int           `envconfig:"MEDIAKIT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEDIAKIT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEDIAKIT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEDIAKIT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEDIAKIT_REDIS_URL"`
	Address      string        `envconfig:"MEDIAKIT_REDIS_ADDR"`
	Password     string        `envconfig:"MEDIAKIT_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEDIAKIT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEDIAKIT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEDIAKIT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEDIAKIT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEDIAKIT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEDIAKIT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MEDIAKIT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MEDIAKIT_AUTO_MIGRATE" default:"false"`
}

type StorageConfig struct {
	// Root of the default "public" disk on the local filesystem.
	PublicRoot string `envconfig:"MEDIAKIT_STORAGE_PUBLIC_ROOT" default:"storage/public"`
	// Base URL prefix served for the public disk.
	PublicBaseURL string `envconfig:"MEDIAKIT_STORAGE_PUBLIC_BASE_URL" default:"/storage"`
	DefaultDisk   string `envconfig:"MEDIAKIT_STORAGE_DEFAULT_DISK" default:"public"`

	GCSBucket string `envconfig:"MEDIAKIT_STORAGE_GCS_BUCKET"`
}

// ExtraFormatSpec is one configured secondary encoding, e.g. webp at quality 90.
type ExtraFormatSpec struct {
	Format  string
	Quality int
}

/// ExtraFormatList decodes "webp:90,avif:75" style environment values.
type ExtraFormatList []ExtraFormatSpec

func (l *ExtraFormatList) Decode(value string) error {
	out := ExtraFormatList{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		format, qualityRaw, ok := strings.Cut(part, ":")
		if !ok {
			return fmt.Errorf("extra format %q: expected format:quality", part)
		}
		quality, err := strconv.Atoi(qualityRaw)
		if err != nil {
			return fmt.Errorf("extra format %q: invalid quality: %w", part, err)
		}
		out = append(out, ExtraFormatSpec{Format: strings.ToLower(format), Quality: quality})
	}
	*l = out
	return nil
}

type MediaConfig struct {
	ExtraFormats ExtraFormatList `envconfig:"MEDIAKIT_MEDIA_EXTRA_FORMATS" default:"webp:90"`
	// Secondary containers produced next to stored video originals and
	// their renditions.
	VideoExtraFormats ExtraFormatList `envconfig:"MEDIAKIT_MEDIA_VIDEO_EXTRA_FORMATS" default:""`
	// Appends ?v=<mtime> to served URLs when enabled.
	URLVersion bool `envconfig:"MEDIAKIT_MEDIA_URL_VERSION" default:"true"`
	// Pads odd-sized webp files with one trailing null byte. Works around a
	// libwebp 0.x decoder that rejects odd-length streams.
	LegacyWebpPadding bool     `envconfig:"MEDIAKIT_MEDIA_LEGACY_WEBP_PADDING" default:"false"`
	Languages         []string `envconfig:"MEDIAKIT_MEDIA_LANGUAGES" default:"" validate:"dive,max=5"`
	DefaultQuality    int      `envconfig:"MEDIAKIT_MEDIA_DEFAULT_QUALITY" default:"90" validate:"min=1,max=100"`
	MaxUploadMB       int      `envconfig:"MEDIAKIT_MAX_UPLOAD_MB" default:"200"`
}

// SupportsLanguage reports whether lang is in the configured language list.
func (m MediaConfig) SupportsLanguage(lang string) bool {
	for _, candidate := range m.Languages {
		if strings.EqualFold(candidate, lang) {
			return true
		}
	}
	return false
}

type VideoConfig struct {
	FFmpegBin  string        `envconfig:"MEDIAKIT_VIDEO_FFMPEG_BIN" default:"ffmpeg"`
	FFprobeBin string        `envconfig:"MEDIAKIT_VIDEO_FFPROBE_BIN" default:"ffprobe"`
	Timeout    time.Duration `envconfig:"MEDIAKIT_VIDEO_TIMEOUT" default:"60s"`
	Threads    int           `envconfig:"MEDIAKIT_VIDEO_THREADS" default:"16"`
}

type RemoteConfig struct {
	ConnectTimeout time.Duration `envconfig:"MEDIAKIT_REMOTE_CONNECT_TIMEOUT" default:"5s"`
	TotalTimeout   time.Duration `envconfig:"MEDIAKIT_REMOTE_TOTAL_TIMEOUT" default:"5s"`
	MaxBytes       int64         `envconfig:"MEDIAKIT_REMOTE_MAX_BYTES" default:"209715200"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MEDIAKIT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MEDIAKIT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MEDIAKIT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AssetTopic string `envconfig:"MEDIAKIT_PUBSUB_ASSET_TOPIC"`
}
