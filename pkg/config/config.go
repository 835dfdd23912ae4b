package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store drivers supported for application persistence.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// Storage drivers supported for generated artifacts.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
	StorageDriverGCS   = "gcs"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	StoreDriver   string
	Database      DatabaseConfig
	Mongo         MongoConfig
	Redis         RedisConfig
	Cache         CacheConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Storage       StorageConfig
	Artifacts     ArtifactsConfig
	Notifications NotificationsConfig
	Workflow      WorkflowConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

// MongoConfig is used when STORE_DRIVER=mongo.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig toggles the application read cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig describes where document bytes are fetched from and artifacts are written to.
type StorageConfig struct {
	Driver          string
	LocalDir        string
	DocumentBaseURL string
	S3              S3Config
	GCS             GCSConfig
}

// S3Config configures an S3-compatible object store.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PresignTTL      time.Duration
}

// GCSConfig configures Google Cloud Storage.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	EmulatorHost    string
}

// ArtifactsConfig tunes merged PDF / ZIP assembly.
type ArtifactsConfig struct {
	FetchTimeout     time.Duration
	FetchConcurrency int
	MaxImagePixels   int
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	Retention        time.Duration
}

// NotificationsConfig sizes the outbound notification queue.
type NotificationsConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
}

// WorkflowConfig holds tunables for application transitions.
type WorkflowConfig struct {
	MaxWriteAttempts int
	CatalogVersion   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.StoreDriver = strings.ToLower(v.GetString("STORE_DRIVER"))

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Mongo = MongoConfig{
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DATABASE"),
		Timeout:  parseDuration(v.GetString("MONGO_TIMEOUT"), 10*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_APPLICATION_CACHE"),
		TTL:     parseDuration(v.GetString("APPLICATION_CACHE_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET"), Issuer: v.GetString("JWT_ISSUER")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		DocumentBaseURL: v.GetString("DOCUMENT_BASE_URL"),
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			Region:          v.GetString("S3_REGION"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			Bucket:          v.GetString("S3_BUCKET"),
			PresignTTL:      parseDuration(v.GetString("S3_PRESIGN_TTL"), 15*time.Minute),
		},
		GCS: GCSConfig{
			Bucket:          v.GetString("GCS_BUCKET"),
			CredentialsFile: v.GetString("GCS_CREDENTIALS_FILE"),
			EmulatorHost:    v.GetString("GCS_EMULATOR_HOST"),
		},
	}

	cfg.Artifacts = ArtifactsConfig{
		FetchTimeout:     parseDuration(v.GetString("ARTIFACT_FETCH_TIMEOUT"), 90*time.Second),
		FetchConcurrency: v.GetInt("ARTIFACT_FETCH_CONCURRENCY"),
		MaxImagePixels:   v.GetInt("ARTIFACT_MAX_IMAGE_PIXELS"),
		SignedURLSecret:  v.GetString("ARTIFACT_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("ARTIFACT_SIGNED_URL_TTL"), 30*time.Minute),
		Retention:        parseDuration(v.GetString("ARTIFACT_RETENTION"), 168*time.Hour),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:    v.GetBool("ENABLE_NOTIFICATIONS"),
		Workers:    v.GetInt("NOTIFICATION_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATION_BUFFER_SIZE"),
	}

	cfg.Workflow = WorkflowConfig{
		MaxWriteAttempts: v.GetInt("WORKFLOW_MAX_WRITE_ATTEMPTS"),
		CatalogVersion:   v.GetString("CATALOG_VERSION"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "admission_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "admission_portal")
	v.SetDefault("MONGO_TIMEOUT", "10s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENABLE_APPLICATION_CACHE", false)
	v.SetDefault("APPLICATION_CACHE_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./artifacts")
	v.SetDefault("DOCUMENT_BASE_URL", "http://localhost:8080/uploads")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_PRESIGN_TTL", "15m")

	v.SetDefault("ARTIFACT_FETCH_TIMEOUT", "90s")
	v.SetDefault("ARTIFACT_FETCH_CONCURRENCY", 4)
	v.SetDefault("ARTIFACT_MAX_IMAGE_PIXELS", 2480)
	v.SetDefault("ARTIFACT_SIGNED_URL_SECRET", "dev_artifacts_secret")
	v.SetDefault("ARTIFACT_SIGNED_URL_TTL", "30m")
	v.SetDefault("ARTIFACT_RETENTION", "168h")

	v.SetDefault("ENABLE_NOTIFICATIONS", true)
	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_BUFFER_SIZE", 256)

	v.SetDefault("WORKFLOW_MAX_WRITE_ATTEMPTS", 3)
	v.SetDefault("CATALOG_VERSION", "2024.1")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
