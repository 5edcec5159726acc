package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects between PostgreSQL (production) and SQLite (local runs, tests).
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path + "?_busy_timeout=5000&_txlock=immediate"
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, s3compatible; empty = detect from endpoint
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// ExtractorConfig configures the yt-dlp subprocess.
type ExtractorConfig struct {
	Binary            string        `mapstructure:"binary"`
	WorkDir           string        `mapstructure:"work_dir"`
	Format            string        `mapstructure:"format"`
	Timeout           time.Duration `mapstructure:"timeout"`
	SearchTimeout     time.Duration `mapstructure:"search_timeout"`
	CookiesFile       string        `mapstructure:"cookies_file"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	MaxThumbnailWidth int           `mapstructure:"max_thumbnail_width"`
	ThumbnailBaseURL  string        `mapstructure:"thumbnail_base_url"`
	MaxSearchResults  int           `mapstructure:"max_search_results"`
}

type WorkerConfig struct {
	Count           int           `mapstructure:"count"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Names used by the compose files and the rest of the platform.
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("storage.endpoint", "MINIO_ENDPOINT", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "MINIO_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	v.BindEnv("storage.secret_key", "MINIO_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET", "MINIO_BUCKET")
	v.BindEnv("storage.region", "AWS_REGION")
	v.BindEnv("extractor.binary", "YTDLP_PATH")
	v.BindEnv("extractor.cookies_file", "YTDLP_COOKIES")
	v.BindEnv("worker.count", "WORKER_COUNT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A DATABASE_URL alone implies postgres.
	if cfg.Database.URL != "" && !v.IsSet("database.driver") {
		cfg.Database.Driver = "postgres"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5060)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/scraper.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "videostreaming")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minio")
	v.SetDefault("storage.secret_key", "minio123")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "videos")

	v.SetDefault("extractor.binary", "yt-dlp")
	v.SetDefault("extractor.work_dir", "")
	v.SetDefault("extractor.format", "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/bv*+ba/b")
	v.SetDefault("extractor.timeout", 15*time.Minute)
	v.SetDefault("extractor.search_timeout", time.Minute)
	v.SetDefault("extractor.max_thumbnail_width", 1280)
	v.SetDefault("extractor.thumbnail_base_url", "https://img.youtube.com/vi")
	v.SetDefault("extractor.max_search_results", 50)

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.shutdown_timeout", 30*time.Second)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage: bucket is required")
	}
	if c.Extractor.Binary == "" {
		return errors.New("extractor: binary is required")
	}
	if c.Extractor.Timeout <= 0 {
		return errors.New("extractor: timeout must be positive")
	}
	if c.Worker.Count <= 0 {
		return fmt.Errorf("worker: count must be positive, got %d", c.Worker.Count)
	}
	return nil
}
