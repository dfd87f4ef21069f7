package config

import (
	"errors"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"3000"`
	DatabaseURL   string `env:"DATABASE_URL"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	JWTSecret     string `env:"JWT_SECRET,required"`
	JWTTTLMinutes int    `env:"JWT_TTL_MINUTES" envDefault:"60"`
	BcryptCost    int    `env:"BCRYPT_COST" envDefault:"10"`

	FileStore      string `env:"FILE_STORE" envDefault:"local"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"images"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`

	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Prefix    string `env:"S3_PREFIX"`
	S3PublicURL string `env:"S3_PUBLIC_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AttachmentGCEnabled bool   `env:"ATTACHMENT_GC_ENABLED" envDefault:"true"`
	AttachmentGCCron    string `env:"ATTACHMENT_GC_CRON" envDefault:"*/10 * * * *"`
	AttachmentGCBatch   int    `env:"ATTACHMENT_GC_BATCH" envDefault:"100"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// ClientConfig agrupa la configuración del cliente de línea de comandos.
type ClientConfig struct {
	APIURL    string `env:"POSTS_API_URL" envDefault:"http://localhost:3000"`
	SessionDB string `env:"POSTS_SESSION_DB" envDefault:"postsctl-session.db"`
}

var ErrUnknownFileStore = errors.New("unknown file store")

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClientConfig carga la configuración del cliente desde variables de entorno.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.FileStore = strings.ToLower(strings.TrimSpace(c.FileStore))
	switch c.FileStore {
	case "local", "s3":
	default:
		return ErrUnknownFileStore
	}
	if c.FileStore == "s3" && (c.S3Bucket == "" || c.S3AccessKey == "" || c.S3SecretKey == "") {
		return errors.New("s3 bucket/access key/secret key are required")
	}
	return nil
}
