package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/lk2023060901/blog-backend/internal/auth"
	"github.com/lk2023060901/blog-backend/internal/pkg/database"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/redis"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. BLOG_SERVER_PORT
const EnvPrefix = "BLOG"

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database database.Config `mapstructure:"database"`
	Redis    redis.Config    `mapstructure:"redis"`
	Log      logger.Config   `mapstructure:"log"`
	Auth     AuthConfig      `mapstructure:"auth"`
	Media    MediaConfig     `mapstructure:"media"`
	Blog     BlogConfig      `mapstructure:"blog"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AuthConfig struct {
	JWTSecret      string         `mapstructure:"jwt_secret"`
	JWTIssuer      string         `mapstructure:"jwt_issuer"`
	TokenTTL       time.Duration  `mapstructure:"token_ttl"`
	DefaultAdmin   DefaultAdmin   `mapstructure:"default_admin"`
	LoginRateLimit LoginRateLimit `mapstructure:"login_rate_limit"`
}

// DefaultAdmin is seeded when the admins table is empty
type DefaultAdmin struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

// LoginRateLimit applies per client IP and needs redis
type LoginRateLimit struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

type MediaConfig struct {
	StorageRoot        string        `mapstructure:"storage_root"`
	PublicPrefix       string        `mapstructure:"public_prefix"`
	TempDir            string        `mapstructure:"temp_dir"`
	LockFile           string        `mapstructure:"lock_file"`
	MaxUploadBytes     int64         `mapstructure:"max_upload_bytes"`
	AllowedMimeTypes   []string      `mapstructure:"allowed_mime_types"`
	VerifyContent      bool          `mapstructure:"verify_content"`
	OrphanGracePeriod  time.Duration `mapstructure:"orphan_grace_period"`
	CleanupAfterUpload bool          `mapstructure:"cleanup_after_upload"`
}

type BlogConfig struct {
	BaseURL         string   `mapstructure:"base_url"`
	Timezone        string   `mapstructure:"timezone"`
	ReservedSlugs   []string `mapstructure:"reserved_slugs"`
	RenderCacheSize int      `mapstructure:"render_cache_size"`
}

// Location resolves Timezone, defaulting to UTC
func (c *BlogConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// LoadConfig reads path and applies BLOG_* environment overrides. A missing
// file is not an error; defaults are used instead.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server: port must be between 1 and 65535")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server: invalid mode %q", c.Server.Mode)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	switch {
	case c.Auth.JWTSecret == "":
		return errors.New("auth: jwt_secret is required")
	case c.Auth.TokenTTL <= 0:
		return errors.New("auth: token_ttl must be > 0")
	case c.Auth.DefaultAdmin.Role != "" && !auth.Role(c.Auth.DefaultAdmin.Role).Valid():
		return fmt.Errorf("auth: invalid default admin role %q", c.Auth.DefaultAdmin.Role)
	case c.Auth.LoginRateLimit.MaxAttempts < 0:
		return errors.New("auth: login_rate_limit.max_attempts must be >= 0")
	case c.Auth.LoginRateLimit.MaxAttempts > 0 && c.Auth.LoginRateLimit.Window <= 0:
		return errors.New("auth: login_rate_limit.window must be > 0")
	}

	switch {
	case strings.TrimSpace(c.Media.StorageRoot) == "":
		return errors.New("media: storage_root is required")
	case c.Media.MaxUploadBytes <= 0:
		return errors.New("media: max_upload_bytes must be > 0")
	case len(c.Media.AllowedMimeTypes) == 0:
		return errors.New("media: allowed_mime_types must not be empty")
	case c.Media.OrphanGracePeriod < 0:
		return errors.New("media: orphan_grace_period must be >= 0")
	case !strings.HasPrefix(c.Media.PublicPrefix, "/"):
		return errors.New("media: public_prefix must start with /")
	}

	if c.Blog.RenderCacheSize < 0 {
		return errors.New("blog: render_cache_size must be >= 0")
	}
	if _, err := c.Blog.Location(); err != nil {
		return fmt.Errorf("blog: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	db := database.DefaultConfig()
	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.path", db.Path)
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.dbname", db.DBName)
	v.SetDefault("database.sslmode", db.SSLMode)
	v.SetDefault("database.timezone", db.Timezone)
	v.SetDefault("database.maxidleconns", db.MaxIdleConns)
	v.SetDefault("database.maxopenconns", db.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", db.ConnMaxLifetime)
	v.SetDefault("database.loglevel", db.LogLevel)
	v.SetDefault("database.slowthreshold", db.SlowThreshold)
	v.SetDefault("database.automigrate", db.AutoMigrate)

	rc := redis.DefaultConfig()
	v.SetDefault("redis.enabled", rc.Enabled)
	v.SetDefault("redis.addr", rc.Addr)
	v.SetDefault("redis.username", rc.Username)
	v.SetDefault("redis.password", rc.Password)
	v.SetDefault("redis.db", rc.DB)
	v.SetDefault("redis.pool_size", rc.PoolSize)
	v.SetDefault("redis.dial_timeout", rc.DialTimeout)
	v.SetDefault("redis.read_timeout", rc.ReadTimeout)
	v.SetDefault("redis.write_timeout", rc.WriteTimeout)
	v.SetDefault("redis.key_prefix", rc.KeyPrefix)

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.enablecaller", lc.EnableCaller)
	v.SetDefault("log.enablestacktrace", lc.EnableStacktrace)
	v.SetDefault("log.file.filename", lc.File.Filename)
	v.SetDefault("log.file.maxsize", lc.File.MaxSize)
	v.SetDefault("log.file.maxage", lc.File.MaxAge)
	v.SetDefault("log.file.maxbackups", lc.File.MaxBackups)
	v.SetDefault("log.file.compress", lc.File.Compress)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "blog-backend")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.default_admin.username", "admin")
	v.SetDefault("auth.default_admin.password", "")
	v.SetDefault("auth.default_admin.role", string(auth.RoleAdmin))
	v.SetDefault("auth.login_rate_limit.max_attempts", 5)
	v.SetDefault("auth.login_rate_limit.window", 15*time.Minute)

	v.SetDefault("media.storage_root", "data/uploads")
	v.SetDefault("media.public_prefix", "/uploads")
	v.SetDefault("media.temp_dir", "")
	v.SetDefault("media.lock_file", "data/uploads.lock")
	v.SetDefault("media.max_upload_bytes", 10<<20)
	v.SetDefault("media.allowed_mime_types", []string{
		"image/jpeg", "image/png", "image/gif", "image/webp", "application/pdf",
	})
	v.SetDefault("media.verify_content", true)
	v.SetDefault("media.orphan_grace_period", time.Duration(0))
	v.SetDefault("media.cleanup_after_upload", true)

	v.SetDefault("blog.base_url", "http://localhost:8080")
	v.SetDefault("blog.timezone", "UTC")
	v.SetDefault("blog.reserved_slugs", []string{})
	v.SetDefault("blog.render_cache_size", 256)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "blog_media")
}
