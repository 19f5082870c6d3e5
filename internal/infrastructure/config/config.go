package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all agent configuration
type Config struct {
	App      AppConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Tenant   TenantConfig
	Snapshot SnapshotConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Printing PrintingConfig
	Storage  StorageConfig
	Metrics  MetricsConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	TrustedProxies   []string
	LoginRateLimit   int // login attempts per client IP per minute
}

// TenantConfig holds the tenant the agent starts with
type TenantConfig struct {
	Default string
}

// Snapshot backends
const (
	SnapshotBackendFile     = "file"
	SnapshotBackendDatabase = "database"
	SnapshotBackendRedis    = "redis"
	SnapshotBackendMemory   = "memory"
)

// SnapshotConfig controls where and how the local cache snapshot is persisted
type SnapshotConfig struct {
	Backend     string // file, database, redis, memory
	Path        string // file backend location
	Key         string // slot key for database and redis backends
	MaxBytes    int64  // quota; 0 disables the limit
	Compression string // none, snappy
}

// DatabaseConfig holds database connection settings for the database snapshot backend
type DatabaseConfig struct {
	Driver          string // sqlite, postgres
	Path            string // sqlite file
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
}

// RedisConfig holds Redis connection settings for the redis snapshot backend
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RemoteConfig holds the remote collection service settings
type RemoteConfig struct {
	BaseURL         string
	Timeout         time.Duration
	PageSize        int
	ClientID        string
	ClientSecret    string
	RefreshInterval time.Duration
	TokenLeeway     time.Duration
}

// Payment plan seed policies
const (
	SeedFirstSync   = "first-sync"
	SeedEmptyRemote = "empty-remote"
	SeedNever       = "never"
)

// SyncConfig holds reconciliation behavior switches
type SyncConfig struct {
	NotifyPullErrors      bool // toast non-2xx and ok:false pull failures; network failures stay silent
	RollbackOnPushFailure bool
	PaymentPlanSeed       string
}

// JWTConfig holds session token settings
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// AuthConfig holds local operator settings
type AuthConfig struct {
	AdminUsername string
	AdminPassword string
	BcryptCost    int
}

// PrintingConfig holds PDF generation settings
type PrintingConfig struct {
	ChromePath    string
	Timeout       time.Duration
	MaxConcurrent int
	LayoutsFile   string
	Measurer      string // chromedp, estimate
	AgencyName    string
	AgencyPhone   string
	AgencyEmail   string
}

// StorageConfig holds generated document storage settings
type StorageConfig struct {
	Type              string // local, s3, memory
	LocalPath         string
	BaseURL           string
	Endpoint          string
	Region            string
	Bucket            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	UsePathStyle      bool
	PresignExpiration time.Duration
	// Retention removes generated PDFs older than this; zero keeps them forever
	Retention time.Duration
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with AGENCY_ prefix (e.g., AGENCY_REMOTE_BASE_URL)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	// server-reported pull failures are shown unless turned off
	v.SetDefault("sync.notify_pull_errors", true)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agency")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("AGENCY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			LoginRateLimit:   v.GetInt("http.login_rate_limit"),
		},
		Tenant: TenantConfig{
			Default: v.GetString("tenant.default"),
		},
		Snapshot: SnapshotConfig{
			Backend:     v.GetString("snapshot.backend"),
			Path:        v.GetString("snapshot.path"),
			Key:         v.GetString("snapshot.key"),
			MaxBytes:    v.GetInt64("snapshot.max_bytes"),
			Compression: v.GetString("snapshot.compression"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Remote: RemoteConfig{
			BaseURL:         v.GetString("remote.base_url"),
			Timeout:         v.GetDuration("remote.timeout"),
			PageSize:        v.GetInt("remote.page_size"),
			ClientID:        v.GetString("remote.client_id"),
			ClientSecret:    v.GetString("remote.client_secret"),
			RefreshInterval: v.GetDuration("remote.refresh_interval"),
			TokenLeeway:     v.GetDuration("remote.token_leeway"),
		},
		Sync: SyncConfig{
			NotifyPullErrors:      v.GetBool("sync.notify_pull_errors"),
			RollbackOnPushFailure: v.GetBool("sync.rollback_on_push_failure"),
			PaymentPlanSeed:       v.GetString("sync.payment_plan_seed"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Auth: AuthConfig{
			AdminUsername: v.GetString("auth.admin_username"),
			AdminPassword: v.GetString("auth.admin_password"),
			BcryptCost:    v.GetInt("auth.bcrypt_cost"),
		},
		Printing: PrintingConfig{
			ChromePath:    v.GetString("printing.chrome_path"),
			Timeout:       v.GetDuration("printing.timeout"),
			MaxConcurrent: v.GetInt("printing.max_concurrent"),
			LayoutsFile:   v.GetString("printing.layouts_file"),
			Measurer:      v.GetString("printing.measurer"),
			AgencyName:    v.GetString("printing.agency_name"),
			AgencyPhone:   v.GetString("printing.agency_phone"),
			AgencyEmail:   v.GetString("printing.agency_email"),
		},
		Storage: StorageConfig{
			Type:              v.GetString("storage.type"),
			LocalPath:         v.GetString("storage.local_path"),
			BaseURL:           v.GetString("storage.base_url"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
			Retention:         v.GetDuration("storage.retention"),
		},
		Metrics: MetricsConfig{
			Enabled:   v.GetBool("metrics.enabled"),
			Path:      v.GetString("metrics.path"),
			Namespace: v.GetString("metrics.namespace"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "agency-agent"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second // PDF generation
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 25 << 20 // embedded images
	}
	if cfg.HTTP.LoginRateLimit == 0 {
		cfg.HTTP.LoginRateLimit = 10
	}
	if cfg.Tenant.Default == "" {
		cfg.Tenant.Default = "default"
	}
	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = SnapshotBackendFile
	}
	if cfg.Snapshot.Path == "" {
		cfg.Snapshot.Path = "data/snapshot.json"
	}
	if cfg.Snapshot.Key == "" {
		cfg.Snapshot.Key = "agency:snapshot"
	}
	if cfg.Snapshot.Compression == "" {
		cfg.Snapshot.Compression = "none"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/agency.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "agency"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = "http://localhost:3000/api"
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 8 * time.Second
	}
	if cfg.Remote.PageSize == 0 {
		cfg.Remote.PageSize = 50
	}
	if cfg.Remote.RefreshInterval == 0 {
		cfg.Remote.RefreshInterval = time.Minute
	}
	if cfg.Remote.TokenLeeway == 0 {
		cfg.Remote.TokenLeeway = 3 * time.Minute
	}
	if cfg.Sync.PaymentPlanSeed == "" {
		cfg.Sync.PaymentPlanSeed = SeedFirstSync
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 12 * time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "agency-agent"
	}
	if cfg.Auth.AdminUsername == "" {
		cfg.Auth.AdminUsername = "admin"
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 12
	}
	if cfg.Printing.Timeout == 0 {
		cfg.Printing.Timeout = 30 * time.Second
	}
	if cfg.Printing.MaxConcurrent == 0 {
		cfg.Printing.MaxConcurrent = 2
	}
	if cfg.Printing.Measurer == "" {
		cfg.Printing.Measurer = "chromedp"
	}
	if cfg.Printing.AgencyName == "" {
		cfg.Printing.AgencyName = "Agencia de Viajes"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "data/documents"
	}
	if cfg.Storage.BaseURL == "" {
		cfg.Storage.BaseURL = "/api/v1/documents/files"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = time.Hour
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "agency"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Snapshot.Backend {
	case SnapshotBackendFile, SnapshotBackendDatabase, SnapshotBackendRedis, SnapshotBackendMemory:
	default:
		return fmt.Errorf("snapshot.backend must be one of file, database, redis, memory; got %q", c.Snapshot.Backend)
	}
	if c.Snapshot.Compression != "none" && c.Snapshot.Compression != "snappy" {
		return fmt.Errorf("snapshot.compression must be none or snappy, got %q", c.Snapshot.Compression)
	}
	if c.Snapshot.MaxBytes < 0 {
		return fmt.Errorf("snapshot.max_bytes cannot be negative")
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Remote.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Remote.BaseURL); err != nil {
			return fmt.Errorf("remote.base_url is not a valid URL: %w", err)
		}
	}
	switch c.Sync.PaymentPlanSeed {
	case SeedFirstSync, SeedEmptyRemote, SeedNever:
	default:
		return fmt.Errorf("sync.payment_plan_seed must be one of first-sync, empty-remote, never; got %q", c.Sync.PaymentPlanSeed)
	}
	if c.Printing.Measurer != "chromedp" && c.Printing.Measurer != "estimate" {
		return fmt.Errorf("printing.measurer must be chromedp or estimate, got %q", c.Printing.Measurer)
	}
	if c.Storage.Type != "local" && c.Storage.Type != "s3" && c.Storage.Type != "memory" {
		return fmt.Errorf("storage.type must be local, s3 or memory, got %q", c.Storage.Type)
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Auth.AdminPassword == "" {
			return fmt.Errorf("auth.admin_password is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
