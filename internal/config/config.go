// Package config provides configuration loading and management for the catalog sync service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	// schedule.timezone must resolve in minimal container images
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/boreal-financial/catalog-sync/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the service
const EnvPrefix = "CATALOG_SYNC"

const (
	// SourceTypeAPI fetches the catalog from the staff API
	SourceTypeAPI = "api"

	// SourceTypeFile reads the catalog from a local JSON file
	SourceTypeFile = "file"
)

const (
	// StorageTypeSQLite keeps the cache in a local SQLite file
	StorageTypeSQLite = "sqlite"

	// StorageTypePostgres keeps the cache in PostgreSQL
	StorageTypePostgres = "postgres"

	// StorageTypeRedis keeps the cache in Redis
	StorageTypeRedis = "redis"

	// StorageTypeFile keeps the cache as JSON files in a directory
	StorageTypeFile = "file"

	// StorageTypeMemory keeps the cache in process memory
	StorageTypeMemory = "memory"
)

// Defaults applied by LoadConfig when a value is not set
const (
	DefaultCatalogTimeout     = 10 * time.Second
	DefaultMaxAttempts        = 1
	DefaultSQLitePath         = "./data/catalog.db"
	DefaultFileStorageDir     = "./data"
	DefaultRedisKeyPrefix     = "catalog-sync"
	DefaultTimezone           = "America/Edmonton"
	DefaultWindowMinutes      = 5
	DefaultCheckInterval      = time.Hour
	DefaultStaleAfter         = 13 * time.Hour
	DefaultNotificationTTL    = 10 * time.Second
	DefaultNotificationBuffer = 50
)

// DefaultCheckpoints are the local hours at which a scheduled sync runs
var DefaultCheckpoints = []int{0, 12}

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path    string
	envFile string
	viper   *viper.Viper
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// WithEnvFile loads variables from a dotenv file before environment overrides are applied.
// A missing file is not an error.
func WithEnvFile(path string) Option {
	return func(cfg *loaderConfig) error {
		cfg.envFile = path
		return nil
	}
}

// WithViper reads environment and flag overrides from v instead of a fresh instance
func WithViper(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		if v == nil {
			return fmt.Errorf("viper instance cannot be nil")
		}
		cfg.viper = v
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Catalog       CatalogConfig       `yaml:"catalog"`
	Storage       StorageConfig       `yaml:"storage"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Diagnostics   DiagnosticsConfig   `yaml:"diagnostics"`
	Notifications NotificationsConfig `yaml:"notifications"`

	// Telemetry is optional; nil disables tracing and OTLP export
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// CatalogConfig describes where the lender catalog comes from
type CatalogConfig struct {
	// Endpoint is the staff API base URL; "/public/lenders" is appended
	Endpoint string `yaml:"endpoint,omitempty"`

	// FilePath reads the catalog from a local JSON file instead of the API
	FilePath string `yaml:"filePath,omitempty"`

	// Token is a bearer token sent with every API request
	Token string `yaml:"token,omitempty"`

	// TokenFile is read when Token is empty
	TokenFile string `yaml:"tokenFile,omitempty"`

	// Timeout bounds a single fetch (e.g. "10s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxAttempts is the number of fetch attempts for transient failures
	MaxAttempts int `yaml:"maxAttempts,omitempty"`

	Filter *FilterConfig `yaml:"filter,omitempty"`
}

// FilterConfig defines filtering rules applied before products are stored
type FilterConfig struct {
	// Lenders matches lender names with glob patterns
	Lenders *NameFilterConfig `yaml:"lenders,omitempty"`

	// Categories matches normalized category values exactly
	Categories *NameFilterConfig `yaml:"categories,omitempty"`
}

// NameFilterConfig defines glob include and exclude patterns
type NameFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// StorageConfig selects and configures the product cache backend
type StorageConfig struct {
	Type     string          `yaml:"type,omitempty"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	File     *FileConfig     `yaml:"file,omitempty"`
	Postgres *DatabaseConfig `yaml:"postgres,omitempty"`
	Redis    *RedisConfig    `yaml:"redis,omitempty"`

	// LockPath enables a cross-process lock held for the duration of each sync
	LockPath string `yaml:"lockPath,omitempty"`
}

// SQLiteConfig configures the SQLite backend
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// FileConfig configures the JSON file backend
type FileConfig struct {
	BaseDir string `yaml:"baseDir"`
}

// RedisConfig configures the Redis backend
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`

	// PasswordFile holds the Redis password; CATALOG_SYNC_REDIS_PASSWORD is used otherwise
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// DatabaseConfig defines PostgreSQL connection settings
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing only the password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	Database string `yaml:"database"`

	// SSLMode is one of disable, require, verify-ca, verify-full
	SSLMode string `yaml:"sslMode,omitempty"`

	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`
}

// ScheduleConfig defines when scheduled syncs run
type ScheduleConfig struct {
	// Timezone is the IANA zone the checkpoint hours are evaluated in
	Timezone string `yaml:"timezone,omitempty"`

	// Checkpoints are the local hours (0-23) that open a sync window
	Checkpoints []int `yaml:"checkpoints,omitempty"`

	// WindowMinutes is how long after a checkpoint hour a sync may still start
	WindowMinutes int `yaml:"windowMinutes,omitempty"`

	// CheckInterval is how often the scheduler looks at the clock (e.g. "1h")
	CheckInterval string `yaml:"checkInterval,omitempty"`

	// RunOnStart runs one sync as soon as the scheduler starts; defaults to true
	RunOnStart *bool `yaml:"runOnStart,omitempty"`
}

// DiagnosticsConfig configures provenance reporting
type DiagnosticsConfig struct {
	// StaleAfter is how old the last successful sync may be before data is reported as cached
	StaleAfter string `yaml:"staleAfter,omitempty"`
}

// NotificationsConfig configures the transient notification feed
type NotificationsConfig struct {
	TTL      string `yaml:"ttl,omitempty"`
	Capacity int    `yaml:"capacity,omitempty"`
}

// LoadConfig loads, overrides, defaults and validates the configuration.
// Without a config path the configuration is built from defaults and environment alone.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.envFile != "" {
		if err := godotenv.Load(loaderCfg.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", loaderCfg.envFile, err)
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	v := loaderCfg.viper
	if v == nil {
		v = NewViper()
	}
	config.applyOverrides(v)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// NewViper returns a viper instance reading CATALOG_SYNC_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// applyOverrides copies the values set in the environment or on the command line
func (c *Config) applyOverrides(v *viper.Viper) {
	if s := v.GetString("catalog.endpoint"); s != "" {
		c.Catalog.Endpoint = s
	}
	if s := v.GetString("catalog.file"); s != "" {
		c.Catalog.FilePath = s
	}
	if s := v.GetString("catalog.token"); s != "" {
		c.Catalog.Token = s
	}
	if s := v.GetString("catalog.timeout"); s != "" {
		c.Catalog.Timeout = s
	}
	if s := v.GetString("storage.type"); s != "" {
		c.Storage.Type = s
	}
	if s := v.GetString("storage.sqlite.path"); s != "" {
		if c.Storage.SQLite == nil {
			c.Storage.SQLite = &SQLiteConfig{}
		}
		c.Storage.SQLite.Path = s
	}
	if s := v.GetString("storage.redis.addr"); s != "" {
		if c.Storage.Redis == nil {
			c.Storage.Redis = &RedisConfig{}
		}
		c.Storage.Redis.Addr = s
	}
	if s := v.GetString("storage.lock"); s != "" {
		c.Storage.LockPath = s
	}
	if s := v.GetString("schedule.timezone"); s != "" {
		c.Schedule.Timezone = s
	}
}

func (c *Config) applyDefaults() {
	if c.Catalog.Timeout == "" {
		c.Catalog.Timeout = DefaultCatalogTimeout.String()
	}
	if c.Catalog.MaxAttempts == 0 {
		c.Catalog.MaxAttempts = DefaultMaxAttempts
	}
	if c.Storage.Type == "" {
		c.Storage.Type = StorageTypeSQLite
	}
	if c.Storage.Type == StorageTypeSQLite {
		if c.Storage.SQLite == nil {
			c.Storage.SQLite = &SQLiteConfig{}
		}
		if c.Storage.SQLite.Path == "" {
			c.Storage.SQLite.Path = DefaultSQLitePath
		}
	}
	if c.Storage.Type == StorageTypeFile {
		if c.Storage.File == nil {
			c.Storage.File = &FileConfig{}
		}
		if c.Storage.File.BaseDir == "" {
			c.Storage.File.BaseDir = DefaultFileStorageDir
		}
	}
	if c.Storage.Redis != nil && c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = DefaultTimezone
	}
	if len(c.Schedule.Checkpoints) == 0 {
		c.Schedule.Checkpoints = append([]int(nil), DefaultCheckpoints...)
	}
	if c.Schedule.WindowMinutes == 0 {
		c.Schedule.WindowMinutes = DefaultWindowMinutes
	}
	if c.Schedule.CheckInterval == "" {
		c.Schedule.CheckInterval = DefaultCheckInterval.String()
	}
	if c.Diagnostics.StaleAfter == "" {
		c.Diagnostics.StaleAfter = DefaultStaleAfter.String()
	}
	if c.Notifications.TTL == "" {
		c.Notifications.TTL = DefaultNotificationTTL.String()
	}
	if c.Notifications.Capacity == 0 {
		c.Notifications.Capacity = DefaultNotificationBuffer
	}
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error
	if err := c.Catalog.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Storage.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Schedule.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := validateDuration("diagnostics.staleAfter", c.Diagnostics.StaleAfter); err != nil {
		errs = append(errs, err)
	}
	if err := validateDuration("notifications.ttl", c.Notifications.TTL); err != nil {
		errs = append(errs, err)
	}
	if c.Notifications.Capacity < 0 {
		errs = append(errs, fmt.Errorf("notifications.capacity cannot be negative"))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (c *CatalogConfig) validate() error {
	switch {
	case c.Endpoint == "" && c.FilePath == "":
		return fmt.Errorf("catalog: one of endpoint or filePath must be specified")
	case c.Endpoint != "" && c.FilePath != "":
		return fmt.Errorf("catalog: only one of endpoint or filePath may be specified")
	}

	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("catalog.endpoint must be an absolute URL, got %q", c.Endpoint)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("catalog.endpoint must use http or https, got %q", u.Scheme)
		}
	}

	if err := validateDuration("catalog.timeout", c.Timeout); err != nil {
		return err
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("catalog.maxAttempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Type {
	case StorageTypeSQLite, StorageTypeFile, StorageTypeMemory:
		return nil
	case StorageTypePostgres:
		if s.Postgres == nil {
			return fmt.Errorf("storage.postgres is required for storage type %s", s.Type)
		}
		if s.Postgres.Host == "" || s.Postgres.Database == "" || s.Postgres.User == "" {
			return fmt.Errorf("storage.postgres: host, user and database are required")
		}
		return nil
	case StorageTypeRedis:
		if s.Redis == nil || s.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for storage type %s", s.Type)
		}
		return nil
	default:
		return fmt.Errorf("storage.type %q is not supported", s.Type)
	}
}

func (s *ScheduleConfig) validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q is not a valid IANA zone: %w", s.Timezone, err)
	}
	for _, h := range s.Checkpoints {
		if h < 0 || h > 23 {
			return fmt.Errorf("schedule.checkpoints must be hours between 0 and 23, got %d", h)
		}
	}
	if s.WindowMinutes < 1 || s.WindowMinutes > 59 {
		return fmt.Errorf("schedule.windowMinutes must be between 1 and 59, got %d", s.WindowMinutes)
	}
	return validateDuration("schedule.checkInterval", s.CheckInterval)
}

func validateDuration(field, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}

// GetTimeout returns the parsed catalog fetch timeout
func (c *CatalogConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, DefaultCatalogTimeout)
}

// GetToken returns the bearer token from Token or TokenFile, or "" when neither is set
func (c *CatalogConfig) GetToken() (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}
	if c.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Clean(c.TokenFile))
	if err != nil {
		return "", fmt.Errorf("failed to read token from file %s: %w", c.TokenFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// GetSourceType returns the inferred type of the catalog source
func (c *CatalogConfig) GetSourceType() string {
	if c.FilePath != "" {
		return SourceTypeFile
	}
	return SourceTypeAPI
}

// GetLocation returns the scheduler's reference timezone
func (s *ScheduleConfig) GetLocation() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetCheckInterval returns the parsed scheduler check interval
func (s *ScheduleConfig) GetCheckInterval() time.Duration {
	return parseDurationOr(s.CheckInterval, DefaultCheckInterval)
}

// ShouldRunOnStart reports whether a sync runs when the scheduler starts
func (s *ScheduleConfig) ShouldRunOnStart() bool {
	return s.RunOnStart == nil || *s.RunOnStart
}

// GetStaleAfter returns the parsed staleness threshold
func (d *DiagnosticsConfig) GetStaleAfter() time.Duration {
	return parseDurationOr(d.StaleAfter, DefaultStaleAfter)
}

// GetTTL returns the parsed notification lifetime
func (n *NotificationsConfig) GetTTL() time.Duration {
	return parseDurationOr(n.TTL, DefaultNotificationTTL)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from CATALOG_SYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with the password URL-escaped
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	port := d.Port
	if port == 0 {
		port = 5432
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		port,
		d.Database,
		sslMode,
	), nil
}

// GetPassword returns the Redis password from PasswordFile or CATALOG_SYNC_REDIS_PASSWORD.
// An empty password is valid.
func (r *RedisConfig) GetPassword() (string, error) {
	if r.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(r.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read redis password from file %s: %w", r.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(EnvPrefix + "_REDIS_PASSWORD"), nil
}
