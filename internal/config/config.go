package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"`
	RedisURL       string                `yaml:"redis_url"`
	Env            string                `yaml:"env"` // "development" | "production"
	Timezone       string                `yaml:"timezone"`
	JWTSecret      string                `yaml:"jwt_secret"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	AI             AIConfig              `yaml:"ai"`
	Summarize      SummarizeConfig       `yaml:"summarize"`
	Credits        CreditsConfig         `yaml:"credits"`
	History        HistoryConfig         `yaml:"history"`
	Export         ExportConfig          `yaml:"export"`
	Metrics        MetricsConfig         `yaml:"metrics"`
	Admin          AdminConfig           `yaml:"admin"`
	RateLimit      RateLimitConfig       `yaml:"rate_limit"`
}

type DatabaseRuntimeConfig struct {
	Driver    string            `yaml:"driver"` // mysql | sqlite
	DSN       string            `yaml:"dsn"`
	Path      string            `yaml:"path"` // sqlite file
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

// AIConfig selects the external text-generation provider.
type AIConfig struct {
	Type            string        `yaml:"type"` // openai | anthropic | openrouter | openai-compatible | gemini
	APIKey          string        `yaml:"api_key"`
	Endpoint        string        `yaml:"endpoint"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst       int           `yaml:"rate_burst"`
}

type SummarizeConfig struct {
	CacheBackend    string        `yaml:"cache_backend"` // redis | memory
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheTimeout    time.Duration `yaml:"cache_timeout"`
	CachePrefix     string        `yaml:"cache_prefix"`
	MaxContentChars int           `yaml:"max_content_chars"`
	PerUserCache    bool          `yaml:"per_user_cache"`
	DedupeInflight  bool          `yaml:"-"`
	UploadMaxMB     int           `yaml:"upload_max_mb"`
}

type CreditsConfig struct {
	Default         int      `yaml:"default"`
	PrivilegedRoles []string `yaml:"privileged_roles"`
}

type HistoryConfig struct {
	Backend       string `yaml:"backend"` // sql | mongo
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// ExportConfig configures the periodic history export to an S3-compatible bucket.
type ExportConfig struct {
	Enable          bool          `yaml:"enable"`
	Interval        time.Duration `yaml:"interval"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	Prefix          string        `yaml:"prefix"`
	PathStyle       bool          `yaml:"path_style"`
}

type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	FullName string `yaml:"full_name"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
}

type RuntimePathsConfig struct {
	Logs    string `yaml:"logs"`
	Uploads string `yaml:"uploads"`
}

type rawAppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"`
	DatabaseURL    string                `yaml:"database_url"`
	RedisURL       string                `yaml:"redis_url"`
	Env            string                `yaml:"env"`
	GoEnv          string                `yaml:"go_env"`
	Timezone       string                `yaml:"timezone"`
	TZ             string                `yaml:"tz"`
	JWTSecret      string                `yaml:"jwt_secret"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	LogDir         string                `yaml:"log_dir"`
	UploadDir      string                `yaml:"upload_dir"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	AI             AIConfig              `yaml:"ai"`
	Summarize      rawSummarizeConfig    `yaml:"summarize"`
	Credits        rawCreditsConfig      `yaml:"credits"`
	History        HistoryConfig         `yaml:"history"`
	Export         ExportConfig          `yaml:"export"`
	Metrics        MetricsConfig         `yaml:"metrics"`
	Admin          AdminConfig           `yaml:"admin"`
	RateLimit      RateLimitConfig       `yaml:"rate_limit"`
}

type rawSummarizeConfig struct {
	SummarizeConfig `yaml:",inline"`
	DedupeInflight  *bool `yaml:"dedupe_inflight"`
}

type rawCreditsConfig struct {
	Default         *int     `yaml:"default"`
	PrivilegedRoles []string `yaml:"privileged_roles"`
}

// Load reads the YAML file at configPath, applies environment overrides and
// validates the result. A missing file is not an error: defaults plus
// environment are used.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}
	loadDotEnv()

	cfg := defaultAppConfig()
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		raw, err := decodeRaw(content)
		if err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
		applyRawAppConfig(&cfg, raw)
	case os.IsNotExist(err) && strings.TrimSpace(configPath) == "":
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	applyEnvOverrides(&cfg, os.Getenv)
	finalize(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

// Parse builds a config from YAML bytes without touching the environment.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw, err := decodeRaw(content)
	if err != nil {
		return nil, err
	}
	applyRawAppConfig(&cfg, raw)
	finalize(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeRaw(content []byte) (rawAppConfig, error) {
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) == 0 {
		return raw, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return raw, err
	}
	return raw, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:    defaultDBDriver,
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		AI: AIConfig{
			Type:            defaultAIType,
			Timeout:         defaultAITimeout,
			MaxOutputTokens: defaultAIMaxOutputTokens,
		},
		Summarize: SummarizeConfig{
			CacheBackend:    defaultCacheBackend,
			CacheTTL:        defaultCacheTTL,
			CacheTimeout:    defaultCacheTimeout,
			CachePrefix:     defaultCachePrefix,
			MaxContentChars: defaultMaxContentChars,
			DedupeInflight:  true,
			UploadMaxMB:     defaultUploadMaxMB,
		},
		Credits: CreditsConfig{
			Default:         defaultCredits,
			PrivilegedRoles: append([]string(nil), defaultPrivilegedRoles...),
		},
		History: HistoryConfig{
			Backend:       HistoryBackendSQL,
			MongoDatabase: defaultMongoDatabase,
		},
		Export: ExportConfig{
			Interval: defaultExportEvery,
			Prefix:   defaultExportPrefix,
		},
		Metrics: MetricsConfig{
			Path: defaultMetricsPath,
		},
		RateLimit: RateLimitConfig{
			PerMinute: defaultRatePerMinute,
		},
	}
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.GoEnv); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Uploads); v != "" {
		cfg.Paths.Uploads = v
	}
	if v := strings.TrimSpace(raw.UploadDir); v != "" {
		cfg.Paths.Uploads = v
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	cfg.AI = applyRawAIConfig(cfg.AI, raw.AI)
	cfg.Summarize = applyRawSummarizeConfig(cfg.Summarize, raw.Summarize)

	if raw.Credits.Default != nil {
		cfg.Credits.Default = *raw.Credits.Default
	}
	if raw.Credits.PrivilegedRoles != nil {
		cfg.Credits.PrivilegedRoles = raw.Credits.PrivilegedRoles
	}

	if v := strings.TrimSpace(raw.History.Backend); v != "" {
		cfg.History.Backend = v
	}
	if v := strings.TrimSpace(raw.History.MongoURI); v != "" {
		cfg.History.MongoURI = v
	}
	if v := strings.TrimSpace(raw.History.MongoDatabase); v != "" {
		cfg.History.MongoDatabase = v
	}

	cfg.Export = applyRawExportConfig(cfg.Export, raw.Export)

	if raw.Metrics.Enable {
		cfg.Metrics.Enable = true
	}
	if v := strings.TrimSpace(raw.Metrics.Path); v != "" {
		cfg.Metrics.Path = v
	}
	if v := strings.TrimSpace(raw.Admin.Email); v != "" {
		cfg.Admin.Email = v
	}
	if v := strings.TrimSpace(raw.Admin.Password); v != "" {
		cfg.Admin.Password = v
	}
	if v := strings.TrimSpace(raw.Admin.FullName); v != "" {
		cfg.Admin.FullName = v
	}
	if raw.RateLimit.PerMinute != 0 {
		cfg.RateLimit.PerMinute = raw.RateLimit.PerMinute
	}

	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.Redis.URL = v
	}
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current
	src := raw.Database

	if v := strings.TrimSpace(src.Driver); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(src.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(src.Path); v != "" {
		cfg.Path = v
	}
	if v := strings.TrimSpace(src.Host); v != "" {
		cfg.Host = v
	}
	if src.Port != 0 {
		cfg.Port = src.Port
	}
	if v := strings.TrimSpace(src.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(src.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(src.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(src.Charset); v != "" {
		cfg.Charset = v
	}
	if v := strings.TrimSpace(src.Loc); v != "" {
		cfg.Loc = v
	}
	if src.Params != nil {
		cfg.Params = copyStringMap(src.Params)
	}
	return cfg
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current
	src := raw.Redis

	if v := strings.TrimSpace(src.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(src.Host); v != "" {
		cfg.Host = v
	}
	if src.Port != 0 {
		cfg.Port = src.Port
	}
	if v := strings.TrimSpace(src.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(src.Password); v != "" {
		cfg.Password = v
	}
	if src.DB != 0 {
		cfg.DB = src.DB
	}
	if src.TLS {
		cfg.TLS = true
	}
	if v := strings.TrimSpace(src.Scheme); v != "" {
		cfg.Scheme = v
	}
	if src.Params != nil {
		cfg.Params = copyStringMap(src.Params)
	}
	return cfg
}

func applyRawAIConfig(cfg AIConfig, src AIConfig) AIConfig {
	if v := strings.TrimSpace(src.Type); v != "" {
		cfg.Type = v
	}
	if v := strings.TrimSpace(src.APIKey); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(src.Endpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(src.Model); v != "" {
		cfg.Model = v
	}
	if src.Timeout != 0 {
		cfg.Timeout = src.Timeout
	}
	if src.MaxOutputTokens != 0 {
		cfg.MaxOutputTokens = src.MaxOutputTokens
	}
	if src.RateLimit != 0 {
		cfg.RateLimit = src.RateLimit
	}
	if src.RateBurst != 0 {
		cfg.RateBurst = src.RateBurst
	}
	return cfg
}

func applyRawSummarizeConfig(cfg SummarizeConfig, raw rawSummarizeConfig) SummarizeConfig {
	src := raw.SummarizeConfig
	if v := strings.TrimSpace(src.CacheBackend); v != "" {
		cfg.CacheBackend = v
	}
	if src.CacheTTL != 0 {
		cfg.CacheTTL = src.CacheTTL
	}
	if src.CacheTimeout != 0 {
		cfg.CacheTimeout = src.CacheTimeout
	}
	if v := strings.TrimSpace(src.CachePrefix); v != "" {
		cfg.CachePrefix = v
	}
	if src.MaxContentChars != 0 {
		cfg.MaxContentChars = src.MaxContentChars
	}
	if src.PerUserCache {
		cfg.PerUserCache = true
	}
	if src.UploadMaxMB != 0 {
		cfg.UploadMaxMB = src.UploadMaxMB
	}
	if raw.DedupeInflight != nil {
		cfg.DedupeInflight = *raw.DedupeInflight
	}
	return cfg
}

func applyRawExportConfig(cfg ExportConfig, src ExportConfig) ExportConfig {
	if src.Enable {
		cfg.Enable = true
	}
	if src.Interval != 0 {
		cfg.Interval = src.Interval
	}
	if v := strings.TrimSpace(src.Bucket); v != "" {
		cfg.Bucket = v
	}
	if v := strings.TrimSpace(src.Region); v != "" {
		cfg.Region = v
	}
	if v := strings.TrimSpace(src.Endpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(src.AccessKeyID); v != "" {
		cfg.AccessKeyID = v
	}
	if v := strings.TrimSpace(src.SecretAccessKey); v != "" {
		cfg.SecretAccessKey = v
	}
	if v := strings.TrimSpace(src.Prefix); v != "" {
		cfg.Prefix = v
	}
	if src.PathStyle {
		cfg.PathStyle = true
	}
	return cfg
}

// finalize normalizes every section and derives DSN / RedisURL.
func finalize(cfg *AppConfig) {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.AI = normalizeAIConfig(cfg.AI)
	cfg.Summarize = normalizeSummarizeConfig(cfg.Summarize)
	cfg.Credits.PrivilegedRoles = normalizeRoles(cfg.Credits.PrivilegedRoles)
	cfg.History.Backend = strings.ToLower(strings.TrimSpace(cfg.History.Backend))
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	switch cfg.Database.Driver {
	case DriverMySQL:
		if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
			return fmt.Errorf("invalid database.port %d, expected 1-65535", cfg.Database.Port)
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis.port %d, expected 1-65535", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	switch cfg.Summarize.CacheBackend {
	case CacheBackendRedis, CacheBackendMemory:
	default:
		return fmt.Errorf("unsupported summarize.cache_backend %q", cfg.Summarize.CacheBackend)
	}
	if cfg.Summarize.CacheTTL <= 0 {
		return fmt.Errorf("summarize.cache_ttl must be positive")
	}
	if cfg.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be positive")
	}
	if cfg.Credits.Default < 0 {
		return fmt.Errorf("credits.default must be >= 0")
	}
	switch cfg.History.Backend {
	case HistoryBackendSQL:
	case HistoryBackendMongo:
		if cfg.History.MongoURI == "" {
			return fmt.Errorf("history.mongo_uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unsupported history.backend %q", cfg.History.Backend)
	}
	if cfg.Export.Enable && cfg.Export.Bucket == "" {
		return fmt.Errorf("export.bucket is required when export is enabled")
	}
	return nil
}

// IsDev reports whether the service runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env == defaultEnv }

// IsPrivilegedRole reports whether role is exempt from credit metering.
func (c *AppConfig) IsPrivilegedRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range c.Credits.PrivilegedRoles {
		if r == role {
			return true
		}
	}
	return false
}
