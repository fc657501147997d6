package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2333
	defaultEnv        = "development"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	defaultDBDriver     = DriverMySQL
	defaultDBHost       = "127.0.0.1"
	defaultDBPort       = 3306
	defaultDBUser       = "root"
	defaultDBPassword   = "password"
	defaultDBName       = "briefly"
	defaultDBCharset    = "utf8mb4"
	defaultDBLoc        = "Local"
	defaultSQLitePath   = "briefly.db"
	defaultRedisHost    = "localhost"
	defaultRedisPort    = 6379
	defaultRedisDB      = 0
	defaultLogsSubdir   = "logs"
	defaultUploadSubdir = "uploads"

	defaultAIType            = "openai"
	defaultAITimeout         = 60 * time.Second
	defaultAIMaxOutputTokens = 1024

	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"

	defaultCacheBackend    = CacheBackendRedis
	defaultCacheTTL        = 24 * time.Hour
	defaultCacheTimeout    = 300 * time.Millisecond
	defaultCachePrefix     = "briefly"
	defaultMaxContentChars = 50000
	defaultUploadMaxMB     = 10

	defaultCredits = 5

	HistoryBackendSQL   = "sql"
	HistoryBackendMongo = "mongo"

	defaultMongoDatabase = "briefly"
	defaultExportPrefix  = "history-exports"
	defaultExportEvery   = 24 * time.Hour
	defaultMetricsPath   = "/metrics"
	defaultRatePerMinute = 30
)

var defaultPrivilegedRoles = []string{"admin", "editor"}
