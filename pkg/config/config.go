package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Neo4j     Neo4jConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Detectors DetectorsConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        int
	WriteTimeout       int
	RateLimitPerMinute int
	Environment        string
}

// IsDevelopment enables request logging and drops HSTS.
func (c ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

type Neo4jConfig struct {
	URI             string
	Username        string
	Password        string
	Database        string
	QueryTimeoutSec int
}

func (c Neo4jConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

func (c RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// DetectorsConfig locates definition documents and controls scheduled runs.
// Path may be a single document or a directory of *.json documents.
type DetectorsConfig struct {
	Path        string
	Schedule    string
	Concurrency int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads configuration from path, or from config.yaml in the usual
// locations when path is empty. Environment variables prefixed with
// DRIFTDETECT_ override file values, e.g. DRIFTDETECT_NEO4J_URI.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/driftdetect")
	}

	v.SetEnvPrefix("DRIFTDETECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Detectors.Concurrency < 1 {
		return nil, fmt.Errorf("detectors.concurrency must be at least 1, got %d", config.Detectors.Concurrency)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.rateLimitPerMinute", 60)
	v.SetDefault("server.environment", "production")

	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.queryTimeoutSec", 60)

	v.SetDefault("sqlite.enabled", true)
	v.SetDefault("sqlite.path", "./data/drift.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlSec", 86400)

	v.SetDefault("detectors.path", "./detectors")
	v.SetDefault("detectors.schedule", "@every 1h")
	v.SetDefault("detectors.concurrency", 4)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
