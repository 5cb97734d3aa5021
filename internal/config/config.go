package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config holds all application configuration. It is built once at startup
// and must not be mutated afterwards.
type Config struct {
	// Service configuration
	ServicePort       string
	ServiceName       string
	Environment       string
	LogLevel          string
	MaxFileSize       int64
	MaxFilesPerUpload int
	AllowedOrigins    []string
	PublicBaseURL     string

	// Database configuration
	DBDriver         string
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	DBMaxConns       int
	DBIdleTimeout    time.Duration
	DBConnectTimeout time.Duration
	DBAutoMigrate    bool

	// Object storage configuration
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	ShareLinkExpiry time.Duration

	// OTLP collector endpoint, empty disables export
	OTelEndpoint string
}

// LoadConfig loads configuration from an optional .env file and environment
// variables with sensible defaults
func LoadConfig() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	dbDriver := strings.ToLower(getEnv("DB_DRIVER", DriverPostgres))
	defaultDBPort := "5432"
	if dbDriver == DriverMySQL {
		defaultDBPort = "4000"
	}

	config := &Config{
		ServicePort:       getEnv("PORT", getEnv("SERVICE_PORT", "3001")),
		ServiceName:       getEnv("SERVICE_NAME", "lecturebox"),
		Environment:       getEnv("APP_ENV", getEnv("NODE_ENV", "development")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		MaxFileSize:       getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024),
		MaxFilesPerUpload: getEnvAsInt("MAX_FILES_PER_UPLOAD", 1),
		AllowedOrigins:    getEnvAsList("ALLOWED_ORIGINS"),
		PublicBaseURL:     strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", ""), "/"),

		DBDriver:         dbDriver,
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", defaultDBPort),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBName:           getEnv("DB_NAME", "lecturebox"),
		DBMaxConns:       getEnvAsInt("DB_MAX_CONNS", 10),
		DBIdleTimeout:    time.Duration(getEnvAsInt("DB_IDLE_TIMEOUT_MS", 30000)) * time.Millisecond,
		DBConnectTimeout: time.Duration(getEnvAsInt("DB_CONNECT_TIMEOUT_MS", 2000)) * time.Millisecond,
		DBAutoMigrate:    getEnvAsBool("DB_AUTO_MIGRATE", false),

		S3Endpoint:  getEnv("S3_ENDPOINT", "s3.amazonaws.com"),
		S3Region:    getEnv("AWS_REGION", "ap-northeast-2"),
		S3AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		S3Bucket:    getEnv("AWS_S3_BUCKET", ""),
		S3UseSSL:    getEnvAsBool("S3_USE_SSL", true),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		ShareLinkExpiry: time.Duration(getEnvAsInt("SHARE_LINK_EXPIRY_DAYS", 7)) * 24 * time.Hour,

		OTelEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", ""),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverMySQL {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	if c.MaxFilesPerUpload <= 0 {
		return fmt.Errorf("MAX_FILES_PER_UPLOAD must be positive, got %d", c.MaxFilesPerUpload)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.DBDriver == DriverMySQL {
		tls := "false"
		if c.IsProduction() {
			tls = "skip-verify"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&tls=%s",
			c.DBUser,
			c.DBPassword,
			c.DBHost,
			c.DBPort,
			c.DBName,
			c.DBConnectTimeout,
			tls,
		)
	}

	sslMode := "disable"
	if c.IsProduction() {
		sslMode = "require"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	// libpq style connect_timeout is whole seconds
	q.Set("connect_timeout", strconv.Itoa(max(1, int(c.DBConnectTimeout/time.Second))))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// S3Configured reports whether a bucket name has been provided
func (c *Config) S3Configured() bool {
	return c.S3Bucket != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
