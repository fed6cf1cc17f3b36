package structs

import "time"

type Config struct {
	Server    *ServerConfig
	Cors      *CorsConfig
	Database  *DatabaseConfig
	Cache     *CacheConfig
	Auth      *AuthConfig
	RateLimit *RateLimitConfig
	Images    *ImagesConfig
	Storage   *StorageConfig
}

type ServerConfig struct {
	AppName        string        // Workshop
	Environment    string        // development, production
	Port           string        // :8082
	ReadTimeout    time.Duration // in seconds
	WriteTimeout   time.Duration // in seconds
	IdleTimeout    time.Duration // in seconds
	MaxHeaderBytes int           // in bytes
	MaxBodyBytes   int64         // in bytes, multipart uploads included
}

type CorsConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int // in seconds
}

type DatabaseConfig struct {
	Driver       string // pgdriver or pgx
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      bool
	MaxConns     int
	MinConns     int
	MaxLifetime  time.Duration
	MaxIdleTime  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type CacheConfig struct {
	Enabled         bool
	Address         string
	Username        string
	Password        string
	DB              int
	PoolSize        int
	MinIdleConns    int
	MaxIdleConns    int
	PoolTimeout     time.Duration
	IdleTimeout     time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	ImageListTTL    time.Duration
}

type AuthConfig struct {
	AccessTokenSecret string
	AdminRole         string
}

// RateLimitConfig holds per-IP request budgets, counted in the cache
type RateLimitConfig struct {
	Enabled       bool
	GeneralLimit  int
	GeneralWindow time.Duration
	AdminLimit    int
	AdminWindow   time.Duration
}

// ImagesConfig bounds the staging sessions and the commit fan-out
type ImagesConfig struct {
	MaxSizeBytes      int64 // per file
	MaxCount          int   // visible images per product/service
	UploadConcurrency int
	MaxSessions       int
	SessionTTL        time.Duration
	CommitTimeout     time.Duration // bounds a commit once it has started uploading
	PreviewSize       int // thumbnail edge in pixels
	PreviewQuality    int // jpeg quality 1-100
}

type StorageConfig struct {
	RootDir        string // local CDN root
	PublicBaseURL  string // e.g. http://localhost:8082/cdn
	KeyPrefix      string
	DeleteMaxRetry time.Duration // total elapsed budget for delete retries
}
