// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Backend  BackendConfig
	Session  SessionConfig
	Upload   UploadConfig
	App      AppConfig

	loadErrs []error
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
	// AllowedOrigins are the front-end origins allowed by CORS.
	AllowedOrigins []string
	// LoginRate and LoginBurst bound login attempts per client address.
	LoginRate  float64
	LoginBurst int
}

// DatabaseConfig holds the portal database settings.
// Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // sqlite file
}

// BackendConfig describes the EJAAR backend API.
type BackendConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables
	Burst     int
	// JWTSecret verifies backend access tokens when set; otherwise claims
	// are read without verification.
	JWTSecret string
}

// SessionConfig holds portal session settings.
type SessionConfig struct {
	Secret        string
	TTL           time.Duration
	RefreshWindow time.Duration
	PurgeSchedule string
	SecureCookie  bool
}

// UploadConfig bounds document uploads.
type UploadConfig struct {
	MaxBytes   int64
	StaleAfter time.Duration
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool
	Migrations bool
	LogLevel   string
	LogFormat  string
}

// DSN returns the connection string handed to the gorm driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return d.URL()
}

// URL returns the connection string in URL format, as expected by migrate.
func (d DatabaseConfig) URL() string {
	if d.Driver == "sqlite" {
		return "sqlite3://" + d.Path
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(d.User),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

const devSessionSecret = "devsessionsecret"

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	dev := getEnvBool("DEV", true)
	logFormat := "text"
	if !dev {
		logFormat = "json"
	}
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 60),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
			LoginRate:      getEnvFloat("LOGIN_RATE", 0.2),
			LoginBurst:     getEnvInt("LOGIN_BURST", 5),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ejaar"),
			Password: getEnv("DB_PASSWORD", "ejaar123"),
			DBName:   getEnv("DB_NAME", "ejaar_portal"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "ejaar.db"),
		},
		Backend: BackendConfig{
			BaseURL:   strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:3000/api"), "/"),
			Timeout:   getEnvDuration("BACKEND_TIMEOUT", 20*time.Second),
			RateLimit: getEnvFloat("BACKEND_RATE", 20),
			Burst:     getEnvInt("BACKEND_BURST", 40),
			JWTSecret: getEnv("BACKEND_JWT_SECRET", ""),
		},
		Session: SessionConfig{
			Secret:        getEnv("SESSION_SECRET", devSessionSecret),
			TTL:           getEnvDuration("SESSION_TTL", 14*24*time.Hour),
			RefreshWindow: getEnvDuration("SESSION_REFRESH_WINDOW", 2*time.Minute),
			PurgeSchedule: getEnv("SESSION_PURGE_SCHEDULE", "@every 15m"),
			SecureCookie:  getEnvBool("SESSION_SECURE_COOKIE", !dev),
		},
		Upload: UploadConfig{
			MaxBytes:   int64(getEnvInt("UPLOAD_MAX_MB", 10)) << 20,
			StaleAfter: getEnvDuration("UPLOAD_STALE_AFTER", 10*time.Minute),
		},
		App: AppConfig{
			Dev:        dev,
			Migrations: getEnvBool("MIGRATIONS", false),
			LogLevel:   getEnv("LOG_LEVEL", "info"),
			LogFormat:  getEnv("LOG_FORMAT", logFormat),
		},
	}
	if err := cfg.Database.ApplyURL(os.Getenv("DATABASE_URL")); err != nil {
		cfg.loadErrs = append(cfg.loadErrs, err)
	}
	return cfg
}

// Validate rejects configurations that cannot run in production.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.loadErrs...)
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("BACKEND_URL: %w", err))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", c.Database.Driver))
	}
	if !c.App.Dev && (c.Session.Secret == devSessionSecret || len(c.Session.Secret) < 32) {
		errs = append(errs, errors.New("SESSION_SECRET: at least 32 characters required outside dev"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL: must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_MB: must be positive"))
	}
	return errors.Join(errs...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}

// getEnvDuration parses values like "30s" or "15m".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
