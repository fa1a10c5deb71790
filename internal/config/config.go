package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Recognition RecognitionConfig
	Embedding   EmbeddingConfig
	Database    DatabaseConfig
	Web         WebConfig
	Legacy      LegacyConfig
}

// RecognitionConfig controls the matching and attendance-recording engine.
type RecognitionConfig struct {
	Threshold float64       // minimum cosine similarity to accept a match
	Dim       int           // embedding dimensionality, fixed by the face model
	RosterTTL time.Duration // how long a cached class roster stays fresh
}

// EmbeddingConfig configures the face-embedding sidecar client.
type EmbeddingConfig struct {
	URL          string // defaults to http://localhost:8000
	Workers      int    // bound on concurrent embedding requests
	MaxImageEdge int    // probe images are downscaled to fit this edge before upload
	Timeout      time.Duration
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host          string
	Port          int
	SessionSecret string
}

// LegacyConfig points at the old MySQL attendance database for one-shot imports.
type LegacyConfig struct {
	MySQLDSN string
}

// defaultsFile mirrors the embedded defaults.yaml layout.
type defaultsFile struct {
	Recognition struct {
		Threshold        float64 `yaml:"threshold"`
		Dim              int     `yaml:"dim"`
		RosterTTLSeconds int     `yaml:"roster_ttl_seconds"`
	} `yaml:"recognition"`
	Embedding struct {
		Workers        int `yaml:"workers"`
		MaxImageEdge   int `yaml:"max_image_edge"`
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"embedding"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegInt is envInt but accepts zero, for variables where zero
// explicitly disables the feature (roster caching, image downscaling).
func envNonNegInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Recognition: RecognitionConfig{
			Threshold: envFloat("RECOGNITION_THRESHOLD", defaults.Recognition.Threshold),
			Dim:       envInt("EMBEDDING_DIM", defaults.Recognition.Dim),
			RosterTTL: time.Duration(envNonNegInt("ROSTER_TTL_SECONDS", defaults.Recognition.RosterTTLSeconds)) * time.Second,
		},
		Embedding: EmbeddingConfig{
			URL:          envString("EMBEDDING_URL", "http://localhost:8000"),
			Workers:      envInt("EMBEDDING_WORKERS", defaults.Embedding.Workers),
			MaxImageEdge: envNonNegInt("EMBEDDING_MAX_IMAGE_EDGE", defaults.Embedding.MaxImageEdge),
			Timeout:      time.Duration(envInt("EMBEDDING_TIMEOUT_SECONDS", defaults.Embedding.TimeoutSeconds)) * time.Second,
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			Host:          envString("WEB_HOST", "0.0.0.0"),
			Port:          envInt("WEB_PORT", 8080),
			SessionSecret: os.Getenv("WEB_SESSION_SECRET"),
		},
		Legacy: LegacyConfig{
			MySQLDSN: os.Getenv("LEGACY_MYSQL_DSN"),
		},
	}
}

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}
