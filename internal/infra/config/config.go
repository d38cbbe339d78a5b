// internal/infra/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by DOCSTORE_BACKEND.
const (
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
	BackendMemory    = "memory"
)

// Product sources accepted by PRODUCT_SOURCE.
const (
	ProductsFirestore = "firestore"
	ProductsPostgres  = "postgres"
	ProductsGCS       = "gcs"
	ProductsMemory    = "memory"
)

// Config holds the process-wide settings read from the environment.
type Config struct {
	Port string

	DocstoreBackend string

	FirestoreProjectID         string
	FirestoreCredentialsFile   string
	FirestoreCredentialsSecret string

	// Firebase Auth project (defaults to the Firestore project)
	FirebaseProjectID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ProductSource      string
	ProductDatabaseURL string
	ProductBucket      string
	ProductPrefix      string
	ProductCatalogFile string

	DeviceDBPath string

	CORSAllowedOrigin string
	LogFile           string
	WriteTimeout      time.Duration

	// per-device sessions: idle eviction and cap
	SessionIdleTTL time.Duration
	MaxSessions    int
}

// Load reads the environment variables and returns a Config.
func Load() *Config {
	project := firstNonEmpty(
		os.Getenv("FIRESTORE_PROJECT_ID"),
		os.Getenv("GCP_PROJECT_ID"),
		os.Getenv("GOOGLE_CLOUD_PROJECT"),
	)

	cfg := &Config{
		Port:            getenvDefault("PORT", "8080"),
		DocstoreBackend: strings.ToLower(getenvDefault("DOCSTORE_BACKEND", BackendFirestore)),

		FirestoreProjectID: project,
		FirestoreCredentialsFile: firstNonEmpty(
			os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
			os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		),
		FirestoreCredentialsSecret: strings.TrimSpace(os.Getenv("FIRESTORE_CREDENTIALS_SECRET")),

		// FIREBASE_PROJECT_ID falls back to the Firestore project
		FirebaseProjectID: getenvDefault("FIREBASE_PROJECT_ID", project),

		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),

		ProductSource:      strings.ToLower(getenvDefault("PRODUCT_SOURCE", ProductsFirestore)),
		ProductDatabaseURL: strings.TrimSpace(os.Getenv("PRODUCT_DATABASE_URL")),
		ProductBucket:      strings.TrimSpace(os.Getenv("PRODUCT_BUCKET")),
		ProductPrefix:      getenvDefault("PRODUCT_PREFIX", "products/"),
		ProductCatalogFile: strings.TrimSpace(os.Getenv("PRODUCT_CATALOG_FILE")),

		DeviceDBPath: getenvDefault("DEVICE_DB_PATH", "device_keys.db"),

		CORSAllowedOrigin: getenvDefault("CORS_ALLOWED_ORIGIN", "*"),
		LogFile:           strings.TrimSpace(os.Getenv("LOG_FILE")),
		WriteTimeout:      time.Duration(getenvInt("WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,

		SessionIdleTTL: time.Duration(getenvInt("SESSION_IDLE_TTL_MS", 1800000)) * time.Millisecond,
		MaxSessions:    getenvInt("SESSION_MAX", 10000),
	}

	return cfg
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
