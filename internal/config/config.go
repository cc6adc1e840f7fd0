package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	// DebugMode indicates service mode is debug.
	DebugMode = "debug"
	// TestMode indicates service mode is test.
	TestMode = "test"
	// ReleaseMode indicates service mode is release.
	ReleaseMode = "release"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ServiceName string
	Environment string // debug, test, release
	Port        string

	// Store
	DBDriver   string // postgres, sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Auth (tokens are issued by the identity service)
	JWTSecret string

	// Module responses / secrets at rest
	ModuleHMACSecret string
	DBConfigSecret   string

	// Data fetch; zero means no timeout
	DataFetchTimeout time.Duration

	// Reachability probes
	ProbeTimeout  time.Duration
	ProbeAttempts int
	ProbeWorkers  int

	// Live viewers
	ViewerTTL time.Duration

	// Example modules stored on an empty registry
	SeedExamples  bool
	SeedModuleURL string
}

// Load reads configuration from the environment, after an optional .env file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := &Config{}

	cfg.ServiceName = cast.ToString(getOrReturnDefaultValue("SERVICE_NAME", "felman_modulos"))
	cfg.Environment = cast.ToString(getOrReturnDefaultValue("ENVIRONMENT", DebugMode))
	cfg.Port = cast.ToString(getOrReturnDefaultValue("PORT", "8080"))

	cfg.DBDriver = cast.ToString(getOrReturnDefaultValue("DB_DRIVER", DriverPostgres))
	cfg.DBHost = cast.ToString(getOrReturnDefaultValue("DB_HOST", "localhost"))
	cfg.DBPort = cast.ToString(getOrReturnDefaultValue("DB_PORT", "5432"))
	cfg.DBUser = cast.ToString(getOrReturnDefaultValue("DB_USER", "postgres"))
	cfg.DBPassword = cast.ToString(getOrReturnDefaultValue("DB_PASSWORD", "postgres"))
	cfg.DBName = cast.ToString(getOrReturnDefaultValue("DB_NAME", "felman_db"))
	cfg.DBSSLMode = cast.ToString(getOrReturnDefaultValue("DB_SSLMODE", "disable"))
	cfg.SQLitePath = cast.ToString(getOrReturnDefaultValue("SQLITE_PATH", "modulos.db"))

	cfg.JWTSecret = cast.ToString(getOrReturnDefaultValue("JWT_SECRET", "supersecret_change_me"))

	cfg.ModuleHMACSecret = cast.ToString(getOrReturnDefaultValue("MODULE_HMAC_SECRET", ""))
	cfg.DBConfigSecret = cast.ToString(getOrReturnDefaultValue("DB_CONFIG_SECRET", ""))

	cfg.DataFetchTimeout = cast.ToDuration(getOrReturnDefaultValue("DATA_FETCH_TIMEOUT", "0s"))

	cfg.ProbeTimeout = cast.ToDuration(getOrReturnDefaultValue("PROBE_TIMEOUT", "5s"))
	cfg.ProbeAttempts = cast.ToInt(getOrReturnDefaultValue("PROBE_ATTEMPTS", 3))
	cfg.ProbeWorkers = cast.ToInt(getOrReturnDefaultValue("PROBE_WORKERS", 4))

	cfg.ViewerTTL = cast.ToDuration(getOrReturnDefaultValue("VIEWER_TTL", "10m"))

	cfg.SeedExamples = cast.ToBool(getOrReturnDefaultValue("SEED_EXAMPLES", false))
	cfg.SeedModuleURL = cast.ToString(getOrReturnDefaultValue("SEED_MODULE_URL", "http://localhost/api/consulta.php"))

	return cfg
}

func getOrReturnDefaultValue(key string, defaultValue any) any {
	val, exists := os.LookupEnv(key)

	if exists && val != "" {
		return val
	}

	return defaultValue
}
