package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Dataset sources understood by the loader.
const (
	SourceSheets   = "sheets"
	SourcePostgres = "postgres"
	SourceCSV      = "csv"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Log      LogConfig
	Dataset  DatasetConfig
	Sheets   SheetsConfig
	Catalog  CatalogConfig
	Exports  ExportsConfig
	Jobs     JobsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig gates clinician authentication.
type AuthConfig struct {
	Enabled    bool
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DatasetConfig describes where assessment records come from and how long a
// loaded snapshot stays valid.
type DatasetConfig struct {
	ID              string
	Source          string
	CacheTTL        time.Duration
	CSVPath         string
	MetadataColumns int
	IDColumn        string
	NameColumn      string
	PeriodColumn    string
}

// SheetsConfig locates the spreadsheet backing the dataset.
type SheetsConfig struct {
	SpreadsheetID   string
	Range           string
	CredentialsFile string
	CredentialsJSON string
	Timeout         time.Duration
}

// CatalogConfig points at the vocabulary/classification artifact.
type CatalogConfig struct {
	Path  string
	Watch bool
}

// ExportsConfig controls rendered comparison exports.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

// JobsConfig sizes the background refresh queue.
type JobsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		Enabled:    v.GetBool("AUTH_ENABLED"),
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	metadataColumns := v.GetInt("DATASET_METADATA_COLUMNS")
	if metadataColumns < 3 {
		metadataColumns = 4
	}
	cfg.Dataset = DatasetConfig{
		ID:              v.GetString("DATASET_ID"),
		Source:          strings.ToLower(v.GetString("DATASET_SOURCE")),
		CacheTTL:        parseDuration(v.GetString("DATASET_CACHE_TTL"), 10*time.Minute),
		CSVPath:         v.GetString("DATASET_CSV_PATH"),
		MetadataColumns: metadataColumns,
		IDColumn:        v.GetString("DATASET_ID_COLUMN"),
		NameColumn:      v.GetString("DATASET_NAME_COLUMN"),
		PeriodColumn:    v.GetString("DATASET_PERIOD_COLUMN"),
	}

	cfg.Sheets = SheetsConfig{
		SpreadsheetID:   v.GetString("SHEETS_SPREADSHEET_ID"),
		Range:           v.GetString("SHEETS_RANGE"),
		CredentialsFile: v.GetString("SHEETS_CREDENTIALS_FILE"),
		CredentialsJSON: v.GetString("SHEETS_CREDENTIALS_JSON"),
		Timeout:         parseDuration(v.GetString("SHEETS_TIMEOUT"), 20*time.Second),
	}

	cfg.Catalog = CatalogConfig{
		Path:  v.GetString("CATALOG_PATH"),
		Watch: v.GetBool("CATALOG_WATCH"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), 30*time.Minute),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), 5*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "patient_progress")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "patient-progress-api")
	v.SetDefault("JWT_EXPIRATION", "12h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DATASET_ID", "extraccion_fisioterapia_datos")
	v.SetDefault("DATASET_SOURCE", SourceCSV)
	v.SetDefault("DATASET_CACHE_TTL", "10m")
	v.SetDefault("DATASET_CSV_PATH", "./data/assessments.csv")
	v.SetDefault("DATASET_METADATA_COLUMNS", 4)
	v.SetDefault("DATASET_ID_COLUMN", "Identificación")
	v.SetDefault("DATASET_NAME_COLUMN", "Nombre Paciente")
	v.SetDefault("DATASET_PERIOD_COLUMN", "Periodo")

	v.SetDefault("SHEETS_SPREADSHEET_ID", "")
	v.SetDefault("SHEETS_RANGE", "Sheet1")
	v.SetDefault("SHEETS_CREDENTIALS_FILE", "")
	v.SetDefault("SHEETS_CREDENTIALS_JSON", "")
	v.SetDefault("SHEETS_TIMEOUT", "20s")

	v.SetDefault("CATALOG_PATH", "")
	v.SetDefault("CATALOG_WATCH", false)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "30m")

	v.SetDefault("JOBS_WORKERS", 1)
	v.SetDefault("JOBS_MAX_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "5s")
}

// NeedsDatabase reports whether the configured features require Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.Auth.Enabled || c.Dataset.Source == SourcePostgres
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
