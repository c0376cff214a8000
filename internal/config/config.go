package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
)

// Environment keys. Viper upper-cases these when resolving them from the environment.
const (
	KeyBucket          = "gcs_bucket"
	KeyConfigFile      = "config_file"
	KeyJobName         = "job_name"
	KeyObjectStoreType = "object_store_type"
	KeyCredentialsFile = "gcp_credentials_file"
	KeyAWSRegion       = "aws_region"
	KeyS3Endpoint      = "s3_endpoint"
	KeyDynamoEndpoint  = "dynamodb_endpoint"
	KeyAPIURL          = "strava_api_url"
	KeyTokenURL        = "strava_token_url"
	KeyAPITimeout      = "api_timeout"
	KeyPageSize        = "page_size"
	KeyMaxPages        = "max_pages"
	KeyRequestsPerSec  = "api_requests_per_second"
	KeyCursorPolicy    = "cursor_policy"
	KeyWarehouseWait   = "warehouse_wait"
	KeyArchiveCompress = "archive_compression"
	KeyStorageType     = "storage_type"
	KeyTableName       = "table_name"
	KeyMongoDBURI      = "mongodb_uri"
	KeyPostgresURI     = "postgres_uri"
	KeySQLitePath      = "sqlite_path"
	KeyServerPort      = "server_port"
	KeyLogLevel        = "log_level"
	KeyLogEncoding     = "log_encoding"
	KeyTriggerPayload  = "trigger_payload"
)

// Cursor policies.
const (
	CursorPolicyFetchEnd       = "fetch_end"
	CursorPolicyLatestActivity = "latest_activity"
)

// Config holds all configuration for the application
type Config struct {
	ObjectStore ObjectStoreConfig
	Storage     StorageConfig
	Ingestion   IngestionConfig
	Source      SourceConfig
	Warehouse   WarehouseConfig
	Archive     ArchiveConfig
	Server      ServerConfig
	Log         LogConfig
}

// ObjectStoreConfig locates the bucket that holds the job configuration file
// and the raw archives.
type ObjectStoreConfig struct {
	Type            string // "gcs", "s3", "memory"
	Bucket          string
	ConfigFile      string
	CredentialsFile string // For GCS; empty means application default credentials
	Region          string // For S3
	Endpoint        string // Custom S3 endpoint for local testing
}

// StorageConfig holds run-status storage configuration
type StorageConfig struct {
	Type        string // "memory", "dynamodb", "mongodb", "postgresql", "sqlite"
	Region      string // For AWS DynamoDB
	TableName   string
	Endpoint    string // Custom endpoint for local testing
	MongoDBURI  string
	PostgresURI string
	SQLitePath  string
}

// IngestionConfig holds run orchestration configuration
type IngestionConfig struct {
	JobName      string
	CursorPolicy string
}

// SourceConfig holds activity API and identity endpoint configuration
type SourceConfig struct {
	APIURL            string
	TokenURL          string
	Timeout           time.Duration
	PageSize          int
	MaxPages          int
	RequestsPerSecond float64
}

// WarehouseConfig holds load job configuration
type WarehouseConfig struct {
	CredentialsFile string
	WaitForJob      bool
}

// ArchiveConfig holds archive configuration
type ArchiveConfig struct {
	Compression string // "none", "gzip"
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level    string
	Encoding string // "json" or "console"
}

// NewViper returns a viper instance resolving keys from the environment with
// the application defaults registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers the default value of every optional key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyJobName, "strava-ingest")
	v.SetDefault(KeyObjectStoreType, "gcs")
	v.SetDefault(KeyAWSRegion, "us-west-2")
	v.SetDefault(KeyAPIURL, "https://www.strava.com/api/v3")
	v.SetDefault(KeyTokenURL, "https://www.strava.com/api/v3/oauth/token")
	v.SetDefault(KeyAPITimeout, 30*time.Second)
	v.SetDefault(KeyPageSize, 200)
	v.SetDefault(KeyMaxPages, 1000)
	v.SetDefault(KeyRequestsPerSec, 5.0)
	v.SetDefault(KeyCursorPolicy, CursorPolicyFetchEnd)
	v.SetDefault(KeyWarehouseWait, false)
	v.SetDefault(KeyArchiveCompress, "none")
	v.SetDefault(KeyStorageType, "memory")
	v.SetDefault(KeyTableName, "ingestion_runs")
	v.SetDefault(KeySQLitePath, "./data/ingestion.db")
	v.SetDefault(KeyServerPort, 8080)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogEncoding, "json")
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return FromViper(NewViper())
}

// FromViper builds and validates a Config from an already populated viper
// instance. Missing required settings are a fatal startup error.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ObjectStore: ObjectStoreConfig{
			Type:            strings.ToLower(v.GetString(KeyObjectStoreType)),
			Bucket:          strings.TrimSpace(v.GetString(KeyBucket)),
			ConfigFile:      strings.TrimSpace(v.GetString(KeyConfigFile)),
			CredentialsFile: v.GetString(KeyCredentialsFile),
			Region:          v.GetString(KeyAWSRegion),
			Endpoint:        v.GetString(KeyS3Endpoint),
		},
		Storage: StorageConfig{
			Type:        strings.ToLower(v.GetString(KeyStorageType)),
			Region:      v.GetString(KeyAWSRegion),
			TableName:   v.GetString(KeyTableName),
			Endpoint:    v.GetString(KeyDynamoEndpoint),
			MongoDBURI:  v.GetString(KeyMongoDBURI),
			PostgresURI: v.GetString(KeyPostgresURI),
			SQLitePath:  v.GetString(KeySQLitePath),
		},
		Ingestion: IngestionConfig{
			JobName:      v.GetString(KeyJobName),
			CursorPolicy: strings.ToLower(v.GetString(KeyCursorPolicy)),
		},
		Source: SourceConfig{
			APIURL:            strings.TrimRight(v.GetString(KeyAPIURL), "/"),
			TokenURL:          v.GetString(KeyTokenURL),
			Timeout:           v.GetDuration(KeyAPITimeout),
			PageSize:          v.GetInt(KeyPageSize),
			MaxPages:          v.GetInt(KeyMaxPages),
			RequestsPerSecond: v.GetFloat64(KeyRequestsPerSec),
		},
		Warehouse: WarehouseConfig{
			CredentialsFile: v.GetString(KeyCredentialsFile),
			WaitForJob:      v.GetBool(KeyWarehouseWait),
		},
		Archive: ArchiveConfig{
			Compression: strings.ToLower(v.GetString(KeyArchiveCompress)),
		},
		Server: ServerConfig{
			Port: v.GetInt(KeyServerPort),
		},
		Log: LogConfig{
			Level:    v.GetString(KeyLogLevel),
			Encoding: v.GetString(KeyLogEncoding),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and enumerated values.
func (c *Config) Validate() error {
	var missing []string
	if c.ObjectStore.Bucket == "" {
		missing = append(missing, strings.ToUpper(KeyBucket))
	}
	if c.ObjectStore.ConfigFile == "" {
		missing = append(missing, strings.ToUpper(KeyConfigFile))
	}
	if len(missing) > 0 {
		return ingesterr.New(ingesterr.KindMissingConfiguration, "expected environment variables are missing").
			WithDetail("missing", missing)
	}

	switch c.Ingestion.CursorPolicy {
	case CursorPolicyFetchEnd, CursorPolicyLatestActivity:
	default:
		return ingesterr.Newf(ingesterr.KindMissingConfiguration, "unsupported cursor policy: %s", c.Ingestion.CursorPolicy)
	}

	switch c.Archive.Compression {
	case "none", "gzip":
	default:
		return ingesterr.Newf(ingesterr.KindMissingConfiguration, "unsupported archive compression: %s", c.Archive.Compression)
	}

	if c.Source.PageSize <= 0 {
		return ingesterr.Newf(ingesterr.KindMissingConfiguration, "page size must be positive, got %d", c.Source.PageSize)
	}
	if c.Source.Timeout <= 0 {
		return ingesterr.Newf(ingesterr.KindMissingConfiguration, "api timeout must be positive, got %s", c.Source.Timeout)
	}
	return nil
}
