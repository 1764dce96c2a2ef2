package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverPostgres = "pgx"
	DriverDuckDB   = "duckdb"
	DriverSQLite   = "sqlite3"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Table         TableConfig
	Export        ExportConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds connection parameters. DSN wins over the individual
// host/user/password/schema/charset parts when both are set.
type DatabaseConfig struct {
	Driver           string
	DSN              string
	Host             string
	Port             int
	User             string
	Password         string
	Schema           string
	Charset          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxIdleTime  time.Duration
	ConnMaxLifetime  time.Duration
	StatementTimeout time.Duration
}

type TableConfig struct {
	Name     string
	IDColumn string
}

type ExportConfig struct {
	Enabled bool
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("TABLEAPI_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid TABLEAPI_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "TABLEAPI_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "TABLEAPI_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "TABLEAPI_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "TABLEAPI_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "TABLEAPI_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "TABLEAPI_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "TABLEAPI_DB_DSN", &cfg.Database.DSN) },
		func() error { return applyString(lookup, "TABLEAPI_DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "TABLEAPI_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "TABLEAPI_DB_USER", &cfg.Database.User) },
		func() error { return applyString(lookup, "TABLEAPI_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "TABLEAPI_DB_SCHEMA", &cfg.Database.Schema) },
		func() error { return applyString(lookup, "TABLEAPI_DB_CHARSET", &cfg.Database.Charset) },
		func() error { return applyInt(lookup, "TABLEAPI_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "TABLEAPI_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "TABLEAPI_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "TABLEAPI_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error {
			return applyDuration(lookup, "TABLEAPI_DB_STATEMENT_TIMEOUT", &cfg.Database.StatementTimeout)
		},
		func() error { return applyString(lookup, "TABLEAPI_TABLE_NAME", &cfg.Table.Name) },
		func() error { return applyString(lookup, "TABLEAPI_TABLE_ID_COLUMN", &cfg.Table.IDColumn) },
		func() error { return applyBool(lookup, "TABLEAPI_EXPORT_ENABLED", &cfg.Export.Enabled) },
		func() error { return applyString(lookup, "TABLEAPI_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "TABLEAPI_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "TABLEAPI_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error {
			return applyString(lookup, "TABLEAPI_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "TABLEAPI_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "TABLEAPI_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "TABLEAPI_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "TABLEAPI_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "TABLEAPI_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "TABLEAPI_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if !isValidDriver(cfg.Database.Driver) {
		return Config{}, fmt.Errorf("invalid TABLEAPI_DB_DRIVER: %q", cfg.Database.Driver)
	}
	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if !identifierPattern.MatchString(cfg.Table.Name) {
		return Config{}, fmt.Errorf("invalid TABLEAPI_TABLE_NAME: %q", cfg.Table.Name)
	}
	if !identifierPattern.MatchString(cfg.Table.IDColumn) {
		return Config{}, fmt.Errorf("invalid TABLEAPI_TABLE_ID_COLUMN: %q", cfg.Table.IDColumn)
	}
	return cfg, nil
}

// DataSourceName returns the DSN handed to sql.Open. For the pgx driver an
// empty DSN is assembled from the individual connection parameters, and
// stays empty when no host is configured.
func (c DatabaseConfig) DataSourceName() string {
	if c.DSN != "" || c.Driver != DriverPostgres {
		return c.DSN
	}
	if strings.TrimSpace(c.Host) == "" {
		return ""
	}

	host := c.Host
	if c.Port > 0 {
		host = host + ":" + strconv.Itoa(c.Port)
	}
	dsn := url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + c.Schema,
	}
	if c.User != "" {
		if c.Password != "" {
			dsn.User = url.UserPassword(c.User, c.Password)
		} else {
			dsn.User = url.User(c.User)
		}
	}
	query := url.Values{}
	query.Set("sslmode", "disable")
	if charset := pgClientEncoding(c.Charset); charset != "" {
		query.Set("client_encoding", charset)
	}
	dsn.RawQuery = query.Encode()
	return dsn.String()
}

func pgClientEncoding(charset string) string {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "":
		return ""
	case "utf8", "utf-8", "utf8mb4":
		return "UTF8"
	default:
		return strings.ToUpper(charset)
	}
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "tableapi-server"},
		HTTP: HTTPConfig{
			Address:      ":8000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:           DriverPostgres,
			Host:             "127.0.0.1",
			Port:             5432,
			User:             "root",
			Password:         "",
			Schema:           "university",
			Charset:          "utf8",
			MaxOpenConns:     10,
			MaxIdleConns:     10,
			ConnMaxIdleTime:  5 * time.Minute,
			ConnMaxLifetime:  30 * time.Minute,
			StatementTimeout: 30 * time.Second,
		},
		Table: TableConfig{
			Name:     "students",
			IDColumn: "id",
		},
		Export: ExportConfig{
			Enabled: false,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "tableapi",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "exports",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18000"
		cfg.Database.Driver = DriverDuckDB
		cfg.Database.DSN = ""
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func isValidDriver(driver string) bool {
	switch driver {
	case DriverPostgres, DriverDuckDB, DriverSQLite:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
