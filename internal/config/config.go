// Package config loads service configuration from defaults, a YAML file and
// CROPCAST_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"cropcast/internal/loader"
	"cropcast/internal/models"
	"cropcast/pkg/database"
)

// Data source kinds
const (
	SourceXLSX     = "xlsx"
	SourcePostgres = "postgres"
)

// Config is the full service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Data      DataConfig      `mapstructure:"data" yaml:"data"`
	Analytics AnalyticsConfig `mapstructure:"analytics" yaml:"analytics"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	Docs         DocsConfig    `mapstructure:"docs" yaml:"docs"`
}

// DocsConfig holds the API documentation page settings
type DocsConfig struct {
	Title     string `mapstructure:"title" yaml:"title"`
	SpecURL   string `mapstructure:"spec_url" yaml:"spec_url"`
	AssetsURL string `mapstructure:"assets_url" yaml:"assets_url"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Database        string        `mapstructure:"database" yaml:"database"`
	SSLMode         string        `mapstructure:"sslmode" yaml:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DataConfig selects where the survey tables come from
type DataConfig struct {
	Source               string `mapstructure:"source" yaml:"source"`
	WorkbookPath         string `mapstructure:"workbook_path" yaml:"workbook_path"`
	CountryYearSheet     string `mapstructure:"country_year_sheet" yaml:"country_year_sheet"`
	ClimateZoneYearSheet string `mapstructure:"climate_zone_year_sheet" yaml:"climate_zone_year_sheet"`
	ClimateZoneSheet     string `mapstructure:"climate_zone_sheet" yaml:"climate_zone_sheet"`
}

// AnalyticsConfig holds engine and cache settings
type AnalyticsConfig struct {
	CacheSize      int     `mapstructure:"cache_size" yaml:"cache_size"`
	DefaultHorizon int     `mapstructure:"default_horizon" yaml:"default_horizon"`
	DefaultWindow  int     `mapstructure:"default_window" yaml:"default_window"`
	DefaultDelta   float64 `mapstructure:"default_delta" yaml:"default_delta"`
	DefaultMetric  string  `mapstructure:"default_metric" yaml:"default_metric"`
}

// Address returns host:port for the HTTP listener
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Postgres converts the section into a database connection config
func (d DatabaseConfig) Postgres() *database.Config {
	return &database.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}

// Sheets returns the workbook sheet layout
func (d DataConfig) Sheets() loader.SheetNames {
	return loader.SheetNames{
		CountryYear:     d.CountryYearSheet,
		ClimateZoneYear: d.ClimateZoneYearSheet,
		ClimateZone:     d.ClimateZoneSheet,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.docs.title", "CropCast API Documentation")
	v.SetDefault("server.docs.spec_url", "/api/docs/openapi.json")
	v.SetDefault("server.docs.assets_url", "https://unpkg.com/swagger-ui-dist@5.10.0")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "cropcast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("logging.level", "info")

	v.SetDefault("data.source", SourceXLSX)
	v.SetDefault("data.workbook_path", "data/GygaAustralia.xlsx")
	v.SetDefault("data.country_year_sheet", "Country Year")
	v.SetDefault("data.climate_zone_year_sheet", "Climate Zone Year")
	v.SetDefault("data.climate_zone_sheet", "Climate zone")

	v.SetDefault("analytics.cache_size", 256)
	v.SetDefault("analytics.default_horizon", 5)
	v.SetDefault("analytics.default_window", 3)
	v.SetDefault("analytics.default_delta", 2.0)
	v.SetDefault("analytics.default_metric", models.ColumnYP)
}

// Load reads configuration from defaults, the optional YAML file at path and
// the environment. Precedence: env > file > defaults. An empty path looks for
// cropcast.yaml in the working directory and ./config, and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CROPCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("cropcast")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate checks the configuration for values the services cannot run with
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Docs.SpecURL == "" || c.Server.Docs.AssetsURL == "" {
		return fmt.Errorf("server.docs.spec_url and server.docs.assets_url must be set")
	}
	switch c.Data.Source {
	case SourceXLSX:
		if c.Data.WorkbookPath == "" {
			return fmt.Errorf("data.workbook_path is required when data.source is %s", SourceXLSX)
		}
	case SourcePostgres:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("database.port %d out of range", c.Database.Port)
		}
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database.host and database.database are required when data.source is %s", SourcePostgres)
		}
	default:
		return fmt.Errorf("data.source %q must be %s or %s", c.Data.Source, SourceXLSX, SourcePostgres)
	}
	if c.Data.CountryYearSheet == "" || c.Data.ClimateZoneYearSheet == "" {
		return fmt.Errorf("data.country_year_sheet and data.climate_zone_year_sheet must be set")
	}
	if c.Analytics.CacheSize < 1 {
		return fmt.Errorf("analytics.cache_size must be positive, got %d", c.Analytics.CacheSize)
	}
	if c.Analytics.DefaultHorizon < 1 {
		return fmt.Errorf("analytics.default_horizon must be >= 1, got %d", c.Analytics.DefaultHorizon)
	}
	if c.Analytics.DefaultWindow < 1 {
		return fmt.Errorf("analytics.default_window must be >= 1, got %d", c.Analytics.DefaultWindow)
	}
	if !models.ValidYieldMetric(c.Analytics.DefaultMetric) {
		return fmt.Errorf("analytics.default_metric %q must be one of %s", c.Analytics.DefaultMetric, strings.Join(models.YieldMetrics, ", "))
	}
	if c.Analytics.DefaultDelta < 0 {
		return fmt.Errorf("analytics.default_delta must be >= 0, got %v", c.Analytics.DefaultDelta)
	}
	return nil
}

// Save writes c as YAML to path, creating parent directories
func Save(c *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
