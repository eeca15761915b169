// Package config loads barolog settings.
//
// Values are layered, lowest precedence first: built-in defaults, an
// optional config.yaml in the data directory (or an explicit file), a .env
// file, and BAROLOG_* environment variables. Nested keys map to env names
// by replacing dots with underscores, so sync.batch_size is read from
// BAROLOG_SYNC_BATCH_SIZE.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/barolog/barolog/internal/cloud"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "BAROLOG"

// Config is the full application configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir"`
	Database  string          `mapstructure:"database" yaml:"database"`
	Session   string          `mapstructure:"session" yaml:"session"`
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	Recorder  RecorderConfig  `mapstructure:"recorder" yaml:"recorder"`
	Sensor    SensorConfig    `mapstructure:"sensor" yaml:"sensor"`
	Cloud     CloudConfig     `mapstructure:"cloud" yaml:"cloud"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
	Influx    InfluxConfig    `mapstructure:"influx" yaml:"influx"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// DeviceConfig controls this device's identity.
type DeviceConfig struct {
	// Identity is the file holding the generated device id.
	Identity string `mapstructure:"identity" yaml:"identity"`
	// Name overrides the hostname as the device name.
	Name string `mapstructure:"name" yaml:"name"`
}

// RecorderConfig controls the reading loop.
type RecorderConfig struct {
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
	SyncEvery      int           `mapstructure:"sync_every" yaml:"sync_every"`
	RetentionHours int           `mapstructure:"retention_hours" yaml:"retention_hours"`
}

// SensorConfig selects where readings come from.
type SensorConfig struct {
	// Source is "simulated" or "mqtt".
	Source string     `mapstructure:"source" yaml:"source"`
	Seed   uint64     `mapstructure:"seed" yaml:"seed"`
	MQTT   MQTTConfig `mapstructure:"mqtt" yaml:"mqtt"`
}

// MQTTConfig configures the MQTT sensor source.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	QoS      int    `mapstructure:"qos" yaml:"qos"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// CloudConfig selects and configures the cloud replica backend.
type CloudConfig struct {
	Backend   string   `mapstructure:"backend" yaml:"backend"`
	Path      string   `mapstructure:"path" yaml:"path"`
	URL       string   `mapstructure:"url" yaml:"url"`
	AuthToken string   `mapstructure:"auth_token" yaml:"auth_token"`
	S3        S3Config `mapstructure:"s3" yaml:"s3"`
}

// S3Config mirrors cloud.S3Config with config tags.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	Concurrency     int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// SyncConfig controls the sync engine.
type SyncConfig struct {
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// DashboardConfig controls the dashboard server.
type DashboardConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	SinceHours     int      `mapstructure:"since_hours" yaml:"since_hours"`
}

// InfluxConfig configures the InfluxDB exporter.
type InfluxConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Token  string `mapstructure:"token" yaml:"token"`
	Org    string `mapstructure:"org" yaml:"org"`
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	// File is the log file path. Empty logs to stderr only.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit config file. It must exist when set.
	ConfigFile string

	// EnvFile is the dotenv file to load. Default: ".env"; a missing file
	// is ignored.
	EnvFile string

	// DataDir overrides the default data directory.
	DataDir string
}

// DefaultDataDir returns ~/.barolog, or .barolog when the home directory is
// unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".barolog"
	}
	return filepath.Join(home, ".barolog")
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("database", "")
	v.SetDefault("session", "")

	v.SetDefault("device.identity", "")
	v.SetDefault("device.name", "")

	v.SetDefault("recorder.interval", 2*time.Second)
	v.SetDefault("recorder.sync_every", 10)
	v.SetDefault("recorder.retention_hours", 0)

	v.SetDefault("sensor.source", "simulated")
	v.SetDefault("sensor.seed", 0)
	v.SetDefault("sensor.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("sensor.mqtt.topic", "barolog/pressure")
	v.SetDefault("sensor.mqtt.client_id", "")
	v.SetDefault("sensor.mqtt.qos", 1)
	v.SetDefault("sensor.mqtt.username", "")
	v.SetDefault("sensor.mqtt.password", "")

	v.SetDefault("cloud.backend", cloud.BackendSQLite)
	v.SetDefault("cloud.path", "")
	v.SetDefault("cloud.url", "")
	v.SetDefault("cloud.auth_token", "")
	v.SetDefault("cloud.s3.bucket", "")
	v.SetDefault("cloud.s3.region", "us-east-1")
	v.SetDefault("cloud.s3.endpoint", "")
	v.SetDefault("cloud.s3.access_key_id", "")
	v.SetDefault("cloud.s3.secret_access_key", "")
	v.SetDefault("cloud.s3.prefix", "")
	v.SetDefault("cloud.s3.use_path_style", false)
	v.SetDefault("cloud.s3.concurrency", 8)

	v.SetDefault("sync.batch_size", cloud.MaxBatchSize)

	v.SetDefault("dashboard.host", "localhost")
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("dashboard.allowed_origins", []string{})
	v.SetDefault("dashboard.since_hours", 24)

	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
}

// Load reads the configuration.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = os.Getenv(EnvPrefix + "_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	v := viper.New()
	setDefaults(v, dataDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dataDir)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	cfg.File = v.ConfigFileUsed()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths fills file locations left empty with paths in DataDir.
func (c *Config) resolvePaths() {
	if c.Database == "" {
		c.Database = filepath.Join(c.DataDir, "barolog.db")
	}
	if c.Session == "" {
		c.Session = filepath.Join(c.DataDir, "session.toml")
	}
	if c.Device.Identity == "" {
		c.Device.Identity = filepath.Join(c.DataDir, "device.toml")
	}
	if c.Cloud.Backend == cloud.BackendSQLite && c.Cloud.Path == "" {
		c.Cloud.Path = filepath.Join(c.DataDir, "cloud.db")
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Recorder.Interval <= 0 {
		return fmt.Errorf("recorder.interval must be positive (got %s)", c.Recorder.Interval)
	}
	if c.Recorder.SyncEvery < 0 {
		return fmt.Errorf("recorder.sync_every cannot be negative (got %d)", c.Recorder.SyncEvery)
	}
	if c.Sync.BatchSize <= 0 || c.Sync.BatchSize > cloud.MaxBatchSize {
		return fmt.Errorf("sync.batch_size must be in 1..%d (got %d)", cloud.MaxBatchSize, c.Sync.BatchSize)
	}
	switch c.Sensor.Source {
	case "simulated":
	case "mqtt":
		if c.Sensor.MQTT.Topic == "" {
			return fmt.Errorf("sensor.mqtt.topic is required for the mqtt source")
		}
	default:
		return fmt.Errorf("unknown sensor.source %q (want simulated or mqtt)", c.Sensor.Source)
	}
	switch c.Cloud.Backend {
	case cloud.BackendMemory, cloud.BackendSQLite:
	case cloud.BackendLibSQL:
		if c.Cloud.URL == "" {
			return fmt.Errorf("cloud.url is required for the libsql backend")
		}
	case cloud.BackendS3:
		if c.Cloud.S3.Bucket == "" {
			return fmt.Errorf("cloud.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown cloud.backend %q", c.Cloud.Backend)
	}
	return nil
}

// CloudConfig converts the settings into a cloud.Config.
func (c *Config) CloudConfig() cloud.Config {
	return cloud.Config{
		Backend:   c.Cloud.Backend,
		Path:      c.Cloud.Path,
		URL:       c.Cloud.URL,
		AuthToken: c.Cloud.AuthToken,
		S3: cloud.S3Config{
			Bucket:          c.Cloud.S3.Bucket,
			Region:          c.Cloud.S3.Region,
			Endpoint:        c.Cloud.S3.Endpoint,
			AccessKeyID:     c.Cloud.S3.AccessKeyID,
			SecretAccessKey: c.Cloud.S3.SecretAccessKey,
			Prefix:          c.Cloud.S3.Prefix,
			UsePathStyle:    c.Cloud.S3.UsePathStyle,
			Concurrency:     c.Cloud.S3.Concurrency,
		},
	}
}

const masked = "********"

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	out.Dashboard.AllowedOrigins = append([]string(nil), c.Dashboard.AllowedOrigins...)
	for _, s := range []*string{
		&out.Cloud.AuthToken,
		&out.Cloud.S3.SecretAccessKey,
		&out.Sensor.MQTT.Password,
		&out.Influx.Token,
	} {
		if *s != "" {
			*s = masked
		}
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}
