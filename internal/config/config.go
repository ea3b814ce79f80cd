// Package config loads classledger settings from defaults, an optional
// config file, an optional .env file and CLASSLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CLASSLEDGER"

// Config is the resolved process configuration.
type Config struct {
	Env         string        `mapstructure:"env"`
	CascadeMode string        `mapstructure:"cascade_mode" validate:"omitempty,oneof=legacy-partial strict"`
	Storage     StorageConfig `mapstructure:"storage"`
	Blob        BlobConfig    `mapstructure:"blob"`
	HTTP        HTTPConfig    `mapstructure:"http"`
	Log         LogConfig     `mapstructure:"log"`
	Rollbar     RollbarConfig `mapstructure:"rollbar"`
	Trace       TraceConfig   `mapstructure:"trace"`
}

// StorageConfig selects and parameterizes the snapshot slot.
type StorageConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=memory file sqlite postgres redis"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	FilePath      string `mapstructure:"file_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`
	SlotKey       string `mapstructure:"slot_key" validate:"required"`
}

// BlobConfig selects the artifact store used for exports.
type BlobConfig struct {
	Driver            string `mapstructure:"driver" validate:"oneof=memory fs s3"`
	FSRoot            string `mapstructure:"fs_root"`
	S3Bucket          string `mapstructure:"s3_bucket" validate:"required_if=Driver s3"`
	S3Region          string `mapstructure:"s3_region"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3PathStyle       bool   `mapstructure:"s3_path_style"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key"`
}

// HTTPConfig configures the loopback API.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// RollbarConfig enables error reporting when Token is set.
type RollbarConfig struct {
	Token string `mapstructure:"token"`
}

// TraceConfig enables span logging. When File is set every observed
// operation is appended to it as one JSON line.
type TraceConfig struct {
	File string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("cascade_mode", "legacy-partial")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "classledger.db")
	v.SetDefault("storage.file_path", "classledger.json")
	v.SetDefault("storage.postgres_dsn", "postgres://localhost/classledger?sslmode=disable")
	v.SetDefault("storage.redis_addr", "127.0.0.1:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.slot_key", "classledger")
	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.fs_root", "./blobdata")
	v.SetDefault("blob.s3_bucket", "")
	v.SetDefault("blob.s3_region", "us-east-1")
	v.SetDefault("blob.s3_endpoint", "")
	v.SetDefault("blob.s3_path_style", false)
	v.SetDefault("blob.s3_access_key_id", "")
	v.SetDefault("blob.s3_secret_access_key", "")
	v.SetDefault("http.addr", "127.0.0.1:8420")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("rollbar.token", "")
	v.SetDefault("trace.file", "")
}

// Options tune where Load looks for settings.
type Options struct {
	// ConfigFile is read when non-empty; otherwise CLASSLEDGER_CONFIG is consulted.
	ConfigFile string
	// DotEnv is the .env path; empty means ".env" in the working directory.
	// A missing file is ignored.
	DotEnv string
}

// Load resolves the configuration. Precedence, highest first: environment,
// config file, defaults.
func Load(opts Options) (Config, error) {
	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", dotenv, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: stat %s: %w", dotenv, err)
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := opts.ConfigFile
	if file == "" {
		file = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

var validate = validator.New()

// Validate checks driver names and other enumerated settings.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
