package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PROGRESS_SYNC_PRIMARY_BASE_URL.
const EnvPrefix = "PROGRESS_SYNC"

// Keys without a useful default are still registered so that AutomaticEnv
// overrides reach Unmarshal.
var envOnlyKeys = []string{
	"primary.base_url",
	"primary.mysql.host",
	"primary.mysql.user",
	"primary.mysql.password",
	"primary.mysql.database",
	"secondary.firebase.base_url",
	"secondary.firebase.auth_token",
	"secondary.s3.bucket",
	"secondary.s3.endpoint",
	"secondary.s3.access_key_id",
	"secondary.s3.secret_access_key",
	"secondary.s3.use_path_style",
	"connectivity.check_url",
	"server.auth_token",
}

func setDefaults(v *viper.Viper) {
	for _, key := range envOnlyKeys {
		v.SetDefault(key, "")
	}

	v.SetDefault("primary.type", StoreHTTP)
	v.SetDefault("primary.save_path", "/save.php")
	v.SetDefault("primary.load_path", "/load.php")
	v.SetDefault("primary.timeout", "10s")
	v.SetDefault("primary.mysql.port", 3306)

	v.SetDefault("secondary.type", StoreFirebase)
	v.SetDefault("secondary.firebase.timeout", "10s")
	v.SetDefault("secondary.s3.region", "us-east-1")
	v.SetDefault("secondary.s3.prefix", "saves/")

	v.SetDefault("queue.path", "progress-sync.db")
	v.SetDefault("queue.slot", "offline_queue")
	v.SetDefault("queue.max_attempts", 3)

	v.SetDefault("connectivity.check_interval", "15s")
	v.SetDefault("connectivity.check_timeout", "3s")
	v.SetDefault("connectivity.assume_online", true)

	v.SetDefault("sync.background_timeout", "30s")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "@every 5m")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// validates the result. A missing file is not an error; defaults and
// environment variables are used instead.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected store types have what they need.
func (c *Config) Validate() error {
	var errs []error

	switch c.Primary.Type {
	case StoreHTTP:
		if c.Primary.BaseURL == "" {
			errs = append(errs, errors.New("primary.base_url is required for http primary"))
		}
	case StoreMySQL:
		if c.Primary.MySQL.Host == "" || c.Primary.MySQL.Database == "" {
			errs = append(errs, errors.New("primary.mysql.host and primary.mysql.database are required for mysql primary"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown primary.type %q", c.Primary.Type))
	}

	switch c.Secondary.Type {
	case StoreFirebase:
		if c.Secondary.Firebase.BaseURL == "" {
			errs = append(errs, errors.New("secondary.firebase.base_url is required for firebase secondary"))
		}
	case StoreS3:
		if c.Secondary.S3.Bucket == "" {
			errs = append(errs, errors.New("secondary.s3.bucket is required for s3 secondary"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown secondary.type %q", c.Secondary.Type))
	}

	if c.Queue.MaxAttempts <= 0 {
		errs = append(errs, errors.New("queue.max_attempts must be positive"))
	}
	if c.Queue.Slot == "" {
		errs = append(errs, errors.New("queue.slot must not be empty"))
	}

	return errors.Join(errs...)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
