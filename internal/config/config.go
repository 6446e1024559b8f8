package config

import (
	"time"
)

type Config struct {
	Primary      PrimaryConfig      `mapstructure:"primary"`
	Secondary    SecondaryConfig    `mapstructure:"secondary"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// Store types accepted by PrimaryConfig.Type and SecondaryConfig.Type.
const (
	StoreHTTP     = "http"
	StoreMySQL    = "mysql"
	StoreFirebase = "firebase"
	StoreS3       = "s3"
	StoreMemory   = "memory"
)

type PrimaryConfig struct {
	Type     string             `mapstructure:"type"`
	BaseURL  string             `mapstructure:"base_url"`
	SavePath string             `mapstructure:"save_path"`
	LoadPath string             `mapstructure:"load_path"`
	Timeout  time.Duration      `mapstructure:"timeout"`
	MySQL    DatabaseConnection `mapstructure:"mysql"`
}

type DatabaseConnection struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type SecondaryConfig struct {
	Type     string         `mapstructure:"type"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	S3       S3Config       `mapstructure:"s3"`
}

type FirebaseConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type QueueConfig struct {
	Path        string `mapstructure:"path"` // SQLite file; empty keeps the queue in memory
	Slot        string `mapstructure:"slot"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type ConnectivityConfig struct {
	CheckURL      string        `mapstructure:"check_url"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	CheckTimeout  time.Duration `mapstructure:"check_timeout"`
	AssumeOnline  bool          `mapstructure:"assume_online"`
}

type SyncConfig struct {
	BackgroundTimeout time.Duration `mapstructure:"background_timeout"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
