package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateCapacity   int      `yaml:"rateCapacity"`
		RateRefill     int      `yaml:"rateRefill"`
	} `yaml:"server"`

	Auth struct {
		APIKeys []string `yaml:"apiKeys"`
	} `yaml:"auth"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | badger
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"` // postgres only
		Path     string `yaml:"path"`    // badger only
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	AI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"ai"`

	Logging LoggingConfig `yaml:"logging"`

	Recon ReconConfig `yaml:"recon"`
}

// LoggingConfig mengatur output logrus. Output "file" pakai rotasi.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"` // stdout | file
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// ToolConfig overrides one adapter's defaults.
type ToolConfig struct {
	Path           string   `yaml:"path"`
	TimeoutSeconds int      `yaml:"timeoutSeconds"`
	Args           []string `yaml:"args"`
}

// ScheduleConfig is one periodic rescan entry.
type ScheduleConfig struct {
	Target  string `yaml:"target"`
	Profile string `yaml:"profile"`
	Cron    string `yaml:"cron"`
}

// DockerConfig applies when the executor is docker.
type DockerConfig struct {
	Network   string            `yaml:"network"`
	Images    map[string]string `yaml:"images"`
	ExtraArgs []string          `yaml:"extraArgs"`
}

type ReconConfig struct {
	TempDir              string                `yaml:"tempDir"`
	OutputBufferMB       int                   `yaml:"outputBufferMB"`
	Executor             string                `yaml:"executor"` // process | docker
	Docker               DockerConfig          `yaml:"docker"`
	Workers              int                   `yaml:"workers"`
	Strict               bool                  `yaml:"strict"`
	ToolTimeoutSeconds   int                   `yaml:"toolTimeoutSeconds"`
	GlobalTimeoutSeconds int                   `yaml:"globalTimeoutSeconds"`
	MaxWebTargets        int                   `yaml:"maxWebTargets"`
	MaxPortTargets       int                   `yaml:"maxPortTargets"`
	Wordlists            struct {
		Web string `yaml:"web"`
		DNS string `yaml:"dns"`
	} `yaml:"wordlists"`
	Tools     map[string]ToolConfig `yaml:"tools"`
	Schedules []ScheduleConfig      `yaml:"schedules"`
}

// Default returns the built-in configuration, no file involved.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	r := &c.Recon
	if r.TempDir == "" {
		r.TempDir = os.TempDir()
	}
	if r.Executor == "" {
		r.Executor = "process"
	}
	if r.OutputBufferMB <= 0 {
		r.OutputBufferMB = 16
	}
	if r.Workers <= 0 {
		r.Workers = runtime.NumCPU()
	}
	if r.ToolTimeoutSeconds <= 0 {
		r.ToolTimeoutSeconds = 600
	}
	if r.GlobalTimeoutSeconds <= 0 {
		r.GlobalTimeoutSeconds = 3600
	}
	if r.MaxWebTargets <= 0 {
		r.MaxWebTargets = 5
	}
	if r.MaxPortTargets <= 0 {
		r.MaxPortTargets = 64
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
