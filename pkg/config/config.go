package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"3000" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"0s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Logging struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
		Compress   bool   `yaml:"compress" default:"true"`
	} `yaml:"logging"`
	Saxo struct {
		Provider      string        `yaml:"provider" default:"saxobank" validate:"required,excludesall=."`
		ClientID      string        `yaml:"client_id" validate:"required"`
		ClientSecret  string        `yaml:"client_secret" validate:"required"`
		AuthURL       string        `yaml:"auth_url" validate:"required,url"`
		APIBaseURL    string        `yaml:"api_base_url" validate:"required,url"`
		WebSocketHost string        `yaml:"websocket_host" validate:"required"`
		RedirectURL   string        `yaml:"redirect_url" validate:"required,url"`
		RequestRate   float64       `yaml:"request_rate" default:"10"`
		RequestBurst  int           `yaml:"request_burst" default:"20"`
		HTTPTimeout   time.Duration `yaml:"http_timeout" default:"30s"`
		PingInterval  time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"saxo"`
	Tokens struct {
		Store           string        `yaml:"store" default:"file" validate:"oneof=file redis"`
		Dir             string        `yaml:"dir" default:"./data"`
		RefreshInterval time.Duration `yaml:"refresh_interval" default:"10m"`
		RefreshWorkers  int           `yaml:"refresh_workers" default:"4" validate:"gt=0"`
	} `yaml:"tokens"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"saxobridge"`
	} `yaml:"redis"`
	Cache struct {
		SymbolTTL  time.Duration `yaml:"symbol_ttl" default:"24h"`
		MemorySize int           `yaml:"memory_size" default:"5000"`
		Layered    bool          `yaml:"layered"`
	} `yaml:"cache"`
	Stream struct {
		ListenerBuffer int `yaml:"listener_buffer" default:"512" validate:"gt=0"`
	} `yaml:"stream"`
	Archive struct {
		Backend       string        `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
		BatchSize     int           `yaml:"batch_size" default:"500" validate:"gt=0"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"1s"`
		MaxRPS        int           `yaml:"max_rps" default:"50"`
		BufferSize    int           `yaml:"buffer_size" default:"10000" validate:"gt=0"`
		StopTimeout   time.Duration `yaml:"stop_timeout" default:"10s"`
	} `yaml:"archive"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"saxo.ticks"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"saxobridge"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults to raw YAML without validating.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment lookup.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("SAXOBANK_OAUTH_CLIENT_ID", &c.Saxo.ClientID)
	str("SAXOBANK_OAUTH_CLIENT_SECRET", &c.Saxo.ClientSecret)
	str("SAXOBANK_AUTHENTICATION_URL", &c.Saxo.AuthURL)
	str("SAXOBANK_API_BASE_URL", &c.Saxo.APIBaseURL)
	str("SAXOBANK_WEB_SOCKET_URL", &c.Saxo.WebSocketHost)
	str("LOCAL_DATA_CALLBACK_URL", &c.Saxo.RedirectURL)
	str("ARCHIVE_BACKEND", &c.Archive.Backend)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("LOG_LEVEL", &c.Logging.Level)

	if v := getenv("LOCAL_DATA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if p, err := strconv.Atoi(port); ok && err == nil {
			c.Redis.Port = p
		}
	}
	if getenv("DEBUG") == "true" {
		c.Logging.Level = "debug"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Archive.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when archive.backend is kafka")
	}
	return nil
}
