package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "./config/local.yaml"

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"local"`
	Logger     Logger     `yaml:"logger"`
	Tracing    Tracing    `yaml:"tracing"`
	HTTP       HTTP       `yaml:"http"`
	Postgres   PG         `yaml:"postgres"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	Catalog    Catalog    `yaml:"catalog"`
	Order      Order      `yaml:"order"`
	Reconciler Reconciler `yaml:"reconciler"`
	Auth       Auth       `yaml:"auth"`
	Limiter    Limiter    `yaml:"limiter"`
}

type Logger struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint" env:"TRACING_ENDPOINT" env-default:"localhost:4318"`
	SampleRatio float64 `yaml:"sample_ratio" env:"TRACING_SAMPLE_RATIO" env-default:"1"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:":9002"`
}

type PG struct {
	URL      string `yaml:"url" env:"DB_URL"`
	MaxConns int32  `yaml:"max_conns" env-default:"10"`
	MinConns int32  `yaml:"min_conns" env-default:"2"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" env-default:"15s"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"10m"`
}

type Kafka struct {
	Brokers      []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID      string        `yaml:"group_id" env:"KAFKA_GROUP_ID"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env-default:"2s"`
}

type Catalog struct {
	URL            string        `yaml:"url" env:"CATALOG_SERVICE_URL" env-default:"http://localhost:9001"`
	Timeout        time.Duration `yaml:"timeout" env:"CATALOG_TIMEOUT" env-default:"3s"`
	MaxAttempts    uint64        `yaml:"max_attempts" env-default:"3"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env-default:"100ms"`
}

type Order struct {
	MaxQuantity int `yaml:"max_quantity" env:"ORDER_MAX_QUANTITY" env-default:"5"`
}

type Reconciler struct {
	Interval  time.Duration `yaml:"interval" env-default:"1m"`
	Grace     time.Duration `yaml:"grace" env-default:"5m"`
	BatchSize int           `yaml:"batch_size" env-default:"50"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"20"`
	Expiration time.Duration `yaml:"expiration" env-default:"5s"`
}

func (c *Config) LoggerConfig(service string) LoggerConfig {
	return LoggerConfig{
		Level:   c.Logger.Level,
		Env:     c.Env,
		Service: service,
	}
}

func MustLoad() *Config {
	configPath := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
