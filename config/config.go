// Package config loads the pipeline parameters shared by the API server and
// the ingestion and training tools.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"predictive-maintenance/models"
)

const (
	DefaultPath          = "params.yaml"
	DefaultModelPath     = "artifacts/maintenance_model.json"
	DefaultServerAddr    = ":8000"
	DefaultRedisAddr     = "localhost:6379"
	DefaultCacheTTL      = 5 * time.Minute
	DefaultSimInterval   = 2 * time.Second
	DefaultRawURL        = "https://archive.ics.uci.edu/ml/machine-learning-databases/00601/ai4i2020.csv"
	DefaultRawPath       = "data/raw/sensor_data.csv"
	DefaultProcessedPath = "data/processed/refined_sensor_data.csv"
)

type Config struct {
	Data       DataConfig       `yaml:"data"`
	Features   FeaturesConfig   `yaml:"features"`
	Model      ModelConfig      `yaml:"model"`
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Simulation SimulationConfig `yaml:"simulation"`
}

type DataConfig struct {
	RawURL        string `yaml:"raw_url"`
	RawPath       string `yaml:"raw_path"`
	ProcessedPath string `yaml:"processed_path"`
}

// FeaturesConfig lists the columns fed to the model, in order.
type FeaturesConfig struct {
	Numerical []string `yaml:"numerical"`
}

// ModelConfig holds the artifact location and training parameters.
type ModelConfig struct {
	Path         string  `yaml:"path"`
	LearningRate float64 `yaml:"learning_rate"`
	Epochs       int     `yaml:"epochs"`
	L2           float64 `yaml:"l2"`
	Threshold    float64 `yaml:"threshold"`
	TestSize     float64 `yaml:"test_size"`
	RandomState  uint64  `yaml:"random_state"`
	// Watch reloads the artifact when it changes on disk.
	Watch bool `yaml:"watch"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type RedisConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

// DatabaseConfig locates the prediction log. An empty Host disables it.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns a postgres connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// SimulationConfig drives the live feed.
type SimulationConfig struct {
	Interval time.Duration `yaml:"interval"`
	Machines []string      `yaml:"machines"`
	Seed     uint64        `yaml:"seed"`
}

// Load reads the YAML file at path, fills defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyEnv(cfg, os.Getenv)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file if one exists. Variables
// already set in the environment win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no .env file, using process environment", "path", path)
		return nil
	}
	return err
}

func defaults() *Config {
	return &Config{
		Data: DataConfig{
			RawURL:        DefaultRawURL,
			RawPath:       DefaultRawPath,
			ProcessedPath: DefaultProcessedPath,
		},
		Features: FeaturesConfig{
			Numerical: append([]string(nil), models.DefaultFeatureColumns...),
		},
		Model: ModelConfig{
			Path:         DefaultModelPath,
			LearningRate: 0.1,
			Epochs:       500,
			L2:           0.001,
			Threshold:    0.5,
			TestSize:     0.2,
			RandomState:  42,
		},
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
			TTL:  DefaultCacheTTL,
		},
		Database: DatabaseConfig{
			Port:    5432,
			Name:    "manufacturing_db",
			User:    "admin",
			SSLMode: "disable",
		},
		Simulation: SimulationConfig{
			Interval: DefaultSimInterval,
			Machines: []string{"machine-1"},
		},
	}
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := getenv("DB_PASS"); v != "" {
		cfg.Database.Password = v
	}
	if v := getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		} else {
			slog.Warn("ignoring invalid DB_PORT", "value", v)
		}
	}
}

func validate(cfg *Config) error {
	if len(cfg.Features.Numerical) == 0 {
		return errors.New("features.numerical must list at least one column")
	}
	if cfg.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if cfg.Model.Threshold <= 0 || cfg.Model.Threshold >= 1 {
		return fmt.Errorf("model.threshold %v is out of range (0, 1)", cfg.Model.Threshold)
	}
	if cfg.Model.TestSize <= 0 || cfg.Model.TestSize >= 1 {
		return fmt.Errorf("model.test_size %v is out of range (0, 1)", cfg.Model.TestSize)
	}
	if cfg.Model.Epochs <= 0 {
		return fmt.Errorf("model.epochs must be positive")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		return fmt.Errorf("database.port %d is out of range [1, 65535]", cfg.Database.Port)
	}
	if cfg.Simulation.Interval <= 0 {
		return errors.New("simulation.interval must be positive")
	}
	if len(cfg.Simulation.Machines) == 0 {
		return errors.New("simulation.machines must not be empty")
	}
	return nil
}
