// Package config handles configuration for the TTS batch rendering
// engine: engine connection, batching constraints, the REST server and
// logging, loaded from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for the rendering engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Batching BatchingConfig `yaml:"batching"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds REST server configuration.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"TE_SERVER_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"TE_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"TE_SERVER_WRITE_TIMEOUT"`
	EnableCORS   bool          `yaml:"enable_cors" env:"TE_SERVER_ENABLE_CORS"`
}

// EngineConfig holds the connection to the generative executor service.
type EngineConfig struct {
	// URL of the inference server hosting the executor variants.
	URL string `yaml:"url" env:"TE_ENGINE_URL"`
	// RequestTimeout bounds one render call. Sub-batches are not
	// cancellable mid-flight, so this must cover the largest sub-batch.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"TE_ENGINE_REQUEST_TIMEOUT"`
	// MaxOutputTokens bounds autoregressive generation per item.
	MaxOutputTokens int `yaml:"max_output_tokens" env:"TE_ENGINE_MAX_OUTPUT_TOKENS"`
	// Language is passed through to the executor.
	Language string `yaml:"language" env:"TE_ENGINE_LANGUAGE"`
	// WarmupText overrides the built-in warm-up sentence.
	WarmupText string `yaml:"warmup_text" env:"TE_ENGINE_WARMUP_TEXT"`
}

// BatchingConfig holds sub-batch admission constraints.
type BatchingConfig struct {
	// Enabled turns length-based sub-batching on. When false every
	// group runs as a single batch.
	Enabled bool `yaml:"enabled" env:"TE_BATCH_ENABLED"`
	// MinGroupSize gates ratio splits: smaller groups are never split
	// for length disparity alone.
	MinGroupSize int `yaml:"min_group_size" env:"TE_BATCH_MIN_GROUP_SIZE"`
	// MaxRatio is the allowed longest/shortest length ratio.
	MaxRatio float64 `yaml:"max_ratio" env:"TE_BATCH_MAX_RATIO"`
	// MaxCumulativeLength caps summed text length per sub-batch.
	MaxCumulativeLength int `yaml:"max_cumulative_length" env:"TE_BATCH_MAX_CUMULATIVE_LENGTH"`
	// MaxItems explicitly caps items per sub-batch. 0 means unset: the
	// cap is derived from the memory estimator instead.
	MaxItems int `yaml:"max_items" env:"TE_BATCH_MAX_ITEMS"`
	// GroupByContext additionally groups custom-voice items by their
	// group key before batching.
	GroupByContext bool `yaml:"group_by_context" env:"TE_BATCH_GROUP_BY_CONTEXT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"TE_LOG_LEVEL"`
	Format     string `yaml:"format" env:"TE_LOG_FORMAT"`
	Output     string `yaml:"output" env:"TE_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"TE_LOG_FILE_PATH"`
	MaxSize    int    `yaml:"max_size" env:"TE_LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"TE_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"TE_LOG_MAX_AGE"`
}

// DefaultConfig returns a Config with documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   false,
		},
		Engine: EngineConfig{
			URL:             "http://127.0.0.1:7860",
			RequestTimeout:  10 * time.Minute,
			MaxOutputTokens: 2048,
			Language:        "Chinese",
		},
		Batching: BatchingConfig{
			Enabled:             true,
			MinGroupSize:        4,
			MaxRatio:            5.0,
			MaxCumulativeLength: 3000,
			MaxItems:            0,
			GroupByContext:      false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Load loads configuration with precedence:
// defaults < YAML file < environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // 文件不存在时使用默认配置
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

// applyEnvToStruct recursively applies environment variables to struct
// fields tagged with `env`.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set field %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field is not settable")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes on top of defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
