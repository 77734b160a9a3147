// Package config provides configuration parsing for the forecaster.
//
// Values come from, in order of precedence:
//  1. Command-line flags
//  2. Environment variables
//  3. A .env file (ENV_FILE, default ".env"; a missing file is ignored)
//  4. Default values
//
// Adapter-specific settings are read from ADAPTER_* variables and
// -adapter-opt key=value flags into AdapterConfig, e.g. ADAPTER_TIMESTAMP_PATH
// becomes "timestampPath".
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/HatiCode/plugcast/pkg/forecast"
	"github.com/HatiCode/plugcast/pkg/models"
	"github.com/HatiCode/plugcast/pkg/tls"
)

// Run modes.
const (
	ModeServe = "serve"
	ModeBatch = "batch"
	ModeWatch = "watch"
)

const defaultMaxUploadBytes = 32 << 20

// Config holds all forecaster configuration.
type Config struct {
	Mode       string
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string
	TLS        tls.Config

	InputFolder  string
	OutputFolder string

	LearningRate float64
	Iterations   int
	L2           float64
	Threshold    float64

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	Resource      string
	Adapter       string
	AdapterConfig map[string]string
	Interval      time.Duration
	Window        time.Duration

	MaxUploadBytes int64
}

// ParseFlags loads the .env file, parses os.Args and exits on invalid
// configuration.
func ParseFlags() *Config {
	if err := LoadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// LoadEnvFile exports the variables of a dotenv file without overriding
// variables already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Parse registers the forecaster flags on flags, parses args and validates the
// result.
func Parse(flags *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	adapterOpts := map[string]string{}

	flags.StringVar(&cfg.Mode, "mode", getEnv("MODE", ModeServe), "Run mode: serve, batch or watch")
	flags.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8081"), "HTTP listen address")
	flags.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":8082"), "gRPC health listen address (empty disables)")

	flags.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flags.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flags.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Serve HTTP and gRPC over TLS")
	flags.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flags.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flags.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "CA file; when set, peers must present certificates")

	flags.StringVar(&cfg.InputFolder, "input-folder", getEnv("INPUT_FOLDER", ""), "Folder of .txt histories (batch mode)")
	flags.StringVar(&cfg.OutputFolder, "output-folder", getEnv("OUTPUT_FOLDER", ""), "Folder for _pred.json files (batch mode)")

	flags.Float64Var(&cfg.LearningRate, "learning-rate", getEnvFloat("LEARNING_RATE", 0.05), "Gradient descent step size")
	flags.IntVar(&cfg.Iterations, "iterations", getEnvInt("ITERATIONS", 3000), "Maximum gradient descent iterations")
	flags.Float64Var(&cfg.L2, "l2", getEnvFloat("L2", 0.01), "L2 regularization strength")
	flags.Float64Var(&cfg.Threshold, "threshold", getEnvFloat("THRESHOLD", forecast.DefaultThreshold), "Occupancy probability threshold")

	flags.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flags.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flags.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flags.DurationVar(&cfg.CacheTTL, "cache-ttl", getEnvDuration("CACHE_TTL", 30*time.Minute), "Lifetime of cached models and snapshots")

	flags.StringVar(&cfg.Resource, "resource", getEnv("RESOURCE", ""), "Plug or slot to forecast (watch mode)")
	flags.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", "file"), "History adapter: file, http, prometheus, victoriametrics or postgres")
	flags.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 5*time.Minute), "Forecast interval (watch mode)")
	flags.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", 0), "History window handed to the adapter (0 = all)")
	flags.Func("adapter-opt", "Adapter setting as key=value (repeatable, overrides ADAPTER_*)", func(s string) error {
		key, value, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return fmt.Errorf("expected key=value, got %q", s)
		}
		adapterOpts[key] = value
		return nil
	})

	flags.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", getEnvInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes), "Maximum POST /forecast body size")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg.AdapterConfig = parseAdapterConfig(os.Environ())
	for k, v := range adapterOpts {
		cfg.AdapterConfig[k] = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var resourceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]{0,251}[a-zA-Z0-9])?$`)

// Validate checks the configuration for the selected mode.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeServe, ModeBatch, ModeWatch:
	default:
		return fmt.Errorf("invalid mode %q (must be serve, batch, or watch)", c.Mode)
	}

	if err := c.ModelConfig().Validate(); err != nil {
		return err
	}
	if err := forecast.ValidateThreshold(c.Threshold); err != nil {
		return err
	}

	switch c.Storage {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache-ttl must be > 0, got %v", c.CacheTTL)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max-upload-bytes must be > 0, got %d", c.MaxUploadBytes)
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}

	switch c.Mode {
	case ModeBatch:
		if c.InputFolder == "" || c.OutputFolder == "" {
			return errors.New("batch mode requires both -input-folder and -output-folder")
		}
	case ModeWatch:
		if c.Resource == "" {
			return errors.New("watch mode requires -resource")
		}
		if !resourceNameRegex.MatchString(c.Resource) {
			return fmt.Errorf("invalid resource name %q (alphanumeric with dot, dash or underscore, 1-253 chars)", c.Resource)
		}
		if c.Adapter == "" {
			return errors.New("watch mode requires -adapter")
		}
		if c.Interval <= 0 {
			return fmt.Errorf("interval must be > 0, got %v", c.Interval)
		}
		if c.Window < 0 {
			return fmt.Errorf("window cannot be negative, got %v", c.Window)
		}
	}

	return nil
}

// ModelConfig returns the trainer hyperparameters.
func (c *Config) ModelConfig() models.Config {
	return models.Config{
		LearningRate: c.LearningRate,
		Iterations:   c.Iterations,
		L2:           c.L2,
	}
}

// ForecastOptions returns the pipeline options for the configured defaults.
func (c *Config) ForecastOptions() forecast.Options {
	return forecast.Options{
		Model:     c.ModelConfig(),
		Threshold: c.Threshold,
	}
}

// StaleAfter is the age past which a stored snapshot is reported stale.
func (c *Config) StaleAfter() time.Duration {
	return 2 * c.Interval
}

// parseAdapterConfig collects ADAPTER_* variables from environ into a map
// keyed by the lowerCamelCase remainder (ADAPTER_LABEL_PATH → labelPath).
func parseAdapterConfig(environ []string) map[string]string {
	config := make(map[string]string)

	for _, env := range environ {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		suffix, found := strings.CutPrefix(name, "ADAPTER_")
		if !found || suffix == "" {
			continue
		}
		config[toLowerCamelCase(suffix)] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	var b strings.Builder
	for i, part := range strings.Split(strings.ToLower(s), "_") {
		if part == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			part = strings.ToUpper(part[:1]) + part[1:]
		}
		b.WriteString(part)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
