package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("forecaster", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "PLUGCAST_TEST_VAR",
			defaultValue: "default",
			envValue:     "from-env",
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "PLUGCAST_NONEXISTENT_VAR",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvNumbers(t *testing.T) {
	t.Setenv("PLUGCAST_INT", "42")
	t.Setenv("PLUGCAST_BAD_INT", "forty-two")
	t.Setenv("PLUGCAST_INT64", "1048576")
	t.Setenv("PLUGCAST_FLOAT", "0.75")
	t.Setenv("PLUGCAST_BAD_FLOAT", "high")
	t.Setenv("PLUGCAST_DURATION", "10m")
	t.Setenv("PLUGCAST_BAD_DURATION", "soon")
	t.Setenv("PLUGCAST_BOOL", "1")

	if got := getEnvInt("PLUGCAST_INT", 10); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("PLUGCAST_BAD_INT", 10); got != 10 {
		t.Errorf("getEnvInt(invalid) = %d, want default 10", got)
	}
	if got := getEnvInt64("PLUGCAST_INT64", 1); got != 1<<20 {
		t.Errorf("getEnvInt64() = %d, want 1048576", got)
	}
	if got := getEnvFloat("PLUGCAST_FLOAT", 0.6); got != 0.75 {
		t.Errorf("getEnvFloat() = %f, want 0.75", got)
	}
	if got := getEnvFloat("PLUGCAST_BAD_FLOAT", 0.6); got != 0.6 {
		t.Errorf("getEnvFloat(invalid) = %f, want default 0.6", got)
	}
	if got := getEnvDuration("PLUGCAST_DURATION", time.Minute); got != 10*time.Minute {
		t.Errorf("getEnvDuration() = %v, want 10m", got)
	}
	if got := getEnvDuration("PLUGCAST_BAD_DURATION", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration(invalid) = %v, want default 1m", got)
	}
	if got := getEnvBool("PLUGCAST_BOOL", false); !got {
		t.Error("getEnvBool() = false, want true")
	}
	if got := getEnvBool("PLUGCAST_UNSET_BOOL", true); !got {
		t.Error("getEnvBool(unset) = false, want default true")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Mode != ModeServe {
		t.Errorf("Mode = %q, want serve", cfg.Mode)
	}
	if cfg.Listen != ":8081" {
		t.Errorf("Listen = %q, want :8081", cfg.Listen)
	}
	if cfg.GRPCListen != ":8082" {
		t.Errorf("GRPCListen = %q, want :8082", cfg.GRPCListen)
	}
	if cfg.LearningRate != 0.05 || cfg.Iterations != 3000 || cfg.L2 != 0.01 {
		t.Errorf("model config = %+v", cfg.ModelConfig())
	}
	if cfg.Threshold != 0.6 {
		t.Errorf("Threshold = %f, want 0.6", cfg.Threshold)
	}
	if cfg.Storage != "memory" {
		t.Errorf("Storage = %q, want memory", cfg.Storage)
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("CacheTTL = %v, want 30m", cfg.CacheTTL)
	}
	if cfg.Interval != 5*time.Minute {
		t.Errorf("Interval = %v, want 5m", cfg.Interval)
	}
	if cfg.StaleAfter() != 10*time.Minute {
		t.Errorf("StaleAfter() = %v, want 10m", cfg.StaleAfter())
	}
	if cfg.MaxUploadBytes != 32<<20 {
		t.Errorf("MaxUploadBytes = %d, want 32 MiB", cfg.MaxUploadBytes)
	}
	if cfg.LogFormat != "text" || cfg.LogLevel != "info" {
		t.Errorf("log = %s/%s, want text/info", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.TLS.Enabled {
		t.Error("TLS enabled by default")
	}
}

func TestParse_CustomValues(t *testing.T) {
	t.Setenv("ADAPTER_URL", "http://prometheus:9090")
	t.Setenv("ADAPTER_QUERY", "from-env")

	cfg, err := Parse(newFlagSet(), []string{
		"-mode=watch",
		"-resource=plug-17",
		"-adapter=prometheus",
		"-adapter-opt=query=plug_occupied{plug=\"17\"}",
		"-listen=:9090",
		"-learning-rate=0.1",
		"-iterations=500",
		"-l2=0",
		"-threshold=0.75",
		"-interval=1m",
		"-window=168h",
		"-log-format=json",
		"-log-level=debug",
	})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Mode != ModeWatch || cfg.Resource != "plug-17" || cfg.Adapter != "prometheus" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AdapterConfig["url"] != "http://prometheus:9090" {
		t.Errorf("AdapterConfig[url] = %q", cfg.AdapterConfig["url"])
	}
	if cfg.AdapterConfig["query"] != `plug_occupied{plug="17"}` {
		t.Errorf("AdapterConfig[query] = %q, flag should override env", cfg.AdapterConfig["query"])
	}

	opts := cfg.ForecastOptions()
	if opts.Threshold != 0.75 || opts.Model.LearningRate != 0.1 || opts.Model.Iterations != 500 || opts.Model.L2 != 0 {
		t.Errorf("ForecastOptions() = %+v", opts)
	}
	if cfg.Window != 168*time.Hour {
		t.Errorf("Window = %v, want 168h", cfg.Window)
	}
	if cfg.LogFormat != "json" || cfg.LogLevel != "debug" {
		t.Errorf("log = %s/%s", cfg.LogFormat, cfg.LogLevel)
	}
}

func TestParse_EnvFallback(t *testing.T) {
	t.Setenv("MODE", "batch")
	t.Setenv("INPUT_FOLDER", "/in")
	t.Setenv("OUTPUT_FOLDER", "/out")
	t.Setenv("THRESHOLD", "0.5")

	cfg, err := Parse(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Mode != ModeBatch || cfg.InputFolder != "/in" || cfg.OutputFolder != "/out" || cfg.Threshold != 0.5 {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg, err = Parse(newFlagSet(), []string{"-threshold=0.9"})
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Threshold != 0.9 {
		t.Errorf("Threshold = %f, flag should win over env", cfg.Threshold)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad mode", []string{"-mode=train"}, "invalid mode"},
		{"batch without folders", []string{"-mode=batch"}, "batch mode requires"},
		{"batch without output", []string{"-mode=batch", "-input-folder=/in"}, "batch mode requires"},
		{"watch without resource", []string{"-mode=watch"}, "requires -resource"},
		{"watch bad resource", []string{"-mode=watch", "-resource=plug/1"}, "invalid resource name"},
		{"watch zero interval", []string{"-mode=watch", "-resource=p1", "-interval=0s"}, "interval must be > 0"},
		{"threshold above one", []string{"-threshold=1.5"}, "threshold"},
		{"negative learning rate", []string{"-learning-rate=-1"}, "learning rate"},
		{"negative l2", []string{"-l2=-0.1"}, "l2"},
		{"bad storage", []string{"-storage=etcd"}, "invalid storage"},
		{"zero ttl", []string{"-cache-ttl=0s"}, "cache-ttl"},
		{"zero upload", []string{"-max-upload-bytes=0"}, "max-upload-bytes"},
		{"tls without cert", []string{"-tls-enabled"}, "cert/key"},
		{"bad adapter opt", []string{"-adapter-opt=novalue"}, "key=value"},
		{"unknown flag", []string{"-horizon=1h"}, "horizon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(newFlagSet(), tt.args)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseAdapterConfig(t *testing.T) {
	environ := []string{
		"PATH=/usr/bin",
		"ADAPTER_URL=http://api/history?x=1",
		"ADAPTER_TIMESTAMP_PATH=data.#.ts",
		"ADAPTER_LABEL_PATH=data.#.occupied",
		"ADAPTER_=ignored",
		"ADAPTER_DSN=postgres://u:p@db/plugs?sslmode=disable",
	}

	got := parseAdapterConfig(environ)

	want := map[string]string{
		"url":           "http://api/history?x=1",
		"timestampPath": "data.#.ts",
		"labelPath":     "data.#.occupied",
		"dsn":           "postgres://u:p@db/plugs?sslmode=disable",
	}
	if len(got) != len(want) {
		t.Errorf("got %d keys, want %d: %v", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("config[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"URL":              "url",
		"TIMESTAMP_PATH":   "timestampPath",
		"TIMESTAMP_FORMAT": "timestampFormat",
		"TEMPLATE_VARS":    "templateVars",
		"A__B":             "aB",
		"":                 "",
	}

	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}
	if err := LoadEnvFile(""); err != nil {
		t.Errorf("empty path: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	content := "PLUGCAST_DOTENV_VALUE=from-file\nPLUGCAST_DOTENV_KEEP=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PLUGCAST_DOTENV_KEEP", "from-env")
	t.Setenv("PLUGCAST_DOTENV_VALUE", "")
	os.Unsetenv("PLUGCAST_DOTENV_VALUE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error: %v", err)
	}
	if got := os.Getenv("PLUGCAST_DOTENV_VALUE"); got != "from-file" {
		t.Errorf("PLUGCAST_DOTENV_VALUE = %q, want from-file", got)
	}
	if got := os.Getenv("PLUGCAST_DOTENV_KEEP"); got != "from-env" {
		t.Errorf("PLUGCAST_DOTENV_KEEP = %q, existing env must win", got)
	}
}
