package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names an optional YAML file of KEY: value pairs. Environment
// variables override values from the file.
const ConfigFileEnv = "TASKFLOW_CONFIG_FILE"

type Config struct {
	HTTP         HTTPConfig
	DatabaseURL  string
	Store        StoreConfig
	Auth         AuthConfig
	AuditLogFile string
	LogLevel     string
	Tracing      TracingConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	File    string
	Latency time.Duration
}

type AuthConfig struct {
	BootstrapName     string
	BootstrapEmail    string
	BootstrapPassword string
	PasswordPepper    string
	BcryptCost        int
}

type TracingConfig struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
}

func Load() (Config, error) {
	src, err := newSource(os.Getenv(ConfigFileEnv))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            src.getEnv("HTTP_ADDR", ":8080"),
			ReadTimeout:     time.Duration(src.getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(src.getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(src.getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		DatabaseURL: src.getEnv("DATABASE_URL", ""),
		Store: StoreConfig{
			File:    src.getEnv("TASKFLOW_STORE_FILE", "./data/taskflow.json"),
			Latency: time.Duration(src.getEnvInt("STORE_LATENCY_MS", 0)) * time.Millisecond,
		},
		Auth: AuthConfig{
			BootstrapName:     src.getEnv("AUTH_BOOTSTRAP_NAME", "Demo User"),
			BootstrapEmail:    src.getEnv("AUTH_BOOTSTRAP_EMAIL", "demo@example.com"),
			BootstrapPassword: src.getEnv("AUTH_BOOTSTRAP_PASSWORD", "password"),
			PasswordPepper:    src.getEnv("AUTH_PASSWORD_PEPPER", "change-me-in-production"),
			BcryptCost:        src.getEnvInt("AUTH_BCRYPT_COST", 10),
		},
		AuditLogFile: src.getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
		LogLevel:     src.getEnv("LOG_LEVEL", "info"),
		Tracing: TracingConfig{
			ServiceName: src.getEnv("OTEL_SERVICE_NAME", "taskflow-api"),
			Endpoint:    src.getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    src.getEnv("OTEL_EXPORTER_OTLP_INSECURE", "") == "true",
		},
	}

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" && cfg.Store.File == "" {
		return Config{}, fmt.Errorf("TASKFLOW_STORE_FILE must not be empty when DATABASE_URL is unset")
	}
	if cfg.Store.Latency < 0 {
		return Config{}, fmt.Errorf("STORE_LATENCY_MS must be >= 0")
	}
	if cfg.Auth.BootstrapEmail != "" && cfg.Auth.BootstrapPassword == "" {
		return Config{}, fmt.Errorf("AUTH_BOOTSTRAP_PASSWORD must not be empty")
	}
	if cfg.Auth.PasswordPepper == "" {
		return Config{}, fmt.Errorf("AUTH_PASSWORD_PEPPER must not be empty")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return Config{}, fmt.Errorf("AUTH_BCRYPT_COST must be between 4 and 31")
	}

	return cfg, nil
}

type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	if path == "" {
		return source{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("read %s: %w", ConfigFileEnv, err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(b, &values); err != nil {
		return source{}, fmt.Errorf("parse %s: %w", ConfigFileEnv, err)
	}
	file := make(map[string]string, len(values))
	for k, v := range values {
		file[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return source{file: file}, nil
}

func (s source) lookup(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val, true
	}
	val, ok := s.file[key]
	return val, ok && val != ""
}

func (s source) getEnv(key, fallback string) string {
	val, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	return val
}

func (s source) getEnvInt(key string, fallback int) int {
	val, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
