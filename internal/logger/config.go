package logger

import (
	"io"
	"os"
	"strconv"
)

// Rotation tunes lumberjack file rotation.
type Rotation struct {
	MaxSize    int  // megabytes before a file is rotated
	MaxBackups int  // rotated files to keep
	MaxAge     int  // days to keep rotated files
	Compress   bool // gzip rotated files
}

// EnvConfig is the full logger configuration read from environment variables.
// It extends Config with environment awareness and file output; outside of
// local the logger also writes a rotated file.
type EnvConfig struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // overrides all writer selection when set
	ServiceName string
	Environment string // local, dev, prod

	LogFile     string
	LogFileOnly bool // suppress stdout when writing a file
	Rotation    Rotation
}

// LoadFromEnv reads the logger environment variables, falling back to the
// service defaults for anything unset.
func LoadFromEnv() *EnvConfig {
	return &EnvConfig{
		Level:       envStr("LOG_LEVEL", "info"),
		Format:      envStr("LOG_FORMAT", "json"),
		ServiceName: envStr("SERVICE_NAME", "market-nexus"),
		Environment: envStr("APP_ENV", "local"),

		LogFile:     envStr("LOG_FILE", "/var/log/market-nexus/app.log"),
		LogFileOnly: envBool("LOG_FILE_ONLY", false),

		Rotation: Rotation{
			MaxSize:    envInt("LOG_MAX_SIZE", 100),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 7),
			MaxAge:     envInt("LOG_MAX_AGE", 30),
			Compress:   envBool("LOG_COMPRESS", true),
		},
	}
}

// ToConfig narrows an EnvConfig to the basic Config.
func (e *EnvConfig) ToConfig() *Config {
	return &Config{
		Level:       e.Level,
		Format:      e.Format,
		Output:      e.Output,
		ServiceName: e.ServiceName,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
