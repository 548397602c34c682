package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for both the API and worker processes.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Queues    QueuesConfig    `mapstructure:"queues"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type LedgerConfig struct {
	ErrorLogLimit int `mapstructure:"error_log_limit"`
}

// QueuesConfig carries per-domain queue tuning. Every domain queue shares the
// same shape; only the values differ.
type QueuesConfig struct {
	DealEnrichment     QueueConfig `mapstructure:"deal_enrichment"`
	BuyerEnrichment    QueueConfig `mapstructure:"buyer_enrichment"`
	CriteriaExtraction QueueConfig `mapstructure:"criteria_extraction"`
	FitScoring         QueueConfig `mapstructure:"fit_scoring"`
	GuideGeneration    QueueConfig `mapstructure:"guide_generation"`
}

type QueueConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseBackoff   time.Duration `mapstructure:"base_backoff"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
	ZombieTimeout time.Duration `mapstructure:"zombie_timeout"`
}

type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type SweeperConfig struct {
	ReclaimSpec string `mapstructure:"reclaim_spec"` // cron spec for zombie reclamation
	AdmitSpec   string `mapstructure:"admit_spec"`   // cron spec for fallback admission pass
}

type ProvidersConfig struct {
	Search     SearchProviderConfig     `mapstructure:"search"`
	Extraction ExtractionProviderConfig `mapstructure:"extraction"`
}

type SearchProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ExtractionProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// Load reads configuration from file and environment.
// Parameters:
//   - configPath: explicit config file path; empty uses the default search path.
// Returns:
//   - *Config: populated configuration.
//   - error: non-nil if reading or unmarshaling fails.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("providers.search.api_key", "SERPER_API_KEY")
	v.BindEnv("providers.extraction.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("providers.extraction.base_url", "OPENROUTER_BASE_URL")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/nexus.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("ledger.error_log_limit", 50)

	for _, q := range []string{"deal_enrichment", "buyer_enrichment", "criteria_extraction", "fit_scoring", "guide_generation"} {
		v.SetDefault("queues."+q+".max_attempts", 3)
		v.SetDefault("queues."+q+".base_backoff", "1m")
		v.SetDefault("queues."+q+".max_backoff", "30m")
		v.SetDefault("queues."+q+".zombie_timeout", "10m")
	}

	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.poll_interval", "2s")

	v.SetDefault("sweeper.reclaim_spec", "*/2 * * * *")
	v.SetDefault("sweeper.admit_spec", "* * * * *")

	v.SetDefault("providers.search.base_url", "https://google.serper.dev")
	v.SetDefault("providers.search.timeout", "30s")
	v.SetDefault("providers.extraction.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("providers.extraction.model", "openai/gpt-4o-mini")
	v.SetDefault("providers.extraction.timeout", "60s")

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "deal-guides")
	v.SetDefault("storage.region", "us-east-1")
}
