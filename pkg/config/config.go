package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

// EnvPrefix is prepended to every environment override, e.g. MINTWATCH_DISCORD_TOKEN.
const EnvPrefix = "MINTWATCH"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Discord    DiscordConfig          `mapstructure:"discord"`
	Chains     map[string]ChainConfig `mapstructure:"chains" validate:"required,min=1,dive"`
	RPC        RPCConfig              `mapstructure:"rpc"`
	Tracker    TrackerConfig          `mapstructure:"tracker"`
	Market     MarketConfig           `mapstructure:"market"`
	Assistant  AssistantConfig        `mapstructure:"assistant"`
	Digest     DigestConfig           `mapstructure:"digest"`
	Cooldown   CooldownConfig         `mapstructure:"cooldown"`
	Auth       AuthConfig             `mapstructure:"auth"`
	Monitoring MonitoringConfig       `mapstructure:"monitoring"`
	Logging    LoggingConfig          `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host" default:"0.0.0.0"`
	Port            int           `mapstructure:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" default:"localhost" validate:"required"`
	Port     int    `mapstructure:"port" default:"5432" validate:"min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" default:"mintwatch" validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode" default:"disable"`
}

// DiscordConfig contains bot credentials and chat platform settings
type DiscordConfig struct {
	Token string `mapstructure:"token" validate:"required"`
	// DevGuildID registers commands to one guild instead of globally.
	DevGuildID     string        `mapstructure:"dev_guild_id"`
	OwnerIDs       []string      `mapstructure:"owner_ids"`
	RelayName      string        `mapstructure:"relay_name" default:"mintwatch"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" default:"10s"`
}

// ChainConfig contains per-chain RPC endpoints and polling settings
type ChainConfig struct {
	RPCURLs       []string      `mapstructure:"rpc_urls" validate:"required,min=1,dive,url"`
	PollInterval  time.Duration `mapstructure:"poll_interval" default:"12s"`
	WrappedNative string        `mapstructure:"wrapped_native" validate:"omitempty,eth_addr"`
	ExplorerURL   string        `mapstructure:"explorer_url" default:"https://etherscan.io"`
}

// RPCConfig contains JSON-RPC call settings shared by every chain
type RPCConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout" default:"10s"`
}

// TrackerConfig contains event tracking settings
type TrackerConfig struct {
	SeenCacheSize  int           `mapstructure:"seen_cache_size" default:"10000" validate:"min=1"`
	ReloadInterval time.Duration `mapstructure:"reload_interval" default:"1m"`
}

// MarketConfig contains price and metadata API settings
type MarketConfig struct {
	PrimaryURL      string        `mapstructure:"primary_url" default:"https://api.coingecko.com/api/v3" validate:"url"`
	SecondaryURL    string        `mapstructure:"secondary_url" default:"https://api.coinbase.com" validate:"url"`
	MetadataURL     string        `mapstructure:"metadata_url" validate:"omitempty,url"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout" default:"10s"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" default:"5"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" default:"60s"`
}

// AssistantConfig contains settings for the chat completion API
type AssistantConfig struct {
	BaseURL   string        `mapstructure:"base_url" default:"https://api.openai.com/v1" validate:"url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model" default:"gpt-4o-mini"`
	MaxTokens int           `mapstructure:"max_tokens" default:"200"`
	Timeout   time.Duration `mapstructure:"timeout" default:"10s"`
}

// DigestConfig contains daily digest settings
type DigestConfig struct {
	DefaultWindowHours int `mapstructure:"default_window_hours" default:"24" validate:"min=1,max=168"`
}

// CooldownConfig contains per-user command rate limits
type CooldownConfig struct {
	PerMinute float64       `mapstructure:"per_minute" default:"6"`
	Burst     int           `mapstructure:"burst" default:"2" validate:"min=1"`
	IdleTTL   time.Duration `mapstructure:"idle_ttl" default:"10m"`
	MaxUsers  int           `mapstructure:"max_users" default:"10000" validate:"min=1"`
}

// AuthConfig contains ops API authentication settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer" default:"mintwatch"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled" default:"true"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path" default:"stdout"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" default:"100"`
	MaxBackups int    `mapstructure:"max_backups" default:"5"`
	MaxAgeDays int    `mapstructure:"max_age_days" default:"28"`
	Compress   bool   `mapstructure:"compress" default:"true"`
}

// secrets are usually provided through the environment only, so viper has to
// know about them before AutomaticEnv can resolve them.
var envKeys = []string{
	"discord.token",
	"database.user",
	"database.password",
	"database.host",
	"market.api_key",
	"assistant.api_key",
	"auth.jwt_secret",
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// map values are not reached by defaults.Set before unmarshal
	for name, c := range cfg.Chains {
		if err := defaults.Set(&c); err != nil {
			return nil, fmt.Errorf("failed to apply defaults for chain %s: %w", name, err)
		}
		cfg.Chains[name] = c
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	for name := range cfg.Chains {
		if _, ok := chain.Parse(name); !ok {
			return fmt.Errorf("chains.%s is not a supported chain", name)
		}
	}
	return nil
}

// ChainIDs returns the configured chains in their canonical form.
func (c *Config) ChainIDs() map[chain.ID]ChainConfig {
	out := make(map[chain.ID]ChainConfig, len(c.Chains))
	for name, cc := range c.Chains {
		id, _ := chain.Parse(name)
		out[id] = cc
	}
	return out
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
