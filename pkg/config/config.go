package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var (
	config     = viper.New()
	configName = "config"
	configType = "yaml"
)

// OAuthClient holds the application registration for one platform.
// AuthURL, TokenURL and APIBaseURL override the provider defaults and are
// mostly useful against sandboxes.
type OAuthClient struct {
	ClientID     string   `mapstructure:"CLIENT_ID"`
	ClientSecret string   `mapstructure:"CLIENT_SECRET"`
	RedirectURL  string   `mapstructure:"REDIRECT_URL"`
	Scopes       []string `mapstructure:"SCOPES"`
	AuthURL      string   `mapstructure:"AUTH_URL"`
	TokenURL     string   `mapstructure:"TOKEN_URL"`
	APIBaseURL   string   `mapstructure:"API_BASE_URL"`
}

// WebhookSecret is the shared material used to authenticate inbound
// deliveries from one platform.
type WebhookSecret struct {
	AppSecret   string `mapstructure:"APP_SECRET"`
	VerifyToken string `mapstructure:"VERIFY_TOKEN"`
}

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Enable bool   `mapstructure:"ENABLE"`
		Addr   string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Log struct {
		// Level is a zap level name; empty keeps the environment default.
		Level string `mapstructure:"LEVEL"`
	} `mapstructure:"LOG"`
	Pyroscope struct {
		Enable bool   `mapstructure:"ENABLE"`
		Addr   string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Worker struct {
		Concurrency int `mapstructure:"CONCURRENCY"`
	} `mapstructure:"WORKER"`
	Snowflake struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
	OAuth struct {
		FrontendCallbackURL string                 `mapstructure:"FRONTEND_CALLBACK_URL"`
		StateTTL            time.Duration          `mapstructure:"STATE_TTL"`
		PendingTTL          time.Duration          `mapstructure:"PENDING_TTL"`
		Clients             map[string]OAuthClient `mapstructure:"CLIENTS"`
	} `mapstructure:"OAUTH"`
	Webhook struct {
		Secrets map[string]WebhookSecret `mapstructure:"SECRETS"`
	} `mapstructure:"WEBHOOK"`
	Publisher struct {
		MaxAttempts  int           `mapstructure:"MAX_ATTEMPTS"`
		Concurrency  int           `mapstructure:"CONCURRENCY"`
		CallTimeout  time.Duration `mapstructure:"CALL_TIMEOUT"`
		PassTimeout  time.Duration `mapstructure:"PASS_TIMEOUT"`
		PollInterval time.Duration `mapstructure:"POLL_INTERVAL"`
		BatchSize    int           `mapstructure:"BATCH_SIZE"`
	} `mapstructure:"PUBLISHER"`
	Security struct {
		// TokenKey is a hex encoded 32 byte key used to seal credentials at rest.
		TokenKey string `mapstructure:"TOKEN_KEY"`
	} `mapstructure:"SECURITY"`
}

// OAuthClient returns the registration for platform, if one is configured.
func (c *Config) OAuthClient(platform string) (OAuthClient, bool) {
	client, ok := c.OAuth.Clients[strings.ToLower(platform)]
	if !ok || client.ClientID == "" {
		return OAuthClient{}, false
	}
	return client, true
}

// WebhookSecret returns the inbound verification material for platform.
func (c *Config) WebhookSecret(platform string) (WebhookSecret, bool) {
	secret, ok := c.Webhook.Secrets[strings.ToLower(platform)]
	return secret, ok
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "postflow")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("SNOWFLAKE.NODE", 1)
	v.SetDefault("OAUTH.STATE_TTL", 10*time.Minute)
	v.SetDefault("OAUTH.PENDING_TTL", 15*time.Minute)
	v.SetDefault("PUBLISHER.MAX_ATTEMPTS", 3)
	v.SetDefault("PUBLISHER.CONCURRENCY", 4)
	v.SetDefault("PUBLISHER.CALL_TIMEOUT", 20*time.Second)
	v.SetDefault("PUBLISHER.PASS_TIMEOUT", 2*time.Minute)
	v.SetDefault("PUBLISHER.POLL_INTERVAL", 30*time.Second)
	v.SetDefault("PUBLISHER.BATCH_SIZE", 100)
}

// LoadConfig reads config.yaml from the working directory, overlays the
// environment (DATABASE.HOST becomes DATABASE_HOST) and applies defaults.
// A missing file is not fatal; the environment and defaults still apply.
func LoadConfig() (*Config, error) {
	config.SetConfigName(configName)
	config.SetConfigType(configType)
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
