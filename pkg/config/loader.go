package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	viper.BindEnv("pile_link.port", "PILE_LINK_PORT", "APP_PILE_LINK_PORT")
	viper.BindEnv("database.url", "DATABASE_URL", "APP_DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	viper.BindEnv("nats.url", "NATS_URL", "APP_NATS_URL")
	viper.BindEnv("rabbitmq.url", "RABBITMQ_URL", "APP_RABBITMQ_URL")
	viper.BindEnv("station.dispatch_policy", "DISPATCH_POLICY")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file: defaults plus env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Station.Piles) == 0 {
		cfg.Station = DefaultStation()
	}
	if cfg.Billing.ServiceRate == 0 {
		cfg.Billing = DefaultBilling()
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "echarge")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("pile_link.port", 9000)
	viper.SetDefault("pile_link.command_timeout", "10s")
	viper.SetDefault("pile_link.command_retries", 3)
	viper.SetDefault("prometheus.enabled", true)
	viper.SetDefault("prometheus.path", "/metrics")
	viper.SetDefault("station.waiting_area_capacity", 6)
	viper.SetDefault("station.dispatch_policy", "priority")
	viper.SetDefault("station.dispatch_tick", "5s")
	viper.SetDefault("station.progress_tick", "1s")
	viper.SetDefault("station.heartbeat_timeout", "30s")
	viper.SetDefault("logging.level", "info")
}
