package config

import "time"

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	PileLink   PileLinkConfig   `mapstructure:"pile_link"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Station    StationConfig    `mapstructure:"station"`
	Billing    BillingConfig    `mapstructure:"billing"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type PileLinkConfig struct {
	Port           int           `mapstructure:"port"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	CommandRetries int           `mapstructure:"command_retries"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL         string        `mapstructure:"url"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PileConfig describes one charging pile of the fixed station roster.
type PileConfig struct {
	ID      string  `mapstructure:"id"`
	Name    string  `mapstructure:"name"`
	Type    string  `mapstructure:"type"`
	PowerKW float64 `mapstructure:"power_kw"`
}

type StationConfig struct {
	WaitingAreaCapacity int           `mapstructure:"waiting_area_capacity"`
	DispatchPolicy      string        `mapstructure:"dispatch_policy"`
	DispatchTick        time.Duration `mapstructure:"dispatch_tick"`
	ProgressTick        time.Duration `mapstructure:"progress_tick"`
	HeartbeatTimeout    time.Duration `mapstructure:"heartbeat_timeout"`
	Piles               []PileConfig  `mapstructure:"piles"`
}

// HourRange is a half-open [From, To) wall-clock hour interval. From > To
// means the range wraps past midnight.
type HourRange struct {
	From int `mapstructure:"from"`
	To   int `mapstructure:"to"`
}

type BillingConfig struct {
	PeakRate    float64     `mapstructure:"peak_rate"`
	NormalRate  float64     `mapstructure:"normal_rate"`
	ValleyRate  float64     `mapstructure:"valley_rate"`
	ServiceRate float64     `mapstructure:"service_rate"`
	PeakHours   []HourRange `mapstructure:"peak_hours"`
	NormalHours []HourRange `mapstructure:"normal_hours"`
}

// DefaultStation is the fixed roster the original station ships with: two
// 30 kW fast piles and three 7 kW trickle piles behind a six-slot waiting
// area.
func DefaultStation() StationConfig {
	return StationConfig{
		WaitingAreaCapacity: 6,
		DispatchPolicy:      "priority",
		DispatchTick:        5 * time.Second,
		ProgressTick:        time.Second,
		HeartbeatTimeout:    30 * time.Second,
		Piles: []PileConfig{
			{ID: "A", Name: "Fast Pile A", Type: "fast", PowerKW: 30},
			{ID: "B", Name: "Fast Pile B", Type: "fast", PowerKW: 30},
			{ID: "C", Name: "Trickle Pile C", Type: "trickle", PowerKW: 7},
			{ID: "D", Name: "Trickle Pile D", Type: "trickle", PowerKW: 7},
			{ID: "E", Name: "Trickle Pile E", Type: "trickle", PowerKW: 7},
		},
	}
}

// DefaultBilling is the time-of-use tariff table: peak 1.00, normal 0.70,
// valley 0.40 per kWh plus a flat 0.80 per kWh service fee.
func DefaultBilling() BillingConfig {
	return BillingConfig{
		PeakRate:    1.00,
		NormalRate:  0.70,
		ValleyRate:  0.40,
		ServiceRate: 0.80,
		PeakHours:   []HourRange{{From: 10, To: 15}, {From: 18, To: 21}},
		NormalHours: []HourRange{{From: 7, To: 10}, {From: 15, To: 18}, {From: 21, To: 23}},
	}
}
