package config

import (
	"fmt"
	"time"
)

type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Server        ServerConfig        `mapstructure:"server"`
	Booking       BookingConfig       `mapstructure:"booking"`
	Calendar      CalendarConfig      `mapstructure:"calendar"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Email         EmailConfig         `mapstructure:"email"`
	Studio        StudioConfig        `mapstructure:"studio"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Nats          NatsConfig          `mapstructure:"nats"`
}

type NatsConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	Host       string                  `mapstructure:"host"`
	Port       int                     `mapstructure:"port"`
	User       string                  `mapstructure:"user"`
	Password   string                  `mapstructure:"password"`
	DBName     string                  `mapstructure:"dbname"`
	SSLMode    string                  `mapstructure:"sslmode"`
	Pool       DatabasePoolConfig      `mapstructure:"pool"`
	Migrations DatabaseMigrationConfig `mapstructure:"migrations"`
}

type DatabasePoolConfig struct {
	MaxOpenConns       int `mapstructure:"max_open_conns"`
	MaxIdleConns       int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int `mapstructure:"conn_max_lifetime_minutes"`
}

type DatabaseMigrationConfig struct {
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr                string `mapstructure:"addr"`
	DB                  int    `mapstructure:"db"`
	Username            string `mapstructure:"username"`
	Password            string `mapstructure:"password"`
	PoolSize            int    `mapstructure:"pool_size"`
	MinIdleConns        int    `mapstructure:"min_idle_conns"`
	DialTimeoutSeconds  int    `mapstructure:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

type ServerConfig struct {
	Port           int        `mapstructure:"port"`
	TimeoutSeconds int        `mapstructure:"timeout_seconds"`
	Environment    string     `mapstructure:"environment"`
	Domain         string     `mapstructure:"domain"`
	CORS           CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// BookingConfig drives the slot engine. SlotDurationMinutes is the single
// source of truth for all slot arithmetic: lattice generation, occupancy
// expansion and reservation span calculation all derive from it.
type BookingConfig struct {
	SlotDurationMinutes   int `mapstructure:"slot_duration_minutes"`
	MaxSlotsPerBooking    int `mapstructure:"max_slots_per_booking"`
	PriceCents            int `mapstructure:"price_cents"`
	PendingTimeoutMinutes int `mapstructure:"pending_timeout_minutes"`
	// ClosedWeekday is the universally closed day (time.Weekday numbering,
	// 0 = Sunday). No slots are ever offered on this weekday.
	ClosedWeekday int `mapstructure:"closed_weekday"`
	// BookableDays is how far ahead the available-dates scan looks.
	BookableDays int `mapstructure:"bookable_days"`
}

func (c BookingConfig) SlotDuration() time.Duration {
	return time.Duration(c.SlotDurationMinutes) * time.Minute
}

func (c BookingConfig) PendingTimeout() time.Duration {
	return time.Duration(c.PendingTimeoutMinutes) * time.Minute
}

type CalendarConfig struct {
	ICalURL             string `mapstructure:"ical_url"`
	CacheTTLSeconds     int    `mapstructure:"cache_ttl_seconds"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds"`
	// TitlePrefix marks feed events that block booking slots. Matching is
	// case-insensitive.
	TitlePrefix string `mapstructure:"title_prefix"`
	// Timezone is the IANA zone the studio operates in; feed events are
	// mapped to local slots in this zone.
	Timezone string `mapstructure:"timezone"`
}

func (c CalendarConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c CalendarConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

type PaymentConfig struct {
	// Mode selects the provider family: demo, sandbox or live.
	Mode       string       `mapstructure:"mode"`
	Currency   string       `mapstructure:"currency"`
	SuccessURL string       `mapstructure:"success_url"`
	CancelURL  string       `mapstructure:"cancel_url"`
	Stripe     StripeConfig `mapstructure:"stripe"`
	PayPal     PayPalConfig `mapstructure:"paypal"`
}

type StripeConfig struct {
	PublicKey     string `mapstructure:"public_key"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type PayPalConfig struct {
	ClientID string `mapstructure:"client_id"`
	Secret   string `mapstructure:"secret"`
}

type EmailConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	UseTLS         bool   `mapstructure:"use_tls"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StudioConfig carries the law firm's public details used in confirmation
// emails and generated calendar invites.
type StudioConfig struct {
	Name        string `mapstructure:"name"`
	LawyerName  string `mapstructure:"lawyer_name"`
	Address     string `mapstructure:"address"`
	Phone       string `mapstructure:"phone"`
	Email       string `mapstructure:"email"`
	Website     string `mapstructure:"website"`
	MapsURL     string `mapstructure:"maps_url"`
	PhoneRegion string `mapstructure:"phone_region"`
}

type ObservabilityConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	Tracing        TracingConfig `mapstructure:"tracing"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string       `mapstructure:"level"`  // debug, info, warn, error
	Format string       `mapstructure:"format"` // text, json
	Output OutputConfig `mapstructure:"output"`
}

type OutputConfig struct {
	Stdout bool          `mapstructure:"stdout"`
	File   FileLogConfig `mapstructure:"file"`
	Loki   LokiConfig    `mapstructure:"loki"`
}

type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type LokiConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Validate resolves defaults and rejects configurations the booking engine
// cannot run with. It must be called once at startup; everything downstream
// assumes a validated Config.
func (c *Config) Validate() error {
	if c.Booking.SlotDurationMinutes <= 0 {
		c.Booking.SlotDurationMinutes = 30
	}
	if c.Booking.MaxSlotsPerBooking <= 0 {
		c.Booking.MaxSlotsPerBooking = 4
	}
	if c.Booking.PendingTimeoutMinutes <= 0 {
		c.Booking.PendingTimeoutMinutes = 30
	}
	if c.Booking.ClosedWeekday < 0 || c.Booking.ClosedWeekday > 6 {
		return fmt.Errorf("booking.closed_weekday must be in [0,6], got %d", c.Booking.ClosedWeekday)
	}
	if c.Booking.BookableDays <= 0 {
		c.Booking.BookableDays = 60
	}
	if 24*60%c.Booking.SlotDurationMinutes != 0 {
		return fmt.Errorf("booking.slot_duration_minutes must divide a day, got %d", c.Booking.SlotDurationMinutes)
	}

	if c.Calendar.CacheTTLSeconds <= 0 {
		c.Calendar.CacheTTLSeconds = 600
	}
	if c.Calendar.FetchTimeoutSeconds <= 0 {
		c.Calendar.FetchTimeoutSeconds = 30
	}
	if c.Calendar.TitlePrefix == "" {
		c.Calendar.TitlePrefix = "app "
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = "Europe/Rome"
	}

	switch c.Payment.Mode {
	case "":
		c.Payment.Mode = "demo"
	case "demo", "sandbox", "live":
	default:
		return fmt.Errorf("payment.mode must be demo, sandbox or live, got %q", c.Payment.Mode)
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "eur"
	}

	if c.Studio.PhoneRegion == "" {
		c.Studio.PhoneRegion = "IT"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = 30
	}

	return nil
}
