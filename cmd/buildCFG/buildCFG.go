package buildCFG

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/mailer"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/rabbit"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/reservation"
)

// Getter is the part of *config.Config the builders read.
type Getter interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
}

type ServerConfig struct {
	Port            string
	AdminToken      string
	ShutdownTimeout time.Duration
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver        string
	MigrationsDir string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type NotifyConfig struct {
	// Queue routes notifications through RabbitMQ; otherwise mail is sent inline.
	Queue      bool
	RatePerSec float64
}

func duration(cfg Getter, key string, def time.Duration, log *zerolog.Logger) time.Duration {
	raw := cfg.GetString(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msgf("invalid duration, using %s", def)
		return def
	}
	return d
}

func BuildServerConfig(cfg Getter, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port is not set, using 8080")
	}
	token := cfg.GetString("server.admin_token")
	if token == "" {
		log.Warn().Msg("server.admin_token is empty, admin routes are open")
	}
	return ServerConfig{
		Port:            port,
		AdminToken:      token,
		ShutdownTimeout: duration(cfg, "server.shutdown_timeout", 10*time.Second, log),
	}
}

func BuildStorageConfig(cfg Getter, log *zerolog.Logger) (StorageConfig, error) {
	driver := strings.ToLower(cfg.GetString("storage.driver"))
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverMemory {
		return StorageConfig{}, fmt.Errorf("storage.driver: unknown driver %q", driver)
	}
	dir := cfg.GetString("storage.migrations_dir")
	if dir == "" {
		dir = "migrations/postgres"
	}
	log.Info().Str("driver", driver).Msg("storage configured")
	return StorageConfig{Driver: driver, MigrationsDir: dir}, nil
}

func BuildDBConfig(cfg Getter, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	master := cfg.GetString("db.master_dsn")
	if master == "" {
		return "", nil, nil, fmt.Errorf("db.master_dsn is required")
	}
	var slaves []string
	for _, dsn := range strings.Split(cfg.GetString("db.slave_dsns"), ",") {
		if dsn = strings.TrimSpace(dsn); dsn != "" {
			slaves = append(slaves, dsn)
		}
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("db.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("db.max_idle_conns"),
		ConnMaxLifetime: duration(cfg, "db.conn_max_lifetime", 5*time.Minute, log),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	log.Info().Int("slaves", len(slaves)).Int("max_open_conns", opts.MaxOpenConns).Msg("database configured")
	return master, slaves, opts, nil
}

func BuildRabbitConfig(cfg Getter, log *zerolog.Logger) (rabbit.Config, error) {
	c := rabbit.Config{
		URL:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if c.URL == "" {
		return c, fmt.Errorf("rabbit.url is required")
	}
	if c.Exchange == "" {
		c.Exchange = "notifications"
	}
	if c.Queue == "" {
		c.Queue = "applicant_notifications"
	}
	log.Info().Str("exchange", c.Exchange).Str("queue", c.Queue).Msg("rabbit configured")
	return c, nil
}

func BuildNotifyConfig(cfg Getter) NotifyConfig {
	c := NotifyConfig{
		Queue:      cfg.GetBool("notify.queue"),
		RatePerSec: float64(cfg.GetInt("notify.rate_per_sec")),
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	return c
}

func BuildMailConfig(cfg Getter) mailer.Config {
	return mailer.Config{
		Driver:         strings.ToLower(cfg.GetString("mail.driver")),
		From:           cfg.GetString("mail.from"),
		SMTPHost:       cfg.GetString("mail.smtp_host"),
		SMTPPort:       cfg.GetInt("mail.smtp_port"),
		SMTPUser:       cfg.GetString("mail.smtp_user"),
		SMTPPassword:   cfg.GetString("mail.smtp_password"),
		SendgridAPIKey: cfg.GetString("mail.sendgrid_api_key"),
	}
}

func BuildRedisConfig(cfg Getter, log *zerolog.Logger) RedisConfig {
	c := RedisConfig{
		Addr:     cfg.GetString("redis.addr"),
		Password: cfg.GetString("redis.password"),
		DB:       cfg.GetInt("redis.db"),
		TTL:      duration(cfg, "redis.ttl", 30*time.Second, log),
	}
	c.Enabled = c.Addr != ""
	if !c.Enabled {
		log.Info().Msg("redis.addr is empty, slot cache disabled")
	}
	return c
}

func BuildReservationConfig(cfg Getter, log *zerolog.Logger) reservation.Config {
	return reservation.Config{
		MaxAttempts: cfg.GetInt("reservation.max_attempts"),
		Backoff:     duration(cfg, "reservation.backoff", reservation.DefaultBackoff, log),
	}
}
