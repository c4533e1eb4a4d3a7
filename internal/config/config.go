package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhil/teamhub/internal/database"
)

// Config contains all runtime configuration loaded from the environment.
type Config struct {
	AppEnv   string
	LogLevel string

	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DBDriver          database.Dialect
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	JWTSecret string

	InvitationTTL           time.Duration
	InvitationSweepInterval time.Duration

	// Per-user limits on the invitation token endpoints.
	TokenRateLimit float64
	TokenRateBurst int
}

// ReadEnvFiles loads envFiles into the process environment without
// overriding variables that are already set. With no arguments it reads
// ./.env and tolerates its absence.
func ReadEnvFiles(envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := ReadEnvFiles(envFiles...); err != nil {
		return Config{}, err
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables with defaults.
func FromEnv() Config {
	cfg := Config{
		AppEnv:   EnvString("APP_ENV", "development"),
		LogLevel: EnvString("LOG_LEVEL", ""),

		HTTPAddr:        EnvString("HTTP_ADDR", ":8080"),
		ReadTimeout:     EnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    EnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     EnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: EnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DBDriver:          database.Dialect(EnvString("DB_DRIVER", string(database.MySQL))),
		DBDSN:             EnvString("DB_DSN", ""),
		DBMaxOpenConns:    EnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    EnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: EnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),

		JWTSecret: EnvString("JWT_SECRET", ""),

		InvitationTTL:           EnvDuration("INVITATION_TTL", 7*24*time.Hour),
		InvitationSweepInterval: EnvDuration("INVITATION_SWEEP_INTERVAL", time.Hour),

		TokenRateLimit: EnvFloat("TOKEN_RATE_LIMIT", 1),
		TokenRateBurst: EnvInt("TOKEN_RATE_BURST", 5),
	}

	if cfg.DBDSN == "" && cfg.DBDriver == database.MySQL {
		cfg.DBDSN = database.MySQLDSN(
			EnvString("DB_USER", "root"),
			EnvString("DB_PASSWORD", ""),
			EnvString("DB_HOST", "127.0.0.1"),
			EnvString("DB_PORT", "3306"),
			EnvString("DB_NAME", "teamhub"),
		)
	}
	if cfg.DBDSN == "" && cfg.DBDriver == database.SQLite {
		cfg.DBDSN = "file:teamhub.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	}
	return cfg
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case database.MySQL, database.SQLite:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", database.MySQL, database.SQLite, c.DBDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.InvitationTTL <= 0 {
		errs = append(errs, errors.New("INVITATION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// DatabaseConfig returns the connection settings for database.Open.
func (c Config) DatabaseConfig() database.Config {
	return database.Config{
		Driver:          c.DBDriver,
		DSN:             c.DBDSN,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	}
}
