package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

type Config struct {
	HTTPAddr     string
	LedgerDriver string
	DatabaseURL  string
	BoltPath     string

	JWTSecret   string
	AdminKey    string
	AuditSecret string

	MaxVotesPerVoter     int
	ClaimRetries         uint64
	IncrementRetryBudget time.Duration
	SweepInterval        time.Duration
	ReconcileAfter       time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file, then the environment, then args. Flags
// win over the environment.
func Load(name string, args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var (
		cfg  Config
		errs []error
	)

	maxVotes, err := envInt("MAX_VOTES_PER_VOTER", 4)
	errs = append(errs, err)
	retries, err := envInt("CLAIM_RETRIES", 5)
	errs = append(errs, err)
	budget, err := envDuration("INCREMENT_RETRY_BUDGET", 10*time.Second)
	errs = append(errs, err)
	sweep, err := envDuration("SWEEP_INTERVAL", 30*time.Second)
	errs = append(errs, err)
	reconcile, err := envDuration("RECONCILE_AFTER", time.Minute)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&cfg.HTTPAddr, "http-addr", envString("HTTP_ADDR", "0.0.0.0:8080"), "HTTP listen address")
	flags.StringVar(&cfg.LedgerDriver, "ledger", envString("LEDGER_DRIVER", DriverPostgres), "Ledger backend: postgres or bolt")
	flags.StringVar(&cfg.DatabaseURL, "database-url", PostgresURL(), "Postgres connection string")
	flags.StringVar(&cfg.BoltPath, "bolt-path", envString("BOLT_PATH", "tally.db"), "Bolt ledger file")
	flags.StringVar(&cfg.JWTSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "HS256 secret for voter access tokens")
	flags.StringVar(&cfg.AdminKey, "admin-key", os.Getenv("ADMIN_KEY"), "Key required by administrative routes")
	flags.StringVar(&cfg.AuditSecret, "audit-secret", os.Getenv("AUDIT_SECRET"), "Secret used to seal vote proofs")
	flags.IntVar(&cfg.MaxVotesPerVoter, "max-votes", maxVotes, "Default per-voter vote cap for new elections")
	flags.Uint64Var(&cfg.ClaimRetries, "claim-retries", uint64(max(retries, 0)), "Retries when the store is unavailable during a cast")
	flags.DurationVar(&cfg.IncrementRetryBudget, "increment-budget", budget, "Time spent retrying counter increments before a vote is left pending")
	flags.DurationVar(&cfg.SweepInterval, "sweep-interval", sweep, "Interval of the reconcile and resolve sweep, 0 disables it")
	flags.DurationVar(&cfg.ReconcileAfter, "reconcile-after", reconcile, "Age after which a pending vote is reconciled")
	flags.StringVar(&cfg.LogLevel, "log-level", envString("LOG_LEVEL", "info"), "Log level")
	flags.StringVar(&cfg.LogFormat, "log-format", envString("LOG_FORMAT", "text"), "Log format: text or json")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	if retries < 0 {
		return nil, errors.New("CLAIM_RETRIES cannot be negative")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.LedgerDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL or POSTGRES_HOST is required for the postgres ledger"))
		}
	case DriverBolt:
		if c.BoltPath == "" {
			errs = append(errs, errors.New("BOLT_PATH is required for the bolt ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger driver %q", c.LedgerDriver))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.AdminKey == "" {
		errs = append(errs, errors.New("ADMIN_KEY is required"))
	}
	if c.AuditSecret == "" {
		errs = append(errs, errors.New("AUDIT_SECRET is required"))
	}
	if c.MaxVotesPerVoter <= 0 {
		errs = append(errs, errors.New("MAX_VOTES_PER_VOTER must be positive"))
	}
	if c.IncrementRetryBudget <= 0 {
		errs = append(errs, errors.New("INCREMENT_RETRY_BUDGET must be positive"))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL cannot be negative"))
	}
	if c.ReconcileAfter < 0 {
		errs = append(errs, errors.New("RECONCILE_AFTER cannot be negative"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger. Call it on a validated config.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// PostgresURL returns DATABASE_URL, or a URL built from the POSTGRES_*
// variables when only those are set.
func PostgresURL() string {
	if dsn := envString("DATABASE_URL", ""); dsn != "" {
		return dsn
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := envString("POSTGRES_PORT", "5432")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD")),
		Host:     host + ":" + port,
		Path:     os.Getenv("POSTGRES_DB"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
