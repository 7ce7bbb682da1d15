// Package config handles configuration for the server component,
// including defaults, .env and JSON overlays, environment variables and
// command-line flags.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/dmitrijs2005/domainx/internal/common"
)

const devSecretKey = "secretKey"

// MinBcryptCost is the lowest work factor accepted outside tests.
const MinBcryptCost = 10

// Config holds runtime settings for the DomainX auth server.
//
// Every field can be set, in increasing precedence, by the defaults, a JSON
// file given with -c, the environment (also read from .env) and flags.
type Config struct {
	Env         string `env:"ENV,overwrite"`
	HTTPAddr    string `env:"HTTP_ADDR,overwrite"`
	MetricsAddr string `env:"METRICS_ADDR,overwrite"`
	BodyLimit   string `env:"BODY_LIMIT,overwrite"`
	// DatabaseDSN is a PostgreSQL URL, sqlite://path or memory://.
	DatabaseDSN string `env:"DATABASE_DSN,overwrite"`

	// SecretKey signs session tokens (HS256).
	SecretKey         string        `env:"JWT_SECRET,overwrite"`
	TokenTTL          time.Duration `env:"TOKEN_TTL,overwrite"`
	RememberMeTTL     time.Duration `env:"REMEMBER_ME_TTL,overwrite"`
	BcryptCost        int           `env:"BCRYPT_COST,overwrite"`
	MinPasswordLength int           `env:"MIN_PASSWORD_LENGTH,overwrite"`
	LockThreshold     int           `env:"LOCK_THRESHOLD,overwrite"`
	LockDuration      time.Duration `env:"LOCK_DURATION,overwrite"`

	// FrontendURL prefixes the links in outgoing emails.
	FrontendURL     string        `env:"FRONTEND_URL,overwrite"`
	SMTPHost        string        `env:"SMTP_HOST,overwrite"`
	SMTPPort        int           `env:"SMTP_PORT,overwrite"`
	SMTPUser        string        `env:"SMTP_USER,overwrite"`
	SMTPPassword    string        `env:"SMTP_PASSWORD,overwrite"`
	MailFrom        string        `env:"MAIL_FROM,overwrite"`
	MailFromName    string        `env:"MAIL_FROM_NAME,overwrite"`
	MailSendTimeout time.Duration `env:"MAIL_SEND_TIMEOUT,overwrite"`
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secret key is insecure and is refused in production.
func (c *Config) LoadDefaults() {
	c.Env = "dev"
	c.HTTPAddr = ":8080"
	c.MetricsAddr = ":8081"
	c.BodyLimit = "1M"
	c.DatabaseDSN = "sqlite://domainx.db"

	c.SecretKey = devSecretKey
	c.TokenTTL = 24 * time.Hour
	c.RememberMeTTL = 30 * 24 * time.Hour
	c.BcryptCost = 12
	c.MinPasswordLength = 6
	c.LockThreshold = common.DefaultLockThreshold
	c.LockDuration = common.DefaultLockDuration

	c.FrontendURL = "http://localhost:5173"
	c.SMTPPort = 587
	c.MailFrom = "no-reply@domainx.local"
	c.MailFromName = "DomainX"
	c.MailSendTimeout = 15 * time.Second
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

// Validate rejects settings the server must not start with.
func (c *Config) Validate() error {
	var errs []error

	if c.IsProduction() && (c.SecretKey == "" || c.SecretKey == devSecretKey) {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is empty"))
	}
	if c.BcryptCost < MinBcryptCost {
		errs = append(errs, fmt.Errorf("bcrypt cost %d is below %d", c.BcryptCost, MinBcryptCost))
	}
	if c.TokenTTL <= 0 || c.RememberMeTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.LockThreshold <= 0 || c.LockDuration <= 0 {
		errs = append(errs, errors.New("lock threshold and duration must be positive"))
	}
	if c.MinPasswordLength <= 0 {
		errs = append(errs, errors.New("minimum password length must be positive"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is empty"))
	}

	return errors.Join(errs...)
}

// LoadConfig builds a Config from defaults, then overlays values from an
// optional JSON file, the environment and finally command-line flags.
func LoadConfig() (*Config, error) {
	return load(context.Background(), os.Args[1:], envconfig.OsLookuper())
}

func load(ctx context.Context, args []string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(ctx, cfg, lookuper); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
