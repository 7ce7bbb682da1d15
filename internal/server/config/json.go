package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/domainx/internal/flagx"
	"github.com/dmitrijs2005/domainx/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "1h" style strings or seconds. Absent fields keep their current value.
type JsonConfig struct {
	Env         string `json:"env"`
	HTTPAddr    string `json:"http_addr"`
	MetricsAddr string `json:"metrics_addr"`
	BodyLimit   string `json:"body_limit"`
	DatabaseDSN string `json:"database_dsn"`

	SecretKey         string         `json:"secret_key"`
	TokenTTL          timex.Duration `json:"token_ttl"`
	RememberMeTTL     timex.Duration `json:"remember_me_ttl"`
	BcryptCost        int            `json:"bcrypt_cost"`
	MinPasswordLength int            `json:"min_password_length"`
	LockThreshold     int            `json:"lock_threshold"`
	LockDuration      timex.Duration `json:"lock_duration"`

	FrontendURL     string         `json:"frontend_url"`
	SMTPHost        string         `json:"smtp_host"`
	SMTPPort        int            `json:"smtp_port"`
	SMTPUser        string         `json:"smtp_user"`
	SMTPPassword    string         `json:"smtp_password"`
	MailFrom        string         `json:"mail_from"`
	MailFromName    string         `json:"mail_from_name"`
	MailSendTimeout timex.Duration `json:"mail_send_timeout"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// parseJson loads the file named by -c/-config in args into config. With
// no such flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	setString(&config.Env, c.Env)
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.BodyLimit, c.BodyLimit)
	setString(&config.DatabaseDSN, c.DatabaseDSN)

	setString(&config.SecretKey, c.SecretKey)
	if c.TokenTTL.Duration != 0 {
		config.TokenTTL = c.TokenTTL.Duration
	}
	if c.RememberMeTTL.Duration != 0 {
		config.RememberMeTTL = c.RememberMeTTL.Duration
	}
	setInt(&config.BcryptCost, c.BcryptCost)
	setInt(&config.MinPasswordLength, c.MinPasswordLength)
	setInt(&config.LockThreshold, c.LockThreshold)
	if c.LockDuration.Duration != 0 {
		config.LockDuration = c.LockDuration.Duration
	}

	setString(&config.FrontendURL, c.FrontendURL)
	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.MailFromName, c.MailFromName)
	if c.MailSendTimeout.Duration != 0 {
		config.MailSendTimeout = c.MailSendTimeout.Duration
	}
	return nil
}
