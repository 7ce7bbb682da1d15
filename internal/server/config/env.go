package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// LoadDotEnv copies variables from path (".env" when empty) into the
// process environment. Variables that are already set are kept. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

// parseEnv overlays the environment on config. Unset variables leave the
// current value alone.
func parseEnv(ctx context.Context, config *Config, lookuper envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, config, lookuper); err != nil {
		return fmt.Errorf("parsing env vars: %w", err)
	}
	return nil
}
