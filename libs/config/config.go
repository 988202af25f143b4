package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Load fills dst from the process environment. Dotenv files are read first
// when present; variables already set in the environment take precedence.
func Load(dst any, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := env.Parse(dst); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// ValidatePort checks that v is a usable TCP port.
func ValidatePort(key, v string) error {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return nil
}
