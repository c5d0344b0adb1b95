package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into the struct cfg points to, using its
// `env`, `envDefault` and `envSeparator` tags. Every invalid or missing
// variable is reported in the one error.
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
