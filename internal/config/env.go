package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/danielpatrickdp/detsweep/internal/tracing"
)

// #region env
// Env holds the process environment the sweep reads.
type Env struct {
	WorldSize     int    `env:"WORLD_SIZE" envDefault:"1"`
	EvaluatorAddr string `env:"EVALUATOR_ADDR" envDefault:"localhost:50061"`
	DBPath        string `env:"SWEEP_DB"`
	LogLevel      string `env:"SWEEP_LOG_LEVEL" envDefault:"info"`

	Tracing tracing.Config
}

// ParseEnv loads Env from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// #endregion env
