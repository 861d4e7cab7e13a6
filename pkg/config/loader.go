package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. PILECAL_SOLVER_BACKEND.
const EnvPrefix = "PILECAL"

// Load reads the YAML file at path, applies PILECAL_* environment overrides,
// fills defaults and validates. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindScalarKeys(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// ParseYAML parses and validates a configuration supplied as a payload.
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// bindScalarKeys registers every scalar key so that AutomaticEnv can
// override it even when the file does not mention it.
func bindScalarKeys(v *viper.Viper) {
	keys := []string{
		"log.level", "log.format",
		"calibration.population_size", "calibration.mutation", "calibration.crossover",
		"calibration.strategy", "calibration.max_generations", "calibration.max_evaluations",
		"calibration.tolerance", "calibration.patience", "calibration.convergence",
		"calibration.seed", "calibration.workers", "calibration.polish",
		"calibration.polish_evaluations", "calibration.objective",
		"solver.backend", "solver.address", "solver.timeout", "solver.max_iterations",
		"solver.load_steps", "solver.elements", "solver.tolerance",
		"solver.breaker_failures", "solver.breaker_reset",
		"server.http_addr", "server.grpc_addr", "server.rate_limit", "server.rate_burst",
		"server.jwt_secret", "server.max_concurrent_runs", "server.webhook_retries",
		"server.shutdown_timeout",
		"storage.driver", "storage.dsn",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
