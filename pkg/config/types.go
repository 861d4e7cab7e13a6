package config

import "time"

// Config is the complete pilecal configuration
type Config struct {
	Log         LogConfig          `yaml:"log" json:"log" mapstructure:"log"`
	Calibration CalibrationConfig  `yaml:"calibration" json:"calibration" mapstructure:"calibration"`
	Parameters  []ParameterConfig  `yaml:"parameters" json:"parameters" mapstructure:"parameters"`
	Constraints []ConstraintConfig `yaml:"constraints,omitempty" json:"constraints,omitempty" mapstructure:"constraints"`
	Solver      SolverConfig       `yaml:"solver" json:"solver" mapstructure:"solver"`
	Server      ServerConfig       `yaml:"server" json:"server" mapstructure:"server"`
	Storage     StorageConfig      `yaml:"storage" json:"storage" mapstructure:"storage"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level"`    // debug, info, warn, error
	Format string `yaml:"format" json:"format" mapstructure:"format"` // json, console
}

// CalibrationConfig holds differential evolution options
type CalibrationConfig struct {
	PopulationSize    int     `yaml:"population_size" json:"population_size" mapstructure:"population_size"`
	Mutation          float64 `yaml:"mutation" json:"mutation" mapstructure:"mutation"`
	Crossover         float64 `yaml:"crossover" json:"crossover" mapstructure:"crossover"`
	Strategy          string  `yaml:"strategy" json:"strategy" mapstructure:"strategy"` // rand1bin, best1bin
	MaxGenerations    int     `yaml:"max_generations" json:"max_generations" mapstructure:"max_generations"`
	MaxEvaluations    int     `yaml:"max_evaluations,omitempty" json:"max_evaluations,omitempty" mapstructure:"max_evaluations"`
	Tolerance         float64 `yaml:"tolerance" json:"tolerance" mapstructure:"tolerance"`
	Patience          int     `yaml:"patience" json:"patience" mapstructure:"patience"`
	Convergence       string  `yaml:"convergence" json:"convergence" mapstructure:"convergence"` // spread, stagnation
	Seed              int64   `yaml:"seed,omitempty" json:"seed,omitempty" mapstructure:"seed"`
	Workers           int     `yaml:"workers,omitempty" json:"workers,omitempty" mapstructure:"workers"`
	Polish            bool    `yaml:"polish" json:"polish" mapstructure:"polish"`
	PolishEvaluations int     `yaml:"polish_evaluations,omitempty" json:"polish_evaluations,omitempty" mapstructure:"polish_evaluations"`
	Objective         string  `yaml:"objective" json:"objective" mapstructure:"objective"` // nrmse, l2, max_abs
}

// ParameterConfig bounds one calibrated parameter
type ParameterConfig struct {
	Name        string  `yaml:"name" json:"name" mapstructure:"name"`
	Lower       float64 `yaml:"lower" json:"lower" mapstructure:"lower"`
	Upper       float64 `yaml:"upper" json:"upper" mapstructure:"upper"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`
}

// ConstraintConfig relates two parameters. LessEqual holds [a, b] meaning a <= b.
type ConstraintConfig struct {
	LessEqual []string `yaml:"less_equal" json:"less_equal" mapstructure:"less_equal"`
}

// SolverConfig selects and tunes the finite-element backend
type SolverConfig struct {
	Backend         string        `yaml:"backend" json:"backend" mapstructure:"backend"` // local, grpc
	Address         string        `yaml:"address,omitempty" json:"address,omitempty" mapstructure:"address"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
	MaxIterations   int           `yaml:"max_iterations" json:"max_iterations" mapstructure:"max_iterations"`
	LoadSteps       int           `yaml:"load_steps" json:"load_steps" mapstructure:"load_steps"`
	Elements        int           `yaml:"elements" json:"elements" mapstructure:"elements"`
	Tolerance       float64       `yaml:"tolerance" json:"tolerance" mapstructure:"tolerance"`
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" json:"breaker_reset" mapstructure:"breaker_reset"`
}

// ServerConfig holds daemon listener and API options
type ServerConfig struct {
	HTTPAddr          string        `yaml:"http_addr" json:"http_addr" mapstructure:"http_addr"`
	GRPCAddr          string        `yaml:"grpc_addr" json:"grpc_addr" mapstructure:"grpc_addr"`
	RateLimit         float64       `yaml:"rate_limit" json:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst         int           `yaml:"rate_burst" json:"rate_burst" mapstructure:"rate_burst"`
	JWTSecret         string        `yaml:"jwt_secret,omitempty" json:"-" mapstructure:"jwt_secret"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs" json:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	WebhookRetries    int           `yaml:"webhook_retries" json:"webhook_retries" mapstructure:"webhook_retries"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// MetricsRetention is how long live metrics of a finished run stay in memory.
	MetricsRetention time.Duration `yaml:"metrics_retention" json:"metrics_retention" mapstructure:"metrics_retention"`
	// LimiterIdle evicts the rate limiter of a client idle for this long.
	LimiterIdle time.Duration `yaml:"limiter_idle" json:"limiter_idle" mapstructure:"limiter_idle"`
}

// StorageConfig selects run persistence
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver" mapstructure:"driver"` // none, sqlite, postgres
	DSN    string `yaml:"dsn,omitempty" json:"-" mapstructure:"dsn"`
}
