package config

import "time"

// DefaultParameters are the tip and shaft spring parameters with their usual search ranges
func DefaultParameters() []ParameterConfig {
	return []ParameterConfig{
		{Name: "Rfb", Lower: 0.1, Upper: 10, Description: "tip stiffness reduction factor"},
		{Name: "Sbu", Lower: 1e-4, Upper: 0.05, Description: "tip yield settlement (m)"},
		{Name: "alpha21", Lower: 0, Upper: 1, Description: "tip post-yield stiffness ratio"},
		{Name: "Rfs", Lower: 0.1, Upper: 10, Description: "shaft strength reduction factor"},
	}
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills zero values with defaults
func (c *Config) Normalize() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	cal := &c.Calibration
	if cal.PopulationSize == 0 {
		cal.PopulationSize = 15
	}
	if cal.Mutation == 0 {
		cal.Mutation = 0.8
	}
	if cal.Crossover == 0 {
		cal.Crossover = 0.9
	}
	if cal.Strategy == "" {
		cal.Strategy = "rand1bin"
	}
	if cal.MaxGenerations == 0 {
		cal.MaxGenerations = 1000
	}
	if cal.Tolerance == 0 {
		cal.Tolerance = 1e-6
	}
	if cal.Patience == 0 {
		cal.Patience = 1
	}
	if cal.Convergence == "" {
		cal.Convergence = "spread"
	}
	if cal.Objective == "" {
		cal.Objective = "nrmse"
	}
	if cal.Polish && cal.PolishEvaluations == 0 {
		cal.PolishEvaluations = 200
	}

	if len(c.Parameters) == 0 {
		c.Parameters = DefaultParameters()
	}

	s := &c.Solver
	if s.Backend == "" {
		s.Backend = "local"
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 50
	}
	if s.LoadSteps == 0 {
		s.LoadSteps = 20
	}
	if s.Elements == 0 {
		s.Elements = 40
	}
	if s.Tolerance == 0 {
		s.Tolerance = 1e-6
	}
	if s.BreakerFailures == 0 {
		s.BreakerFailures = 5
	}
	if s.BreakerReset == 0 {
		s.BreakerReset = 10 * time.Second
	}

	srv := &c.Server
	if srv.HTTPAddr == "" {
		srv.HTTPAddr = ":8080"
	}
	if srv.GRPCAddr == "" {
		srv.GRPCAddr = ":9090"
	}
	if srv.RateBurst == 0 {
		srv.RateBurst = 5
	}
	if srv.MaxConcurrentRuns == 0 {
		srv.MaxConcurrentRuns = 2
	}
	if srv.ShutdownTimeout == 0 {
		srv.ShutdownTimeout = 15 * time.Second
	}
	if srv.MetricsRetention == 0 {
		srv.MetricsRetention = time.Hour
	}
	if srv.LimiterIdle == 0 {
		srv.LimiterIdle = 10 * time.Minute
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "none"
	}
}
