package internal

import "github.com/starford/ansuz/internal/oracle"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	oracle oracle.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOracle overrides the configured oracle backend, mainly for tests.
func WithOracle(client oracle.Client) Option {
	return func(a *application) {
		a.oracle = client
	}
}
