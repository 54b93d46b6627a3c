package config

import (
	"time"

	fluxhttp "github.com/fluxprotocol/flux-go/http"
)

// ClientOptions converts the loaded configuration into client options.
// Store backends and the payer are wired separately since they own
// connections.
func (c *Config) ClientOptions() []fluxhttp.Option {
	opts := []fluxhttp.Option{
		fluxhttp.WithTimeout(time.Duration(c.API.TimeoutSeconds) * time.Second),
	}
	if c.API.Partner != "" {
		opts = append(opts, fluxhttp.WithPartner(c.API.Partner))
	}
	if c.Budget.Enabled() {
		opts = append(opts, fluxhttp.WithBudget(c.Budget.ToFlux()))
	}
	return opts
}
