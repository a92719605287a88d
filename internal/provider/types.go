// Package provider wraps generative-model backends behind a small capability
// interface. The core never embeds a concrete network client in aggregation
// logic; it receives a Provider (or the Router) by injection.
package provider

import (
	"context"
	"time"
)

// Provider is a text-in/text-out generative backend with a bounded timeout.
type Provider interface {
	ID() string
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
	HealthCheck(ctx context.Context) error
}

// Config holds configuration for one provider instance.
type Config struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Name     string        `json:"name"`
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// defaultTimeout bounds a Generate call when the config leaves it unset.
const defaultTimeout = 60 * time.Second

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}
