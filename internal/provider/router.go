package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router manages multiple generative backends with a default and a fallback
// chain. It never holds its lock across a network call.
type Router struct {
	providers map[string]Provider
	fallbacks []string
	defaults  string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates an empty provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds a provider. The first registered provider becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// SetFallbacks configures the fallback chain tried after the default fails.
func (r *Router) SetFallbacks(providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = providerIDs
}

// DefaultID returns the current default provider ID.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Len returns the number of registered providers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Generate routes a prompt through the default provider, then the fallback
// chain. The provider set is copied out under the read lock so no lock is
// held while awaiting a response.
func (r *Router) Generate(ctx context.Context, prompt string) (string, error) {
	r.mu.RLock()
	primary := r.providers[r.defaults]
	chain := make([]Provider, 0, len(r.fallbacks))
	for _, id := range r.fallbacks {
		if p, ok := r.providers[id]; ok {
			chain = append(chain, p)
		}
	}
	r.mu.RUnlock()

	if primary == nil {
		return "", fmt.Errorf("no provider configured")
	}

	text, err := primary.Generate(ctx, prompt)
	if err == nil {
		return text, nil
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("provider", primary.ID()), zap.Error(err))

	for _, fb := range chain {
		text, err = fb.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		r.logger.Warn("fallback provider failed", zap.String("provider", fb.ID()), zap.Error(err))
	}
	return "", fmt.Errorf("all providers failed: %w", err)
}
