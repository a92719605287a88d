// Package registry holds the static catalog of retrieval operations: names,
// argument schemas, categories, enabled flags and rate-limit policies. The
// router and the HTTP dispatcher both validate against it before any data
// access happens.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// ParamType enumerates supported argument types.
type ParamType string

const (
	TypeString      ParamType = "string"
	TypeInteger     ParamType = "integer"
	TypeNumber      ParamType = "number"
	TypeBoolean     ParamType = "boolean"
	TypeStringArray ParamType = "string_array"
)

// Param describes one named tool argument.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

// Definition is one registered tool. RateLimit is requests per minute.
type Definition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Enabled     bool    `json:"enabled"`
	RateLimit   int     `json:"rate_limit"`
	Params      []Param `json:"params"`
}

// ValidationError rejects a tool invocation before any data access.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid call to %s: %s", e.Tool, e.Reason)
}

// ErrRateLimited is returned by Allow when a tool's per-minute budget is spent.
var ErrRateLimited = errors.New("tool rate limit exceeded")

// Registry is the process-owned tool catalog, created at startup and passed
// explicitly to the router and dispatcher.
type Registry struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	order   []string
	limiter Limiter
	logger  *zap.Logger
}

// New creates an empty registry.
func New(limiter Limiter, logger *zap.Logger) *Registry {
	if limiter == nil {
		limiter = NewMemoryLimiter()
	}
	return &Registry{
		defs:    make(map[string]*Definition),
		limiter: limiter,
		logger:  logger,
	}
}

// Register adds a definition. Names must be unique across the registry.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if def.Name == "" {
		return fmt.Errorf("tool definition without a name")
	}
	if _, dup := r.defs[def.Name]; dup {
		return fmt.Errorf("duplicate tool name %q", def.Name)
	}
	d := def
	r.defs[def.Name] = &d
	r.order = append(r.order, def.Name)
	return nil
}

// List returns the catalog in registration order. Disabled tools are included
// only when includeDisabled is set; they stay visible to inspection either way
// via Get.
func (r *Registry) List(includeDisabled bool) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		d := r.defs[name]
		if !d.Enabled && !includeDisabled {
			continue
		}
		out = append(out, *d)
	}
	return out
}

// Get returns a copy of one definition.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, false
	}
	return *d, true
}

// ByCategory returns enabled tools of one category, in registration order.
func (r *Registry) ByCategory(category string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Definition
	for _, name := range r.order {
		d := r.defs[name]
		if d.Category == category && d.Enabled {
			out = append(out, *d)
		}
	}
	return out
}

// SetEnabled flips a tool's enabled flag. Management surface only; never
// called mid-query.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	d.Enabled = enabled
	r.logger.Info("tool flag changed", zap.String("tool", name), zap.Bool("enabled", enabled))
	return nil
}

// Allow consults the rate limiter for one invocation of the named tool.
func (r *Registry) Allow(ctx context.Context, name string) error {
	d, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	if d.RateLimit <= 0 {
		return nil
	}
	ok, err := r.limiter.Allow(ctx, name, d.RateLimit)
	if err != nil {
		// A broken limiter must not take down the serving path.
		r.logger.Warn("rate limiter unavailable, allowing call", zap.Error(err))
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s (%d/min)", ErrRateLimited, name, d.RateLimit)
	}
	return nil
}

// Validate checks args against the named tool's schema and returns the
// coerced argument map. A disabled tool is a validation error, never a
// partial invocation.
func (r *Registry) Validate(name string, args map[string]any) (map[string]any, error) {
	d, ok := r.Get(name)
	if !ok {
		return nil, &ValidationError{Tool: name, Reason: "unknown tool"}
	}
	if !d.Enabled {
		return nil, &ValidationError{Tool: name, Reason: "tool disabled"}
	}

	known := make(map[string]Param, len(d.Params))
	for _, p := range d.Params {
		known[p.Name] = p
	}
	for arg := range args {
		if _, ok := known[arg]; !ok {
			return nil, &ValidationError{Tool: name, Reason: fmt.Sprintf("unexpected argument %q", arg)}
		}
	}

	coerced := make(map[string]any, len(args))
	for _, p := range d.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				return nil, &ValidationError{Tool: name, Reason: fmt.Sprintf("missing required argument %q", p.Name)}
			}
			continue
		}
		v, err := coerce(p, raw)
		if err != nil {
			return nil, &ValidationError{Tool: name, Reason: err.Error()}
		}
		coerced[p.Name] = v
	}
	return coerced, nil
}

// coerce converts a JSON-decoded value to the parameter's declared type and
// enforces min/max/enum constraints.
func coerce(p Param, raw any) (any, error) {
	switch p.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q must be a string", p.Name)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return s, nil
				}
			}
			return nil, fmt.Errorf("argument %q must be one of %v", p.Name, p.Enum)
		}
		return s, nil

	case TypeInteger:
		var n int
		switch v := raw.(type) {
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("argument %q must be an integer", p.Name)
			}
			n = int(v)
		case int:
			n = v
		case string:
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("argument %q must be an integer", p.Name)
			}
			n = parsed
		default:
			return nil, fmt.Errorf("argument %q must be an integer", p.Name)
		}
		if p.Min != nil && float64(n) < *p.Min {
			return nil, fmt.Errorf("argument %q below minimum %v", p.Name, *p.Min)
		}
		if p.Max != nil && float64(n) > *p.Max {
			return nil, fmt.Errorf("argument %q above maximum %v", p.Name, *p.Max)
		}
		return n, nil

	case TypeNumber:
		var n float64
		switch v := raw.(type) {
		case float64:
			n = v
		case int:
			n = float64(v)
		case string:
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %q must be a number", p.Name)
			}
			n = parsed
		default:
			return nil, fmt.Errorf("argument %q must be a number", p.Name)
		}
		if p.Min != nil && n < *p.Min {
			return nil, fmt.Errorf("argument %q below minimum %v", p.Name, *p.Min)
		}
		if p.Max != nil && n > *p.Max {
			return nil, fmt.Errorf("argument %q above maximum %v", p.Name, *p.Max)
		}
		return n, nil

	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("argument %q must be a boolean", p.Name)
		}
		return b, nil

	case TypeStringArray:
		switch v := raw.(type) {
		case []string:
			return v, nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("argument %q must be an array of strings", p.Name)
				}
				out = append(out, s)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("argument %q must be an array of strings", p.Name)
		}
	}
	return nil, fmt.Errorf("argument %q has unsupported type %q", p.Name, p.Type)
}
