package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Record is a registered adapter. Records are never mutated after registration.
type Record struct {
	Name         string
	Adapter      Adapter
	DefaultModel string
}

// Registry holds named adapters and tracks the current and default provider.
// It is an explicit object handed to the dispatcher; each test can build its own.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	records     map[string]Record
	defaultName string
	currentName string
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]Record),
	}
}

// Register validates the adapter's configuration and stores it under name.
// On failure nothing is stored and the validation error is returned; the
// caller decides whether a missing provider is fatal.
func (r *Registry) Register(name string, a Adapter) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("provider name must not be empty")
	}
	if a == nil {
		return errors.New("provider must not be nil")
	}

	if err := a.ValidateConfig(); err != nil {
		slog.Warn("provider failed validation", "provider", name, "err", err)
		return fmt.Errorf("register provider %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	r.records[name] = Record{
		Name:         name,
		Adapter:      a,
		DefaultModel: a.DefaultModel(),
	}
	r.order = append(r.order, name)

	slog.Info("provider registered", "provider", name, "default_model", a.DefaultModel())
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(name)
}

func (r *Registry) getLocked(name string) (Adapter, error) {
	rec, ok := r.records[name]
	if !ok {
		return nil, r.unknownLocked(name)
	}
	return rec.Adapter, nil
}

func (r *Registry) unknownLocked(name string) error {
	if len(r.order) == 0 {
		return fmt.Errorf("%w: %q (no providers registered)", ErrUnknownProvider, name)
	}
	return fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, name, strings.Join(r.order, ", "))
}

// SetCurrent selects the provider used when a request names none.
func (r *Registry) SetCurrent(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[name]; !ok {
		return r.unknownLocked(name)
	}
	previous := r.currentName
	r.currentName = name
	if previous != "" && previous != name {
		slog.Info("switching provider", "from", previous, "to", name)
	}
	return nil
}

// SetDefault selects the fallback used when no current provider is set.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[name]; !ok {
		return r.unknownLocked(name)
	}
	r.defaultName = name
	return nil
}

// Current resolves the current provider, falling back to the default.
func (r *Registry) Current() (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := r.resolvedNameLocked()
	if name == "" {
		return nil, fmt.Errorf("%w: no current or default provider selected", ErrUnknownProvider)
	}
	return r.getLocked(name)
}

// Resolve returns the override's adapter when override is set, else Current.
func (r *Registry) Resolve(override string) (Adapter, error) {
	if override = strings.TrimSpace(override); override != "" {
		return r.Get(override)
	}
	return r.Current()
}

// CurrentName returns the name Current would resolve to, or "".
func (r *Registry) CurrentName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolvedNameLocked()
}

// DefaultName returns the default provider name, or "".
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

func (r *Registry) resolvedNameLocked() string {
	if r.currentName != "" {
		return r.currentName
	}
	return r.defaultName
}

// List returns registered names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Records returns the registered records in registration order.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.records[name])
	}
	return out
}
