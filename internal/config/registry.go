package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ogulcanz/sesquiz/pkg/speech/input"
	"github.com/ogulcanz/sesquiz/pkg/speech/output"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	output map[string]func(ProviderEntry) (output.Provider, error)
	input  map[string]func(ProviderEntry) (input.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		output: make(map[string]func(ProviderEntry) (output.Provider, error)),
		input:  make(map[string]func(ProviderEntry) (input.Provider, error)),
	}
}

// RegisterOutput registers a speech synthesis provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterOutput(name string, factory func(ProviderEntry) (output.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output[name] = factory
}

// RegisterInput registers a speech recognition provider factory under name.
func (r *Registry) RegisterInput(name string, factory func(ProviderEntry) (input.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input[name] = factory
}

// CreateOutput instantiates a synthesis provider using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateOutput(entry ProviderEntry) (output.Provider, error) {
	r.mu.RLock()
	factory, ok := r.output[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: output/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateInput instantiates a recognition provider using the factory registered
// under entry.Name.
func (r *Registry) CreateInput(entry ProviderEntry) (input.Provider, error) {
	r.mu.RLock()
	factory, ok := r.input[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: input/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
