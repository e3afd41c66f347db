// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound indicates no strategy is registered under the name.
	ErrNotFound = errors.New("strategy not found")

	// ErrAlreadyRegistered indicates the name is already taken.
	ErrAlreadyRegistered = errors.New("strategy already registered")

	// ErrNilStrategy indicates a nil strategy or a strategy without Run.
	ErrNilStrategy = errors.New("strategy must not be nil")

	// ErrEmptyName indicates a strategy without a name.
	ErrEmptyName = errors.New("strategy name must not be empty")
)

// Selector keywords accepted by Resolve.
const (
	SelectAll  = "all"
	SelectCore = "core"
)

// Registry holds the dispatch strategies available to a run.
//
// Description:
//
//	Strategies are looked up by name. Registration order is remembered so
//	listings and "all" expansions are stable: the core strategies come
//	first in their reporting order, followed by anything registered later.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]*Strategy
	order      []string
	hooks      []RegistrationHook
}

// RegistrationHook is called after a strategy is registered.
type RegistrationHook func(s *Strategy)

// NewRegistry creates an empty registry.
//
// Outputs:
//   - *Registry: The new registry. Never nil.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]*Strategy),
	}
}

// DefaultRegistry creates a registry holding every built-in strategy.
//
// Outputs:
//   - *Registry: The populated registry. Never nil.
//
// Example:
//
//	reg := strategy.DefaultRegistry()
//	s := reg.MustGet(strategy.Polymorphic)
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range Builtins() {
		r.MustRegister(s)
	}
	return r
}

// Register adds a strategy.
//
// Inputs:
//   - s: The strategy. Must have a Name and a Run function.
//
// Outputs:
//   - error: ErrNilStrategy, ErrEmptyName, or ErrAlreadyRegistered.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Register(s *Strategy) error {
	if s == nil || s.Run == nil {
		return ErrNilStrategy
	}
	if s.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[s.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, s.Name)
	}

	r.strategies[s.Name] = s
	r.order = append(r.order, s.Name)

	for _, hook := range r.hooks {
		hook(s)
	}

	return nil
}

// MustRegister registers a strategy and panics on error. For use during
// initialization only.
func (r *Registry) MustRegister(s *Strategy) {
	if err := r.Register(s); err != nil {
		panic(fmt.Sprintf("strategy: failed to register: %v", err))
	}
}

// Get retrieves a strategy by name.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Get(name string) (*Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	return s, ok
}

// MustGet retrieves a strategy by name, panicking if it is not registered.
func (r *Registry) MustGet(name string) *Strategy {
	s, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("strategy: not found: %s", name))
	}
	return s
}

// List returns all registered names, sorted.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ordered returns all registered strategies in registration order.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Ordered() []*Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Strategy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.strategies[name])
	}
	return out
}

// Count returns the number of registered strategies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

// AddHook adds a registration hook.
func (r *Registry) AddHook(hook RegistrationHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Resolve expands a selection into strategies.
//
// Description:
//
//	Each entry is a strategy name or one of the keywords "all" (every
//	registered strategy) and "core" (the core strategies). Entries are
//	trimmed and matched case-insensitively. Duplicates are dropped while
//	keeping the first occurrence. An empty selection means "core".
//
// Outputs:
//   - []*Strategy: The selected strategies in selection order.
//   - error: Wraps ErrNotFound for unknown names.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Resolve(selection []string) ([]*Strategy, error) {
	if len(selection) == 0 {
		selection = []string{SelectCore}
	}

	var out []*Strategy
	seen := make(map[string]struct{})
	add := func(s *Strategy) {
		if _, dup := seen[s.Name]; dup {
			return
		}
		seen[s.Name] = struct{}{}
		out = append(out, s)
	}

	for _, raw := range selection {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case SelectAll:
			for _, s := range r.Ordered() {
				add(s)
			}
		case SelectCore:
			for _, s := range r.Ordered() {
				if s.Core {
					add(s)
				}
			}
		default:
			s, ok := r.Get(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, raw)
			}
			add(s)
		}
	}
	return out, nil
}
