package adapters

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNoProviderForChannel is returned when no messenger can satisfy a
// channel. It is a configuration-class failure, never retried.
var ErrNoProviderForChannel = errors.New("adapters: no provider for channel")

// Registry stores available messengers and resolves a channel (plus an
// optional service-level pin) to a concrete provider. Selection is
// stateless; the returned messenger is consumed by the dispatcher.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Messenger
	byChannel map[string][]Messenger
	defaults  map[string]string
}

// NewRegistry builds a registry with the supplied messengers.
func NewRegistry(messengers ...Messenger) *Registry {
	reg := &Registry{
		adapters:  make(map[string]Messenger),
		byChannel: make(map[string][]Messenger),
		defaults:  make(map[string]string),
	}
	for _, m := range messengers {
		reg.Register(m)
	}
	return reg
}

// Register adds a messenger, indexing by provider name and supported channels.
func (r *Registry) Register(m Messenger) {
	if r == nil || m == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := normalizeKey(m.Name())
	if name != "" {
		r.adapters[name] = m
	}
	for _, channel := range m.Capabilities().Channels {
		key := normalizeKey(channel)
		if key == "" {
			continue
		}
		r.byChannel[key] = append(r.byChannel[key], m)
	}
}

// SetDefault pins the default provider used for a channel when the service
// configuration carries no override.
func (r *Registry) SetDefault(channel, provider string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[normalizeKey(channel)] = normalizeKey(provider)
}

// Route resolves the messenger for a channel. A non-empty pin (service
// configuration override) wins; otherwise the channel default applies;
// otherwise the first registered messenger for the channel.
func (r *Registry) Route(channel, pin string) (Messenger, error) {
	if r == nil {
		return nil, ErrNoProviderForChannel
	}
	key := normalizeKey(channel)
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name := normalizeKey(pin); name != "" {
		adapter, ok := r.adapters[name]
		if !ok || !adapter.Capabilities().Supports(key) {
			return nil, fmt.Errorf("provider %q on channel %q: %w", pin, channel, ErrNoProviderForChannel)
		}
		return adapter, nil
	}
	if name := r.defaults[key]; name != "" {
		if adapter, ok := r.adapters[name]; ok && adapter.Capabilities().Supports(key) {
			return adapter, nil
		}
	}
	candidates := r.byChannel[key]
	if len(candidates) == 0 {
		return nil, fmt.Errorf("channel %q: %w", channel, ErrNoProviderForChannel)
	}
	return candidates[0], nil
}

// Describe returns a human-readable summary of the registry entries.
func (r *Registry) Describe() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for name, adapter := range r.adapters {
		caps := adapter.Capabilities()
		out = append(out, fmt.Sprintf("%s (%s)", name, strings.Join(caps.Channels, ",")))
	}
	return out
}
