package config

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Holder serves the current configuration and can reload it from its file.
// Readers always see a complete, validated Config.
type Holder struct {
	path    string
	current atomic.Pointer[Config]
}

// NewHolder wraps an already loaded configuration. path is used by Reload
// and may be empty.
func NewHolder(path string, cfg *Config) *Holder {
	h := &Holder{path: path}
	h.current.Store(cfg)
	return h
}

// Get returns the current configuration. Callers must not modify it.
func (h *Holder) Get() *Config {
	return h.current.Load()
}

// Reload re-reads the file and swaps the configuration in. On error the
// previous configuration stays in effect.
func (h *Holder) Reload() (*Config, error) {
	cfg, err := Load(h.path)
	if err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}
	h.current.Store(cfg)
	return cfg, nil
}

// SeriesTTL returns the TTL of the current configuration, so writes pick up
// reloaded values.
func (h *Holder) SeriesTTL() time.Duration {
	return h.Get().SeriesTTL()
}
