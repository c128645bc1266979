package secret

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Environment is the process environment as seen by one mirror run. It
// satisfies envconfig.Lookuper so configuration can be decoded from it, and
// it is the only channel through which providers publish agent state
// (SSH_AUTH_SOCK, SSH_AGENT_PID, GIT_SSH_COMMAND) to child processes.
type Environment interface {
	Lookup(key string) (string, bool)
	Setenv(key, value string) error
	Unsetenv(key string) error
}

// OSEnvironment implements Environment over the real process environment.
// This is the production implementation; child processes started through
// os/exec inherit every change made here.
type OSEnvironment struct{}

// NewOSEnvironment creates an Environment backed by the process environment
func NewOSEnvironment() *OSEnvironment {
	return &OSEnvironment{}
}

// Lookup implements Environment.Lookup
func (OSEnvironment) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Setenv implements Environment.Setenv
func (OSEnvironment) Setenv(key, value string) error {
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("failed to set environment variable %s: %w", key, err)
	}
	return nil
}

// Unsetenv implements Environment.Unsetenv
func (OSEnvironment) Unsetenv(key string) error {
	if err := os.Unsetenv(key); err != nil {
		return fmt.Errorf("failed to unset environment variable %s: %w", key, err)
	}
	return nil
}

// MemoryEnvironment provides an in-memory implementation of Environment.
// It is intended for tests, where mutating the real process environment
// would leak between cases.
type MemoryEnvironment struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMemoryEnvironment creates a MemoryEnvironment seeded with vars.
func NewMemoryEnvironment(vars map[string]string) *MemoryEnvironment {
	m := &MemoryEnvironment{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		m.vars[k] = v
	}
	return m
}

// Lookup implements Environment.Lookup
func (m *MemoryEnvironment) Lookup(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vars[key]
	return v, ok
}

// Setenv implements Environment.Setenv
func (m *MemoryEnvironment) Setenv(key, value string) error {
	if key == "" || strings.ContainsAny(key, "=\x00") {
		return fmt.Errorf("invalid environment variable name %q", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.vars[key] = value
	return nil
}

// Unsetenv implements Environment.Unsetenv
func (m *MemoryEnvironment) Unsetenv(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.vars, key)
	return nil
}

// Keys returns the sorted variable names currently set.
func (m *MemoryEnvironment) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.vars))
	for k := range m.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
