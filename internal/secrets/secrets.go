package secrets

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotFound is returned when a secret is not configured.
var ErrNotFound = errors.New("secret not found")

// Store provides named credentials to adapters. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the secret value for name, or ErrNotFound
	Get(name string) (string, error)
}

// EnvStore reads secrets from process environment variables.
type EnvStore struct{}

// NewEnvStore creates an environment-backed secret store
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

// Get returns the environment variable value for name
func (s *EnvStore) Get(name string) (string, error) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}

// StaticStore serves secrets from a fixed map, for tests and local tooling.
type StaticStore struct {
	values map[string]string
}

// NewStaticStore creates a store over the given values
func NewStaticStore(values map[string]string) *StaticStore {
	return &StaticStore{values: values}
}

// Get returns the mapped value for name
func (s *StaticStore) Get(name string) (string, error) {
	value, ok := s.values[name]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}
