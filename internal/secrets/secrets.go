// Package secrets looks up credentials and other values that must not live
// in the configuration file.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var ErrNotFound = errors.New("secret not found")

type Provider interface {
	// GetSecret returns the value stored under name, or an error wrapping
	// ErrNotFound.
	GetSecret(ctx context.Context, name string) (string, error)
}

// EnvProvider reads secrets from environment variables, optionally
// namespaced by a prefix.
type EnvProvider struct {
	Prefix string
}

func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	value, ok := os.LookupEnv(p.Prefix + name)
	if !ok {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, p.Prefix+name)
	}

	return value, nil
}

// StaticProvider serves secrets from a fixed map.
type StaticProvider map[string]string

func (p StaticProvider) GetSecret(_ context.Context, name string) (string, error) {
	value, ok := p[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return value, nil
}
