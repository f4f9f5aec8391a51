// Package secrets resolves already-decrypted provider credentials. The
// gateway treats a missing credential as a configuration problem, distinct
// from a credential the backend itself rejects.
package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrNotConfigured reports that no credential exists for a provider.
type ErrNotConfigured struct {
	Provider string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("no credential configured for provider %q", e.Provider)
}

// Provider hands out decrypted credentials per provider family.
type Provider interface {
	// GetDecryptedCredential returns the credential for a provider family,
	// or *ErrNotConfigured when none exists.
	GetDecryptedCredential(provider string) (string, error)
}

// EnvProvider reads credentials from environment variables of the form
// LUMORA_API_KEY_<PROVIDER>.
type EnvProvider struct{}

// GetDecryptedCredential implements Provider.
func (EnvProvider) GetDecryptedCredential(provider string) (string, error) {
	key := "LUMORA_API_KEY_" + strings.ToUpper(provider)
	value := os.Getenv(key)
	if value == "" {
		return "", &ErrNotConfigured{Provider: provider}
	}
	return value, nil
}

// StaticProvider serves credentials from a fixed map. Used in tests and
// for config-file supplied credentials.
type StaticProvider struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewStaticProvider creates a provider over a credential map.
func NewStaticProvider(creds map[string]string) *StaticProvider {
	copied := make(map[string]string, len(creds))
	for k, v := range creds {
		copied[k] = v
	}
	return &StaticProvider{creds: copied}
}

// GetDecryptedCredential implements Provider.
func (p *StaticProvider) GetDecryptedCredential(provider string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.creds[provider]
	if !ok || value == "" {
		return "", &ErrNotConfigured{Provider: provider}
	}
	return value, nil
}

// Chain tries providers in order and returns the first credential found.
type Chain []Provider

// GetDecryptedCredential implements Provider.
func (c Chain) GetDecryptedCredential(provider string) (string, error) {
	for _, p := range c {
		value, err := p.GetDecryptedCredential(provider)
		if err == nil {
			return value, nil
		}
	}
	return "", &ErrNotConfigured{Provider: provider}
}
