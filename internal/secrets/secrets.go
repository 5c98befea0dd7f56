// Package secrets resolves secret references held by datasources.
//
// Supported references:
//
//	env:NAME                    value of environment variable NAME
//	vault:MOUNT/PATH#FIELD      field of a KV v2 secret in Vault
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported secret reference scheme")
	ErrNotFound          = errors.New("secret not found")
)

// Resolver turns a secret reference into its value.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Manager resolves env: references locally and vault: references through
// a Vault client when one is configured.
type Manager struct {
	vault     *vaultapi.Client
	lookupEnv func(string) (string, bool)
}

// NewManager builds a Manager. An empty vaultAddr disables vault: references.
func NewManager(vaultAddr, vaultToken string) (*Manager, error) {
	m := &Manager{lookupEnv: os.LookupEnv}
	if vaultAddr == "" {
		return m, nil
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = vaultAddr
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if vaultToken != "" {
		client.SetToken(vaultToken)
	}
	m.vault = client
	return m, nil
}

func (m *Manager) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return "", fmt.Errorf("%w: %q has no scheme", ErrUnsupportedScheme, ref)
	}

	switch scheme {
	case "env":
		v, found := m.lookupEnv(rest)
		if !found {
			return "", fmt.Errorf("%w: environment variable %s", ErrNotFound, rest)
		}
		return v, nil
	case "vault":
		return m.resolveVault(ctx, rest)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
}

func (m *Manager) resolveVault(ctx context.Context, ref string) (string, error) {
	if m.vault == nil {
		return "", fmt.Errorf("%w: vault is not configured", ErrUnsupportedScheme)
	}
	path, field, ok := strings.Cut(ref, "#")
	if !ok || field == "" {
		return "", fmt.Errorf("vault reference %q must end with #field", ref)
	}
	mount, secretPath, ok := strings.Cut(strings.Trim(path, "/"), "/")
	if !ok {
		return "", fmt.Errorf("vault reference %q must be mount/path#field", ref)
	}

	secret, err := m.vault.KVv2(mount).Get(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s from vault: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	v, ok := secret.Data[field].(string)
	if !ok {
		return "", fmt.Errorf("%w: field %s in %s", ErrNotFound, field, path)
	}
	return v, nil
}
