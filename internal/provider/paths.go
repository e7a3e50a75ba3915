package provider

import (
	"fmt"
	"strings"

	"github.com/tenantkit/secrets/internal/validation"
)

// Tenant path formats. These are bit-exact and shared by every backend so a
// secret written through one provider is addressable through another pointed
// at the same store.
const (
	tenantSecretsRootFormat = "secret/data/tenants/%s/secrets"
	tenantKeysRootFormat    = "transit/keys/tenants/%s"
	tenantKeyRotationFormat = "transit/keys/tenants/%s/rotation"
)

// TenantPathsFor derives the namespaced path roots for a tenant. The id is
// validated first; paths are never derived from unvalidated input.
func TenantPathsFor(tenantID string) (TenantPaths, error) {
	if err := validation.ValidateTenantID(tenantID); err != nil {
		return TenantPaths{}, err
	}

	return TenantPaths{
		Secrets:        fmt.Sprintf(tenantSecretsRootFormat, tenantID),
		EncryptionKeys: fmt.Sprintf(tenantKeysRootFormat, tenantID),
		KeyRotation:    fmt.Sprintf(tenantKeyRotationFormat, tenantID),
	}, nil
}

// SecretPath joins a tenant secrets root with a secret id, yielding
// secret/data/tenants/{tenantId}/secrets/{secretId}.
func (p TenantPaths) SecretPath(secretID string) string {
	return p.Secrets + "/" + secretID
}

// KeyName derives the backend-side name for a tenant key. Names are relative
// to the key mount, so transit/keys/tenants/{tenantId} plus {keyId} yields
// tenants/{tenantId}/{keyId}.
func (p TenantPaths) KeyName(keyID string) string {
	return strings.TrimPrefix(p.EncryptionKeys, "transit/keys/") + "/" + keyID
}
