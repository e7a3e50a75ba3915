package provider

import (
	"context"
	"fmt"

	"github.com/tenantkit/secrets/internal/config"
	apperrors "github.com/tenantkit/secrets/internal/errors"
)

// NewProvider selects and constructs exactly one secret-store provider from
// configuration, initializes it, and returns it ready for use. Unsupported
// or misconfigured provider types fail here with a capability error; there is
// no silent fallback.
func NewProvider(ctx context.Context, cfg *config.Config) (SecretStoreProvider, error) {
	var (
		p   SecretStoreProvider
		err error
	)

	switch cfg.ProviderType {
	case "vault":
		p, err = NewVaultProvider(VaultConfig{
			Address:      cfg.VaultAddress,
			Token:        cfg.VaultToken,
			Namespace:    cfg.VaultNamespace,
			KVMount:      cfg.VaultKVMount,
			TransitMount: cfg.VaultTransitMount,
		})
		if err != nil {
			return nil, err
		}
	case "local":
		if cfg.Environment == config.EnvProduction {
			return nil, apperrors.Wrap(
				apperrors.ErrUnsupported,
				"local secret-store provider is not allowed in production",
			)
		}
		p = NewLocalProvider(cfg.LocalKeeperURI)
	case "aws", "azure", "gcp":
		// Recognized but not implemented: reject at construction so the
		// misconfiguration surfaces at startup, not mid-request.
		return nil, apperrors.Wrap(
			apperrors.ErrUnsupported,
			fmt.Sprintf("provider type %q is not implemented", cfg.ProviderType),
		)
	default:
		return nil, apperrors.Wrap(
			apperrors.ErrUnsupported,
			fmt.Sprintf("unknown provider type %q", cfg.ProviderType),
		)
	}

	if err := p.Initialize(ctx); err != nil {
		return nil, apperrors.Wrap(err, "provider initialization failed")
	}
	return p, nil
}
