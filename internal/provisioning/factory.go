package provisioning

import (
	"fmt"

	"azvm/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
)

// NewCredential creates a token credential based on config type.
func NewCredential(cfg config.AzureConfig) (azcore.TokenCredential, error) {
	switch cfg.Credential {
	case config.CredentialDefault, "":
		return azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			TenantID: cfg.TenantID,
		})

	case config.CredentialClientSecret:
		return azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)

	case config.CredentialManagedIdentity:
		opts := &azidentity.ManagedIdentityCredentialOptions{}
		if cfg.ClientID != "" {
			opts.ID = azidentity.ClientID(cfg.ClientID)
		}
		return azidentity.NewManagedIdentityCredential(opts)

	case config.CredentialCLI:
		return azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{
			TenantID: cfg.TenantID,
		})

	default:
		return nil, fmt.Errorf("unsupported credential type: %s", cfg.Credential)
	}
}

// NewClientsFromConfig resolves credentials and builds the clients.
func NewClientsFromConfig(cfg config.AzureConfig) (*Clients, error) {
	cred, err := NewCredential(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	return NewClients(cfg.SubscriptionID, cred, DefaultClientOptions())
}

// OptionsFromConfig extracts request options from the configuration.
func OptionsFromConfig(cfg config.Config, tags map[string]string) Options {
	opts := DefaultOptions()
	opts.PollFrequency = cfg.Polling.Frequency
	opts.Tags = tags
	if cfg.Resources.VMSize != "" {
		opts.VMSize = armcompute.VirtualMachineSizeTypes(cfg.Resources.VMSize)
	}
	return opts
}

// ImageSourceFromConfig picks the image variant named by image_kind.
func ImageSourceFromConfig(cfg config.ResourcesConfig) (ImageSource, error) {
	switch cfg.ImageKind {
	case config.ImageGeneralized, "":
		return FromImage{
			ImageID:       cfg.ImageID,
			AdminUsername: cfg.AdminUsername,
			AdminPassword: cfg.AdminPassword,
		}, nil
	case config.ImageSpecialized:
		return FromSpecializedImage{ImageID: cfg.ImageID}, nil
	default:
		return nil, fmt.Errorf("unsupported image kind: %s", cfg.ImageKind)
	}
}
