package provisioning

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
)

// PublicAddressProvisioner creates dynamically allocated IPv4 addresses.
type PublicAddressProvisioner struct {
	api  PublicIPAddressesAPI
	opts Options
}

// NewPublicAddressProvisioner creates a PublicAddressProvisioner.
func NewPublicAddressProvisioner(api PublicIPAddressesAPI, opts Options) *PublicAddressProvisioner {
	return &PublicAddressProvisioner{api: api, opts: opts}
}

// BuildPublicAddress returns the create-or-update request for an address in rg.
func (p *PublicAddressProvisioner) BuildPublicAddress(rg ResourceGroupRef) armnetwork.PublicIPAddress {
	return armnetwork.PublicIPAddress{
		Location: to.Ptr(rg.Location),
		Tags:     p.opts.tags(),
		Properties: &armnetwork.PublicIPAddressPropertiesFormat{
			PublicIPAddressVersion:   to.Ptr(armnetwork.IPVersionIPv4),
			PublicIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
		},
	}
}

// Create submits the address, waits for the operation to finish and returns
// a freshly read handle.
func (p *PublicAddressProvisioner) Create(ctx context.Context, rg ResourceGroupRef, name string) (*PublicAddressHandle, error) {
	if err := validateGroup(rg); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty public address name", ErrInvalidInput)
	}

	poller, err := p.api.BeginCreateOrUpdate(ctx, rg.Name, name, p.BuildPublicAddress(rg))
	if err != nil {
		return nil, fmt.Errorf("failed to create public address %s: %w", name, err)
	}
	if _, err := poller.PollUntilDone(ctx, p.opts.pollOptions()); err != nil {
		return nil, fmt.Errorf("failed to wait for public address %s: %w", name, err)
	}

	return p.Get(ctx, rg, name)
}

// Get reads the current state of a public address.
func (p *PublicAddressProvisioner) Get(ctx context.Context, rg ResourceGroupRef, name string) (*PublicAddressHandle, error) {
	pip, err := p.api.Get(ctx, rg.Name, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get public address %s: %w", name, err)
	}

	h := &PublicAddressHandle{
		ID:       deref(pip.ID),
		Name:     deref(pip.Name),
		Location: deref(pip.Location),
	}
	if props := pip.Properties; props != nil {
		h.Address = deref(props.IPAddress)
		h.ProvisioningState = string(deref(props.ProvisioningState))
	}
	return h, nil
}
