package provisioning

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
)

// PrimaryIPConfigurationName is the name of the only IP configuration a
// created interface carries.
const PrimaryIPConfigurationName = "Primary"

// NetworkInterfaceProvisioner creates interfaces bound to a subnet and a
// public address.
type NetworkInterfaceProvisioner struct {
	api     InterfacesAPI
	subnets SubnetsAPI
	opts    Options
}

// NewNetworkInterfaceProvisioner creates a NetworkInterfaceProvisioner.
func NewNetworkInterfaceProvisioner(api InterfacesAPI, subnets SubnetsAPI, opts Options) *NetworkInterfaceProvisioner {
	return &NetworkInterfaceProvisioner{api: api, subnets: subnets, opts: opts}
}

// ResolveSubnet returns the ID of an existing subnet.
func (p *NetworkInterfaceProvisioner) ResolveSubnet(ctx context.Context, rg ResourceGroupRef, vnetName, subnetName string) (string, error) {
	if vnetName == "" || subnetName == "" {
		return "", fmt.Errorf("%w: virtual network and subnet names are required", ErrInvalidInput)
	}
	subnet, err := p.subnets.Get(ctx, rg.Name, vnetName, subnetName)
	if err != nil {
		return "", fmt.Errorf("failed to get subnet %s/%s: %w", vnetName, subnetName, err)
	}
	id := deref(subnet.ID)
	if id == "" {
		return "", fmt.Errorf("%w: subnet %s/%s has no ID", ErrInvalidInput, vnetName, subnetName)
	}
	return id, nil
}

// BuildNetworkInterface returns the create-or-update request: exactly one
// IP configuration, marked primary, with dynamic private allocation.
func (p *NetworkInterfaceProvisioner) BuildNetworkInterface(rg ResourceGroupRef, subnetID string, pip *PublicAddressHandle) armnetwork.Interface {
	return armnetwork.Interface{
		Location: to.Ptr(rg.Location),
		Tags:     p.opts.tags(),
		Properties: &armnetwork.InterfacePropertiesFormat{
			IPConfigurations: []*armnetwork.InterfaceIPConfiguration{
				{
					Name: to.Ptr(PrimaryIPConfigurationName),
					Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
						Primary:                   to.Ptr(true),
						PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
						Subnet:                    &armnetwork.Subnet{ID: to.Ptr(subnetID)},
						PublicIPAddress:           &armnetwork.PublicIPAddress{ID: to.Ptr(pip.ID)},
					},
				},
			},
		},
	}
}

// Create resolves the subnet, submits the interface, waits for the operation
// to finish and returns a freshly read handle. A public address that has not
// finished provisioning is rejected before any remote call.
func (p *NetworkInterfaceProvisioner) Create(ctx context.Context, rg ResourceGroupRef, vnetName, subnetName, nicName string, pip *PublicAddressHandle) (*NetworkInterfaceHandle, error) {
	if err := validateGroup(rg); err != nil {
		return nil, err
	}
	if nicName == "" {
		return nil, fmt.Errorf("%w: empty network interface name", ErrInvalidInput)
	}
	if !pip.Provisioned() {
		return nil, fmt.Errorf("%w: public address for %s", ErrNotProvisioned, nicName)
	}

	subnetID, err := p.ResolveSubnet(ctx, rg, vnetName, subnetName)
	if err != nil {
		return nil, err
	}

	poller, err := p.api.BeginCreateOrUpdate(ctx, rg.Name, nicName, p.BuildNetworkInterface(rg, subnetID, pip))
	if err != nil {
		return nil, fmt.Errorf("failed to create network interface %s: %w", nicName, err)
	}
	if _, err := poller.PollUntilDone(ctx, p.opts.pollOptions()); err != nil {
		return nil, fmt.Errorf("failed to wait for network interface %s: %w", nicName, err)
	}

	return p.Get(ctx, rg, nicName)
}

// Get reads the current state of an interface, including the private
// address assigned to its primary configuration.
func (p *NetworkInterfaceProvisioner) Get(ctx context.Context, rg ResourceGroupRef, name string) (*NetworkInterfaceHandle, error) {
	nic, err := p.api.Get(ctx, rg.Name, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get network interface %s: %w", name, err)
	}

	h := &NetworkInterfaceHandle{
		ID:       deref(nic.ID),
		Name:     deref(nic.Name),
		Location: deref(nic.Location),
	}
	if props := nic.Properties; props != nil {
		h.ProvisioningState = string(deref(props.ProvisioningState))
		if cfg := primaryIPConfiguration(props.IPConfigurations); cfg != nil && cfg.Properties != nil {
			h.PrivateAddress = deref(cfg.Properties.PrivateIPAddress)
			if cfg.Properties.Subnet != nil {
				h.SubnetID = deref(cfg.Properties.Subnet.ID)
			}
			if cfg.Properties.PublicIPAddress != nil {
				h.PublicAddressID = deref(cfg.Properties.PublicIPAddress.ID)
			}
		}
	}
	return h, nil
}

func primaryIPConfiguration(cfgs []*armnetwork.InterfaceIPConfiguration) *armnetwork.InterfaceIPConfiguration {
	for _, cfg := range cfgs {
		if cfg != nil && cfg.Properties != nil && deref(cfg.Properties.Primary) {
			return cfg
		}
	}
	if len(cfgs) == 1 {
		return cfgs[0]
	}
	return nil
}
