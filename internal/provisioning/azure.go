package provisioning

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

// DefaultClientOptions disables the SDK retry policy: a failed request is
// reported as-is instead of being re-sent.
func DefaultClientOptions() *arm.ClientOptions {
	return &arm.ClientOptions{
		ClientOptions: policy.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
			Telemetry: policy.TelemetryOptions{
				ApplicationID: "azvm",
			},
		},
	}
}

// NewClients builds the resource-manager clients for a subscription.
func NewClients(subscriptionID string, cred azcore.TokenCredential, options *arm.ClientOptions) (*Clients, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("%w: empty subscription ID", ErrInvalidInput)
	}
	if options == nil {
		options = DefaultClientOptions()
	}

	network, err := armnetwork.NewClientFactory(subscriptionID, cred, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create network client factory: %w", err)
	}
	compute, err := armcompute.NewClientFactory(subscriptionID, cred, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client factory: %w", err)
	}
	groups, err := armresources.NewResourceGroupsClient(subscriptionID, cred, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource groups client: %w", err)
	}

	return &Clients{
		SubscriptionID:    subscriptionID,
		ResourceGroups:    &resourceGroupsClient{client: groups},
		PublicIPAddresses: &publicIPAddressesClient{client: network.NewPublicIPAddressesClient()},
		Interfaces:        &interfacesClient{client: network.NewInterfacesClient()},
		Subnets:           &subnetsClient{client: network.NewSubnetsClient()},
		VirtualMachines:   &virtualMachinesClient{client: compute.NewVirtualMachinesClient()},
	}, nil
}

type resourceGroupsClient struct {
	client *armresources.ResourceGroupsClient
}

func (c *resourceGroupsClient) Get(ctx context.Context, name string) (armresources.ResourceGroup, error) {
	resp, err := c.client.Get(ctx, name, nil)
	if err != nil {
		return armresources.ResourceGroup{}, err
	}
	return resp.ResourceGroup, nil
}

type publicIPAddressesClient struct {
	client *armnetwork.PublicIPAddressesClient
}

func (c *publicIPAddressesClient) BeginCreateOrUpdate(ctx context.Context, resourceGroup, name string, params armnetwork.PublicIPAddress) (Poller[armnetwork.PublicIPAddressesClientCreateOrUpdateResponse], error) {
	poller, err := c.client.BeginCreateOrUpdate(ctx, resourceGroup, name, params, nil)
	if err != nil {
		return nil, err
	}
	return poller, nil
}

func (c *publicIPAddressesClient) Get(ctx context.Context, resourceGroup, name string) (armnetwork.PublicIPAddress, error) {
	resp, err := c.client.Get(ctx, resourceGroup, name, nil)
	if err != nil {
		return armnetwork.PublicIPAddress{}, err
	}
	return resp.PublicIPAddress, nil
}

type interfacesClient struct {
	client *armnetwork.InterfacesClient
}

func (c *interfacesClient) BeginCreateOrUpdate(ctx context.Context, resourceGroup, name string, params armnetwork.Interface) (Poller[armnetwork.InterfacesClientCreateOrUpdateResponse], error) {
	poller, err := c.client.BeginCreateOrUpdate(ctx, resourceGroup, name, params, nil)
	if err != nil {
		return nil, err
	}
	return poller, nil
}

func (c *interfacesClient) Get(ctx context.Context, resourceGroup, name string) (armnetwork.Interface, error) {
	resp, err := c.client.Get(ctx, resourceGroup, name, nil)
	if err != nil {
		return armnetwork.Interface{}, err
	}
	return resp.Interface, nil
}

type subnetsClient struct {
	client *armnetwork.SubnetsClient
}

func (c *subnetsClient) Get(ctx context.Context, resourceGroup, vnet, subnet string) (armnetwork.Subnet, error) {
	resp, err := c.client.Get(ctx, resourceGroup, vnet, subnet, nil)
	if err != nil {
		return armnetwork.Subnet{}, err
	}
	return resp.Subnet, nil
}

type virtualMachinesClient struct {
	client *armcompute.VirtualMachinesClient
}

func (c *virtualMachinesClient) BeginCreateOrUpdate(ctx context.Context, resourceGroup, name string, params armcompute.VirtualMachine) (Poller[armcompute.VirtualMachinesClientCreateOrUpdateResponse], error) {
	poller, err := c.client.BeginCreateOrUpdate(ctx, resourceGroup, name, params, nil)
	if err != nil {
		return nil, err
	}
	return poller, nil
}

func (c *virtualMachinesClient) Get(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachine, error) {
	resp, err := c.client.Get(ctx, resourceGroup, name, nil)
	if err != nil {
		return armcompute.VirtualMachine{}, err
	}
	return resp.VirtualMachine, nil
}

func (c *virtualMachinesClient) BeginDeallocate(ctx context.Context, resourceGroup, name string) (Poller[armcompute.VirtualMachinesClientDeallocateResponse], error) {
	poller, err := c.client.BeginDeallocate(ctx, resourceGroup, name, nil)
	if err != nil {
		return nil, err
	}
	return poller, nil
}

func (c *virtualMachinesClient) BeginStart(ctx context.Context, resourceGroup, name string) (Poller[armcompute.VirtualMachinesClientStartResponse], error) {
	poller, err := c.client.BeginStart(ctx, resourceGroup, name, nil)
	if err != nil {
		return nil, err
	}
	return poller, nil
}

func (c *virtualMachinesClient) InstanceView(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachineInstanceView, error) {
	resp, err := c.client.InstanceView(ctx, resourceGroup, name, nil)
	if err != nil {
		return armcompute.VirtualMachineInstanceView{}, err
	}
	return resp.VirtualMachineInstanceView, nil
}
