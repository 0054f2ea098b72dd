// Package provisioning creates the public address, network interface and
// virtual machine of a run against Azure Resource Manager, and drives the
// machine's deallocate/power-on lifecycle.
//
// Every mutation is a two-phase interaction: begin the create-or-update (or
// lifecycle action), then block on the returned poller until the remote
// operation reports a terminal state. Creates are followed by a fresh read
// of the resource, because the create response is not guaranteed current.
// Remote failures are returned wrapped with %w and are never retried here.
package provisioning

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

var (
	// ErrNotProvisioned is returned when a dependency handle has not reached
	// the Succeeded provisioning state. No remote request is made.
	ErrNotProvisioned = errors.New("dependency not fully provisioned")

	// ErrInvalidInput is returned for empty names or missing references.
	ErrInvalidInput = errors.New("invalid input")
)

// ProvisioningStateSucceeded is the terminal success state shared by the
// network and compute resource providers.
const ProvisioningStateSucceeded = "Succeeded"

// ResourceGroupRef is a pre-existing resource group. All created resources
// inherit its location.
type ResourceGroupRef struct {
	ID       string
	Name     string
	Location string
}

// PublicAddressHandle is a created public IP address. Address stays empty
// until the platform allocates one (dynamic allocation binds it only once
// the owning machine runs).
type PublicAddressHandle struct {
	ID                string
	Name              string
	Location          string
	Address           string
	ProvisioningState string
}

// Provisioned reports whether the address reached the Succeeded state.
func (h *PublicAddressHandle) Provisioned() bool {
	return h != nil && h.ID != "" && h.ProvisioningState == ProvisioningStateSucceeded
}

// NetworkInterfaceHandle is a created network interface.
type NetworkInterfaceHandle struct {
	ID                string
	Name              string
	Location          string
	SubnetID          string
	PublicAddressID   string
	PrivateAddress    string
	ProvisioningState string
}

// Provisioned reports whether the interface reached the Succeeded state.
func (h *NetworkInterfaceHandle) Provisioned() bool {
	return h != nil && h.ID != "" && h.ProvisioningState == ProvisioningStateSucceeded
}

// VirtualMachineHandle is a created virtual machine. Power state is not
// tracked here; read it with LifecycleController.PowerState.
type VirtualMachineHandle struct {
	ID                 string
	Name               string
	ResourceGroup      string
	Location           string
	NetworkInterfaceID string
	ProvisioningState  string
}

// Poller is the part of *runtime.Poller the provisioners use.
type Poller[T any] interface {
	PollUntilDone(ctx context.Context, options *runtime.PollUntilDoneOptions) (T, error)
}

// ResourceGroupsAPI reads resource groups.
type ResourceGroupsAPI interface {
	Get(ctx context.Context, name string) (armresources.ResourceGroup, error)
}

// PublicIPAddressesAPI creates and reads public IP addresses.
type PublicIPAddressesAPI interface {
	BeginCreateOrUpdate(ctx context.Context, resourceGroup, name string, params armnetwork.PublicIPAddress) (Poller[armnetwork.PublicIPAddressesClientCreateOrUpdateResponse], error)
	Get(ctx context.Context, resourceGroup, name string) (armnetwork.PublicIPAddress, error)
}

// InterfacesAPI creates and reads network interfaces.
type InterfacesAPI interface {
	BeginCreateOrUpdate(ctx context.Context, resourceGroup, name string, params armnetwork.Interface) (Poller[armnetwork.InterfacesClientCreateOrUpdateResponse], error)
	Get(ctx context.Context, resourceGroup, name string) (armnetwork.Interface, error)
}

// SubnetsAPI reads subnets of an existing virtual network.
type SubnetsAPI interface {
	Get(ctx context.Context, resourceGroup, vnet, subnet string) (armnetwork.Subnet, error)
}

// VirtualMachinesAPI creates, reads and power-cycles virtual machines.
type VirtualMachinesAPI interface {
	BeginCreateOrUpdate(ctx context.Context, resourceGroup, name string, params armcompute.VirtualMachine) (Poller[armcompute.VirtualMachinesClientCreateOrUpdateResponse], error)
	Get(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachine, error)
	BeginDeallocate(ctx context.Context, resourceGroup, name string) (Poller[armcompute.VirtualMachinesClientDeallocateResponse], error)
	BeginStart(ctx context.Context, resourceGroup, name string) (Poller[armcompute.VirtualMachinesClientStartResponse], error)
	InstanceView(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachineInstanceView, error)
}

// Clients groups the resource-manager APIs used by one run. It is built
// once by the caller and shared by every provisioner.
type Clients struct {
	SubscriptionID    string
	ResourceGroups    ResourceGroupsAPI
	PublicIPAddresses PublicIPAddressesAPI
	Interfaces        InterfacesAPI
	Subnets           SubnetsAPI
	VirtualMachines   VirtualMachinesAPI
}

// Options tunes how requests are built and awaited.
type Options struct {
	// PollFrequency is the interval between long-running operation polls.
	// Zero uses the SDK default.
	PollFrequency time.Duration

	// Tags are attached to every created resource.
	Tags map[string]string

	// VMSize is the hardware profile of created machines.
	VMSize armcompute.VirtualMachineSizeTypes
}

// DefaultOptions returns the Standard_B2ms size and SDK polling defaults.
func DefaultOptions() Options {
	return Options{VMSize: armcompute.VirtualMachineSizeTypesStandardB2Ms}
}

func (o Options) pollOptions() *runtime.PollUntilDoneOptions {
	if o.PollFrequency <= 0 {
		return nil
	}
	return &runtime.PollUntilDoneOptions{Frequency: o.PollFrequency}
}

func (o Options) tags() map[string]*string {
	if len(o.Tags) == 0 {
		return nil
	}
	tags := make(map[string]*string, len(o.Tags))
	for k, v := range o.Tags {
		tags[k] = &v
	}
	return tags
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
