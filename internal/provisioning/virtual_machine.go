package provisioning

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
)

// ImageSource selects how the OS disk is seeded. It is either FromImage,
// which sets up a fresh OS identity, or FromSpecializedImage, whose OS
// identity is already baked into the image. The remote API rejects OS
// credentials for specialized images, so the two are mutually exclusive.
type ImageSource interface {
	imageID() string
	osProfile(computerName string) *armcompute.OSProfile
	validate() error
}

// FromImage provisions from a generalized image and sets admin credentials.
type FromImage struct {
	ImageID       string
	AdminUsername string
	AdminPassword string
}

func (s FromImage) imageID() string { return s.ImageID }

func (s FromImage) osProfile(computerName string) *armcompute.OSProfile {
	return &armcompute.OSProfile{
		ComputerName:  to.Ptr(computerName),
		AdminUsername: to.Ptr(s.AdminUsername),
		AdminPassword: to.Ptr(s.AdminPassword),
	}
}

func (s FromImage) validate() error {
	if s.ImageID == "" {
		return fmt.Errorf("%w: empty image ID", ErrInvalidInput)
	}
	if s.AdminUsername == "" || s.AdminPassword == "" {
		return fmt.Errorf("%w: generalized images require an admin username and password", ErrInvalidInput)
	}
	return nil
}

// FromSpecializedImage provisions from a specialized image; no OS profile
// is sent.
type FromSpecializedImage struct {
	ImageID string
}

func (s FromSpecializedImage) imageID() string { return s.ImageID }

func (FromSpecializedImage) osProfile(string) *armcompute.OSProfile { return nil }

func (s FromSpecializedImage) validate() error {
	if s.ImageID == "" {
		return fmt.Errorf("%w: empty image ID", ErrInvalidInput)
	}
	return nil
}

// VirtualMachineProvisioner creates Windows machines attached to a single
// network interface.
type VirtualMachineProvisioner struct {
	api  VirtualMachinesAPI
	opts Options
}

// NewVirtualMachineProvisioner creates a VirtualMachineProvisioner.
func NewVirtualMachineProvisioner(api VirtualMachinesAPI, opts Options) *VirtualMachineProvisioner {
	if opts.VMSize == "" {
		opts.VMSize = armcompute.VirtualMachineSizeTypesStandardB2Ms
	}
	return &VirtualMachineProvisioner{api: api, opts: opts}
}

// BuildVirtualMachine returns the create-or-update request. The OS profile
// is present for FromImage and absent for FromSpecializedImage.
func (p *VirtualMachineProvisioner) BuildVirtualMachine(rg ResourceGroupRef, nic *NetworkInterfaceHandle, vmName string, src ImageSource) (armcompute.VirtualMachine, error) {
	if err := validateGroup(rg); err != nil {
		return armcompute.VirtualMachine{}, err
	}
	if vmName == "" {
		return armcompute.VirtualMachine{}, fmt.Errorf("%w: empty virtual machine name", ErrInvalidInput)
	}
	if src == nil {
		return armcompute.VirtualMachine{}, fmt.Errorf("%w: no image source", ErrInvalidInput)
	}
	if err := src.validate(); err != nil {
		return armcompute.VirtualMachine{}, err
	}
	if !nic.Provisioned() {
		return armcompute.VirtualMachine{}, fmt.Errorf("%w: network interface for %s", ErrNotProvisioned, vmName)
	}

	return armcompute.VirtualMachine{
		Location: to.Ptr(rg.Location),
		Tags:     p.opts.tags(),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(p.opts.VMSize),
			},
			OSProfile: src.osProfile(vmName),
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{
					{
						ID: to.Ptr(nic.ID),
						Properties: &armcompute.NetworkInterfaceReferenceProperties{
							Primary: to.Ptr(true),
						},
					},
				},
			},
			StorageProfile: &armcompute.StorageProfile{
				OSDisk: &armcompute.OSDisk{
					OSType:       to.Ptr(armcompute.OperatingSystemTypesWindows),
					Caching:      to.Ptr(armcompute.CachingTypesReadWrite),
					CreateOption: to.Ptr(armcompute.DiskCreateOptionTypesFromImage),
					ManagedDisk: &armcompute.ManagedDiskParameters{
						StorageAccountType: to.Ptr(armcompute.StorageAccountTypesStandardLRS),
					},
				},
				ImageReference: &armcompute.ImageReference{
					ID: to.Ptr(src.imageID()),
				},
			},
		},
	}, nil
}

// Create submits the machine, waits for the operation to finish and returns
// a freshly read handle.
func (p *VirtualMachineProvisioner) Create(ctx context.Context, rg ResourceGroupRef, nic *NetworkInterfaceHandle, vmName string, src ImageSource) (*VirtualMachineHandle, error) {
	vm, err := p.BuildVirtualMachine(rg, nic, vmName, src)
	if err != nil {
		return nil, err
	}

	poller, err := p.api.BeginCreateOrUpdate(ctx, rg.Name, vmName, vm)
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual machine %s: %w", vmName, err)
	}
	if _, err := poller.PollUntilDone(ctx, p.opts.pollOptions()); err != nil {
		return nil, fmt.Errorf("failed to wait for virtual machine %s: %w", vmName, err)
	}

	return p.Get(ctx, rg, vmName)
}

// CreateFromImage provisions from a generalized image with admin credentials.
func (p *VirtualMachineProvisioner) CreateFromImage(ctx context.Context, rg ResourceGroupRef, nic *NetworkInterfaceHandle, vmName, adminUser, adminPassword, imageID string) (*VirtualMachineHandle, error) {
	return p.Create(ctx, rg, nic, vmName, FromImage{ImageID: imageID, AdminUsername: adminUser, AdminPassword: adminPassword})
}

// CreateFromSpecializedImage provisions from a specialized image.
func (p *VirtualMachineProvisioner) CreateFromSpecializedImage(ctx context.Context, rg ResourceGroupRef, nic *NetworkInterfaceHandle, vmName, imageID string) (*VirtualMachineHandle, error) {
	return p.Create(ctx, rg, nic, vmName, FromSpecializedImage{ImageID: imageID})
}

// Get reads the current state of a machine.
func (p *VirtualMachineProvisioner) Get(ctx context.Context, rg ResourceGroupRef, name string) (*VirtualMachineHandle, error) {
	vm, err := p.api.Get(ctx, rg.Name, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get virtual machine %s: %w", name, err)
	}
	return vmHandle(rg.Name, vm), nil
}

func vmHandle(resourceGroup string, vm armcompute.VirtualMachine) *VirtualMachineHandle {
	h := &VirtualMachineHandle{
		ID:            deref(vm.ID),
		Name:          deref(vm.Name),
		ResourceGroup: resourceGroup,
		Location:      deref(vm.Location),
	}
	if props := vm.Properties; props != nil {
		h.ProvisioningState = deref(props.ProvisioningState)
		if np := props.NetworkProfile; np != nil {
			for _, ref := range np.NetworkInterfaces {
				if ref != nil && (len(np.NetworkInterfaces) == 1 || (ref.Properties != nil && deref(ref.Properties.Primary))) {
					h.NetworkInterfaceID = deref(ref.ID)
					break
				}
			}
		}
	}
	return h
}
