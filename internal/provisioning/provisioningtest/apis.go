package provisioningtest

import (
	"context"
	"net/http"
	"strings"

	"azvm/internal/provisioning"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

const (
	stateUpdating  = "Updating"
	stateSucceeded = "Succeeded"
)

type resourceGroups struct{ c *Cloud }

func (a resourceGroups) Get(ctx context.Context, name string) (armresources.ResourceGroup, error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIResourceGroups, OpGet, name); err != nil {
		return armresources.ResourceGroup{}, err
	}
	rg, ok := c.groups[name]
	if !ok {
		return armresources.ResourceGroup{}, ResponseError(http.StatusNotFound, "ResourceGroupNotFound")
	}
	return rg, nil
}

type subnets struct{ c *Cloud }

func (a subnets) Get(ctx context.Context, resourceGroup, vnet, subnet string) (armnetwork.Subnet, error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APISubnets, OpGet, vnet+"/"+subnet); err != nil {
		return armnetwork.Subnet{}, err
	}
	s, ok := c.subnets[resourceGroup+"/"+vnet+"/"+subnet]
	if !ok {
		return armnetwork.Subnet{}, notFound("Subnet", subnet)
	}
	return s, nil
}

type publicIPAddresses struct{ c *Cloud }

func (a publicIPAddresses) BeginCreateOrUpdate(ctx context.Context, resourceGroup, name string, params armnetwork.PublicIPAddress) (provisioning.Poller[armnetwork.PublicIPAddressesClientCreateOrUpdateResponse], error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIPublicIPAddresses, OpBeginCreateOrUpdate, name); err != nil {
		return nil, err
	}
	if _, ok := c.groups[resourceGroup]; !ok {
		return nil, ResponseError(http.StatusNotFound, "ResourceGroupNotFound")
	}

	key := resourceGroup + "/" + name
	props := armnetwork.PublicIPAddressPropertiesFormat{}
	if params.Properties != nil {
		props = *params.Properties
	}
	if existing, ok := c.publicIPs[key]; ok && existing.Properties != nil {
		props.IPAddress = existing.Properties.IPAddress
	}
	props.ProvisioningState = to.Ptr(armnetwork.ProvisioningState(stateUpdating))
	params.Properties = &props
	params.ID = to.Ptr(c.resourceID(resourceGroup, "Microsoft.Network", "publicIPAddresses", name))
	params.Name = to.Ptr(name)
	c.publicIPs[key] = params

	return &poller[armnetwork.PublicIPAddressesClientCreateOrUpdateResponse]{
		cloud: c, api: APIPublicIPAddresses, op: OpBeginCreateOrUpdate, name: name,
		complete: func() armnetwork.PublicIPAddressesClientCreateOrUpdateResponse {
			pip := c.publicIPs[key]
			pip.Properties.ProvisioningState = to.Ptr(armnetwork.ProvisioningStateSucceeded)
			c.publicIPs[key] = pip
			c.writes[APIPublicIPAddresses+"/"+key]++
			return armnetwork.PublicIPAddressesClientCreateOrUpdateResponse{PublicIPAddress: pip}
		},
	}, nil
}

func (a publicIPAddresses) Get(ctx context.Context, resourceGroup, name string) (armnetwork.PublicIPAddress, error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIPublicIPAddresses, OpGet, name); err != nil {
		return armnetwork.PublicIPAddress{}, err
	}
	pip, ok := c.publicIPs[resourceGroup+"/"+name]
	if !ok {
		return armnetwork.PublicIPAddress{}, notFound("PublicIPAddress", name)
	}
	props := *pip.Properties
	pip.Properties = &props
	return pip, nil
}

type interfaces struct{ c *Cloud }

func (a interfaces) BeginCreateOrUpdate(ctx context.Context, resourceGroup, name string, params armnetwork.Interface) (provisioning.Poller[armnetwork.InterfacesClientCreateOrUpdateResponse], error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIInterfaces, OpBeginCreateOrUpdate, name); err != nil {
		return nil, err
	}
	if _, ok := c.groups[resourceGroup]; !ok {
		return nil, ResponseError(http.StatusNotFound, "ResourceGroupNotFound")
	}
	if err := c.validateInterface(params); err != nil {
		return nil, err
	}

	key := resourceGroup + "/" + name
	props := armnetwork.InterfacePropertiesFormat{}
	if params.Properties != nil {
		props = *params.Properties
	}
	props.ProvisioningState = to.Ptr(armnetwork.ProvisioningState(stateUpdating))
	params.Properties = &props
	params.ID = to.Ptr(c.resourceID(resourceGroup, "Microsoft.Network", "networkInterfaces", name))
	params.Name = to.Ptr(name)
	var privateAddress *string
	if existing, ok := c.nics[key]; ok {
		privateAddress = primaryPrivateAddress(existing)
	}
	c.nics[key] = params

	return &poller[armnetwork.InterfacesClientCreateOrUpdateResponse]{
		cloud: c, api: APIInterfaces, op: OpBeginCreateOrUpdate, name: name,
		complete: func() armnetwork.InterfacesClientCreateOrUpdateResponse {
			nic := c.nics[key]
			if privateAddress == nil {
				privateAddress = to.Ptr(c.allocate("10.0.0"))
			}
			cfgs := make([]*armnetwork.InterfaceIPConfiguration, 0, len(nic.Properties.IPConfigurations))
			for _, cfg := range nic.Properties.IPConfigurations {
				cp := *cfg
				cpProps := *cp.Properties
				cpProps.PrivateIPAddress = privateAddress
				cpProps.ProvisioningState = to.Ptr(armnetwork.ProvisioningStateSucceeded)
				cp.Properties = &cpProps
				cfgs = append(cfgs, &cp)
			}
			nic.Properties.IPConfigurations = cfgs
			nic.Properties.ProvisioningState = to.Ptr(armnetwork.ProvisioningStateSucceeded)
			c.nics[key] = nic
			c.writes[APIInterfaces+"/"+key]++
			return armnetwork.InterfacesClientCreateOrUpdateResponse{Interface: nic}
		},
	}, nil
}

// validateInterface mirrors the checks the network provider runs before
// accepting an interface. Callers hold c.mu.
func (c *Cloud) validateInterface(nic armnetwork.Interface) error {
	if nic.Properties == nil || len(nic.Properties.IPConfigurations) == 0 {
		return ResponseError(http.StatusBadRequest, "NetworkInterfaceMustHaveAtLeastOneIpConfiguration")
	}
	primaries := 0
	for _, cfg := range nic.Properties.IPConfigurations {
		if cfg == nil || cfg.Properties == nil {
			return ResponseError(http.StatusBadRequest, "InvalidRequestFormat")
		}
		if len(nic.Properties.IPConfigurations) == 1 || (cfg.Properties.Primary != nil && *cfg.Properties.Primary) {
			primaries++
		}
		if cfg.Properties.Subnet == nil || !c.hasSubnet(*cfg.Properties.Subnet.ID) {
			return ResponseError(http.StatusBadRequest, "InvalidResourceReference")
		}
		if ref := cfg.Properties.PublicIPAddress; ref != nil {
			pip, ok := c.publicIPByID(*ref.ID)
			if !ok {
				return ResponseError(http.StatusBadRequest, "InvalidResourceReference")
			}
			if string(*pip.Properties.ProvisioningState) != stateSucceeded {
				return ResponseError(http.StatusConflict, "ReferencedResourceNotProvisioned")
			}
		}
	}
	if primaries != 1 {
		return ResponseError(http.StatusBadRequest, "MultipleIpConfigsMarkedPrimary")
	}
	return nil
}

func (c *Cloud) hasSubnet(id string) bool {
	for _, s := range c.subnets {
		if strings.EqualFold(*s.ID, id) {
			return true
		}
	}
	return false
}

func (c *Cloud) publicIPByID(id string) (armnetwork.PublicIPAddress, bool) {
	for _, pip := range c.publicIPs {
		if strings.EqualFold(*pip.ID, id) {
			return pip, true
		}
	}
	return armnetwork.PublicIPAddress{}, false
}

func (c *Cloud) nicByID(id string) (string, armnetwork.Interface, bool) {
	for key, nic := range c.nics {
		if strings.EqualFold(*nic.ID, id) {
			return key, nic, true
		}
	}
	return "", armnetwork.Interface{}, false
}

func primaryPrivateAddress(nic armnetwork.Interface) *string {
	if nic.Properties == nil {
		return nil
	}
	for _, cfg := range nic.Properties.IPConfigurations {
		if cfg != nil && cfg.Properties != nil && cfg.Properties.PrivateIPAddress != nil {
			return cfg.Properties.PrivateIPAddress
		}
	}
	return nil
}

func (a interfaces) Get(ctx context.Context, resourceGroup, name string) (armnetwork.Interface, error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIInterfaces, OpGet, name); err != nil {
		return armnetwork.Interface{}, err
	}
	nic, ok := c.nics[resourceGroup+"/"+name]
	if !ok {
		return armnetwork.Interface{}, notFound("NetworkInterface", name)
	}
	return nic, nil
}

type virtualMachines struct{ c *Cloud }

func (a virtualMachines) BeginCreateOrUpdate(ctx context.Context, resourceGroup, name string, params armcompute.VirtualMachine) (provisioning.Poller[armcompute.VirtualMachinesClientCreateOrUpdateResponse], error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIVirtualMachines, OpBeginCreateOrUpdate, name); err != nil {
		return nil, err
	}
	if _, ok := c.groups[resourceGroup]; !ok {
		return nil, ResponseError(http.StatusNotFound, "ResourceGroupNotFound")
	}
	if err := c.validateVirtualMachine(params); err != nil {
		return nil, err
	}

	key := resourceGroup + "/" + name
	props := *params.Properties
	props.ProvisioningState = to.Ptr(stateUpdating)
	params.Properties = &props
	params.ID = to.Ptr(c.resourceID(resourceGroup, "Microsoft.Compute", "virtualMachines", name))
	params.Name = to.Ptr(name)
	c.vms[key] = params

	return &poller[armcompute.VirtualMachinesClientCreateOrUpdateResponse]{
		cloud: c, api: APIVirtualMachines, op: OpBeginCreateOrUpdate, name: name,
		complete: func() armcompute.VirtualMachinesClientCreateOrUpdateResponse {
			vm := c.vms[key]
			vm.Properties.ProvisioningState = to.Ptr(stateSucceeded)
			c.vms[key] = vm
			c.writes[APIVirtualMachines+"/"+key]++
			c.powerOn(key)
			return armcompute.VirtualMachinesClientCreateOrUpdateResponse{VirtualMachine: vm}
		},
	}, nil
}

// validateVirtualMachine mirrors the compute provider's request checks.
// Callers hold c.mu.
func (c *Cloud) validateVirtualMachine(vm armcompute.VirtualMachine) error {
	props := vm.Properties
	if props == nil || props.StorageProfile == nil || props.StorageProfile.ImageReference == nil || props.NetworkProfile == nil {
		return ResponseError(http.StatusBadRequest, "InvalidParameter")
	}
	specialized, ok := c.images[*props.StorageProfile.ImageReference.ID]
	if !ok {
		return ResponseError(http.StatusNotFound, "GalleryImageNotFound")
	}
	if specialized && props.OSProfile != nil {
		return ResponseError(http.StatusBadRequest, "OSProvisioningNotAllowedForSpecializedImage")
	}
	if !specialized && props.OSProfile == nil {
		return ResponseError(http.StatusBadRequest, "InvalidParameter")
	}
	if len(props.NetworkProfile.NetworkInterfaces) == 0 {
		return ResponseError(http.StatusBadRequest, "InvalidParameter")
	}
	for _, ref := range props.NetworkProfile.NetworkInterfaces {
		_, nic, ok := c.nicByID(*ref.ID)
		if !ok {
			return ResponseError(http.StatusBadRequest, "InvalidResourceReference")
		}
		if string(*nic.Properties.ProvisioningState) != stateSucceeded {
			return ResponseError(http.StatusConflict, "ReferencedResourceNotProvisioned")
		}
	}
	return nil
}

// powerOn marks the machine running and binds a dynamic public address to
// its primary interface. Callers hold c.mu.
func (c *Cloud) powerOn(key string) {
	c.powerStates[key] = provisioning.PowerStateRunning
	c.startingPolls[key] = c.StartingPolls
	c.bindPublicAddress(key, true)
}

func (c *Cloud) bindPublicAddress(key string, bind bool) {
	vm := c.vms[key]
	for _, ref := range vm.Properties.NetworkProfile.NetworkInterfaces {
		_, nic, ok := c.nicByID(*ref.ID)
		if !ok {
			continue
		}
		for _, cfg := range nic.Properties.IPConfigurations {
			if cfg.Properties.PublicIPAddress == nil {
				continue
			}
			for pipKey, pip := range c.publicIPs {
				if !strings.EqualFold(*pip.ID, *cfg.Properties.PublicIPAddress.ID) {
					continue
				}
				props := *pip.Properties
				if bind {
					props.IPAddress = to.Ptr(c.allocate("20.51.0"))
				} else {
					props.IPAddress = nil
				}
				pip.Properties = &props
				c.publicIPs[pipKey] = pip
			}
		}
	}
}

func (a virtualMachines) Get(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachine, error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIVirtualMachines, OpGet, name); err != nil {
		return armcompute.VirtualMachine{}, err
	}
	vm, ok := c.vms[resourceGroup+"/"+name]
	if !ok {
		return armcompute.VirtualMachine{}, notFound("VirtualMachine", name)
	}
	return vm, nil
}

func (a virtualMachines) BeginDeallocate(ctx context.Context, resourceGroup, name string) (provisioning.Poller[armcompute.VirtualMachinesClientDeallocateResponse], error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIVirtualMachines, OpBeginDeallocate, name); err != nil {
		return nil, err
	}
	key := resourceGroup + "/" + name
	if _, ok := c.vms[key]; !ok {
		return nil, notFound("VirtualMachine", name)
	}
	c.powerStates[key] = provisioning.PowerStateDeallocating

	return &poller[armcompute.VirtualMachinesClientDeallocateResponse]{
		cloud: c, api: APIVirtualMachines, op: OpBeginDeallocate, name: name,
		complete: func() armcompute.VirtualMachinesClientDeallocateResponse {
			c.powerStates[key] = provisioning.PowerStateDeallocated
			c.bindPublicAddress(key, false)
			return armcompute.VirtualMachinesClientDeallocateResponse{}
		},
	}, nil
}

func (a virtualMachines) BeginStart(ctx context.Context, resourceGroup, name string) (provisioning.Poller[armcompute.VirtualMachinesClientStartResponse], error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIVirtualMachines, OpBeginStart, name); err != nil {
		return nil, err
	}
	key := resourceGroup + "/" + name
	if _, ok := c.vms[key]; !ok {
		return nil, notFound("VirtualMachine", name)
	}
	c.powerStates[key] = provisioning.PowerStateStarting

	return &poller[armcompute.VirtualMachinesClientStartResponse]{
		cloud: c, api: APIVirtualMachines, op: OpBeginStart, name: name,
		complete: func() armcompute.VirtualMachinesClientStartResponse {
			c.powerOn(key)
			return armcompute.VirtualMachinesClientStartResponse{}
		},
	}, nil
}

func (a virtualMachines) InstanceView(ctx context.Context, resourceGroup, name string) (armcompute.VirtualMachineInstanceView, error) {
	c := a.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(APIVirtualMachines, OpInstanceView, name); err != nil {
		return armcompute.VirtualMachineInstanceView{}, err
	}
	key := resourceGroup + "/" + name
	vm, ok := c.vms[key]
	if !ok {
		return armcompute.VirtualMachineInstanceView{}, notFound("VirtualMachine", name)
	}

	power := c.powerStates[key]
	if power == provisioning.PowerStateRunning && c.startingPolls[key] > 0 {
		c.startingPolls[key]--
		power = provisioning.PowerStateStarting
	}
	statuses := []*armcompute.InstanceViewStatus{
		{Code: to.Ptr("ProvisioningState/" + strings.ToLower(*vm.Properties.ProvisioningState))},
	}
	if power != "" {
		statuses = append(statuses, &armcompute.InstanceViewStatus{Code: to.Ptr(power)})
	}
	return armcompute.VirtualMachineInstanceView{Statuses: statuses}, nil
}
