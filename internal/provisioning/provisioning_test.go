package provisioning_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"azvm/internal/provisioning"
	"azvm/internal/provisioning/provisioningtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSubscription = "00000000-0000-0000-0000-000000000000"
	testGroup        = "SDK-VM"
	testLocation     = "westeurope"
	testVNet         = "SDK-VNET"
	testSubnet       = "default"
	generalizedImage = "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/img/providers/Microsoft.Compute/galleries/g/images/win/versions/1.0.0"
	specializedImage = "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/img/providers/Microsoft.Compute/galleries/g/images/win-spec/versions/1.0.0"
)

type fixture struct {
	cloud   *provisioningtest.Cloud
	clients *provisioning.Clients
	rg      provisioning.ResourceGroupRef
	pips    *provisioning.PublicAddressProvisioner
	nics    *provisioning.NetworkInterfaceProvisioner
	vms     *provisioning.VirtualMachineProvisioner
	life    *provisioning.LifecycleController
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cloud := provisioningtest.NewCloud(testSubscription).
		AddResourceGroup(testGroup, testLocation).
		AddImage(generalizedImage, false).
		AddImage(specializedImage, true)
	cloud.AddSubnet(testGroup, testVNet, testSubnet)

	clients := cloud.Clients()
	rg, err := provisioning.LookupResourceGroup(context.Background(), clients.ResourceGroups, testGroup)
	require.NoError(t, err)

	opts := provisioning.DefaultOptions()
	opts.Tags = map[string]string{"run": "test"}
	return &fixture{
		cloud:   cloud,
		clients: clients,
		rg:      rg,
		pips:    provisioning.NewPublicAddressProvisioner(clients.PublicIPAddresses, opts),
		nics:    provisioning.NewNetworkInterfaceProvisioner(clients.Interfaces, clients.Subnets, opts),
		vms:     provisioning.NewVirtualMachineProvisioner(clients.VirtualMachines, opts),
		life:    provisioning.NewLifecycleController(clients.VirtualMachines, opts),
	}
}

func (f *fixture) network(t *testing.T, suffix string) (*provisioning.PublicAddressHandle, *provisioning.NetworkInterfaceHandle) {
	t.Helper()
	ctx := context.Background()
	pip, err := f.pips.Create(ctx, f.rg, "pip-"+suffix)
	require.NoError(t, err)
	nic, err := f.nics.Create(ctx, f.rg, testVNet, testSubnet, "nic-"+suffix, pip)
	require.NoError(t, err)
	return pip, nic
}

func TestLookupResourceGroup(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, testGroup, f.rg.Name)
	assert.Equal(t, testLocation, f.rg.Location)
	assert.Contains(t, f.rg.ID, "/resourceGroups/"+testGroup)

	_, err := provisioning.LookupResourceGroup(context.Background(), f.clients.ResourceGroups, "missing")
	require.Error(t, err)
	assert.True(t, provisioning.IsNotFound(err))

	_, err = provisioning.LookupResourceGroup(context.Background(), f.clients.ResourceGroups, "")
	assert.ErrorIs(t, err, provisioning.ErrInvalidInput)
}

func TestPublicAddressCreate(t *testing.T) {
	f := newFixture(t)

	pip, err := f.pips.Create(context.Background(), f.rg, "pip-1234")
	require.NoError(t, err)

	assert.True(t, pip.Provisioned())
	assert.Equal(t, "pip-1234", pip.Name)
	assert.Equal(t, testLocation, pip.Location)
	assert.Equal(t, "/subscriptions/"+testSubscription+"/resourceGroups/"+testGroup+"/providers/Microsoft.Network/publicIPAddresses/pip-1234", pip.ID)
	assert.Empty(t, pip.Address, "dynamic addresses are bound only once a machine runs")

	assert.Equal(t, []provisioningtest.Call{
		{API: provisioningtest.APIPublicIPAddresses, Op: provisioningtest.OpBeginCreateOrUpdate, Name: "pip-1234"},
		{API: provisioningtest.APIPublicIPAddresses, Op: provisioningtest.Await(provisioningtest.OpBeginCreateOrUpdate), Name: "pip-1234"},
		{API: provisioningtest.APIPublicIPAddresses, Op: provisioningtest.OpGet, Name: "pip-1234"},
	}, f.cloud.CallsTo(provisioningtest.APIPublicIPAddresses))
}

func TestBuildPublicAddress(t *testing.T) {
	f := newFixture(t)
	req := f.pips.BuildPublicAddress(f.rg)

	require.NotNil(t, req.Properties)
	assert.Equal(t, testLocation, *req.Location)
	assert.Equal(t, "IPv4", string(*req.Properties.PublicIPAddressVersion))
	assert.Equal(t, "Dynamic", string(*req.Properties.PublicIPAllocationMethod))
	require.Contains(t, req.Tags, "run")
	assert.Equal(t, "test", *req.Tags["run"])
}

func TestPublicAddressCreateFailure(t *testing.T) {
	f := newFixture(t)
	f.cloud.FailOn(provisioningtest.APIPublicIPAddresses, provisioningtest.OpBeginCreateOrUpdate,
		provisioningtest.ResponseError(http.StatusConflict, "PublicIPCountLimitReached"))

	pip, err := f.pips.Create(context.Background(), f.rg, "pip-1234")
	require.Error(t, err)
	assert.Nil(t, pip)
	assert.True(t, provisioning.IsConflict(err))
	assert.Equal(t, "PublicIPCountLimitReached", provisioning.ErrorCode(err))
	assert.Zero(t, f.cloud.Count(provisioningtest.APIPublicIPAddresses, provisioningtest.OpGet))
}

func TestPublicAddressAwaitFailure(t *testing.T) {
	f := newFixture(t)
	f.cloud.FailOn(provisioningtest.APIPublicIPAddresses, provisioningtest.Await(provisioningtest.OpBeginCreateOrUpdate),
		provisioningtest.ResponseError(http.StatusInternalServerError, "InternalServerError"))

	_, err := f.pips.Create(context.Background(), f.rg, "pip-1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to wait for public address pip-1234")
	assert.Equal(t, "remote", provisioning.Classify(err))
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pips.Create(ctx, f.rg, "")
	assert.ErrorIs(t, err, provisioning.ErrInvalidInput)

	_, err = f.pips.Create(ctx, provisioning.ResourceGroupRef{Name: testGroup}, "pip-1")
	assert.ErrorIs(t, err, provisioning.ErrInvalidInput)

	assert.Empty(t, f.cloud.CallsTo(provisioningtest.APIPublicIPAddresses))
}

func TestNetworkInterfaceCreate(t *testing.T) {
	f := newFixture(t)
	pip, nic := f.network(t, "1234")

	assert.True(t, nic.Provisioned())
	assert.Equal(t, "nic-1234", nic.Name)
	assert.Equal(t, pip.ID, nic.PublicAddressID)
	assert.Contains(t, nic.SubnetID, "/virtualNetworks/"+testVNet+"/subnets/"+testSubnet)
	assert.NotEmpty(t, nic.PrivateAddress)

	stored, ok := f.cloud.NetworkInterface(testGroup, "nic-1234")
	require.True(t, ok)
	cfgs := stored.Properties.IPConfigurations
	require.Len(t, cfgs, 1)
	assert.Equal(t, provisioning.PrimaryIPConfigurationName, *cfgs[0].Name)
	assert.True(t, *cfgs[0].Properties.Primary)
	assert.Equal(t, "Dynamic", string(*cfgs[0].Properties.PrivateIPAllocationMethod))
}

func TestNetworkInterfaceRejectsPendingAddress(t *testing.T) {
	tests := []struct {
		name string
		pip  *provisioning.PublicAddressHandle
	}{
		{"nil handle", nil},
		{"updating", &provisioning.PublicAddressHandle{ID: "/pip", Name: "pip-1", ProvisioningState: "Updating"}},
		{"failed", &provisioning.PublicAddressHandle{ID: "/pip", Name: "pip-1", ProvisioningState: "Failed"}},
		{"no id", &provisioning.PublicAddressHandle{Name: "pip-1", ProvisioningState: "Succeeded"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			nic, err := f.nics.Create(context.Background(), f.rg, testVNet, testSubnet, "nic-1", tt.pip)
			require.ErrorIs(t, err, provisioning.ErrNotProvisioned)
			assert.Nil(t, nic)
			assert.Equal(t, "validation", provisioning.Classify(err))
			assert.Empty(t, f.cloud.CallsTo(provisioningtest.APIInterfaces))
			assert.Empty(t, f.cloud.CallsTo(provisioningtest.APISubnets))
		})
	}
}

func TestNetworkInterfaceMissingSubnet(t *testing.T) {
	f := newFixture(t)
	pip, err := f.pips.Create(context.Background(), f.rg, "pip-1")
	require.NoError(t, err)

	_, err = f.nics.Create(context.Background(), f.rg, testVNet, "backend", "nic-1", pip)
	require.Error(t, err)
	assert.True(t, provisioning.IsNotFound(err))
	assert.Zero(t, f.cloud.Count(provisioningtest.APIInterfaces, provisioningtest.OpBeginCreateOrUpdate))
}

func TestVirtualMachineFromImage(t *testing.T) {
	f := newFixture(t)
	_, nic := f.network(t, "1234")

	vm, err := f.vms.CreateFromImage(context.Background(), f.rg, nic, "win-vm-1234", "azure-user", "Q!W@E#r4t5y6", generalizedImage)
	require.NoError(t, err)

	assert.Equal(t, "win-vm-1234", vm.Name)
	assert.Equal(t, testGroup, vm.ResourceGroup)
	assert.Equal(t, nic.ID, vm.NetworkInterfaceID)
	assert.Equal(t, provisioning.ProvisioningStateSucceeded, vm.ProvisioningState)

	stored, ok := f.cloud.VirtualMachine(testGroup, "win-vm-1234")
	require.True(t, ok)
	profile := stored.Properties.OSProfile
	require.NotNil(t, profile)
	assert.Equal(t, "win-vm-1234", *profile.ComputerName)
	assert.Equal(t, "azure-user", *profile.AdminUsername)
	assert.Equal(t, "Standard_B2ms", string(*stored.Properties.HardwareProfile.VMSize))
	assert.Equal(t, generalizedImage, *stored.Properties.StorageProfile.ImageReference.ID)
	assert.Equal(t, "Windows", string(*stored.Properties.StorageProfile.OSDisk.OSType))
	assert.Equal(t, "FromImage", string(*stored.Properties.StorageProfile.OSDisk.CreateOption))
	require.Len(t, stored.Properties.NetworkProfile.NetworkInterfaces, 1)
	assert.True(t, *stored.Properties.NetworkProfile.NetworkInterfaces[0].Properties.Primary)

	pip, err := f.pips.Get(context.Background(), f.rg, "pip-1234")
	require.NoError(t, err)
	assert.NotEmpty(t, pip.Address, "running machine binds its public address")
}

func TestVirtualMachineFromSpecializedImage(t *testing.T) {
	f := newFixture(t)
	_, nic := f.network(t, "1234")

	_, err := f.vms.CreateFromSpecializedImage(context.Background(), f.rg, nic, "win-vm-1234", specializedImage)
	require.NoError(t, err)

	stored, ok := f.cloud.VirtualMachine(testGroup, "win-vm-1234")
	require.True(t, ok)
	assert.Nil(t, stored.Properties.OSProfile)
}

func TestVirtualMachineImageMismatch(t *testing.T) {
	f := newFixture(t)
	_, nic := f.network(t, "1234")

	_, err := f.vms.CreateFromImage(context.Background(), f.rg, nic, "win-vm-1234", "azure-user", "pw", specializedImage)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, provisioning.StatusCode(err))
	assert.Equal(t, "validation", provisioning.Classify(err))
}

func TestVirtualMachineRejectsPendingInterface(t *testing.T) {
	f := newFixture(t)
	nic := &provisioning.NetworkInterfaceHandle{ID: "/nic", Name: "nic-1", ProvisioningState: "Updating"}

	_, err := f.vms.CreateFromSpecializedImage(context.Background(), f.rg, nic, "win-vm-1", specializedImage)
	require.ErrorIs(t, err, provisioning.ErrNotProvisioned)
	assert.Empty(t, f.cloud.CallsTo(provisioningtest.APIVirtualMachines))
}

func TestBuildVirtualMachineValidation(t *testing.T) {
	f := newFixture(t)
	nic := &provisioning.NetworkInterfaceHandle{ID: "/nic", Name: "nic-1", ProvisioningState: provisioning.ProvisioningStateSucceeded}

	tests := []struct {
		name   string
		vmName string
		src    provisioning.ImageSource
	}{
		{"empty name", "", provisioning.FromSpecializedImage{ImageID: "img"}},
		{"no source", "vm", nil},
		{"empty image", "vm", provisioning.FromSpecializedImage{}},
		{"missing password", "vm", provisioning.FromImage{ImageID: "img", AdminUsername: "azure-user"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.vms.BuildVirtualMachine(f.rg, nic, tt.vmName, tt.src)
			assert.ErrorIs(t, err, provisioning.ErrInvalidInput)
		})
	}
}

func TestCreateOrUpdateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.pips.Create(ctx, f.rg, "pip-1234")
	require.NoError(t, err)
	second, err := f.pips.Create(ctx, f.rg, "pip-1234")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.cloud.Len(provisioningtest.APIPublicIPAddresses))
	assert.Equal(t, 2, f.cloud.Writes(provisioningtest.APIPublicIPAddresses, testGroup, "pip-1234"))

	nic1, err := f.nics.Create(ctx, f.rg, testVNet, testSubnet, "nic-1234", second)
	require.NoError(t, err)
	nic2, err := f.nics.Create(ctx, f.rg, testVNet, testSubnet, "nic-1234", second)
	require.NoError(t, err)
	assert.Equal(t, nic1.ID, nic2.ID)
	assert.Equal(t, nic1.PrivateAddress, nic2.PrivateAddress)
	assert.Equal(t, 1, f.cloud.Len(provisioningtest.APIInterfaces))
}

func TestCreateHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pips.Create(ctx, f.rg, "pip-1234")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
