// Package provisioningtest provides an in-memory Azure Resource Manager for
// exercising the provisioners without network access.
//
// Resources are stored with create-or-update semantics: a second create with
// the same name replaces the first in place and keeps its ID. Long-running
// operations complete when their poller is awaited, and every begin and
// await is recorded so tests can assert ordering.
package provisioningtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"azvm/internal/provisioning"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

// API names used in recorded calls.
const (
	APIResourceGroups    = "ResourceGroups"
	APIPublicIPAddresses = "PublicIPAddresses"
	APIInterfaces        = "Interfaces"
	APISubnets           = "Subnets"
	APIVirtualMachines   = "VirtualMachines"
)

// Operation names used in recorded calls.
const (
	OpGet                 = "Get"
	OpBeginCreateOrUpdate = "BeginCreateOrUpdate"
	OpBeginDeallocate     = "BeginDeallocate"
	OpBeginStart          = "BeginStart"
	OpInstanceView        = "InstanceView"
)

// Await returns the recorded operation name for waiting on op's poller.
func Await(op string) string { return "Await:" + op }

// Call is one recorded request.
type Call struct {
	API  string
	Op   string
	Name string
}

func (c Call) String() string { return c.API + "." + c.Op + "(" + c.Name + ")" }

// Cloud is an in-memory subscription.
type Cloud struct {
	mu sync.Mutex

	subscriptionID string
	groups         map[string]armresources.ResourceGroup
	subnets        map[string]armnetwork.Subnet
	images         map[string]bool
	publicIPs      map[string]armnetwork.PublicIPAddress
	nics           map[string]armnetwork.Interface
	vms            map[string]armcompute.VirtualMachine
	powerStates    map[string]string
	startingPolls  map[string]int
	failures       map[string]error
	writes         map[string]int
	calls          []Call
	nextAddress    int

	// StartingPolls is how many instance-view reads report
	// PowerState/starting after a machine is created or started.
	StartingPolls int
}

// NewCloud returns an empty subscription.
func NewCloud(subscriptionID string) *Cloud {
	return &Cloud{
		subscriptionID: subscriptionID,
		groups:         map[string]armresources.ResourceGroup{},
		subnets:        map[string]armnetwork.Subnet{},
		images:         map[string]bool{},
		publicIPs:      map[string]armnetwork.PublicIPAddress{},
		nics:           map[string]armnetwork.Interface{},
		vms:            map[string]armcompute.VirtualMachine{},
		powerStates:    map[string]string{},
		startingPolls:  map[string]int{},
		failures:       map[string]error{},
		writes:         map[string]int{},
	}
}

// AddResourceGroup registers a pre-existing resource group.
func (c *Cloud) AddResourceGroup(name, location string) *Cloud {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[name] = armresources.ResourceGroup{
		ID:       to.Ptr(fmt.Sprintf("/subscriptions/%s/resourceGroups/%s", c.subscriptionID, name)),
		Name:     to.Ptr(name),
		Location: to.Ptr(location),
	}
	return c
}

// AddSubnet registers a pre-existing subnet and returns its ID.
func (c *Cloud) AddSubnet(resourceGroup, vnet, subnet string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network/virtualNetworks/%s/subnets/%s",
		c.subscriptionID, resourceGroup, vnet, subnet)
	c.subnets[resourceGroup+"/"+vnet+"/"+subnet] = armnetwork.Subnet{
		ID:   to.Ptr(id),
		Name: to.Ptr(subnet),
		Properties: &armnetwork.SubnetPropertiesFormat{
			ProvisioningState: to.Ptr(armnetwork.ProvisioningStateSucceeded),
		},
	}
	return id
}

// AddImage registers a gallery image version. Specialized images reject an
// OS profile; generalized images require one.
func (c *Cloud) AddImage(id string, specialized bool) *Cloud {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[id] = specialized
	return c
}

// FailOn makes every matching call return err. op may be an Await name.
func (c *Cloud) FailOn(api, op string, err error) *Cloud {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[api+"."+op] = err
	return c
}

// Clients returns provisioning clients backed by this cloud.
func (c *Cloud) Clients() *provisioning.Clients {
	return &provisioning.Clients{
		SubscriptionID:    c.subscriptionID,
		ResourceGroups:    resourceGroups{c},
		PublicIPAddresses: publicIPAddresses{c},
		Interfaces:        interfaces{c},
		Subnets:           subnets{c},
		VirtualMachines:   virtualMachines{c},
	}
}

// Calls returns every recorded call in order.
func (c *Cloud) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsTo returns the recorded calls to one API.
func (c *Cloud) CallsTo(api string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.API == api {
			out = append(out, call)
		}
	}
	return out
}

// Count returns how many times api.op was called.
func (c *Cloud) Count(api, op string) int {
	n := 0
	for _, call := range c.Calls() {
		if call.API == api && call.Op == op {
			n++
		}
	}
	return n
}

// Writes returns how many completed create-or-updates hit api/name.
func (c *Cloud) Writes(api, resourceGroup, name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[api+"/"+resourceGroup+"/"+name]
}

// Len returns the number of stored resources of api.
func (c *Cloud) Len(api string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch api {
	case APIPublicIPAddresses:
		return len(c.publicIPs)
	case APIInterfaces:
		return len(c.nics)
	case APIVirtualMachines:
		return len(c.vms)
	}
	return 0
}

// VirtualMachine returns the stored machine request as last written.
func (c *Cloud) VirtualMachine(resourceGroup, name string) (armcompute.VirtualMachine, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vm, ok := c.vms[resourceGroup+"/"+name]
	return vm, ok
}

// NetworkInterface returns the stored interface as last written.
func (c *Cloud) NetworkInterface(resourceGroup, name string) (armnetwork.Interface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nic, ok := c.nics[resourceGroup+"/"+name]
	return nic, ok
}

// PowerState returns the current power state code of a machine.
func (c *Cloud) PowerState(resourceGroup, name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powerStates[resourceGroup+"/"+name]
}

// ResponseError builds a resource-manager error with the given status and code.
func ResponseError(status int, code string) *azcore.ResponseError {
	req := &http.Request{Method: http.MethodPut, URL: &url.URL{Scheme: "https", Host: "management.azure.com", Path: "/fake"}}
	body := fmt.Sprintf(`{"error":{"code":%q,"message":"%s"}}`, code, code)
	return &azcore.ResponseError{
		ErrorCode:  code,
		StatusCode: status,
		RawResponse: &http.Response{
			StatusCode: status,
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		},
	}
}

func notFound(kind, name string) error {
	return ResponseError(http.StatusNotFound, kind+"NotFound: "+name)
}

// record logs the call and returns any injected failure. Callers hold c.mu.
func (c *Cloud) record(api, op, name string) error {
	c.calls = append(c.calls, Call{API: api, Op: op, Name: name})
	return c.failures[api+"."+op]
}

func (c *Cloud) resourceID(resourceGroup, provider, kind, name string) string {
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/%s/%s/%s", c.subscriptionID, resourceGroup, provider, kind, name)
}

func (c *Cloud) allocate(prefix string) string {
	c.nextAddress++
	return fmt.Sprintf("%s.%d", prefix, c.nextAddress+3)
}

// poller completes a pending operation when awaited.
type poller[T any] struct {
	cloud    *Cloud
	api      string
	op       string
	name     string
	complete func() T
}

func (p *poller[T]) PollUntilDone(ctx context.Context, _ *runtime.PollUntilDoneOptions) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	p.cloud.mu.Lock()
	defer p.cloud.mu.Unlock()
	if err := p.cloud.record(p.api, Await(p.op), p.name); err != nil {
		return zero, err
	}
	return p.complete(), nil
}
