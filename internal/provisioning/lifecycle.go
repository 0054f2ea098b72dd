package provisioning

import (
	"context"
	"fmt"
	"strings"

	"azvm/internal/retry"
)

// LifecycleAction is a power transition requested on a machine.
type LifecycleAction string

const (
	// ActionDeallocate stops the machine and releases its compute host.
	// Disks and network resources are kept.
	ActionDeallocate LifecycleAction = "deallocate"

	// ActionPowerOn starts the machine on newly allocated compute.
	ActionPowerOn LifecycleAction = "power-on"
)

// Power states reported in a machine's instance view.
const (
	PowerStateRunning      = "PowerState/running"
	PowerStateDeallocated  = "PowerState/deallocated"
	PowerStateStopped      = "PowerState/stopped"
	PowerStateStarting     = "PowerState/starting"
	PowerStateDeallocating = "PowerState/deallocating"
)

// LifecycleRequest pairs a target machine with an action.
type LifecycleRequest struct {
	VM     *VirtualMachineHandle
	Action LifecycleAction
}

// LifecycleController issues power transitions. It keeps no local state;
// callers read PowerState when they need the current value.
type LifecycleController struct {
	api  VirtualMachinesAPI
	opts Options
}

// NewLifecycleController creates a LifecycleController.
func NewLifecycleController(api VirtualMachinesAPI, opts Options) *LifecycleController {
	return &LifecycleController{api: api, opts: opts}
}

// Apply dispatches req to Deallocate or PowerOn.
func (c *LifecycleController) Apply(ctx context.Context, req LifecycleRequest) error {
	switch req.Action {
	case ActionDeallocate:
		return c.Deallocate(ctx, req.VM)
	case ActionPowerOn:
		return c.PowerOn(ctx, req.VM)
	default:
		return fmt.Errorf("%w: unknown lifecycle action %q", ErrInvalidInput, req.Action)
	}
}

// Deallocate stops vm and waits until the operation completes.
func (c *LifecycleController) Deallocate(ctx context.Context, vm *VirtualMachineHandle) error {
	if err := validateVM(vm); err != nil {
		return err
	}
	poller, err := c.api.BeginDeallocate(ctx, vm.ResourceGroup, vm.Name)
	if err != nil {
		return fmt.Errorf("failed to deallocate virtual machine %s: %w", vm.Name, err)
	}
	if _, err := poller.PollUntilDone(ctx, c.opts.pollOptions()); err != nil {
		return fmt.Errorf("failed to wait for deallocation of %s: %w", vm.Name, err)
	}
	return nil
}

// PowerOn starts vm and waits until the operation completes.
func (c *LifecycleController) PowerOn(ctx context.Context, vm *VirtualMachineHandle) error {
	if err := validateVM(vm); err != nil {
		return err
	}
	poller, err := c.api.BeginStart(ctx, vm.ResourceGroup, vm.Name)
	if err != nil {
		return fmt.Errorf("failed to start virtual machine %s: %w", vm.Name, err)
	}
	if _, err := poller.PollUntilDone(ctx, c.opts.pollOptions()); err != nil {
		return fmt.Errorf("failed to wait for start of %s: %w", vm.Name, err)
	}
	return nil
}

// PowerState reads the machine's instance view and returns its
// "PowerState/..." status code, or "" when none is reported yet.
func (c *LifecycleController) PowerState(ctx context.Context, vm *VirtualMachineHandle) (string, error) {
	if err := validateVM(vm); err != nil {
		return "", err
	}
	view, err := c.api.InstanceView(ctx, vm.ResourceGroup, vm.Name)
	if err != nil {
		return "", fmt.Errorf("failed to get instance view of %s: %w", vm.Name, err)
	}
	for _, status := range view.Statuses {
		if status == nil {
			continue
		}
		if code := deref(status.Code); strings.HasPrefix(code, "PowerState/") {
			return code, nil
		}
	}
	return "", nil
}

// WaitForPowerState polls PowerState with exponential backoff until it
// equals want. Read failures stop the wait immediately.
func (c *LifecycleController) WaitForPowerState(ctx context.Context, vm *VirtualMachineHandle, want string, opts ...retry.Option) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		state, err := c.PowerState(ctx, vm)
		if err != nil {
			return retry.Fatal(err)
		}
		if state != want {
			return fmt.Errorf("virtual machine %s is %q, waiting for %q", vm.Name, state, want)
		}
		return nil
	}, opts...)
}

func validateVM(vm *VirtualMachineHandle) error {
	if vm == nil || vm.Name == "" || vm.ResourceGroup == "" {
		return fmt.Errorf("%w: virtual machine handle needs a name and resource group", ErrInvalidInput)
	}
	return nil
}
