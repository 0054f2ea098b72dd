package pipeline

import (
	"context"
	"fmt"

	"azvm/internal/provisioning"
	"azvm/internal/retry"

	"go.uber.org/zap"
)

// Stage names, in execution order
const (
	StageNames            = "names"
	StageResourceGroup    = "resource-group"
	StagePublicAddress    = "public-address"
	StageNetworkInterface = "network-interface"
	StageVirtualMachine   = "virtual-machine"
	StageReportAddress    = "report-address"
	StageAwaitRunning     = "await-running"
	StageDeallocate       = "deallocate"
	StagePowerOn          = "power-on"
)

// Stage is one step of a run
type Stage interface {
	GetName() string
	Enabled() bool
	Execute(ctx context.Context, run *Run) error
}

type stage struct {
	name    string
	enabled bool
	fn      func(ctx context.Context, run *Run) error
}

// GetName returns the stage name
func (s *stage) GetName() string { return s.name }

// Enabled reports whether the stage runs or is recorded as skipped
func (s *stage) Enabled() bool { return s.enabled }

// Execute runs the stage
func (s *stage) Execute(ctx context.Context, run *Run) error { return s.fn(ctx, run) }

// Stages returns the run's stages in dependency order
func (o *Orchestrator) Stages() []Stage {
	lifecycle := o.settings.Lifecycle
	return []Stage{
		&stage{name: StageNames, enabled: true, fn: o.deriveNames},
		&stage{name: StageResourceGroup, enabled: true, fn: o.lookupGroup},
		&stage{name: StagePublicAddress, enabled: true, fn: o.createPublicAddress},
		&stage{name: StageNetworkInterface, enabled: true, fn: o.createNetworkInterface},
		&stage{name: StageVirtualMachine, enabled: true, fn: o.createVirtualMachine},
		&stage{name: StageReportAddress, enabled: o.settings.ReportAddress, fn: o.reportAddress},
		&stage{name: StageAwaitRunning, enabled: lifecycle, fn: o.awaitRunning},
		&stage{name: StageDeallocate, enabled: lifecycle, fn: o.deallocate},
		&stage{name: StagePowerOn, enabled: lifecycle, fn: o.powerOn},
	}
}

func (o *Orchestrator) deriveNames(ctx context.Context, run *Run) error {
	run.Names = o.settings.Naming.Derive()
	run.Record.Suffix = run.Names.Suffix
	run.Record.Names = run.Names

	o.logger.Info("derived resource names",
		zap.String("suffix", run.Names.Suffix),
		zap.String("public_address", run.Names.PublicAddress),
		zap.String("network_interface", run.Names.NetworkInterface),
		zap.String("virtual_machine", run.Names.VirtualMachine))
	return nil
}

func (o *Orchestrator) lookupGroup(ctx context.Context, run *Run) error {
	rg, err := provisioning.LookupResourceGroup(ctx, o.clients.ResourceGroups, o.settings.ResourceGroup)
	if err != nil {
		return err
	}
	run.Group = rg
	o.logger.Debug("resolved resource group", zap.String("id", rg.ID), zap.String("location", rg.Location))
	return nil
}

func (o *Orchestrator) createPublicAddress(ctx context.Context, run *Run) error {
	pip, err := run.provisioners.pips.Create(ctx, run.Group, run.Names.PublicAddress)
	if err != nil {
		return err
	}
	run.PublicAddress = pip
	run.Record.PublicAddressID = pip.ID

	o.logger.Info("public address created", zap.String("name", pip.Name), zap.String("id", pip.ID))
	return nil
}

func (o *Orchestrator) createNetworkInterface(ctx context.Context, run *Run) error {
	nic, err := run.provisioners.nics.Create(ctx, run.Group, o.settings.VNet, o.settings.Subnet, run.Names.NetworkInterface, run.PublicAddress)
	if err != nil {
		return err
	}
	run.NetworkInterface = nic
	run.Record.NetworkInterfaceID = nic.ID
	run.Record.PrivateAddress = nic.PrivateAddress

	o.logger.Info("network interface created", zap.String("name", nic.Name), zap.String("id", nic.ID))
	return nil
}

func (o *Orchestrator) createVirtualMachine(ctx context.Context, run *Run) error {
	vm, err := run.provisioners.vms.Create(ctx, run.Group, run.NetworkInterface, run.Names.VirtualMachine, o.settings.Image)
	if err != nil {
		return err
	}
	run.VirtualMachine = vm
	run.Record.VirtualMachineID = vm.ID

	o.logger.Info("virtual machine created", zap.String("name", vm.Name), zap.String("id", vm.ID))
	return nil
}

func (o *Orchestrator) reportAddress(ctx context.Context, run *Run) error {
	nic, err := run.provisioners.nics.Get(ctx, run.Group, run.Names.NetworkInterface)
	if err != nil {
		return err
	}
	run.NetworkInterface = nic
	run.Record.PrivateAddress = nic.PrivateAddress

	pip, err := run.provisioners.pips.Get(ctx, run.Group, run.Names.PublicAddress)
	if err != nil {
		return err
	}
	run.PublicAddress = pip
	run.Record.PublicAddress = pip.Address

	o.logger.Info("virtual machine addresses",
		zap.String("virtual_machine", run.Names.VirtualMachine),
		zap.String("private_address", nic.PrivateAddress),
		zap.String("public_address", pip.Address))
	return nil
}

func (o *Orchestrator) awaitRunning(ctx context.Context, run *Run) error {
	if err := run.provisioners.life.WaitForPowerState(ctx, run.VirtualMachine, provisioning.PowerStateRunning, o.settings.Readiness...); err != nil {
		return err
	}
	run.Record.PowerState = provisioning.PowerStateRunning
	return nil
}

func (o *Orchestrator) deallocate(ctx context.Context, run *Run) error {
	if err := o.pace(ctx); err != nil {
		return err
	}
	if err := run.provisioners.life.Apply(ctx, provisioning.LifecycleRequest{VM: run.VirtualMachine, Action: provisioning.ActionDeallocate}); err != nil {
		return err
	}
	run.Record.PowerState = provisioning.PowerStateDeallocated
	o.logger.Info("virtual machine deallocated", zap.String("name", run.VirtualMachine.Name))
	return nil
}

func (o *Orchestrator) powerOn(ctx context.Context, run *Run) error {
	if err := o.pace(ctx); err != nil {
		return err
	}
	if err := run.provisioners.life.Apply(ctx, provisioning.LifecycleRequest{VM: run.VirtualMachine, Action: provisioning.ActionPowerOn}); err != nil {
		return err
	}
	run.Record.PowerState = provisioning.PowerStateRunning
	o.logger.Info("virtual machine started", zap.String("name", run.VirtualMachine.Name))
	return nil
}

// pace waits the configured delay before a lifecycle action.
func (o *Orchestrator) pace(ctx context.Context) error {
	if o.settings.Pacing <= 0 {
		return nil
	}
	o.logger.Debug("pacing before lifecycle action", zap.Duration("delay", o.settings.Pacing))
	if err := retry.Sleep(ctx, o.settings.Pacing); err != nil {
		return fmt.Errorf("interrupted while pacing: %w", err)
	}
	return nil
}
