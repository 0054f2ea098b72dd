// Package pipeline runs one provisioning run: derive names, create the public
// address, network interface and virtual machine in dependency order, then
// exercise the machine's deallocate/power-on lifecycle. The first failing
// stage aborts the run. Nothing already created is rolled back; the run
// record lists what exists.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"azvm/internal/config"
	"azvm/internal/logging"
	"azvm/internal/metrics"
	"azvm/internal/naming"
	"azvm/internal/provisioning"
	"azvm/internal/retry"
	"azvm/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunTag is the resource tag holding the run ID.
const RunTag = "azvm-run"

// StageError tags a failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage named by a StageError in err's chain.
func FailedStage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

// Settings are the inputs of a run.
type Settings struct {
	ResourceGroup string
	VNet          string
	Subnet        string
	Image         provisioning.ImageSource
	Naming        naming.Policy

	// Lifecycle enables await-running, deallocate and power-on.
	Lifecycle bool

	// ReportAddress re-reads the interface and address after creation.
	ReportAddress bool

	// Pacing is an optional fixed wait before each lifecycle action.
	Pacing time.Duration

	// Readiness tunes the power-state poll of await-running.
	Readiness []retry.Option
}

// SettingsFromConfig builds run settings from the configuration.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	image, err := provisioning.ImageSourceFromConfig(cfg.Resources)
	if err != nil {
		return Settings{}, err
	}

	policy := naming.DefaultPolicy()
	policy.PublicAddressPrefix = cfg.Naming.PublicAddressPrefix
	policy.NetworkInterfacePrefix = cfg.Naming.NetworkInterfacePrefix
	policy.VirtualMachinePrefix = cfg.Naming.VirtualMachinePrefix

	return Settings{
		ResourceGroup: cfg.Resources.ResourceGroup,
		VNet:          cfg.Resources.VNet,
		Subnet:        cfg.Resources.Subnet,
		Image:         image,
		Naming:        policy,
		Lifecycle:     cfg.Lifecycle.Enabled,
		ReportAddress: cfg.Lifecycle.ReportAddress,
		Pacing:        cfg.Lifecycle.Pacing,
		Readiness: []retry.Option{
			retry.WithAttempts(cfg.Lifecycle.ReadinessAttempts),
			retry.WithInitialDelay(cfg.Lifecycle.ReadinessDelay),
			retry.WithMaxDelay(cfg.Lifecycle.ReadinessMaxDelay),
		},
	}, nil
}

// Run is the in-flight state shared by the stages of one run.
type Run struct {
	Record           *state.RunRecord
	Group            provisioning.ResourceGroupRef
	Names            naming.Names
	PublicAddress    *provisioning.PublicAddressHandle
	NetworkInterface *provisioning.NetworkInterfaceHandle
	VirtualMachine   *provisioning.VirtualMachineHandle

	provisioners provisioners
}

type provisioners struct {
	pips *provisioning.PublicAddressProvisioner
	nics *provisioning.NetworkInterfaceProvisioner
	vms  *provisioning.VirtualMachineProvisioner
	life *provisioning.LifecycleController
}

// Orchestrator sequences the stages of a run.
type Orchestrator struct {
	clients  *provisioning.Clients
	opts     provisioning.Options
	settings Settings

	store   state.Store
	metrics *metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore saves the run record after every stage transition.
func WithStore(store state.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithMetrics records stage durations and failures.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = recorder }
}

// WithLogger replaces the default logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock replaces time.Now for stage timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunID replaces the random run ID generator.
func WithRunID(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// New creates an Orchestrator over clients.
func New(clients *provisioning.Clients, opts provisioning.Options, settings Settings, options ...Option) *Orchestrator {
	o := &Orchestrator{
		clients:  clients,
		opts:     opts,
		settings: settings,
		logger:   logging.Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

func (o *Orchestrator) newRun() *Run {
	id := o.newID()
	opts := o.opts
	tags := make(map[string]string, len(opts.Tags)+1)
	for k, v := range opts.Tags {
		tags[k] = v
	}
	tags[RunTag] = id
	opts.Tags = tags

	return &Run{
		Record: state.NewRun(id, o.settings.ResourceGroup, o.now()),
		provisioners: provisioners{
			pips: provisioning.NewPublicAddressProvisioner(o.clients.PublicIPAddresses, opts),
			nics: provisioning.NewNetworkInterfaceProvisioner(o.clients.Interfaces, o.clients.Subnets, opts),
			vms:  provisioning.NewVirtualMachineProvisioner(o.clients.VirtualMachines, opts),
			life: provisioning.NewLifecycleController(o.clients.VirtualMachines, opts),
		},
	}
}
