package cmd

import (
	"fmt"

	"azvm/internal/logging"
	"azvm/internal/provisioning"
	"azvm/internal/retry"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var lifecycleWait bool

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop <vm-name>",
	Short: "Deallocate a virtual machine",
	Long:  `Deallocate stops the VM and releases its compute. Disks, the network interface and the public IP resource are kept.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLifecycle(args[0], provisioning.ActionDeallocate, provisioning.PowerStateDeallocated)
	},
}

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start <vm-name>",
	Short: "Power on a virtual machine",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLifecycle(args[0], provisioning.ActionPowerOn, provisioning.PowerStateRunning)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(startCmd)

	for _, c := range []*cobra.Command{stopCmd, startCmd} {
		c.Flags().BoolVar(&lifecycleWait, "wait", true, "Poll the instance view until the power state is reached")
	}
}

func runLifecycle(vmName string, action provisioning.LifecycleAction, want string) {
	cfg := loadConfig()

	clients, err := provisioning.NewClientsFromConfig(cfg.Azure)
	if err != nil {
		logging.Logger().Fatal("Failed to create Azure clients", zap.Error(err))
	}
	opts := provisioning.OptionsFromConfig(*cfg, nil)

	ctx, cancel := signalContext()
	defer cancel()

	rg, err := provisioning.LookupResourceGroup(ctx, clients.ResourceGroups, cfg.Resources.ResourceGroup)
	if err != nil {
		logging.Logger().Fatal("Failed to look up resource group", zap.Error(err))
	}
	vm, err := provisioning.NewVirtualMachineProvisioner(clients.VirtualMachines, opts).Get(ctx, rg, vmName)
	if err != nil {
		logging.Logger().Fatal("Failed to find virtual machine", zap.String("name", vmName), zap.Error(err))
	}

	life := provisioning.NewLifecycleController(clients.VirtualMachines, opts)
	logging.Logger().Info("Applying lifecycle action", zap.String("name", vmName), zap.String("action", string(action)))
	if err := life.Apply(ctx, provisioning.LifecycleRequest{VM: vm, Action: action}); err != nil {
		logging.Logger().Fatal("Lifecycle action failed",
			zap.String("name", vmName),
			zap.String("class", provisioning.Classify(err)),
			zap.Error(err))
	}

	if lifecycleWait {
		err := life.WaitForPowerState(ctx, vm, want,
			retry.WithAttempts(cfg.Lifecycle.ReadinessAttempts),
			retry.WithInitialDelay(cfg.Lifecycle.ReadinessDelay),
			retry.WithMaxDelay(cfg.Lifecycle.ReadinessMaxDelay))
		if err != nil {
			logging.Logger().Fatal("Virtual machine did not reach power state", zap.String("want", want), zap.Error(err))
		}
	}

	fmt.Printf("%s: %s\n", vmName, want)
}
