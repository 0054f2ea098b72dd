package cmd

import (
	"context"
	"fmt"
	"time"

	"azvm/internal/config"
	"azvm/internal/logging"
	"azvm/internal/metrics"
	"azvm/internal/pipeline"
	"azvm/internal/provisioning"
	"azvm/internal/state"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// provisionCmd represents the provision command
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create the public IP, network interface and VM, then power-cycle the VM",
	Long: `Provision runs every stage in order: derive names, look up the resource
group, create the public IP address, the network interface and the virtual
machine, report its addresses, wait until it runs, deallocate it and power
it back on.

The first failing stage stops the run. Resources created before the failure
are left in place and listed in the run record (see "azvm status").`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		applyProvisionFlags(cmd, cfg)

		rec, err := provision(cfg)
		if rec != nil {
			printSummary(rec)
		}
		if err != nil {
			fields := []zap.Field{zap.Error(err)}
			if rec != nil {
				fields = append(fields,
					zap.String("run_id", rec.ID),
					zap.String("stage_name", pipeline.FailedStage(err)))
			}
			logging.Logger().Fatal("Provisioning failed", fields...)
		}
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd)
	addProvisionFlags(provisionCmd)
}

func addProvisionFlags(c *cobra.Command) {
	c.Flags().Bool("skip-lifecycle", false, "Stop after the VM is created")
	c.Flags().Duration("pacing", 0, "Fixed wait before each lifecycle action")
}

// applyProvisionFlags overrides cfg with the flags set on the command line.
func applyProvisionFlags(c *cobra.Command, cfg *config.Config) {
	if skip, _ := c.Flags().GetBool("skip-lifecycle"); skip {
		cfg.Lifecycle.Enabled = false
	}
	if c.Flags().Changed("pacing") {
		cfg.Lifecycle.Pacing, _ = c.Flags().GetDuration("pacing")
	}
}

// provision runs the pipeline and closes the store before returning, so
// the caller may exit on the error. The record is nil only when the run
// never started.
func provision(cfg *config.Config) (*state.RunRecord, error) {
	settings, err := pipeline.SettingsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid run settings: %w", err)
	}

	clients, err := provisioning.NewClientsFromConfig(cfg.Azure)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure clients: %w", err)
	}

	store, err := state.NewStore(cfg.State)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	defer closeStore(store)

	recorder := metrics.NewRecorder()
	orchestrator := pipeline.New(clients, provisioning.OptionsFromConfig(*cfg, nil), settings,
		pipeline.WithStore(store),
		pipeline.WithMetrics(recorder))

	ctx, cancel := signalContext()
	defer cancel()

	rec, runErr := orchestrator.Execute(ctx)

	pushCtx, pushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pushCancel()
	if err := recorder.Push(pushCtx, cfg.Metrics.PushGateway, cfg.Metrics.Job, rec.ID); err != nil {
		logging.Logger().Warn("Failed to push metrics", zap.Error(err))
	}

	return rec, runErr
}

func closeStore(store state.Store) {
	if err := store.Close(); err != nil {
		logging.Logger().Warn("Failed to close state store", zap.Error(err))
	}
}

func printSummary(rec *state.RunRecord) {
	fmt.Printf("Run ID: %s\n", rec.ID)
	fmt.Printf("Status: %s\n", rec.Status)
	if rec.Names.VirtualMachine != "" {
		fmt.Printf("Virtual machine: %s\n", rec.Names.VirtualMachine)
	}
	if rec.PrivateAddress != "" {
		fmt.Printf("Private address: %s\n", rec.PrivateAddress)
	}
	if rec.PublicAddress != "" {
		fmt.Printf("Public address: %s\n", rec.PublicAddress)
	}
}
