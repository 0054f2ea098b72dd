package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"azvm/internal/config"
	"azvm/internal/logging"
	"azvm/internal/state"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var statusOutput string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show a provisioning run",
	Long:  `Print the run record of the given run, or of the most recent run when no ID is given.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rec, err := loadRun(loadConfig(), args)
		if err != nil {
			logging.Logger().Fatal("Could not get run", zap.Error(err))
		}

		if err := renderRun(os.Stdout, rec, statusOutput); err != nil {
			logging.Logger().Fatal("Could not render run", zap.Error(err))
		}
	},
}

// loadRun reads the named run, or the latest one when args is empty.
func loadRun(cfg *config.Config, args []string) (*state.RunRecord, error) {
	store, err := state.NewStore(cfg.State)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	defer closeStore(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(args) > 0 {
		return store.GetRun(ctx, args[0])
	}
	return state.Latest(ctx, store)
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "Output format: text, yaml or json")
}

func renderRun(w io.Writer, rec *state.RunRecord, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		return renderText(w, rec)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func renderText(w io.Writer, rec *state.RunRecord) error {
	p := func(format string, a ...any) { fmt.Fprintf(w, format, a...) }

	p("Run ID: %s\n", rec.ID)
	p("Status: %s\n", rec.Status)
	if rec.Error != "" {
		p("Error: %s\n", logging.Truncate(rec.Error))
	}
	p("Started: %s\n", rec.StartedAt.Format(time.RFC3339))
	p("Resource group: %s\n", rec.ResourceGroup)

	p("\nResources:\n")
	for _, r := range []struct{ kind, name, id string }{
		{"public address", rec.Names.PublicAddress, rec.PublicAddressID},
		{"network interface", rec.Names.NetworkInterface, rec.NetworkInterfaceID},
		{"virtual machine", rec.Names.VirtualMachine, rec.VirtualMachineID},
	} {
		if r.name == "" {
			continue
		}
		id := r.id
		if id == "" {
			id = "(not created)"
		}
		p("- %s %s: %s\n", r.kind, r.name, id)
	}
	if rec.PrivateAddress != "" {
		p("Private address: %s\n", rec.PrivateAddress)
	}
	if rec.PublicAddress != "" {
		p("Public address: %s\n", rec.PublicAddress)
	}
	if rec.PowerState != "" {
		p("Power state: %s\n", rec.PowerState)
	}

	p("\nStages:\n")
	for i, s := range rec.Stages {
		line := fmt.Sprintf("  %d. %s [%s]", i+1, s.Name, s.Status)
		if !s.FinishedAt.IsZero() && s.Status != state.StageSkipped {
			line += fmt.Sprintf(" %s", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
		}
		if s.Error != "" {
			line += fmt.Sprintf(": %s", logging.TruncateN(s.Error, 200))
		}
		p("%s\n", line)
	}
	return nil
}
