/*
Copyright © 2025 renatuscartesius <cartesius.absolute@gmail.com>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"azvm/internal/config"
	"azvm/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "azvm",
	Short: "Provision and power-cycle a Windows VM on Azure",
	Long: `azvm creates a public IP address, a network interface and a Windows
virtual machine in an existing resource group, then deallocates and
powers the machine back on.

Configuration is read from azvm.yaml (or CONFIG_PATH, or --config).`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default is $CONFIG_PATH or azvm.yaml)")
}

func loadConfig() *config.Config {
	logging.Logger().Info("Loading configuration")

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logging.Logger().Fatal("Failed to load configuration", zap.Error(err))
	}
	return cfg
}

// signalContext is cancelled on SIGINT or SIGTERM. Cancelling abandons the
// current poll; the remote operation keeps running.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
