package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flasharb/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "A flash-loan cross-venue arbitrage executor",
	Long: `flasharb validates a caller-supplied arbitrage candidate, borrows the
principal through a flash loan, executes two sequential swap legs across two
venues, verifies repayment and forwards any surplus above the configured
threshold to the owner.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flasharb.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
