package cli

import (
	"github.com/spf13/cobra"
)

var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Print the current price together with the peak levels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Now(cmd.Context())
	},
}

var peaksCmd = &cobra.Command{
	Use:   "peaks",
	Short: "Print the top clustered min/max levels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Peaks(cmd.Context())
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the quote-asset wallet balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Balance(cmd.Context())
	},
}
