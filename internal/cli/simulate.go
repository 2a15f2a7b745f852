package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateMin   float64
	simulateMax   float64
	simulatePrice float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push synthetic levels through the alert path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateMin <= 0 || simulateMax <= 0 || simulatePrice <= 0 {
			return errors.New("--min, --max and --price must be greater than 0")
		}
		if simulateMin >= simulateMax {
			return errors.New("--min must be below --max")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateMin, simulateMax, simulatePrice)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateMin, "min", 0, "Synthetic support level")
	simulateCmd.Flags().Float64Var(&simulateMax, "max", 0, "Synthetic resistance level")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Synthetic last close")
}
