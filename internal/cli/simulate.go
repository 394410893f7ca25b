package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulatePatient string
	simulateType    string
	simulateValue   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一条越限测量并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePatient == "" || simulateType == "" {
			return errors.New("--patient 与 --type 必须提供")
		}

		return getApp().SimulateAlert(cmd.Context(), simulatePatient, simulateType, simulateValue)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePatient, "patient", "", "患者标识")
	simulateCmd.Flags().StringVar(&simulateType, "type", "", "测量类型 (HEART_RATE, SPO2, TEMPERATURE)")
	simulateCmd.Flags().Float64Var(&simulateValue, "value", 0, "测量值")
}
