package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	vetVendor string
	vetJSON   bool
)

var vetCmd = &cobra.Command{
	Use:   "vet",
	Short: "Run a multi-domain risk vetting report for a vendor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipelines(ctx, "vet")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Vetting.Run(ctx, vetVendor)
		if err != nil {
			return eris.Wrap(err, "vetting run")
		}

		zap.L().Info("vetting complete",
			zap.String("vendor", vetVendor),
			zap.Float64("risk_score", result.Report.RiskScore),
			zap.Int("failed_domains", len(result.Report.FailedDomains)),
		)

		if vetJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result.Report)
		}

		fmt.Print(formatReport(result.Report))
		return nil
	},
}

func init() {
	vetCmd.Flags().StringVar(&vetVendor, "vendor", "", "vendor name to vet (required)")
	vetCmd.Flags().BoolVar(&vetJSON, "json", false, "print the full report as JSON")
	_ = vetCmd.MarkFlagRequired("vendor")
	rootCmd.AddCommand(vetCmd)
}
