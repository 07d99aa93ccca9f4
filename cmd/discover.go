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
	discoverPrompt   string
	discoverMaterial string
	discoverLocation string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find a supplier shortlist from a natural-language request",
	Long:  `Extracts the material and target location from the prompt, fans out web searches for candidate companies, verifies each one in parallel, and records confirmed vendors in the ledger.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		prompt, err := discoveryPrompt(discoverPrompt, discoverMaterial, discoverLocation)
		if err != nil {
			return err
		}

		env, err := initPipelines(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		shortlist, err := env.Discovery.Run(ctx, prompt)
		if err != nil {
			return eris.Wrap(err, "discovery run")
		}

		zap.L().Info("discovery complete",
			zap.String("material", shortlist.Material),
			zap.String("location", shortlist.Location),
			zap.Int("vendors", len(shortlist.Vendors)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(shortlist)
	},
}

// discoveryPrompt resolves the request text from either a free-form prompt
// or an explicit material/location pair.
func discoveryPrompt(prompt, material, location string) (string, error) {
	if prompt != "" {
		return prompt, nil
	}
	if material == "" || location == "" {
		return "", eris.New("either --prompt or both --material and --location are required")
	}
	return fmt.Sprintf("Find suppliers for %s in %s.", material, location), nil
}

func init() {
	discoverCmd.Flags().StringVar(&discoverPrompt, "prompt", "", "discovery request, e.g. \"find concrete suppliers in Riyadh\"")
	discoverCmd.Flags().StringVar(&discoverMaterial, "material", "", "material or product to source (with --location)")
	discoverCmd.Flags().StringVar(&discoverLocation, "location", "", "target location (with --material)")
	rootCmd.AddCommand(discoverCmd)
}
