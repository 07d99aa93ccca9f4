package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scrimworks/vendorvet/internal/model"
)

var vendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "Inspect the vendor ledger",
	Long:  "Commands for listing and viewing canonical vendor records.",
}

// -- vendors list --

var vendorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vendors in the ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		vendors, err := st.ListVendors(ctx, limit, offset)
		if err != nil {
			return eris.Wrap(err, "vendors list")
		}

		if len(vendors) == 0 {
			fmt.Fprintln(os.Stderr, "No vendors found.")
			return nil
		}

		formatVendorsList(os.Stdout, vendors)
		return nil
	},
}

// -- vendors show --

var vendorsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show the full record of a vendor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		vendor, err := st.GetVendor(ctx, model.NormalizeName(args[0]))
		if err != nil {
			return eris.Wrap(err, "vendors show")
		}
		if vendor == nil {
			return eris.Errorf("vendor %q not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(vendor)
	},
}

func init() {
	vendorsListCmd.Flags().Int("limit", 50, "max number of vendors to display")
	vendorsListCmd.Flags().Int("offset", 0, "number of vendors to skip")

	vendorsCmd.AddCommand(vendorsListCmd)
	vendorsCmd.AddCommand(vendorsShowCmd)
	rootCmd.AddCommand(vendorsCmd)
}

// formatVendorsList writes a tabular list of vendors to w.
func formatVendorsList(out io.Writer, vendors []model.VendorRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tNAME\tWEBSITE\tVETTED\tDISCOVERED_IN\tUPDATED")
	_, _ = fmt.Fprintln(w, "---\t----\t-------\t------\t-------------\t-------")

	for _, v := range vendors {
		website := v.WebsiteURL
		if len(website) > 40 {
			website = website[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			v.Key,
			v.Name,
			website,
			v.VettingStatus,
			len(v.DiscoveredIn),
			v.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
