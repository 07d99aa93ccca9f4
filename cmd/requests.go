package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scrimworks/vendorvet/internal/ledger"
	"github.com/scrimworks/vendorvet/internal/model"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Inspect discovery request history",
	Long:  "Commands for listing and viewing discovery request lifecycle records.",
}

// -- requests list --

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovery requests",
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

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		requests, err := st.ListRequests(ctx, ledger.RequestFilter{
			Status: model.RequestStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "requests list")
		}

		if len(requests) == 0 {
			fmt.Fprintln(os.Stderr, "No requests found.")
			return nil
		}

		formatRequestsList(os.Stdout, requests)
		return nil
	},
}

// -- requests show --

var requestsShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show full details of a discovery request",
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

		req, err := st.GetRequest(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "requests show")
		}
		if req == nil {
			return eris.Errorf("request %q not found", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(req)
	},
}

func init() {
	requestsListCmd.Flags().String("status", "", "filter by request status (initiated, sourcing, verifying, completed, failed)")
	requestsListCmd.Flags().Int("limit", 50, "max number of requests to display")

	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsShowCmd)
	rootCmd.AddCommand(requestsCmd)
}

// formatRequestsList writes a tabular list of discovery requests to w.
func formatRequestsList(out io.Writer, requests []model.DiscoveryRequest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMATERIAL\tLOCATION\tSTATUS\tVENDORS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t--------\t------\t-------\t-------")

	for _, r := range requests {
		material := r.Material
		if material == "" {
			material = "-"
		}
		location := r.Location
		if location == "" {
			location = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(r.ID),
			material,
			location,
			r.Status,
			len(r.VendorIDs),
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
