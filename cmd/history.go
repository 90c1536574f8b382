package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kashisync/kashisync/pkg/reconcile"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs (default 20)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("merchant")
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")

		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), name, limit)
		if err != nil {
			return err
		}
		return printRuns(runs, output)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringP("merchant", "m", "", "Only show runs of this merchant")
	historyCmd.Flags().Int("limit", 20, "Number of runs to show")
	historyCmd.Flags().StringP("output", "o", "table", "Output format: table, json or yaml")
}

func printRuns(runs []reconcile.Summary, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(runs)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STARTED\tMERCHANT\tRUN\tUPLOADED\tDELETED\tSKIPPED\tSTATUS\t")
	for _, s := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Merchant, shortID(s.RunID), s.Uploaded, s.Deleted, s.SkippedTotal(), s.Status)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
