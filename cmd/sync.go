package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/kashisync/kashisync/internal/utils"
	"github.com/kashisync/kashisync/pkg/catalog"
	"github.com/kashisync/kashisync/pkg/reconcile"
	"github.com/kashisync/kashisync/pkg/runner"
	"github.com/spf13/cobra"
)

// syncCmd implements: kashisync sync
//
//	--merchant string   Comma-separated merchant names (required unless --all)
//	--all               Sync every configured merchant, one after another
//	--dry-run           Read the catalog but only print the writes
//	--store string      shopify (default) or local
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile merchants' storefront listings with their source shops",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'kashisync sync --help'", args[0])
		}
		names, _ := cmd.Flags().GetString("merchant")
		all, _ := cmd.Flags().GetBool("all")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		storeKind, _ := cmd.Flags().GetString("store")

		reg, err := loadMerchants()
		if err != nil {
			return err
		}
		var selected []string
		switch {
		case all:
			selected = reg.Names()
		case names != "":
			for _, n := range strings.Split(names, ",") {
				if n = strings.TrimSpace(n); n != "" {
					selected = append(selected, n)
				}
			}
		default:
			return fmt.Errorf("--merchant or --all is required (configured: %s)", strings.Join(reg.Names(), ", "))
		}

		db, dbPath, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fo := &factoryOptions{store: storeKind, dryRun: dryRun, db: db, dryRuns: map[string]*catalog.DryRun{}}
		factory, err := newFactory(fo)
		if err != nil {
			return err
		}
		opts := runner.Options{
			Merchants: reg,
			Factory:   factory,
			Log:       utils.Log,
			OnChange:  printChange,
		}
		if !dryRun {
			lockDir, err := utils.LockDir(dbPath)
			if err != nil {
				return err
			}
			opts.Ledger = db
			opts.LockDir = lockDir
		}
		m, err := runner.New(opts)
		if err != nil {
			return err
		}
		defer m.Shutdown()

		var summaries []reconcile.Summary
		failed := false
		for _, name := range selected {
			s, err := m.Run(name)
			if err != nil {
				utils.Log.Errorf("%s: %v", name, err)
				failed = true
				continue
			}
			if s.Stopped {
				failed = true
			}
			summaries = append(summaries, s)
			if d := fo.dryRuns[name]; d != nil {
				for _, w := range d.Writes {
					fmt.Printf("[dry-run] %s  %s\n", name, w)
				}
			}
		}
		printSummaries(summaries)
		if failed {
			return fmt.Errorf("one or more runs did not finish")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringP("merchant", "m", "", "Comma-separated merchants to sync")
	syncCmd.Flags().Bool("all", false, "Sync every configured merchant")
	syncCmd.Flags().Bool("dry-run", false, "Do not write to the storefront, print the planned writes instead")
	syncCmd.Flags().String("store", "shopify", "Catalog store: shopify or local")
}

func printChange(c reconcile.Change) {
	var mark string
	switch c.Action {
	case reconcile.ActionCreated:
		mark = "+"
	case reconcile.ActionDeleted:
		mark = "-"
	case reconcile.ActionDrafted:
		mark = "~"
	case reconcile.ActionReactivated:
		mark = "^"
	}
	fmt.Printf("%s  %-11s  %s  %s  %s\n", mark, c.Action, c.Merchant, c.Key, c.Title)
}

func printSummaries(summaries []reconcile.Summary) {
	if len(summaries) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "MERCHANT\tSEEN\tUPLOADED\tSKIPPED\tDELETED\tFAILED\tSTATUS\t")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\t\n", s.Merchant, s.Seen, s.Uploaded, s.SkippedTotal(), s.Deleted, s.UploadFailed+s.DeleteFailed, s.Status)
	}
	w.Flush()
	for _, s := range summaries {
		reasons := make([]string, 0, len(s.Skipped))
		for r := range s.Skipped {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			utils.Log.Debugf("%s skipped %s: %d", s.Merchant, r, s.Skipped[reconcile.SkipReason(r)])
		}
		for _, e := range s.Errors {
			utils.Log.Warnf("%s: %s", s.Merchant, e)
		}
	}
}
