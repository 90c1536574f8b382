package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var merchantsCmd = &cobra.Command{
	Use:   "merchants",
	Short: "List configured merchants",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := loadMerchants()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "MERCHANT\tCRAWLER\tGROUP\tMIN PRICE\tPOLICY\tRECHECK\t")
		for _, name := range reg.Names() {
			p := reg[name]
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t\n", p.Name, p.Crawler, p.GroupName, p.MinPrice, p.DeletionPolicy, strconv.FormatBool(p.RecheckStock))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(merchantsCmd)
}
