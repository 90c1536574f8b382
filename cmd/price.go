package cmd

import (
	"fmt"

	"github.com/kashisync/kashisync/pkg/merchant"
	"github.com/kashisync/kashisync/pkg/pricing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Compute the sell price of an item",
	Example: `  kashisync price --cost 3000 --weight 0.5
  kashisync price --cost 1800 --dims 30x20x10 --merchant kyoto`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cost, _ := cmd.Flags().GetInt("cost")
		weight, _ := cmd.Flags().GetFloat64("weight")
		dims, _ := cmd.Flags().GetString("dims")
		name, _ := cmd.Flags().GetString("merchant")

		rates := pricing.DefaultRates()
		if name != "" {
			reg, err := merchant.Load(viper.GetViper())
			if err != nil {
				return err
			}
			p, err := reg.Get(name)
			if err != nil {
				return err
			}
			rates = p.Rates
		}

		if dims != "" {
			var l, w, h float64
			if _, err := fmt.Sscanf(dims, "%fx%fx%f", &l, &w, &h); err != nil {
				return fmt.Errorf("--dims must look like 30x20x10: %w", err)
			}
			vol := pricing.VolumetricKg(l, w, h, pricing.DefaultVolumetricDivisor)
			fmt.Printf("volumetric weight: %.3f kg\n", vol)
			weight = pricing.ResolveWeight(weight, vol)
		}

		price := rates.SellPrice(cost, weight)
		if price == 0 {
			fmt.Println("not listable: cost must be positive")
			return nil
		}
		fmt.Printf("cost=%d weight=%.3fkg shipping/kg=%g margin divisor=%g -> %d\n", cost, weight, rates.ShippingPerKg, rates.MarginDivisor, price)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(priceCmd)
	priceCmd.Flags().Int("cost", 0, "Source cost in yen")
	priceCmd.Flags().Float64("weight", 0, "Declared shipping weight in kg")
	priceCmd.Flags().String("dims", "", "Package dimensions in cm (LxWxH); the larger of declared and volumetric weight is used")
	priceCmd.Flags().StringP("merchant", "m", "", "Use this merchant's rates")
	priceCmd.MarkFlagRequired("cost")
}
