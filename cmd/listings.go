package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Browse stored vehicle listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		minPrice, _ := cmd.Flags().GetInt("min-price")
		maxPrice, _ := cmd.Flags().GetInt("max-price")
		includeInactive, _ := cmd.Flags().GetBool("inactive")
		source, _ := cmd.Flags().GetString("source")
		mk, _ := cmd.Flags().GetString("make")
		model, _ := cmd.Flags().GetString("model")

		listings, err := db.ListListings(cmd.Context(), storage.ListListingsOptions{
			Source:     source,
			Make:       mk,
			Model:      model,
			ActiveOnly: !includeInactive,
			MinPrice:   minPrice,
			MaxPrice:   maxPrice,
			Limit:      limit,
		})
		if err != nil {
			return err
		}
		if len(listings) == 0 {
			fmt.Println("No listings match. Run 'autoscouter scrape' first.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tVEHICLE\tYEAR\tPRICE\tKM\tCITY\t")
		for _, l := range listings {
			name := l.Make + " " + l.Model
			if l.Variant != "" {
				name += " " + l.Variant
			}
			price := "-"
			if l.Price > 0 {
				price = fmt.Sprintf("%d %s", l.Price, l.Currency)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%s\t\n", l.ID, l.Source, name, l.Year, price, l.Mileage, l.City)
		}
		return w.Flush()
	},
}

var listingsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a listing's price history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid listing id: %s", args[0])
		}
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		listing, err := db.GetListing(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s %s\n%s\n\n", listing.Make, listing.Model, listing.Variant, listing.URL)

		points, err := db.ListPriceHistory(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Println("No price changes recorded yet.")
			return nil
		}
		for _, p := range points {
			fmt.Printf("%s  %d %s\n", p.ObservedAt.Format("2006-01-02 15:04"), p.Price, p.Currency)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listingsCmd)
	listingsCmd.AddCommand(listingsHistoryCmd)

	listingsCmd.Flags().String("source", "all", "Filter by source")
	listingsCmd.Flags().String("make", "", "Filter by make")
	listingsCmd.Flags().String("model", "", "Filter by model")
	listingsCmd.Flags().Int("min-price", 0, "Minimum price")
	listingsCmd.Flags().Int("max-price", 0, "Maximum price")
	listingsCmd.Flags().Int("limit", 50, "Maximum rows to print")
	listingsCmd.Flags().Bool("inactive", false, "Include delisted vehicles")
}
