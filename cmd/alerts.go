package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage saved search alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		activeOnly, _ := cmd.Flags().GetBool("active")
		alerts, err := db.ListAlerts(cmd.Context(), activeOnly)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Println("No alerts saved. Add one with 'autoscouter alerts add'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tFILTERS\tFREQUENCY\tACTIVE\t")
		for _, a := range alerts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\t\n", a.ID, a.Name, describeFilters(&a), a.NotificationFrequency, a.IsActive)
		}
		return w.Flush()
	},
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		alert := alertFromFlags(cmd)
		id, err := db.CreateAlert(cmd.Context(), alert)
		if err != nil {
			return err
		}
		fmt.Printf("Alert %d (%s) created.\n", id, alert.Name)
		return nil
	},
}

var alertsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an alert and its notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert id: %s", args[0])
		}
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteAlert(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Alert %d deleted.\n", id)
		return nil
	},
}

var alertsToggleCmd = &cobra.Command{
	Use:   "toggle <id> <on|off>",
	Short: "Pause or resume an alert",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert id: %s", args[0])
		}
		var active bool
		switch args[1] {
		case "on":
			active = true
		case "off":
			active = false
		default:
			return fmt.Errorf("expected 'on' or 'off', got '%s'", args[1])
		}

		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.SetAlertActive(cmd.Context(), id, active); err != nil {
			return err
		}
		fmt.Printf("Alert %d is now %s.\n", id, args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsAddCmd)
	alertsCmd.AddCommand(alertsRmCmd)
	alertsCmd.AddCommand(alertsToggleCmd)

	alertsListCmd.Flags().Bool("active", false, "Only show active alerts")

	alertsAddCmd.Flags().String("name", "", "Alert name (required)")
	alertsAddCmd.Flags().String("make", "", "Vehicle make, e.g. BMW")
	alertsAddCmd.Flags().String("model", "", "Vehicle model, e.g. 320d")
	alertsAddCmd.Flags().Int("min-year", 0, "Earliest first-registration year")
	alertsAddCmd.Flags().Int("max-year", 0, "Latest first-registration year")
	alertsAddCmd.Flags().Int("min-price", 0, "Minimum price")
	alertsAddCmd.Flags().Int("max-price", 0, "Maximum price")
	alertsAddCmd.Flags().Int("max-mileage", 0, "Maximum mileage in km")
	alertsAddCmd.Flags().String("fuel", "", "Fuel type (petrol, diesel, electric, hybrid, ...)")
	alertsAddCmd.Flags().String("transmission", "", "Transmission (manual, automatic, semi-automatic)")
	alertsAddCmd.Flags().String("body", "", "Body type (sedan, wagon, suv, ...)")
	alertsAddCmd.Flags().String("city", "", "City")
	alertsAddCmd.Flags().String("frequency", storage.FrequencyImmediate, "Notification frequency: immediate or daily")
	alertsAddCmd.Flags().Int("max-per-day", 0, "Daily notification cap (0 = unlimited)")
	alertsAddCmd.MarkFlagRequired("name")
}

// alertFromFlags maps set flags onto the alert's nullable filter fields.
// Flags left at their default stay nil and match everything.
func alertFromFlags(cmd *cobra.Command) *storage.Alert {
	alert := &storage.Alert{IsActive: true}
	alert.Name, _ = cmd.Flags().GetString("name")
	alert.NotificationFrequency, _ = cmd.Flags().GetString("frequency")
	alert.MaxNotificationsPerDay, _ = cmd.Flags().GetInt("max-per-day")

	strFlag := func(name string, dst **string) {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetString(name)
			*dst = &v
		}
	}
	intFlag := func(name string, dst **int) {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetInt(name)
			*dst = &v
		}
	}

	strFlag("make", &alert.Make)
	strFlag("model", &alert.Model)
	strFlag("fuel", &alert.FuelType)
	strFlag("transmission", &alert.Transmission)
	strFlag("body", &alert.BodyType)
	strFlag("city", &alert.City)
	intFlag("min-year", &alert.MinYear)
	intFlag("max-year", &alert.MaxYear)
	intFlag("min-price", &alert.MinPrice)
	intFlag("max-price", &alert.MaxPrice)
	intFlag("max-mileage", &alert.MaxMileage)
	return alert
}

func describeFilters(a *storage.Alert) string {
	var parts []string
	add := func(label string, p *string) {
		if p != nil {
			parts = append(parts, label+"="+*p)
		}
	}
	addInt := func(label string, p *int) {
		if p != nil {
			parts = append(parts, fmt.Sprintf("%s=%d", label, *p))
		}
	}
	add("make", a.Make)
	add("model", a.Model)
	addInt("min-year", a.MinYear)
	addInt("max-year", a.MaxYear)
	addInt("min-price", a.MinPrice)
	addInt("max-price", a.MaxPrice)
	addInt("max-mileage", a.MaxMileage)
	add("fuel", a.FuelType)
	add("transmission", a.Transmission)
	add("body", a.BodyType)
	add("city", a.City)
	return strings.Join(parts, " ")
}
