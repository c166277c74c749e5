package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Show recent scrape sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")
		sessions, err := db.ListSessions(cmd.Context(), source, limit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No scrape sessions recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSTARTED\tFOUND\tNEW\tUPDATED\tGONE\t")
		for _, s := range sessions {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t\n",
				s.ID, s.Source, s.Status, s.StartedAt.Format("2006-01-02 15:04"), s.Found, s.NewCount, s.Updated, s.Deactivated)
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one scrape session in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id: %s", args[0])
		}
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		s, err := db.GetSession(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("Session %d (%s): %s\n", s.ID, s.Source, s.Status)
		fmt.Printf("Started:     %s\n", s.StartedAt.Format("2006-01-02 15:04:05"))
		if !s.CompletedAt.IsZero() {
			fmt.Printf("Completed:   %s\n", s.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Found:       %d\n", s.Found)
		fmt.Printf("New:         %d\n", s.NewCount)
		fmt.Printf("Updated:     %d\n", s.Updated)
		fmt.Printf("Reactivated: %d\n", s.Reactivated)
		fmt.Printf("Deactivated: %d\n", s.Deactivated)
		fmt.Printf("Parse errors: %d\n", s.ParseErrors)
		if s.Error != "" {
			fmt.Printf("Error:       %s\n", s.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	sessionsCmd.Flags().String("source", "all", "Filter by source")
	sessionsCmd.Flags().Int("limit", 20, "Maximum rows to print")
}
