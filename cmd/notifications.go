package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notifs"},
	Short:   "Show alert notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		unread, _ := cmd.Flags().GetBool("unread")
		limit, _ := cmd.Flags().GetInt("limit")
		alertID, _ := cmd.Flags().GetInt64("alert")

		notifications, err := db.ListNotifications(cmd.Context(), storage.ListNotificationsOptions{
			UnreadOnly: unread,
			AlertID:    alertID,
			Limit:      limit,
		})
		if err != nil {
			return err
		}
		if len(notifications) == 0 {
			fmt.Println("No notifications.")
			return nil
		}

		for _, n := range notifications {
			marker := " "
			if !n.IsRead {
				marker = "*"
			}
			fmt.Printf("%s [%d] alert %d: %s\n", marker, n.ID, n.AlertID, n.Summary)
		}
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <id|all>",
	Short: "Mark notifications as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if args[0] == "all" {
			n, err := db.MarkAllNotificationsRead(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%d notifications marked as read.\n", n)
			return nil
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid notification id: %s", args[0])
		}
		if err := db.MarkNotificationRead(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Notification %d marked as read.\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)

	notificationsCmd.Flags().Bool("unread", false, "Only show unread notifications")
	notificationsCmd.Flags().Int64("alert", 0, "Only show notifications for this alert id")
	notificationsCmd.Flags().Int("limit", 50, "Maximum rows to print")
}
