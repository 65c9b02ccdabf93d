package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func notificationsCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "notifications",
		Short: "Read your notifications",
	}
	c.AddCommand(notificationsListCmd(rt), notificationsReadCmd(rt))
	return c
}

func notificationsListCmd(rt *runtime) *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			list, err := a.Notifications.List(cmd.Context(), actorID, unread)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tDATE\tKIND\tTITLE\tREAD")
			for _, n := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", n.ID, stamp(n.CreatedAt), n.Kind, n.Title, n.Read)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	return cmd
}

func notificationsReadCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "read NOTIFICATION_ID",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			return a.Notifications.MarkRead(cmd.Context(), actorID, args[0])
		},
	}
}
