package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func messagesCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "messages",
		Short: "Private conversations between clients and advisors",
	}
	c.AddCommand(messagesOpenCmd(rt), messagesReplyCmd(rt), messagesListCmd(rt), messagesShowCmd(rt),
		messagesTransferCmd(rt), messagesCloseCmd(rt))
	return c
}

func messagesOpenCmd(rt *runtime) *cobra.Command {
	var subject, body string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Start a conversation with your advisor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags("subject", subject, "body", body); err != nil {
				return err
			}
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			conv, err := a.Messages.Open(cmd.Context(), actorID, subject, body)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "conversation %s opened\n", conv.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject")
	cmd.Flags().StringVar(&body, "body", "", "first message")
	return cmd
}

func messagesReplyCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "reply CONVERSATION_ID MESSAGE...",
		Short: "Reply in a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			_, err = a.Messages.Reply(cmd.Context(), actorID, args[0], strings.Join(args[1:], " "))
			return err
		},
	}
}

func messagesListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the conversations you can see",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			convs, err := a.Messages.List(cmd.Context(), actorID)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tSUBJECT\tCLIENT\tADVISOR\tSTATUS\tUPDATED")
			for _, c := range convs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Subject, c.ClientID, orDash(c.AdvisorID), c.Status, stamp(c.UpdatedAt))
			}
			return tw.Flush()
		},
	}
}

func messagesShowCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show CONVERSATION_ID",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			msgs, err := a.Messages.Messages(cmd.Context(), actorID, args[0])
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", stamp(m.CreatedAt), m.SenderID, m.Body)
			}
			return nil
		},
	}
}

func messagesTransferCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer CONVERSATION_ID ADVISOR_ID",
		Short: "Hand a conversation over to another advisor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			return a.Messages.Transfer(cmd.Context(), actorID, args[0], args[1])
		},
	}
}

func messagesCloseCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "close CONVERSATION_ID",
		Short: "Close a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			return a.Messages.Close(cmd.Context(), actorID, args[0])
		},
	}
}
