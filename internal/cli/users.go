package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bankcore/internal/domain"
	"bankcore/internal/service"
)

type registrationFlags struct {
	email     string
	password  string
	firstName string
	lastName  string
}

func (f *registrationFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "login email")
	cmd.Flags().StringVar(&f.password, "password", "", "password (at least 8 characters)")
	cmd.Flags().StringVar(&f.firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&f.lastName, "last-name", "", "last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
}

func (f *registrationFlags) registration() service.Registration {
	return service.Registration{Email: f.email, Password: f.password, FirstName: f.firstName, LastName: f.lastName}
}

func registerCmd(rt *runtime) *cobra.Command {
	var f registrationFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a client and their checking account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.services(cmd.Context())
			if err != nil {
				return err
			}
			user, err := a.Users.Register(cmd.Context(), f.registration())
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), user)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func loginCmd(rt *runtime) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Print a session token for use with --token or BANK_TOKEN",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.services(cmd.Context())
			if err != nil {
				return err
			}
			user, err := a.Users.Authenticate(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			token, err := a.Users.IssueToken(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func whoamiCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user behind the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			user, err := a.Users.Get(cmd.Context(), actorID, actorID)
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), user)
			return nil
		},
	}
}

func staffCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "staff",
		Short: "Manage advisors and directors",
	}
	c.AddCommand(staffCreateCmd(rt))
	return c
}

func staffCreateCmd(rt *runtime) *cobra.Command {
	var f registrationFlags
	var role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an advisor or a director",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			user, err := a.Users.CreateStaff(cmd.Context(), actorID, domain.Role(role), f.registration())
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), user)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&role, "role", string(domain.RoleAdvisor), "advisor or director")
	return cmd
}

func usersCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "users",
		Short: "List and moderate users (staff only)",
	}
	c.AddCommand(usersListCmd(rt), usersBanCmd(rt, true), usersBanCmd(rt, false), usersAssignCmd(rt))
	return c
}

func usersListCmd(rt *runtime) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users, optionally of one role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			users, err := a.Users.List(cmd.Context(), actorID, domain.Role(role))
			if err != nil {
				return err
			}
			for i := range users {
				printUser(cmd.OutOrStdout(), &users[i])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "client, advisor or director")
	return cmd
}

func usersBanCmd(rt *runtime, ban bool) *cobra.Command {
	use, short := "ban USER_ID", "Suspend a client"
	if !ban {
		use, short = "unban USER_ID", "Lift a client's suspension"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			if ban {
				return a.Users.Ban(cmd.Context(), actorID, args[0])
			}
			return a.Users.Unban(cmd.Context(), actorID, args[0])
		},
	}
}

func usersAssignCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "assign CLIENT_ID ADVISOR_ID",
		Short: "Assign an advisor to a client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			return a.Users.AssignAdvisor(cmd.Context(), actorID, args[0], args[1])
		},
	}
}
