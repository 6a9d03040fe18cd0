package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rflorenc/sisense-workbench/internal/access"
	"github.com/rflorenc/sisense-workbench/internal/report"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users on one tenant",
}

var usersGetCmd = &cobra.Command{
	Use:   "get <email>",
	Short: "Show one user",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(needEnv, runUsersGet),
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every user with role and groups",
	Args:  cobra.NoArgs,
	RunE:  withApp(needEnv, runUsersList),
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Args:  cobra.NoArgs,
	RunE:  withApp(needEnv, runUsersCreate),
}

var usersUpdateCmd = &cobra.Command{
	Use:   "update <email>",
	Short: "Update fields of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(needEnv, runUsersUpdate),
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <email>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(needEnv, runUsersDelete),
}

var usersPerGroupCmd = &cobra.Command{
	Use:   "per-group [group]",
	Short: "List the members of one group, or of every group",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withApp(needEnv, runUsersPerGroup),
}

var (
	newUser    access.NewUser
	userFirst  string
	userLast   string
	userRole   string
	userGroups []string
)

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersGetCmd, usersListCmd, usersCreateCmd, usersUpdateCmd, usersDeleteCmd, usersPerGroupCmd)

	f := usersCreateCmd.Flags()
	f.StringVar(&newUser.Email, "email", "", "Email")
	f.StringVar(&newUser.FirstName, "first-name", "", "First name")
	f.StringVar(&newUser.LastName, "last-name", "", "Last name")
	f.StringVar(&newUser.Role, "role", "viewer", "Role name, e.g. viewer, designer, dataDesigner")
	f.StringSliceVar(&newUser.Groups, "groups", nil, "Group names")

	f = usersUpdateCmd.Flags()
	f.StringVar(&userFirst, "first-name", "", "New first name")
	f.StringVar(&userLast, "last-name", "", "New last name")
	f.StringVar(&userRole, "role", "", "New role name")
	f.StringSliceVar(&userGroups, "groups", nil, "Replace the user's groups")

	addCSVFlag(usersListCmd)
	addCSVFlag(usersPerGroupCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runUsersGet(app *App, cmd *cobra.Command, args []string) error {
	u, err := app.manager().GetUser(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, u)
}

func runUsersList(app *App, cmd *cobra.Command, args []string) error {
	users, err := app.manager().ListUsers(cmd.Context())
	if err != nil {
		return err
	}
	return emit(cmd, report.Users(users))
}

func runUsersCreate(app *App, cmd *cobra.Command, args []string) error {
	if newUser.Email == "" {
		return fmt.Errorf("--email is required")
	}
	u, err := app.manager().CreateUser(cmd.Context(), newUser)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (ID: %s)\n", u.Email, u.ID)
	return nil
}

func runUsersUpdate(app *App, cmd *cobra.Command, args []string) error {
	patch := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("first-name") {
		patch["firstName"] = userFirst
	}
	if flags.Changed("last-name") {
		patch["lastName"] = userLast
	}
	if flags.Changed("role") {
		patch["role"] = userRole
	}
	if flags.Changed("groups") {
		patch["groups"] = userGroups
	}
	if len(patch) == 0 {
		return fmt.Errorf("nothing to update")
	}
	u, err := app.manager().UpdateUser(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated user %s (ID: %s)\n", args[0], u.ID)
	return nil
}

func runUsersDelete(app *App, cmd *cobra.Command, args []string) error {
	if err := app.manager().DeleteUser(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", args[0])
	return nil
}

func runUsersPerGroup(app *App, cmd *cobra.Command, args []string) error {
	m := app.manager()
	if len(args) == 1 {
		members, err := m.UsersPerGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return emit(cmd, report.GroupMembers{members})
	}
	all, err := m.UsersPerGroupAll(cmd.Context())
	if err != nil {
		return err
	}
	return emit(cmd, report.GroupMembers(all))
}
