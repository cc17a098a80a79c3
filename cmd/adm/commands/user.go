package commands

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"questionbank/internal/models"
	"questionbank/internal/observability"
	"questionbank/internal/services"
	contextutils "questionbank/internal/utils"

	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(userService *services.UserService, logger *observability.Logger, databaseURL string) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the question bank.

Available commands:
  list           - List all users
  create         - Create a new user
  set-role       - Change a user's role
  reset-password - Reset password for a specific user`,
	}

	// Add subcommands
	userCmd.AddCommand(listCmd(userService, logger, databaseURL))
	userCmd.AddCommand(createCmd(userService, logger))
	userCmd.AddCommand(setRoleCmd(userService, logger))
	userCmd.AddCommand(resetPasswordCmd(userService, logger))

	return userCmd
}

// listCmd returns the list command
func listCmd(userService *services.UserService, logger *observability.Logger, databaseURL string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Long:  `List all users in the database with their basic information.`,
		RunE:  runListUsers(userService, logger, databaseURL),
	}
}

// createCmd returns the create command
func createCmd(userService *services.UserService, logger *observability.Logger) *cobra.Command {
	var email string
	var role string

	cmd := &cobra.Command{
		Use:   "create [username]",
		Short: "Create a new user",
		Long:  `Create a new user with the given username, email, and role. You will be prompted for a password.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runCreateUser(userService, logger, &email, &role),
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address for the new user (required)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleCreator), "Role for the new user (creator, reviewer, admin)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// setRoleCmd returns the set-role command
func setRoleCmd(userService *services.UserService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role [username] [role]",
		Short: "Change a user's role",
		Long:  `Change a user's role to creator, reviewer, or admin.`,
		Args:  cobra.ExactArgs(2),
		RunE:  runSetRole(userService, logger),
	}
}

// resetPasswordCmd returns the reset-password command
func resetPasswordCmd(userService *services.UserService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password [username]",
		Short: "Reset password for a user",
		Long:  `Reset the password for a specific user. If username is not provided, you will be prompted for it.`,
		RunE:  runResetPassword(userService, logger),
	}
}

// runListUsers returns a function that lists all users
func runListUsers(userService *services.UserService, logger *observability.Logger, databaseURL string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Show diagnostic information
		logger.Info(ctx, "Admin command diagnostics", map[string]interface{}{"config_file": os.Getenv("QB_CONFIG_FILE"), "database_url": maskDatabaseURL(databaseURL)})

		users, err := userService.GetAllUsers(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to get users", err, map[string]interface{}{})
			return contextutils.WrapError(err, "failed to get users")
		}

		if len(users) == 0 {
			logger.Info(ctx, "No users found in the database", nil)
			return nil
		}

		// Print header to stdout (user-facing table)
		fmt.Printf("%-5s %-20s %-30s %-10s %-12s\n", "ID", "Username", "Email", "Role", "Created")

		// Print each user
		for _, user := range users {
			email := "N/A"
			if user.Email.Valid {
				email = user.Email.String
			}

			fmt.Printf("%-5d %-20s %-30s %-10s %-12s\n",
				user.ID,
				user.Username,
				email,
				string(user.Role),
				user.CreatedAt.Format("2006-01-02"),
			)
		}

		logger.Info(ctx, "Listed users", map[string]interface{}{"total": len(users)})
		return nil
	}
}

// runCreateUser returns a function that creates a new user
func runCreateUser(userService *services.UserService, logger *observability.Logger, email, role *string) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		username := args[0]

		userRole := models.Role(*role)
		if !userRole.Valid() {
			return contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "invalid role: %s", *role)
		}

		password, err := promptPassword()
		if err != nil {
			return err
		}

		user, err := userService.CreateUserWithPassword(ctx, username, *email, password, userRole)
		if err != nil {
			logger.Error(ctx, "Failed to create user", err, map[string]interface{}{"username": username})
			return contextutils.WrapErrorf(err, "failed to create user '%s'", username)
		}

		fmt.Printf("Created user '%s' (ID: %d, role: %s)\n", user.Username, user.ID, string(user.Role))
		logger.Info(ctx, "User created", map[string]interface{}{"username": username, "user_id": user.ID, "role": string(user.Role)})
		return nil
	}
}

// runSetRole returns a function that changes a user's role
func runSetRole(userService *services.UserService, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		username := args[0]

		role := models.Role(args[1])
		if !role.Valid() {
			return contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "invalid role: %s", args[1])
		}

		user, err := userService.GetUserByUsername(ctx, username)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to get user '%s'", username)
		}
		if user == nil {
			return contextutils.ErrorWithContextf(contextutils.ErrRecordNotFound, "user '%s' not found", username)
		}

		if err := userService.UpdateUserRole(ctx, user.ID, role); err != nil {
			logger.Error(ctx, "Failed to update role", err, map[string]interface{}{"username": username, "role": string(role)})
			return contextutils.WrapErrorf(err, "failed to update role for user '%s'", username)
		}

		fmt.Printf("User '%s' is now a %s\n", username, string(role))
		logger.Info(ctx, "Role updated", map[string]interface{}{"username": username, "user_id": user.ID, "role": string(role)})
		return nil
	}
}

// runResetPassword returns a function that resets a user's password
func runResetPassword(userService *services.UserService, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		var username string

		// Get username from args or prompt
		if len(args) > 0 {
			username = args[0]
		} else {
			fmt.Print("Enter username: ")
			if _, err := fmt.Scanln(&username); err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read username: %v", err)
			}
		}

		if username == "" {
			return contextutils.ErrorWithContextf(contextutils.ErrMissingRequired, "username is required")
		}

		newPassword, err := promptPassword()
		if err != nil {
			return err
		}

		logger.Info(ctx, "Resetting password for user", map[string]interface{}{
			"username": username,
		})

		// Get user by username
		user, err := userService.GetUserByUsername(ctx, username)
		if err != nil {
			logger.Error(ctx, "Failed to get user", err, map[string]interface{}{"username": username})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user '%s': %v", username, err)
		}

		if user == nil {
			logger.Error(ctx, "User not found", nil, map[string]interface{}{"username": username})
			return contextutils.ErrorWithContextf(contextutils.ErrRecordNotFound, "user '%s' not found", username)
		}

		// Update the password
		err = userService.UpdateUserPassword(ctx, user.ID, newPassword)
		if err != nil {
			logger.Error(ctx, "Failed to update password", err, map[string]interface{}{
				"username": username,
				"user_id":  user.ID,
			})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to update password for user '%s': %v", username, err)
		}

		fmt.Printf("Password successfully reset for user '%s' (ID: %d)\n", username, user.ID)
		logger.Info(ctx, "Password reset successful", map[string]interface{}{
			"username": username,
			"user_id":  user.ID,
		})

		return nil
	}
}

// promptPassword reads and confirms a password without echoing it
func promptPassword() (string, error) {
	fmt.Print("Enter new password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
	}
	password := string(passwordBytes)
	fmt.Println()

	if password == "" {
		return "", contextutils.ErrorWithContextf(contextutils.ErrMissingRequired, "password cannot be empty")
	}

	fmt.Print("Confirm new password: ")
	confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password confirmation: %v", err)
	}
	fmt.Println()

	if password != string(confirmBytes) {
		return "", contextutils.ErrorWithContextf(contextutils.ErrInvalidInput, "passwords do not match")
	}
	return password, nil
}
