// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"os"

	"questionbank/internal/database"
	"questionbank/internal/observability"
	"questionbank/internal/services"
	contextutils "questionbank/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(userService *services.UserService, logger *observability.Logger, db *sql.DB) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the question bank.

Available commands:
  stats     - Show database statistics
  migrate   - Apply pending schema migrations`,
	}

	// Add subcommands
	dbCmd.AddCommand(statsCmd(userService, logger, db))
	dbCmd.AddCommand(migrateCmd(logger, db))

	return dbCmd
}

// statsCmd returns the stats command
func statsCmd(userService *services.UserService, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show database statistics including user and question counts per status.`,
		RunE:  runStats(userService, logger, db),
	}
}

// migrateCmd returns the migrate command
func migrateCmd(logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  `Apply any pending golang-migrate schema migrations to the database.`,
		RunE:  runMigrate(logger, db),
	}
}

// runStats returns a function that shows database statistics
func runStats(userService *services.UserService, logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Log diagnostic information
		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("QB_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		// Get user statistics
		users, err := userService.GetAllUsers(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to get user statistics", err, map[string]interface{}{})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user statistics: %v", err)
		}

		// Question counts by status
		statusCounts := map[string]int{}
		rows, err := db.QueryContext(ctx, "SELECT status, COUNT(*) FROM questions GROUP BY status")
		if err != nil {
			logger.Error(ctx, "Failed to get question statistics", err, map[string]interface{}{})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get question statistics: %v", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var status string
			var count int
			if err := rows.Scan(&status, &count); err != nil {
				return contextutils.WrapError(err, "failed to scan question statistics")
			}
			statusCounts[status] = count
		}
		if err := rows.Err(); err != nil {
			return contextutils.WrapError(err, "failed to read question statistics")
		}

		logger.Info(ctx, "Database statistics", map[string]interface{}{
			"total_users":         len(users),
			"questions_by_status": statusCounts,
			"database":            "PostgreSQL",
			"status":              "Connected",
		})

		return nil
	}
}

// runMigrate returns a function that applies pending migrations
func runMigrate(logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("QB_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		dbManager := database.NewManager(logger)
		if err := dbManager.RunMigrations(db); err != nil {
			logger.Error(ctx, "Migrations failed", err, map[string]interface{}{})
			return contextutils.WrapError(err, "migrations failed")
		}

		logger.Info(ctx, "Migrations applied", map[string]interface{}{})
		return nil
	}
}
