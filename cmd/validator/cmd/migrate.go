package cmd

import (
	"fmt"

	"booking-validation-service/internal/store/memory"
	"booking-validation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// migrateCmd creates the database schema and optionally loads bookings
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and seed bookings",
	Long: `Migrate creates or updates the booking, passenger, report and result
tables of a postgres or sqlite store. With --bookings it also inserts the
bookings from a JSON file.

Examples:
  validator migrate --store sqlite --dsn validation.db
  validator migrate --store postgres --dsn "$DATABASE_URL" --bookings bookings.json`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	app, err := openApplication()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.requireDatabase("migrate"); err != nil {
		return err
	}

	if err := app.db.AutoMigrate(); err != nil {
		return errors.StoreError(errors.CodePersistenceFailed, "migrate", err)
	}
	app.logger.Info("Schema is up to date")

	path := viper.GetString("bookings")
	if path == "" {
		return nil
	}
	bookings, err := memory.LoadBookingsFile(path)
	if err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if err := app.db.SeedBookings(cmd.Context(), bookings...); err != nil {
		return errors.StoreError(errors.CodePersistenceFailed, "seed_bookings", err).WithContext("file", path)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d bookings from %s\n", len(bookings), path)
	return nil
}
