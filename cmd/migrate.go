package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/goatkit/goatlink/internal/config"
	"github.com/goatkit/goatlink/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	log.Printf("migrate: schema up to date (%s)", cfg.DBDriver)
	return nil
}
