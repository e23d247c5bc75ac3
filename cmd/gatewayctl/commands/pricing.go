package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/modelgate/modelgate/internal/database"
)

// NewPricingCommand manages the model_pricing table.
func NewPricingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Manage model pricing",
		Long:  "Seed and inspect the per-model pricing rows used for cost accounting.",
	}

	cmd.AddCommand(newPricingSeedCommand())
	cmd.AddCommand(newPricingListCommand())

	return cmd
}

func newPricingSeedCommand() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert default pricing rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dbURL)
			if err != nil {
				return err
			}

			if err := database.SeedPricing(db); err != nil {
				return err
			}

			fmt.Println("Pricing seeded")
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db-url", "", "database URL (defaults to DATABASE_URL)")

	return cmd
}

func newPricingListCommand() *cobra.Command {
	var dbURL string
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pricing rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dbURL)
			if err != nil {
				return err
			}

			rows, err := database.ListPricing(db)
			if err != nil {
				return err
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPROVIDER\tINPUT $/1M\tOUTPUT $/1M\tMAX CONTEXT\tUPDATED")
			for _, row := range rows {
				fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%d\t%s\n",
					row.ModelName,
					row.ProviderName,
					row.InputCostPer1MTokens,
					row.OutputCostPer1MTokens,
					row.MaxContextTokens,
					row.UpdatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dbURL, "db-url", "", "database URL (defaults to DATABASE_URL)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	return cmd
}

func openDB(dbURL string) (*gorm.DB, error) {
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, fmt.Errorf("database URL is required (--db-url or DATABASE_URL)")
	}

	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
