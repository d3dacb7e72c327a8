package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"snapvision/internal/repository"
	"snapvision/internal/repository/sqlite"
	"snapvision/internal/service/classify"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var (
		cardsPath      string
		dbPath         string
		classNamesPath string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import card metadata into the card store",
		Long: `Migrate reads card records from a YAML file and upserts them into the sqlite
card store used by the classification endpoint. With --class-names it also
reports classes the classifier can produce that have no card record.`,
		Example: `  migrate --cards cards.yaml --db cards.db --class-names class_names.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}

			db, err := sqlite.New(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			repo := sqlite.NewCardRepository(db)

			if cardsPath != "" {
				if err := importCards(cmd, repo, cardsPath); err != nil {
					return err
				}
			}

			if count, err := repo.Count(); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "📊 Card store holds %d cards\n", count)
			}

			if classNamesPath != "" {
				return checkClassNames(cmd, repo, classNamesPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cardsPath, "cards", "", "YAML file with card records")
	cmd.Flags().StringVar(&dbPath, "db", "cards.db", "Card store path")
	cmd.Flags().StringVar(&classNamesPath, "class-names", "", "Class name table to check against the store")

	return cmd
}

func importCards(cmd *cobra.Command, repo repository.CardRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read cards file: %w", err)
	}

	cards, err := repository.ParseCardsYAML(data)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cards found to import")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Importing %d cards from %s...\n", len(cards), path)
	if err := repo.UpsertBatch(cards); err != nil {
		return fmt.Errorf("failed to import cards: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Successfully imported %d cards\n", len(cards))
	return nil
}

func checkClassNames(cmd *cobra.Command, repo repository.CardRepository, path string) error {
	names, err := classify.LoadClassNames(path)
	if err != nil {
		return err
	}

	missing, err := repo.MissingNames(names.All())
	if err != nil {
		return fmt.Errorf("failed to check class names: %w", err)
	}
	if len(missing) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "✅ All %d classes have a card record\n", names.Len())
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "⚠️  %d of %d classes have no card record:\n", len(missing), names.Len())
	for _, name := range missing {
		fmt.Fprintf(cmd.OutOrStdout(), "   - %s\n", name)
	}
	return fmt.Errorf("%d classes missing from the card store", len(missing))
}

func main() {
	if err := fang.Execute(context.Background(), newMigrateCmd()); err != nil {
		os.Exit(1)
	}
}
