package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/avrebarra/lumora/internal/config"
	"github.com/avrebarra/lumora/pkg/catalog"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a starter configuration",
	Long: `Write a default configuration file and a starter model catalog.
Edit both files afterwards to add provider credentials and models.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	if _, err := os.Stat(cfg.Models.CatalogPath); os.IsNotExist(err) {
		if err := writeStarterCatalog(cfg.Models.CatalogPath); err != nil {
			return fmt.Errorf("failed to write model catalog: %w", err)
		}
		fmt.Printf("Model catalog written to: %s\n", cfg.Models.CatalogPath)
	}

	fmt.Printf("Configuration saved to: %s\n", loader.GetConfigPath())
	fmt.Println("\nAdd provider credentials, then start Lumora with: lumora serve")

	return nil
}

func writeStarterCatalog(path string) error {
	starter := []catalog.Descriptor{
		{
			ID:           "claude",
			Provider:     "anthropic",
			BackendModel: "claude-sonnet-4-20250514",
			Active:       true,
			DisplayOrder: 1,
		},
		{
			ID:           "gpt",
			Provider:     "openai",
			BackendModel: "gpt-4o",
			Active:       true,
			DisplayOrder: 2,
		},
	}

	data, err := json.MarshalIndent(starter, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
