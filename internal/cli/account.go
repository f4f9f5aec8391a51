package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/avrebarra/lumora/internal/config"
	"github.com/avrebarra/lumora/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	accountCredits int64
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage credit accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a credit account with an opening balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountCreate,
}

var accountShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an account's balance and recent usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountShow,
}

var accountSuspendCmd = &cobra.Command{
	Use:   "suspend <id>",
	Short: "Suspend an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSuspension(args[0], true)
	},
}

var accountResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Lift an account's suspension",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSuspension(args[0], false)
	},
}

func init() {
	accountCreateCmd.Flags().Int64Var(&accountCredits, "credits", 100, "opening credit balance")
	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountSuspendCmd)
	accountCmd.AddCommand(accountResumeCmd)
	rootCmd.AddCommand(accountCmd)
}

func openStore() (*store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return store.Open(filepath.Join(cfg.DataDir, "lumora.db"), zerolog.Nop())
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.CreateAccount(ctx, args[0], accountCredits); err != nil {
		return err
	}

	fmt.Printf("Account %s created with %d credits\n", args[0], accountCredits)
	return nil
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	acc, err := db.GetAccount(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Account: %s\n", acc.ID)
	fmt.Printf("Balance: %d\n", acc.Balance)
	fmt.Printf("Suspended: %v\n", acc.Suspended)

	records, err := db.ListUsage(ctx, acc.ID)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		fmt.Println("\nRecent usage:")
		limit := len(records)
		if limit > 10 {
			limit = 10
		}
		for _, rec := range records[:limit] {
			fmt.Printf("  %s  -%d  %s\n", rec.CreatedAt.Format(time.RFC3339), rec.Cost, rec.Reason)
		}
	}
	return nil
}

func setSuspension(id string, suspended bool) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.SetSuspended(ctx, id, suspended); err != nil {
		return err
	}

	if suspended {
		fmt.Printf("Account %s suspended\n", id)
	} else {
		fmt.Printf("Account %s resumed\n", id)
	}
	return nil
}
