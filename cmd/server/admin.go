package main

import (
	"context"
	"fmt"

	"ultichat/internal/repository"
	"ultichat/internal/service"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Open applies the schema.
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			log.WithField("path", cfg.DBPath).Info("database schema up to date")
			return nil
		},
	}
}

func newCreditCmd() *cobra.Command {
	var (
		email       string
		amount      string
		description string
	)

	cmd := &cobra.Command{
		Use:     "credit",
		Short:   "Append a deposit to an account",
		Example: `  ultichat credit --email user@example.com --amount 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			usd, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}

			svc, closeDB, err := transactionServiceFromConfig()
			if err != nil {
				return err
			}
			defer closeDB()

			balance, err := svc.Credit(context.Background(), email, usd, description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credited %s USD to %s, balance %s USD\n", usd.String(), email, balance.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&amount, "amount", "", "USD amount to credit")
	cmd.Flags().StringVar(&description, "description", "", "ledger description")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newGiftCmd() *cobra.Command {
	gift := &cobra.Command{
		Use:   "gift",
		Short: "Manage gift codes",
	}

	gift.AddCommand(&cobra.Command{
		Use:   "add CODE [AMOUNT]",
		Short: "Create or update a gift code (default 0.01 USD)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			usd := decimal.NewFromFloat(defaultGiftAmountUSD)
			if len(args) == 2 {
				var err error
				if usd, err = decimal.NewFromString(args[1]); err != nil {
					return fmt.Errorf("invalid amount %q: %w", args[1], err)
				}
			}

			svc, closeDB, err := transactionServiceFromConfig()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := svc.AddGiftCode(context.Background(), args[0], usd); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "gift code %s worth %s USD\n", args[0], usd.String())
			return nil
		},
	})
	return gift
}

func transactionServiceFromConfig() (*service.TransactionService, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	userRepo := repository.NewUserRepository(db)
	svc := service.NewTransactionServiceWithRepo(
		repository.NewTransactionRepository(db),
		repository.NewGiftRepository(db),
		userRepo,
	)
	return svc, func() { db.Close() }, nil
}
