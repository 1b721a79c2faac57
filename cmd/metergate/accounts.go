package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hoaworks/metergate/adapters/clock"
	"github.com/hoaworks/metergate/adapters/sqlite"
	"github.com/hoaworks/metergate/app"
	"github.com/hoaworks/metergate/config"
	"github.com/hoaworks/metergate/domain/tier"
	"github.com/hoaworks/metergate/ports"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage accounts",
	Long: `Manage metergate accounts.

Accounts are keyed by email and hold the subscription tier, the
pay-per-use credit balance and the current-period usage counters.

Examples:
  metergate accounts list
  metergate accounts show board@example.com
  metergate accounts create board@example.com
  metergate accounts set-tier board@example.com agency
  metergate accounts grant-credits board@example.com 50`,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE:  runAccountsList,
}

var accountsShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Show account details",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsShow,
}

var accountsCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create a new account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsCreate,
}

var accountsSetTierCmd = &cobra.Command{
	Use:   "set-tier <email> <tier>",
	Short: "Apply a manual tier override",
	Args:  cobra.ExactArgs(2),
	RunE:  runAccountsSetTier,
}

var accountsGrantCreditsCmd = &cobra.Command{
	Use:   "grant-credits <email> <credits>",
	Short: "Grant pay-per-use credits",
	Args:  cobra.ExactArgs(2),
	RunE:  runAccountsGrantCredits,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsShowCmd)
	accountsCmd.AddCommand(accountsCreateCmd)
	accountsCmd.AddCommand(accountsSetTierCmd)
	accountsCmd.AddCommand(accountsGrantCreditsCmd)
}

func openAccountStore() (*sqlite.AccountStore, *sqlite.DB, error) {
	cfg := config.Default()
	if _, err := os.Stat(cfgFile); err == nil {
		var loadErr error
		cfg, loadErr = config.Load(cfgFile)
		if loadErr != nil {
			return nil, nil, loadErr
		}
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return sqlite.NewAccountStore(db), db, nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	store, db, err := openAccountStore()
	if err != nil {
		return err
	}
	defer db.Close()

	accounts, err := store.List(context.Background(), 100, 0)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tTIER\tSTATUS\tCREDITS\tPERIOD")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			a.Email, a.SubscriptionTier, a.SubscriptionStatus,
			a.CreditBalance, a.ResetPeriodKey)
	}
	return w.Flush()
}

func runAccountsShow(cmd *cobra.Command, args []string) error {
	store, db, err := openAccountStore()
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := store.GetByKey(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Email:            %s\n", a.Email)
	fmt.Printf("Tier:             %s (effective: %s)\n",
		a.SubscriptionTier, tier.Effective(a.SubscriptionStatus, a.SubscriptionTier))
	fmt.Printf("Status:           %s\n", a.SubscriptionStatus)
	fmt.Printf("Credits:          %d\n", a.CreditBalance)
	fmt.Printf("Period:           %s\n", a.ResetPeriodKey)
	fmt.Printf("Videos (month):   %d\n", a.VideosThisMonth)
	fmt.Printf("Videos (total):   %d\n", a.TotalVideosGenerated)
	for f, n := range a.UsageCounters {
		fmt.Printf("Usage %-18s %d\n", string(f)+":", n)
	}
	if a.PaddleSubscriptionID != "" {
		fmt.Printf("Subscription ref: %s\n", a.PaddleSubscriptionID)
	}
	return nil
}

func runAccountsCreate(cmd *cobra.Command, args []string) error {
	store, db, err := openAccountStore()
	if err != nil {
		return err
	}
	defer db.Close()

	now := time.Now().UTC()
	a := ports.Account{
		Email:              args[0],
		SubscriptionTier:   tier.Free,
		SubscriptionStatus: tier.StatusNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := store.Create(context.Background(), a); err != nil {
		return err
	}
	fmt.Printf("Created account %s\n", args[0])
	return nil
}

func runAccountsSetTier(cmd *cobra.Command, args []string) error {
	store, db, err := openAccountStore()
	if err != nil {
		return err
	}
	defer db.Close()

	upgrades := app.NewUpgradeService(store, app.StaticGrants(nil), clock.Real{}, zerolog.Nop())
	res, err := upgrades.Apply(context.Background(), args[0], args[1], 0, "manual-override")
	if err != nil {
		return err
	}
	fmt.Printf("Account %s is now %s (%s)\n", args[0], res.Tier, res.Status)
	return nil
}

func runAccountsGrantCredits(cmd *cobra.Command, args []string) error {
	store, db, err := openAccountStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var credits int64
	if _, err := fmt.Sscanf(args[1], "%d", &credits); err != nil || credits < 0 {
		return fmt.Errorf("invalid credit amount %q", args[1])
	}

	upgrades := app.NewUpgradeService(store, app.StaticGrants(nil), clock.Real{}, zerolog.Nop())
	res, err := upgrades.GrantCredits(context.Background(), args[0], credits, "manual-grant")
	if err != nil {
		return err
	}
	fmt.Printf("Granted %d credits to %s (balance %d -> %d)\n",
		credits, args[0], res.PreviousBalance, res.NewBalance)
	return nil
}
