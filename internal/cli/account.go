package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cashd-network/cashd/internal/daemon"
)

// ─── Account inspection ─────────────────────────────────────────────────────
// Read-only views straight from the store, for operators.

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 0, "Number of records (default [ledger].history_limit)")
}

var balanceCmd = &cobra.Command{
	Use:   "balance USERNAME",
	Short: "Show a principal's balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	p, err := d.DB().PrincipalByUsername(contextOf(cmd), args[0])
	if err != nil {
		return err
	}
	role := "user"
	if p.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s\n", p.Username, role, formatCents(p.Balance))
	return nil
}

var historyCmd = &cobra.Command{
	Use:   "history USERNAME",
	Short: "List a principal's transfers, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := contextOf(cmd)
	p, err := d.DB().PrincipalByUsername(ctx, args[0])
	if err != nil {
		return err
	}
	entries, err := d.Ledger.History(ctx, p.ID, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No transfers.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDIR\tFROM\tTO\tAMOUNT\tSTATUS\tID")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Direction, e.SourceUsername,
			e.DestinationUsername, formatCents(e.Amount), e.Status, e.RequestID)
	}
	return w.Flush()
}

func openDaemon(cmd *cobra.Command) (*daemon.Daemon, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	// Inspection never seeds.
	cfg.Admin.Password = ""
	return daemon.New(contextOf(cmd), cfg, home(), log)
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
