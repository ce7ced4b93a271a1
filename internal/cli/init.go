package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cashd-network/cashd/internal/daemon"
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("admin-password", "", "Seed the administrator with this password")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the home directory, config and store",
	Long: `Write a default config.toml with a fresh signing secret (an existing file
is kept), apply the schema, and seed the administrator when a password is
configured or passed with --admin-password.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	h := home()
	fresh := daemon.DefaultConfig()
	secret, err := daemon.NewSecret()
	if err != nil {
		return err
	}
	fresh.Auth.Secret = secret

	written, err := daemon.WriteConfig(h, fresh)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if written {
		fmt.Fprintf(out, "Wrote %s/%s\n", h, daemon.ConfigFile)
	} else {
		fmt.Fprintf(out, "Keeping existing %s/%s\n", h, daemon.ConfigFile)
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if pw, _ := cmd.Flags().GetString("admin-password"); pw != "" {
		cfg.Admin.Password = pw
	}

	d, err := daemon.New(contextOf(cmd), cfg, h, log)
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Fprintf(out, "Store ready in %s\n", cfg.StoreDir(h))
	if cfg.Admin.Password != "" {
		fmt.Fprintf(out, "Administrator %q seeded\n", cfg.Admin.Username)
	}
	return nil
}
