package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdelaire/openwa/internal/keychain"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage secrets stored in the OS keychain",
	Long: fmt.Sprintf(`Secrets left empty in the environment and config file are read from the
OS keychain. Accounts: %s.`, strings.Join(keychain.Accounts, ", ")),
}

var secretSetCmd = &cobra.Command{
	Use:       "set <account>",
	Short:     "Store a secret read from stdin",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: keychain.Accounts,
	RunE:      runSecretSet,
}

var secretDeleteCmd = &cobra.Command{
	Use:       "delete <account>",
	Short:     "Remove a stored secret",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: keychain.Accounts,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := keychain.Delete(args[0]); err != nil {
			return fmt.Errorf("delete %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretDeleteCmd)
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	account := args[0]
	fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s: ", account)

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	value := strings.TrimSpace(line)
	if value == "" {
		if err != nil {
			return fmt.Errorf("read %s: %w", account, err)
		}
		return errors.New("empty secret")
	}

	if err := keychain.Set(account, value); err != nil {
		return fmt.Errorf("store %s: %w", account, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", account)
	return nil
}
