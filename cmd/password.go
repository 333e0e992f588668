package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mailbox-export/credential"
)

var (
	storeSecret  = credential.StorePassword
	deleteSecret = credential.DeletePassword
	askSecret    = promptPassword
)

// NewPasswordCmd manages the IMAP password kept in the OS keyring.
func NewPasswordCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "password",
		Short: "Store or remove the IMAP password in the OS keyring",
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Store the IMAP password for --imap-user at --imap-host",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			acct, err := account(c)
			if err != nil {
				return err
			}

			pass, err := c.Flags().GetString("imap-pass")
			if err != nil {
				return err
			}
			if pass == "" {
				pass, err = askSecret(acct)
				if err != nil {
					return err
				}
			}
			if pass == "" {
				return errors.New("password is empty")
			}

			if err := storeSecret(acct, pass); err != nil {
				return err
			}
			pterm.Success.Printf("Password stored for %s\n", acct)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored IMAP password for --imap-user at --imap-host",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			acct, err := account(c)
			if err != nil {
				return err
			}
			if err := deleteSecret(acct); err != nil {
				if errors.Is(err, credential.ErrNotFound) {
					return fmt.Errorf("no password stored for %s", acct)
				}
				return err
			}
			pterm.Success.Printf("Password removed for %s\n", acct)
			return nil
		},
	}

	c.AddCommand(set, del)
	return c
}

// account reads the login from the connection flags, falling back to the
// MAILBOX_EXPORT_* environment variables.
func account(c *cobra.Command) (credential.Account, error) {
	acct := credential.Account{User: flagOrEnv(c, "imap-user"), Host: flagOrEnv(c, "imap-host")}
	if acct.User == "" || acct.Host == "" {
		return credential.Account{}, errors.New("--imap-user and --imap-host are required")
	}
	return acct, nil
}

func flagOrEnv(c *cobra.Command, name string) string {
	if value, err := c.Flags().GetString(name); err == nil && value != "" {
		return value
	}
	return os.Getenv("MAILBOX_EXPORT_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
}

func promptPassword(acct credential.Account) (string, error) {
	var pass string
	err := huh.NewInput().
		Title("IMAP password for " + acct.String()).
		EchoMode(huh.EchoModePassword).
		Value(&pass).
		Run()
	if err != nil {
		return "", err
	}
	return pass, nil
}
