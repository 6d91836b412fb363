package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stakedash/stakedash/internal/wallet"
)

const minPasswordLen = 8

// NewWalletCmd creates the wallet command group
func NewWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the signing wallet",
		Long: `Manage the Ethereum wallet used to sign staking transactions.

The wallet is stored as an encrypted keystore file (geth V3 format).

The wallet password can be stored in your platform keyring:
  macOS:           Keychain
  Linux (desktop): GNOME Keyring / KDE Wallet
  Linux (server):  kernel keyring (volatile, lost on reboot)
or supplied with STAKEDASH_WALLET_PASSWORD or wallet.password_file.

Examples:
  stakedash wallet create   # Generate a new wallet
  stakedash wallet import   # Import from a private key
  stakedash wallet show     # Show address and keystore path`,
	}

	cmd.AddCommand(newWalletCreateCmd())
	cmd.AddCommand(newWalletImportCmd())
	cmd.AddCommand(newWalletShowCmd())
	cmd.AddCommand(newWalletForgetPasswordCmd())

	return cmd
}

func keystoreDir(flag string) string {
	if flag != "" {
		return flag
	}
	if cfg, err := loadConfig(); err == nil {
		return cfg.Wallet.KeystoreDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stakedash", "keystore")
}

// storePassword saves the wallet password in the best available keyring,
// or prints the manual alternatives.
func storePassword(password string) {
	if backend, err := wallet.StorePassword(password); err == nil {
		fmt.Printf("  Password saved to %s\n", backend)
		fmt.Println("  The wallet will be unlocked automatically for stakedash commands.")
		return
	}

	fmt.Println("  Could not store password in a system keyring.")
	fmt.Println("  For automatic unlock, set one of:")
	fmt.Printf("    - %s environment variable\n", wallet.PasswordEnv)
	fmt.Println("    - wallet.password_file in config.yaml")
}

// promptNewPassword asks for a password twice, with retries.
func promptNewPassword() (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprint(os.Stderr, "Enter wallet password: ")
		password, err := readPasswordNoEcho()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)

		if len(password) < minPasswordLen {
			Warning(fmt.Sprintf("Password must be at least %d characters. Try again.", minPasswordLen))
			continue
		}

		fmt.Fprint(os.Stderr, "Confirm wallet password: ")
		confirm, err := readPasswordNoEcho()
		if err != nil {
			return "", fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Fprintln(os.Stderr)

		if password != confirm {
			Warning("Passwords do not match. Try again.")
			continue
		}
		return password, nil
	}
	return "", fmt.Errorf("too many failed attempts")
}

func checkNoWallet(dir string) error {
	addr, err := wallet.PeekAddress(dir)
	if err == nil {
		return fmt.Errorf("%w at %s (address: %s)", wallet.ErrWalletExists, dir, addr.Hex())
	}
	if !errors.Is(err, wallet.ErrNoWallet) {
		return fmt.Errorf("failed to check keystore: %w", err)
	}
	return nil
}

func newWalletCreateCmd() *cobra.Command {
	var dirFlag string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet",
		Long:  "Create a new Ethereum wallet with a password-encrypted keystore file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := keystoreDir(dirFlag)
			if err := checkNoWallet(dir); err != nil {
				return err
			}

			password, err := promptNewPassword()
			if err != nil {
				return err
			}
			w, err := wallet.Create(dir, password)
			if err != nil {
				return fmt.Errorf("failed to create wallet: %w", err)
			}

			fmt.Println()
			Success("Wallet created!")
			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", w.Address().Hex()},
				{"Keystore", dir},
			}))
			storePassword(password)
			fmt.Println()
			Warning("Back up your keystore directory and remember your password.")
			fmt.Println(Hint("If you lose either, your funds are unrecoverable."))
			return nil
		},
	}

	cmd.Flags().StringVar(&dirFlag, "keystore", "", "Path to keystore directory (default from config)")

	return cmd
}

func newWalletImportCmd() *cobra.Command {
	var dirFlag string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a wallet from a private key",
		Long:  "Import an existing Ethereum private key into an encrypted keystore file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := keystoreDir(dirFlag)
			if err := checkNoWallet(dir); err != nil {
				return err
			}

			const maxAttempts = 3
			var keyHex string
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				fmt.Fprint(os.Stderr, "Enter private key (hex, with or without 0x prefix): ")
				input, err := readPasswordNoEcho()
				if err != nil {
					return fmt.Errorf("failed to read private key: %w", err)
				}
				fmt.Fprintln(os.Stderr)

				input = strings.TrimPrefix(strings.TrimSpace(input), "0x")
				if len(input) != 64 {
					Warning(fmt.Sprintf("Private key must be 64 hex characters (32 bytes), got %d. Try again.", len(input)))
					continue
				}
				keyHex = input
				break
			}
			if keyHex == "" {
				return fmt.Errorf("too many failed attempts")
			}

			password, err := promptNewPassword()
			if err != nil {
				return err
			}
			w, err := wallet.Import(dir, keyHex, password)
			if err != nil {
				return fmt.Errorf("failed to import wallet: %w", err)
			}

			fmt.Println()
			Success("Wallet imported!")
			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", w.Address().Hex()},
				{"Keystore", dir},
			}))
			storePassword(password)
			return nil
		},
	}

	cmd.Flags().StringVar(&dirFlag, "keystore", "", "Path to keystore directory (default from config)")

	return cmd
}

func newWalletShowCmd() *cobra.Command {
	var dirFlag string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show wallet address and keystore path",
		Long:  "Display the wallet address and keystore directory. No password needed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := keystoreDir(dirFlag)
			addr, err := wallet.PeekAddress(dir)
			if errors.Is(err, wallet.ErrNoWallet) {
				Info("No wallet found.")
				fmt.Println(Hint("Create one with: stakedash wallet create"))
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read keystore: %w", err)
			}

			pwStatus := "not stored (manual unlock required)"
			if pw, err := wallet.RetrieveKeyringPassword(); err == nil && pw != "" {
				pwStatus = "stored in platform keyring"
			} else if pw, err := wallet.RetrieveKernelKeyring(); err == nil && pw != "" {
				pwStatus = "stored in kernel keyring"
			} else if os.Getenv(wallet.PasswordEnv) != "" {
				pwStatus = "from " + wallet.PasswordEnv
			}

			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", addr.Hex()},
				{"Keystore", dir},
				{"Password", pwStatus},
			}))
			return nil
		},
	}

	cmd.Flags().StringVar(&dirFlag, "keystore", "", "Path to keystore directory (default from config)")

	return cmd
}

func newWalletForgetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget-password",
		Short: "Remove the wallet password from the system keyrings",
		Long: `Remove the stored wallet password from the platform keyring and kernel keyring.

After this, commands that sign transactions prompt for the password or read
it from STAKEDASH_WALLET_PASSWORD or wallet.password_file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wallet.ForgetPassword() {
				Success("Removed stored wallet password")
			} else {
				fmt.Println("No stored password found in any keyring.")
			}
			return nil
		},
	}
}
