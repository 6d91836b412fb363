package wallet

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
)

const (
	keyringServiceName = "stakedash"
	walletPasswordKey  = "wallet-password"

	// PasswordEnv names the environment variable checked for the wallet password.
	PasswordEnv = "STAKEDASH_WALLET_PASSWORD"
)

// ErrNoPassword is returned when no source holds a password.
var ErrNoPassword = errors.New("wallet password not available")

// PasswordSource yields a stored password. ("", nil) means "not stored here".
type PasswordSource struct {
	Name  string
	Fetch func() (string, error)
}

// DefaultSources returns the lookup chain: platform keyring, kernel
// keyring, environment, then passwordFile when set.
func DefaultSources(passwordFile string) []PasswordSource {
	sources := []PasswordSource{
		{Name: keyringBackendName(), Fetch: RetrieveKeyringPassword},
		{Name: "kernel keyring", Fetch: RetrieveKernelKeyring},
		EnvSource(PasswordEnv),
	}
	if passwordFile != "" {
		sources = append(sources, FileSource(passwordFile))
	}
	return sources
}

// EnvSource reads the password from an environment variable.
func EnvSource(name string) PasswordSource {
	return PasswordSource{
		Name:  name,
		Fetch: func() (string, error) { return os.Getenv(name), nil },
	}
}

// FileSource reads the password from a file, trimming a trailing newline.
func FileSource(path string) PasswordSource {
	return PasswordSource{
		Name: path,
		Fetch: func() (string, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return strings.TrimRight(string(data), "\r\n"), nil
		},
	}
}

// ResolvePassword returns the first non-empty password and the name of the
// source that held it. Source errors are skipped.
func ResolvePassword(sources []PasswordSource) (string, string, error) {
	for _, src := range sources {
		if src.Fetch == nil {
			continue
		}
		pw, err := src.Fetch()
		if err == nil && pw != "" {
			return pw, src.Name, nil
		}
	}
	return "", "", ErrNoPassword
}

// StorePassword saves password in the platform keyring, falling back to
// the kernel keyring. It returns where the password went.
func StorePassword(password string) (string, error) {
	backend, err := StoreKeyringPassword(password)
	if err == nil {
		return backend, nil
	}
	if kerr := StoreKernelKeyring(password); kerr == nil {
		return "kernel keyring (in-memory, lost on reboot)", nil
	}
	return "", err
}

// ForgetPassword removes the password from both keyrings. It reports whether
// anything was removed.
func ForgetPassword() bool {
	removed := false
	if err := DeleteKeyringPassword(); err == nil {
		removed = true
	}
	if err := DeleteKernelKeyring(); err == nil {
		removed = true
	}
	return removed
}

// StoreKeyringPassword stores the wallet password in the platform keyring.
// On macOS: Keychain. On Linux: Secret Service (GNOME Keyring / KDE Wallet).
func StoreKeyringPassword(password string) (string, error) {
	ring, backend, err := openKeyring()
	if err != nil {
		return "", err
	}

	err = ring.Set(keyring.Item{
		Key:         walletPasswordKey,
		Data:        []byte(password),
		Label:       "stakedash Wallet Password",
		Description: "Password for the stakedash wallet keystore",
	})
	if err != nil {
		return "", fmt.Errorf("failed to store in %s: %w", backend, err)
	}
	return backend, nil
}

// RetrieveKeyringPassword returns ("", nil) if the keyring is available but
// no password is stored.
func RetrieveKeyringPassword() (string, error) {
	ring, _, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(walletPasswordKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

func DeleteKeyringPassword() error {
	ring, _, err := openKeyring()
	if err != nil {
		return err
	}
	err = ring.Remove(walletPasswordKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

func openKeyring() (keyring.Keyring, string, error) {
	backends := platformKeyringBackends()
	if len(backends) == 0 {
		return nil, "", fmt.Errorf("no keyring backend available on %s", runtime.GOOS)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    keyringServiceName,
		AllowedBackends:                backends,
		KeychainTrustApplication:       true,
		KeychainAccessibleWhenUnlocked: true,
		KeychainSynchronizable:         false,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, keyringBackendName(), nil
}

func platformKeyringBackends() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []keyring.BackendType{keyring.KeychainBackend}
	case "linux":
		return []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
		}
	default:
		return nil
	}
}

func keyringBackendName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "linux":
		return "Secret Service (GNOME Keyring / KDE Wallet)"
	default:
		return "system keyring"
	}
}
