//go:build linux

package wallet

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

func keyctl(stdin string, args ...string) ([]byte, error) {
	path, err := exec.LookPath("keyctl")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKernelKeyringUnavailable, err)
	}
	cmd := exec.Command(path, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("keyctl %s: %w: %s", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("keyctl %s: %w", args[0], err)
	}
	return out, nil
}

// findKernelKey returns the entry's serial, or ErrNoPassword when it is not
// in the user keyring.
func findKernelKey() (string, error) {
	out, err := keyctl("", "search", "@u", "user", kernelKeyName)
	if err != nil {
		if errors.Is(err, ErrKernelKeyringUnavailable) {
			return "", err
		}
		// search exits non-zero when nothing matches
		return "", ErrNoPassword
	}
	return parseKeyID(out)
}

// StoreKernelKeyring saves the password in the user keyring, replacing any
// previous entry. The entry lives until logout or reboot.
func StoreKernelKeyring(password string) error {
	_, err := keyctl(password, "padd", "user", kernelKeyName, "@u")
	return err
}

// RetrieveKernelKeyring returns ("", nil) when no password is stored.
func RetrieveKernelKeyring() (string, error) {
	id, err := findKernelKey()
	if errors.Is(err, ErrNoPassword) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	out, err := keyctl("", "pipe", id)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DeleteKernelKeyring unlinks the entry. ErrNoPassword means there was none.
func DeleteKernelKeyring() error {
	id, err := findKernelKey()
	if err != nil {
		return err
	}
	_, err = keyctl("", "unlink", id, "@u")
	return err
}
