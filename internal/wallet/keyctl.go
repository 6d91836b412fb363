package wallet

import (
	"errors"
	"fmt"
	"strings"
)

// kernelKeyName is the user keyring entry holding the wallet password.
const kernelKeyName = "stakedash-wallet"

// ErrKernelKeyringUnavailable is returned when the kernel keyring cannot be
// used: not Linux, or the keyctl tool (keyutils) is not installed.
var ErrKernelKeyringUnavailable = errors.New("kernel keyring unavailable")

// parseKeyID reads the serial printed by `keyctl search`.
func parseKeyID(out []byte) (string, error) {
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", ErrNoPassword
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("keyctl search: unexpected key id %q", id)
		}
	}
	return id, nil
}
