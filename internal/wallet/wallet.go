// Package wallet manages the local keystore account used to sign staking
// transactions, and where its password is kept between runs.
package wallet

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrNoWallet is returned when the keystore directory holds no account.
	ErrNoWallet = errors.New("no wallet found")
	// ErrWalletExists is returned by Create and Import when an account already exists.
	ErrWalletExists = errors.New("wallet already exists")
	// ErrBadPassword is returned when the keystore cannot be decrypted.
	ErrBadPassword = errors.New("could not decrypt keystore (wrong password?)")
)

// Scrypt parameters for new keys. Tests lower these.
var (
	scryptN = keystore.StandardScryptN
	scryptP = keystore.StandardScryptP
)

// Wallet is a keystore-backed signing account. The first account in the
// directory is the active one.
type Wallet struct {
	keystore *keystore.KeyStore
	dir      string
	address  common.Address

	mu         sync.Mutex
	privateKey *ecdsa.PrivateKey
}

func openKeystore(dir string) (*keystore.KeyStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	return keystore.NewKeyStore(dir, scryptN, scryptP), nil
}

// Load opens the existing wallet in dir.
func Load(dir string) (*Wallet, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	existing := ks.Accounts()
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoWallet, dir)
	}
	return &Wallet{keystore: ks, dir: dir, address: existing[0].Address}, nil
}

// Create generates a new key encrypted with password.
func Create(dir, password string) (*Wallet, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if existing := ks.Accounts(); len(existing) > 0 {
		return nil, fmt.Errorf("%w in %s (address: %s)", ErrWalletExists, dir, existing[0].Address.Hex())
	}

	account, err := ks.NewAccount(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &Wallet{keystore: ks, dir: dir, address: account.Address}, nil
}

// Import stores a hex private key (with or without 0x) encrypted with password.
func Import(dir, privKeyHex, password string) (*Wallet, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}

	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if existing := ks.Accounts(); len(existing) > 0 {
		return nil, fmt.Errorf("%w in %s (address: %s)", ErrWalletExists, dir, existing[0].Address.Hex())
	}

	account, err := ks.ImportECDSA(privateKey, password)
	if err != nil {
		return nil, fmt.Errorf("failed to import key: %w", err)
	}
	return &Wallet{keystore: ks, dir: dir, address: account.Address}, nil
}

// Exists reports whether dir holds a keystore account, without creating dir.
func Exists(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "UTC--") {
			return true
		}
	}
	return false
}

func (w *Wallet) Address() common.Address { return w.address }

func (w *Wallet) Dir() string { return w.dir }

// Unlock decrypts and caches the private key.
func (w *Wallet) Unlock(password string) (*ecdsa.PrivateKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.privateKey != nil {
		return w.privateKey, nil
	}

	account, err := w.keystore.Find(accounts.Account{Address: w.address})
	if err != nil {
		return nil, fmt.Errorf("account %s not in keystore: %w", w.address.Hex(), err)
	}
	keyJSON, err := os.ReadFile(account.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPassword, err)
	}

	w.privateKey = key.PrivateKey
	return key.PrivateKey, nil
}

// Unlocked reports whether a decrypted key is cached.
func (w *Wallet) Unlocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.privateKey != nil
}

// Lock zeros and drops the cached key.
func (w *Wallet) Lock() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.privateKey != nil {
		w.privateKey.D.SetUint64(0)
		w.privateKey = nil
	}
}

// PeekAddress returns the address of the first key file in dir without
// opening a keystore. It is cheap enough to call on every directory event.
func PeekAddress(dir string) (common.Address, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return common.Address{}, fmt.Errorf("%w in %s", ErrNoWallet, dir)
		}
		return common.Address{}, fmt.Errorf("failed to read keystore directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "UTC--") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var header struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(data, &header); err != nil || !common.IsHexAddress(header.Address) {
			continue
		}
		return common.HexToAddress(header.Address), nil
	}
	return common.Address{}, fmt.Errorf("%w in %s", ErrNoWallet, dir)
}
