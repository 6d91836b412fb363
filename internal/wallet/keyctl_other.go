//go:build !linux

package wallet

func StoreKernelKeyring(string) error { return ErrKernelKeyringUnavailable }

func RetrieveKernelKeyring() (string, error) { return "", ErrKernelKeyringUnavailable }

func DeleteKernelKeyring() error { return ErrKernelKeyringUnavailable }
