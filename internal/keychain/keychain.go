package keychain

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "openwa"

// Accounts under which the bot's secrets are stored.
const (
	AccessToken = "access-token"
	VerifyToken = "verify-token"
	AppSecret   = "app-secret"
)

// Accounts lists every account name the keychain may hold.
var Accounts = []string{AccessToken, VerifyToken, AppSecret}

// Get retrieves a secret from the system keychain.
func Get(account string) (string, error) {
	return keyring.Get(serviceName, account)
}

// Set stores a secret in the system keychain.
func Set(account, value string) error {
	if !known(account) {
		return fmt.Errorf("unknown keychain account %q", account)
	}
	return keyring.Set(serviceName, account, value)
}

// Delete removes a secret. Deleting a missing secret is not an error.
func Delete(account string) error {
	if err := keyring.Delete(serviceName, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// Resolve returns value when non-empty and otherwise the keychain entry
// for account. A missing entry yields "" without error.
func Resolve(value, account string) (string, error) {
	if value != "" {
		return value, nil
	}
	secret, err := Get(account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("keychain %s: %w", account, err)
	}
	return secret, nil
}

func known(account string) bool {
	for _, a := range Accounts {
		if a == account {
			return true
		}
	}
	return false
}
