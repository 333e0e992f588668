// Package credential keeps IMAP passwords in the operating system keyring so
// they do not have to be passed on the command line.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "mailbox-export"

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = keyring.ErrKeyNotFound

// Account is the IMAP login a password belongs to.
type Account struct {
	User string
	Host string
}

func (a Account) String() string {
	return a.User + "@" + a.Host
}

func (a Account) key() string {
	return "imap:" + a.String()
}

func (a Account) validate() error {
	if a.User == "" || a.Host == "" {
		return errors.New("account needs both user and host")
	}
	return nil
}

// open is replaced in tests with an in-memory keyring.
var open = func() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailbox-export/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailbox-export-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Password returns the stored password of a, or ErrNotFound.
func Password(a Account) (string, error) {
	if err := a.validate(); err != nil {
		return "", err
	}
	ring, err := open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(a.key())
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading password for %s: %w", a, err)
	}
	return string(item.Data), nil
}

// StorePassword saves password for a, replacing any previous one.
func StorePassword(a Account, password string) error {
	if err := a.validate(); err != nil {
		return err
	}
	if password == "" {
		return errors.New("password is empty")
	}
	ring, err := open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:         a.key(),
		Data:        []byte(password),
		Label:       "mailbox-export " + a.String(),
		Description: "IMAP password",
	})
	if err != nil {
		return fmt.Errorf("storing password for %s: %w", a, err)
	}
	return nil
}

// DeletePassword removes the stored password of a. It returns ErrNotFound
// when there is none.
func DeletePassword(a Account) error {
	if err := a.validate(); err != nil {
		return err
	}
	ring, err := open()
	if err != nil {
		return err
	}

	// backends disagree on removing a missing key
	if _, err := ring.Get(a.key()); errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err := ring.Remove(a.key()); err != nil {
		return fmt.Errorf("deleting password for %s: %w", a, err)
	}
	return nil
}
