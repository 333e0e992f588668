package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryKeyring(t *testing.T) *keyring.ArrayKeyring {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	prev := open
	open = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { open = prev })
	return ring
}

func TestPasswordLifecycle(t *testing.T) {
	ring := memoryKeyring(t)
	acct := Account{User: "me@example.com", Host: "imap.example.com"}

	_, err := Password(acct)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, StorePassword(acct, "first"))
	require.NoError(t, StorePassword(acct, "second"))

	got, err := Password(acct)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	item, err := ring.Get("imap:me@example.com@imap.example.com")
	require.NoError(t, err)
	assert.Equal(t, "mailbox-export me@example.com@imap.example.com", item.Label)

	require.NoError(t, DeletePassword(acct))
	assert.ErrorIs(t, DeletePassword(acct), ErrNotFound)
}

func TestAccountsAreSeparate(t *testing.T) {
	memoryKeyring(t)

	require.NoError(t, StorePassword(Account{User: "a", Host: "h1"}, "one"))
	_, err := Password(Account{User: "a", Host: "h2"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncompleteAccount(t *testing.T) {
	memoryKeyring(t)

	_, err := Password(Account{User: "a"})
	assert.Error(t, err)
	assert.Error(t, StorePassword(Account{Host: "h"}, "x"))
	assert.Error(t, StorePassword(Account{User: "a", Host: "h"}, ""))
	assert.Error(t, DeletePassword(Account{}))
}

func TestOpenFailure(t *testing.T) {
	prev := open
	open = func() (keyring.Keyring, error) { return nil, errors.New("no backend") }
	t.Cleanup(func() { open = prev })

	_, err := Password(Account{User: "a", Host: "h"})
	assert.ErrorContains(t, err, "no backend")
}

func TestAccountString(t *testing.T) {
	assert.Equal(t, "bob@mail.example.org", Account{User: "bob", Host: "mail.example.org"}.String())
}
