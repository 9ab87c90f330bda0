package credential

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/gigi-net/gigi-core/internal/identity"
	"github.com/gigi-net/gigi-core/internal/kv"
)

const testMnemonic = "abandon amount liar amount expire adjust cage candy arch gather drum buyer"

func newTestAccount(t *testing.T) *Account {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func TestAccount_CreateLoginRoundTrip(t *testing.T) {
	acc := newTestAccount(t)

	info, err := acc.CreateAccount(testMnemonic, "pw", "Alice")
	require.NoError(t, err)
	require.Equal(t, "0x", info.Address[:2])
	require.Len(t, info.Address, 42)

	expectedPeerID, err := identity.DerivePeerID(testMnemonic)
	require.NoError(t, err)
	require.Equal(t, expectedPeerID, info.PeerID)

	login, err := acc.Login("pw")
	require.NoError(t, err)
	require.Equal(t, info.PeerID, login.PeerID)
	require.Equal(t, info.Address, login.Address)

	_, err = acc.Login("PW")
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestAccount_CreateRefusesDuplicate(t *testing.T) {
	acc := newTestAccount(t)
	_, err := acc.CreateAccount(testMnemonic, "pw", "Alice")
	require.NoError(t, err)

	_, err = acc.CreateAccount(testMnemonic, "pw2", "Bob")
	require.ErrorIs(t, err, ErrAccountExists)
}

func TestAccount_VerifyPassword(t *testing.T) {
	acc := newTestAccount(t)
	_, err := acc.CreateAccount(testMnemonic, "pw", "Alice")
	require.NoError(t, err)

	require.True(t, acc.VerifyPassword("pw"))
	require.False(t, acc.VerifyPassword("wrong"))
}

func TestAccount_ChangePassword(t *testing.T) {
	acc := newTestAccount(t)
	_, err := acc.CreateAccount(testMnemonic, "old", "Alice")
	require.NoError(t, err)

	require.NoError(t, acc.ChangePassword("old", "new"))
	require.False(t, acc.VerifyPassword("old"))
	require.True(t, acc.VerifyPassword("new"))

	login, err := acc.Login("new")
	require.NoError(t, err)
	require.Equal(t, "Alice", login.Name)
}

func TestAccount_DeleteAccount(t *testing.T) {
	acc := newTestAccount(t)
	_, err := acc.CreateAccount(testMnemonic, "pw", "Alice")
	require.NoError(t, err)

	require.NoError(t, acc.DeleteAccount())

	_, err = acc.GetAccountInfo()
	require.ErrorIs(t, err, ErrNoAccount)
}

func TestProperty_LoginRejectsWrongPassword(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		acc := newTestAccount(t)
		pw := rapid.StringN(1, 20, -1).Draw(t, "password")
		otherPw := rapid.StringN(1, 20, -1).Filter(func(s string) bool { return s != pw }).Draw(t, "other")

		_, err := acc.CreateAccount(testMnemonic, pw, "Alice")
		require.NoError(t, err)

		require.True(t, acc.VerifyPassword(pw))
		require.False(t, acc.VerifyPassword(otherPw))
	})
}
