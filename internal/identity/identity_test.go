package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testMnemonic = "abandon amount liar amount expire adjust cage candy arch gather drum buyer"

func TestDerive_AccountRoundTrip(t *testing.T) {
	b, err := Derive(testMnemonic)
	require.NoError(t, err)

	require.NotEmpty(t, b.TransportPeerID)
	require.Len(t, b.WalletAddress, 42)
	require.Equal(t, "0x", b.WalletAddress[:2])
}

func TestDerive_InvalidMnemonic(t *testing.T) {
	_, err := Derive("not a real mnemonic at all")
	require.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestDerive_Deterministic(t *testing.T) {
	a, err := Derive(testMnemonic)
	require.NoError(t, err)
	b, err := Derive(testMnemonic)
	require.NoError(t, err)

	require.Equal(t, a.TransportPeerID, b.TransportPeerID)
	require.Equal(t, a.GroupPeerID, b.GroupPeerID)
	require.Equal(t, a.WalletAddress, b.WalletAddress)
}

func TestDerive_NonCollision(t *testing.T) {
	b, err := Derive(testMnemonic)
	require.NoError(t, err)
	require.NotEqual(t, b.TransportPeerID, b.GroupPeerID)
}

func TestProperty_DeterminismAndNonCollision(t *testing.T) {
	entropies := []string{
		testMnemonic,
		"legal winner thank year wave sausage worth useful legal winner thank yellow",
		"letter advice cage absurd amount doctor acoustic avoid letter advice cage above",
	}
	rapid.Check(t, func(t *rapid.T) {
		m := rapid.SampledFrom(entropies).Draw(t, "mnemonic")
		a, err := Derive(m)
		require.NoError(t, err)
		b, err := Derive(m)
		require.NoError(t, err)
		require.Equal(t, a.TransportPeerID, b.TransportPeerID)
		require.NotEqual(t, a.TransportPeerID, a.GroupPeerID)
	})
}
