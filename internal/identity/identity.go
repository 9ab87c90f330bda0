// Package identity derives the wallet, group, and transport identities
// used throughout the node from a single BIP-39 recovery phrase.
package identity

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidMnemonic = errors.New("identity: invalid recovery phrase")
	ErrDerivationFailed = errors.New("identity: key derivation failed")
)

// Bundle holds the three identities derived from a single recovery phrase.
type Bundle struct {
	WalletPrivateKey [32]byte
	WalletAddress    string // 0x-prefixed lowercase hex, 42 chars

	GroupPrivateKey ed25519.PrivateKey
	GroupPeerID     string // base58

	TransportPrivateKey ed25519.PrivateKey
	TransportPeerID     string // base58
}

// hardened path segments for the three identities: m/44'/60'/{0,1,2}'/0/0
var (
	walletPath    = []uint32{hardened(44), hardened(60), hardened(0), 0, 0}
	groupPath     = []uint32{hardened(44), hardened(60), hardened(1), 0, 0}
	transportPath = []uint32{hardened(44), hardened(60), hardened(2), 0, 0}
)

const hardenedOffset = 0x80000000

func hardened(i uint32) uint32 { return i + hardenedOffset }

// ValidateMnemonic checks the phrase against the BIP-39 English wordlist
// and its embedded checksum.
func ValidateMnemonic(phrase string) error {
	if !bip39.IsMnemonicValid(phrase) {
		return ErrInvalidMnemonic
	}
	return nil
}

// Derive validates the phrase and derives the wallet, group, and transport
// identities deterministically from it. No passphrase is used in the
// PBKDF2 step (empty string), matching the standard BIP-39 seed schedule.
func Derive(phrase string) (*Bundle, error) {
	if err := ValidateMnemonic(phrase); err != nil {
		return nil, err
	}

	seed := bip39.NewSeed(phrase, "")

	wallet, err := deriveNode(seed, walletPath)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet path: %v", ErrDerivationFailed, err)
	}
	group, err := deriveNode(seed, groupPath)
	if err != nil {
		return nil, fmt.Errorf("%w: group path: %v", ErrDerivationFailed, err)
	}
	transport, err := deriveNode(seed, transportPath)
	if err != nil {
		return nil, fmt.Errorf("%w: transport path: %v", ErrDerivationFailed, err)
	}

	b := &Bundle{}
	copy(b.WalletPrivateKey[:], wallet.key)
	b.WalletAddress = walletAddress(wallet.key)

	b.GroupPrivateKey = ed25519.NewKeyFromSeed(group.key)
	b.GroupPeerID = base58.Encode(b.GroupPrivateKey.Public().(ed25519.PublicKey))

	b.TransportPrivateKey = ed25519.NewKeyFromSeed(transport.key)
	b.TransportPeerID = base58.Encode(b.TransportPrivateKey.Public().(ed25519.PublicKey))

	return b, nil
}

// DerivePeerID returns only the transport peer-id for a phrase, used by
// the property tests in §8 without needing the full bundle.
func DerivePeerID(phrase string) (string, error) {
	b, err := Derive(phrase)
	if err != nil {
		return "", err
	}
	return b.TransportPeerID, nil
}

// DeriveGroupID mirrors DerivePeerID for the group identity.
func DeriveGroupID(phrase string) (string, error) {
	b, err := Derive(phrase)
	if err != nil {
		return "", err
	}
	return b.GroupPeerID, nil
}

// DeriveWalletAddress mirrors DerivePeerID for the wallet address.
func DeriveWalletAddress(phrase string) (string, error) {
	b, err := Derive(phrase)
	if err != nil {
		return "", err
	}
	return b.WalletAddress, nil
}

func walletAddress(privKey []byte) string {
	pub := secp256k1.PrivKeyFromBytes(privKey).PubKey()
	uncompressed := pub.SerializeUncompressed() // 0x04 || X(32) || Y(32)

	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	digest := h.Sum(nil)

	return "0x" + hex.EncodeToString(digest[len(digest)-20:])
}

// --- BIP-32 hardened-path derivation over secp256k1 ---
//
// No example in the retrieval pack implements standalone BIP-32 child-key
// derivation independent of a full wallet SDK, so this walks the standard
// HMAC-SHA512 parent->child step directly against the decred secp256k1
// curve type. Every path segment used here is hardened except the last
// two, which this implementation still derives the standard way for
// completeness even though none of the three fixed paths exercise a
// non-hardened step in practice (all three change_path components are 0).
type node struct {
	key       []byte // 32-byte private key
	chainCode []byte // 32-byte chain code
}

func deriveNode(seed []byte, path []uint32) (*node, error) {
	cur, err := masterNode(seed)
	if err != nil {
		return nil, err
	}
	for _, idx := range path {
		cur, err = cur.child(idx)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func masterNode(seed []byte) (*node, error) {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	key, chainCode := sum[:32], sum[32:]
	if err := validatePrivateScalar(key); err != nil {
		return nil, err
	}
	return &node{key: key, chainCode: chainCode}, nil
}

func (n *node) child(index uint32) (*node, error) {
	var data []byte
	if index >= hardenedOffset {
		// Hardened: 0x00 || parent private key || index.
		data = make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, n.key...)
	} else {
		// Non-hardened: compressed parent public key || index.
		pub := secp256k1.PrivKeyFromBytes(n.key).PubKey()
		data = make([]byte, 0, 37)
		data = append(data, pub.SerializeCompressed()...)
	}
	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], index)
	data = append(data, idxBytes[:]...)

	mac := hmac.New(sha512.New, n.chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)
	il, childChainCode := sum[:32], sum[32:]

	ilScalar := new(secp256k1.ModNScalar)
	if overflow := ilScalar.SetByteSlice(il); overflow {
		return nil, fmt.Errorf("derived scalar out of range")
	}
	parentScalar := new(secp256k1.ModNScalar)
	if overflow := parentScalar.SetByteSlice(n.key); overflow {
		return nil, fmt.Errorf("parent scalar out of range")
	}
	childScalar := new(secp256k1.ModNScalar).Add2(ilScalar, parentScalar)
	if childScalar.IsZero() {
		return nil, fmt.Errorf("derived child key is zero")
	}

	childKeyBytes := childScalar.Bytes()
	return &node{key: childKeyBytes[:], chainCode: childChainCode}, nil
}

func validatePrivateScalar(key []byte) error {
	s := new(secp256k1.ModNScalar)
	if overflow := s.SetByteSlice(key); overflow || s.IsZero() {
		return fmt.Errorf("invalid private scalar")
	}
	return nil
}
