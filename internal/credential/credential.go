// Package credential implements the password-encrypted recovery-phrase
// envelope and the account operations (create/login/change-password/
// verify/delete/info) that sit on top of it.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/gigi-net/gigi-core/internal/identity"
	"github.com/gigi-net/gigi-core/internal/kv"
)

const (
	bucketName = "credentials"
	recordKey  = "account"
	hkdfInfo   = "gigi-mnemonic"
)

// Envelope is the on-disk JSON shape of a CredentialRecord (§3, §6).
type Envelope struct {
	EncryptedMnemonic string `json:"encrypted_mnemonic"`
	Nonce             string `json:"nonce"`
	PeerID            string `json:"peer_id"`
	GroupID           string `json:"group_id"`
	Address           string `json:"address"`
	Name              string `json:"name"`
}

// AccountInfo is the plaintext metadata returned by get_account_info.
type AccountInfo struct {
	PeerID  string
	GroupID string
	Address string
	Name    string
}

// Account wraps the embedded key-value store with the credential
// operations of §4.A.
type Account struct {
	store *kv.Store
}

// New returns an Account backed by store.
func New(store *kv.Store) *Account {
	return &Account{store: store}
}

// LoginResult is returned by Login on success.
type LoginResult struct {
	AccountInfo
	TransportPrivateKeyHex string
}

// CreateAccount derives all three identities from phrase, encrypts the
// phrase under password, and writes the envelope. Refuses if an
// envelope already exists.
func (a *Account) CreateAccount(phrase, password, name string) (*AccountInfo, error) {
	if _, ok, err := a.store.Get(bucketName, recordKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreReadFailed, err)
	} else if ok {
		return nil, ErrAccountExists
	}

	bundle, err := identity.Derive(phrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhraseInvalid, err)
	}

	key := derivePasswordKey(password)
	ciphertext, nonce, err := seal(key, []byte(phrase))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}

	env := Envelope{
		EncryptedMnemonic: hex.EncodeToString(ciphertext),
		Nonce:             hex.EncodeToString(nonce),
		PeerID:            bundle.TransportPeerID,
		GroupID:           bundle.GroupPeerID,
		Address:           bundle.WalletAddress,
		Name:              name,
	}

	if err := a.write(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}

	return &AccountInfo{
		PeerID:  env.PeerID,
		GroupID: env.GroupID,
		Address: env.Address,
		Name:    env.Name,
	}, nil
}

// Login loads the envelope, decrypts it with password, and verifies the
// re-derived peer-id matches the stored one. Decryption failure and
// peer-id mismatch both surface as ErrInvalidPassword.
func (a *Account) Login(password string) (*LoginResult, error) {
	env, err := a.read()
	if err != nil {
		return nil, err
	}

	phrase, err := decryptPhrase(env, password)
	if err != nil {
		return nil, ErrInvalidPassword
	}

	bundle, err := identity.Derive(phrase)
	if err != nil || bundle.TransportPeerID != env.PeerID {
		return nil, ErrInvalidPassword
	}

	return &LoginResult{
		AccountInfo: AccountInfo{
			PeerID:  env.PeerID,
			GroupID: env.GroupID,
			Address: env.Address,
			Name:    env.Name,
		},
		TransportPrivateKeyHex: hex.EncodeToString(bundle.TransportPrivateKey),
	}, nil
}

// VerifyPassword is a boolean mirror of Login that never distinguishes
// its failure modes.
func (a *Account) VerifyPassword(password string) bool {
	_, err := a.Login(password)
	return err == nil
}

// ChangePassword re-encrypts the decrypted phrase under a fresh nonce
// with the new password, preserving all plaintext metadata.
func (a *Account) ChangePassword(oldPassword, newPassword string) error {
	env, err := a.read()
	if err != nil {
		return err
	}

	phrase, err := decryptPhrase(env, oldPassword)
	if err != nil {
		return ErrInvalidPassword
	}

	key := derivePasswordKey(newPassword)
	ciphertext, nonce, err := seal(key, []byte(phrase))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}

	env.EncryptedMnemonic = hex.EncodeToString(ciphertext)
	env.Nonce = hex.EncodeToString(nonce)

	if err := a.write(env); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	return nil
}

// DeleteAccount removes the envelope from the store.
func (a *Account) DeleteAccount() error {
	if err := a.store.Delete(bucketName, recordKey); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	return nil
}

// GetAccountInfo returns only the plaintext metadata.
func (a *Account) GetAccountInfo() (*AccountInfo, error) {
	env, err := a.read()
	if err != nil {
		return nil, err
	}
	return &AccountInfo{
		PeerID:  env.PeerID,
		GroupID: env.GroupID,
		Address: env.Address,
		Name:    env.Name,
	}, nil
}

func (a *Account) read() (*Envelope, error) {
	raw, ok, err := a.store.Get(bucketName, recordKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreReadFailed, err)
	}
	if !ok {
		return nil, ErrNoAccount
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreReadFailed, err)
	}
	return &env, nil
}

func (a *Account) write(env *Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return a.store.Put(bucketName, recordKey, raw)
}

func decryptPhrase(env *Envelope, password string) (string, error) {
	ciphertext, err := hex.DecodeString(env.EncryptedMnemonic)
	if err != nil {
		return "", err
	}
	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil {
		return "", err
	}
	key := derivePasswordKey(password)
	plaintext, err := open(key, ciphertext, nonce)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// derivePasswordKey implements the HKDF-SHA256 schedule from §4.A:
// salt = SHA-256(password), info = "gigi-mnemonic", ikm = password bytes.
func derivePasswordKey(password string) []byte {
	salt := sha256.Sum256([]byte(password))
	reader := hkdf.New(sha256.New, []byte(password), salt[:], []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		panic(fmt.Sprintf("credential: hkdf expand failed: %v", err))
	}
	return key
}

func seal(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func open(key, ciphertext, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}

// constantTimeEqual compares two byte slices in constant time. Nothing
// in this package currently calls it.
func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
