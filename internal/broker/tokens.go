package broker

import (
	"fmt"

	"github.com/fernet/fernet-go"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
)

// TokenVault seals broker access tokens for storage at rest. Token exchange
// itself happens outside this system; the vault only protects what the OAuth
// collaborators hand over. Fernet tokens are stored without a TTL; broker
// token lifetimes are governed by the broker, not by us.
type TokenVault struct {
	keys []*fernet.Key
}

// NewTokenVault creates a vault from one or more base64-encoded fernet keys,
// comma-separated. The first key encrypts; all keys decrypt, which allows
// key rotation without re-sealing every stored token.
func NewTokenVault(encodedKeys string) (*TokenVault, error) {
	keys, err := fernet.DecodeKeys(encodedKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token vault keys: %w", err)
	}
	return &TokenVault{keys: keys}, nil
}

// Seal encrypts an access token for storage.
func (v *TokenVault) Seal(token string) (string, error) {
	sealed, err := fernet.EncryptAndSign([]byte(token), v.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to seal access token: %w", err)
	}
	return string(sealed), nil
}

// Open decrypts a stored access token. Returns apperrors.ErrTokenDecrypt if
// the ciphertext does not verify against any configured key.
func (v *TokenVault) Open(sealed string) (string, error) {
	token := fernet.VerifyAndDecrypt([]byte(sealed), 0, v.keys)
	if token == nil {
		return "", apperrors.ErrTokenDecrypt
	}
	return string(token), nil
}
