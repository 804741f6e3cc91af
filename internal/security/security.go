package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// API keys are opaque tokens of the form sk_<48 hex chars>. Clients may hold
// them encrypted at rest; EncryptAPIKey wraps a key with AES-256-GCM under a
// key derived from the service secret, producing base64url(nonce||ciphertext).

const gcmNonceSize = 12

// GenerateAPIKey returns a fresh random API key
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return "sk_" + hex.EncodeToString(raw), nil
}

// EncryptAPIKey wraps a plain key under the service secret.
// Each call uses a fresh nonce, so two encryptions of one key differ.
func EncryptAPIKey(plainKey, secret string) (string, error) {
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plainKey), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// DecryptAPIKey unwraps an encrypted key. Tampered or truncated input fails.
func DecryptAPIKey(encryptedKey, secret string) (string, error) {
	sealed, err := base64.URLEncoding.DecodeString(encryptedKey)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted key: %w", err)
	}
	if len(sealed) < gcmNonceSize+1 {
		return "", fmt.Errorf("encrypted key too short")
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plain, err := gcm.Open(nil, sealed[:gcmNonceSize], sealed[gcmNonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt key: %w", err)
	}
	return string(plain), nil
}

// deriveKey turns the configured secret into a 32-byte AES key
func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// KeyInfo describes a registered API key
type KeyInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyStore tracks issued API keys in memory. Static keys from configuration
// always validate; runtime-issued keys validate until revoked.
type KeyStore struct {
	mu         sync.RWMutex
	secret     string
	keys       map[string]KeyInfo
	static     map[string]bool
	allowPlain bool
}

// NewKeyStore creates a key store. allowPlain permits clients to present
// keys unencrypted, which is meant for development only.
func NewKeyStore(secret string, staticKeys []string, allowPlain bool) *KeyStore {
	static := make(map[string]bool, len(staticKeys))
	for _, k := range staticKeys {
		static[k] = true
	}
	return &KeyStore{
		secret:     secret,
		keys:       make(map[string]KeyInfo),
		static:     static,
		allowPlain: allowPlain,
	}
}

// Register issues a new key and returns both plain and encrypted forms
func (ks *KeyStore) Register(name string) (plain, encrypted string, err error) {
	plain, err = GenerateAPIKey()
	if err != nil {
		return "", "", err
	}
	encrypted, err = EncryptAPIKey(plain, ks.secret)
	if err != nil {
		return "", "", err
	}

	ks.mu.Lock()
	ks.keys[plain] = KeyInfo{Name: name, CreatedAt: time.Now().UTC()}
	ks.mu.Unlock()
	return plain, encrypted, nil
}

// ValidateKey checks a key presented in a known form. encrypted selects
// whether the caller sent the wrapped or the plain representation.
func (ks *KeyStore) ValidateKey(key string, encrypted bool) (bool, string) {
	if encrypted {
		plain, err := DecryptAPIKey(key, ks.secret)
		if err != nil {
			return false, ""
		}
		key = plain
	}
	return ks.lookup(key)
}

// Validate checks a key of unknown form: the encrypted representation is
// always accepted; the plain one only when allowPlain is set or the key is
// a configured static key.
func (ks *KeyStore) Validate(key string) (bool, string) {
	if plain, err := DecryptAPIKey(key, ks.secret); err == nil {
		return ks.lookup(plain)
	}

	ks.mu.RLock()
	isStatic := ks.static[key]
	ks.mu.RUnlock()
	if isStatic {
		return true, "static"
	}
	if ks.allowPlain {
		return ks.lookup(key)
	}
	return false, ""
}

// Revoke removes a previously issued key
func (ks *KeyStore) Revoke(plainKey string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, ok := ks.keys[plainKey]; !ok {
		return false
	}
	delete(ks.keys, plainKey)
	return true
}

// Count returns the number of runtime-issued keys
func (ks *KeyStore) Count() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

func (ks *KeyStore) lookup(plain string) (bool, string) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.static[plain] {
		return true, "static"
	}
	if info, ok := ks.keys[plain]; ok {
		return true, info.Name
	}
	return false, ""
}
