package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/chris-alexander-pop/go-service-queue/pkg/errors"
)

// cipherSalt is a fixed application-level PBKDF2 salt. The secret itself
// (not the salt) is what must stay confidential; a fixed salt keeps key
// derivation deterministic from EncryptionConfig alone, which is what lets
// decrypt() be a pure function of (hash, cfg) with no side channel.
var cipherSalt = []byte("go-service-queue/pkg/envelope/cipher/v1")

const pbkdf2Iterations = 4096

// hashMagic prefixes every portable hash so Valid can recognize foreign or
// corrupted input without needing the secret. The decoded layout is
// magic || passCount || ciphertext.
var hashMagic = []byte("sqc1")

// AES-GCM frame overhead of a single pass: 12-byte nonce + 16-byte tag.
const gcmOverhead = 12 + 16

// Cipher is the uniform encrypt/decrypt port required by the envelope
// pipeline. Implementations must round-trip: Decrypt(Encrypt(v, cfg), cfg) == v.
type Cipher interface {
	// Encrypt applies cfg.Passes recursive encryptions to value, returning
	// a portable, self-describing hash string.
	Encrypt(value []byte, cfg EncryptionConfig) (string, error)

	// Decrypt reverses Encrypt. It MUST fail explicitly when hash was not
	// produced by this cipher.
	Decrypt(hash string, cfg EncryptionConfig) ([]byte, error)

	// Valid reports whether hash looks like a value this cipher produced,
	// without needing cfg (used by PublishEncrypted, which accepts
	// pre-encrypted values).
	Valid(hash string) bool
}

// AESGCMCipher implements Cipher with AES-256-GCM, deriving the per-call
// key from EncryptionConfig.Secret via PBKDF2-SHA256.
type AESGCMCipher struct{}

// NewAESGCMCipher constructs the default cipher adapter.
func NewAESGCMCipher() *AESGCMCipher {
	return &AESGCMCipher{}
}

func (c *AESGCMCipher) Encrypt(value []byte, cfg EncryptionConfig) (string, error) {
	if cfg.Secret == "" {
		return "", errors.InvalidArgument("encryption secret is required", nil)
	}
	key := deriveKey(cfg.Secret)

	data := value
	for i := 0; i < cfg.passes(); i++ {
		sealed, err := sealOnce(data, key)
		if err != nil {
			return "", errors.Internal("failed to encrypt value", err)
		}
		data = sealed
	}

	out := make([]byte, 0, len(hashMagic)+1+len(data))
	out = append(out, hashMagic...)
	out = append(out, byte(cfg.passes()))
	out = append(out, data...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *AESGCMCipher) Decrypt(hash string, cfg EncryptionConfig) ([]byte, error) {
	if cfg.Secret == "" {
		return nil, errors.InvalidArgument("encryption secret is required", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(hash)
	if err != nil || len(raw) < len(hashMagic)+1 || !bytes.Equal(raw[:len(hashMagic)], hashMagic) {
		return nil, errors.InvalidArgument("input is not a valid encrypted hash", err)
	}

	passes := int(raw[len(hashMagic)])
	if passes != cfg.passes() {
		return nil, errors.InvalidArgument("pass count does not match encryption config", nil)
	}

	key := deriveKey(cfg.Secret)
	data := raw[len(hashMagic)+1:]
	for i := 0; i < passes; i++ {
		opened, err := openOnce(data, key)
		if err != nil {
			return nil, errors.InvalidArgument("input is not a valid encrypted hash", err)
		}
		data = opened
	}
	return data, nil
}

func (c *AESGCMCipher) Valid(hash string) bool {
	raw, err := base64.StdEncoding.DecodeString(hash)
	if err != nil || len(raw) < len(hashMagic)+1 {
		return false
	}
	if !bytes.Equal(raw[:len(hashMagic)], hashMagic) {
		return false
	}
	passes := int(raw[len(hashMagic)])
	body := len(raw) - len(hashMagic) - 1
	return passes >= 1 && body >= passes*gcmOverhead
}

func deriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), cipherSalt, pbkdf2Iterations, 32, sha256.New)
}

func sealOnce(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func openOnce(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.InvalidArgument("ciphertext shorter than nonce size", nil)
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

// EncryptValue serializes value to JSON and encrypts it, for use on
// structured values rather than raw bytes/strings.
func EncryptValue[T any](c Cipher, value T, cfg EncryptionConfig) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", errors.Internal("failed to serialize value for encryption", err)
	}
	return c.Encrypt(data, cfg)
}

// DecryptValue reverses EncryptValue.
func DecryptValue[T any](c Cipher, hash string, cfg EncryptionConfig) (T, error) {
	var zero T
	data, err := c.Decrypt(hash, cfg)
	if err != nil {
		return zero, err
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, errors.InvalidArgument("decrypted value is not well-formed", err)
	}
	return value, nil
}
