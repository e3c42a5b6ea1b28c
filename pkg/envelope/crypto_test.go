package envelope_test

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope"
	"github.com/chris-alexander-pop/go-service-queue/pkg/test"
)

type CryptoSuite struct {
	test.Suite
}

func TestCryptoSuite(t *testing.T) {
	test.Run(t, new(CryptoSuite))
}

func (s *CryptoSuite) TestEncryptDecryptRoundTrip() {
	c := envelope.NewAESGCMCipher()
	cfg := envelope.EncryptionConfig{Secret: "hunter2"}

	hash, err := c.Encrypt([]byte("order total: 42"), cfg)
	s.Require().NoError(err)
	s.NotEmpty(hash)

	plain, err := c.Decrypt(hash, cfg)
	s.Require().NoError(err)
	s.Equal("order total: 42", string(plain))
}

func (s *CryptoSuite) TestMultiplePassesMustMatchOnDecrypt() {
	c := envelope.NewAESGCMCipher()
	cfg := envelope.EncryptionConfig{Secret: "hunter2", Passes: 3}

	hash, err := c.Encrypt([]byte("payload"), cfg)
	s.Require().NoError(err)

	_, err = c.Decrypt(hash, envelope.EncryptionConfig{Secret: "hunter2", Passes: 1})
	s.Error(err)

	plain, err := c.Decrypt(hash, cfg)
	s.Require().NoError(err)
	s.Equal("payload", string(plain))
}

func (s *CryptoSuite) TestWrongSecretFailsToDecrypt() {
	c := envelope.NewAESGCMCipher()
	hash, err := c.Encrypt([]byte("secret data"), envelope.EncryptionConfig{Secret: "right"})
	s.Require().NoError(err)

	_, err = c.Decrypt(hash, envelope.EncryptionConfig{Secret: "wrong"})
	s.Error(err)
}

func (s *CryptoSuite) TestValidRejectsGarbage() {
	c := envelope.NewAESGCMCipher()
	s.False(c.Valid("not-base64-!!!"))

	// Well-formed base64 of foreign bytes is still not a cipher hash.
	foreign := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 64))
	s.False(c.Valid(foreign))

	hash, err := c.Encrypt([]byte("x"), envelope.EncryptionConfig{Secret: "s"})
	s.Require().NoError(err)
	s.True(c.Valid(hash))
}

func (s *CryptoSuite) TestEncryptDecryptValueRoundTrip() {
	c := envelope.NewAESGCMCipher()
	cfg := envelope.EncryptionConfig{Secret: "struct-secret"}

	hash, err := envelope.EncryptValue(c, order{ID: "o-9", Total: 500}, cfg)
	s.Require().NoError(err)

	decoded, err := envelope.DecryptValue[order](c, hash, cfg)
	s.Require().NoError(err)
	s.Equal("o-9", decoded.ID)
	s.Equal(500, decoded.Total)
}
