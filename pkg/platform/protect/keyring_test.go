package protect

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type KeyringSuite struct {
	suite.Suite
	keyring *Keyring
}

func TestKeyringSuite(t *testing.T) {
	suite.Run(t, new(KeyringSuite))
}

func (s *KeyringSuite) SetupTest() {
	k, err := NewKeyring(bytes.Repeat([]byte("m"), 32))
	s.Require().NoError(err)
	s.keyring = k
}

func (s *KeyringSuite) TestSealOpenRoundTrip() {
	plaintext := []byte(`{"name":"Asha","nationality":"IN"}`)

	sealed, keyRef, err := s.keyring.Seal(plaintext)
	s.Require().NoError(err)
	s.True(strings.HasPrefix(keyRef, "kr_"))
	s.NotContains(string(sealed), "Asha")

	opened, err := s.keyring.Open(sealed, keyRef)
	s.Require().NoError(err)
	s.Equal(plaintext, opened)
}

func (s *KeyringSuite) TestOpenRejects() {
	sealed, keyRef, err := s.keyring.Seal([]byte("payload"))
	s.Require().NoError(err)

	s.Run("another payload's key reference", func() {
		_, otherRef, err := s.keyring.Seal([]byte("other"))
		s.Require().NoError(err)
		_, err = s.keyring.Open(sealed, otherRef)
		s.Error(err)
	})

	s.Run("malformed key reference", func() {
		_, err := s.keyring.Open(sealed, "not-a-ref")
		s.ErrorIs(err, ErrBadKeyRef)
	})

	s.Run("truncated ciphertext", func() {
		_, err := s.keyring.Open(sealed[:4], keyRef)
		s.ErrorIs(err, ErrCiphertext)
	})

	s.Run("different master secret", func() {
		other, err := NewKeyring(bytes.Repeat([]byte("x"), 32))
		s.Require().NoError(err)
		_, err = other.Open(sealed, keyRef)
		s.Error(err)
	})
}

func (s *KeyringSuite) TestHashIsStable() {
	a := s.keyring.Hash([]byte("same"))
	b := s.keyring.Hash([]byte("same"))
	s.Equal(a, b)
	s.Len(a, 64)
	s.NotEqual(a, s.keyring.Hash([]byte("different")))
}

func TestNewKeyringRejectsShortMaster(t *testing.T) {
	_, err := NewKeyring([]byte("short"))
	require.ErrorIs(t, err, ErrMasterTooShort)
}
