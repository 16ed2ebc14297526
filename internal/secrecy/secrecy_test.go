package secrecy

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-platform/internal/config"
)

func key(b byte) []byte { return bytes.Repeat([]byte{b}, KeySize) }

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(key(1))
	require.NoError(t, err)

	aad := []byte("voter|position")
	tok, err := s.Seal([]byte(`{"candidate_id":"c1"}`), aad)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok, "v1."))

	pt, err := s.Open(tok, aad)
	require.NoError(t, err)
	assert.Equal(t, `{"candidate_id":"c1"}`, string(pt))
}

func TestSealer_NonceIsRandom(t *testing.T) {
	s, _ := NewSealer(key(1))
	a, _ := s.Seal([]byte("same"), nil)
	b, _ := s.Seal([]byte("same"), nil)
	assert.NotEqual(t, a, b)
}

func TestSealer_WrongKeyFails(t *testing.T) {
	s1, _ := NewSealer(key(1))
	s2, _ := NewSealer(key(2))

	tok, err := s1.Seal([]byte("payload"), nil)
	require.NoError(t, err)

	_, err = s2.Open(tok, nil)
	assert.True(t, errors.Is(err, ErrOpen))
}

func TestSealer_RejectsTamperedInput(t *testing.T) {
	s, _ := NewSealer(key(1))
	tok, _ := s.Seal([]byte("payload"), []byte("a"))

	cases := map[string]string{
		"no prefix":  strings.TrimPrefix(tok, "v1."),
		"bad base64": "v1.%%%",
		"truncated":  "v1." + base64.RawURLEncoding.EncodeToString([]byte("short")),
		"flipped":    flipLastByte(t, tok),
		"empty":      "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Open(in, []byte("a"))
			assert.ErrorIs(t, err, ErrOpen)
		})
	}

	_, err := s.Open(tok, []byte("other aad"))
	assert.ErrorIs(t, err, ErrOpen)
}

func TestNewSealer_KeyLength(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestVoterHasher_StableAndKeyed(t *testing.T) {
	h1, err := NewVoterHasher(key(3))
	require.NoError(t, err)
	h2, _ := NewVoterHasher(key(4))

	a := h1.Hash("voter-1", "S001")
	assert.Len(t, a, 64)
	assert.Equal(t, a, h1.Hash("voter-1", "S001"))
	assert.NotEqual(t, a, h1.Hash("voter-2", "S001"))
	assert.NotEqual(t, a, h2.Hash("voter-1", "S001"))
	assert.NotEqual(t, h1.Hash("ab", "c"), h1.Hash("a", "bc"))
}

func TestLoadKeys_DerivesHashKey(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString(key(7))
	k, err := LoadKeys(config.BallotConfig{EncryptionKey: enc})
	require.NoError(t, err)
	assert.Len(t, k.VoterHash, KeySize)
	assert.NotEqual(t, k.Encryption, k.VoterHash)

	again, err := LoadKeys(config.BallotConfig{EncryptionKey: enc})
	require.NoError(t, err)
	assert.Equal(t, k.VoterHash, again.VoterHash)
}

func TestLoadKeys_ExplicitHashKey(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString(key(7))
	hk := base64.URLEncoding.EncodeToString(key(8))
	k, err := LoadKeys(config.BallotConfig{EncryptionKey: enc, VoterHashKey: hk})
	require.NoError(t, err)
	assert.Equal(t, key(8), k.VoterHash)
}

func TestParseKey_Errors(t *testing.T) {
	_, err := ParseKey("!!!")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParseKey(base64.StdEncoding.EncodeToString([]byte("tiny")))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func flipLastByte(t *testing.T, tok string) string {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(tok, "v1."))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	return "v1." + base64.RawURLEncoding.EncodeToString(raw)
}
