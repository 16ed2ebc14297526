package secrecy

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"election-platform/internal/config"
)

// KeySize is the length of every symmetric key this package accepts.
const KeySize = 32

var ErrInvalidKey = errors.New("secrecy: invalid key")

// ParseKey decodes a base64 (standard or URL alphabet) key of KeySize bytes.
func ParseKey(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", ErrInvalidKey)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, KeySize, len(raw))
	}
	return raw, nil
}

// Keys is the resolved key material for ballot secrecy.
type Keys struct {
	Encryption []byte
	VoterHash  []byte
}

const voterHashInfo = "election-platform voter-hash v1"

// LoadKeys resolves keys from config. Without an explicit voter hash key one is
// derived from the encryption key with HKDF-SHA256 so the two never coincide.
func LoadKeys(cfg config.BallotConfig) (Keys, error) {
	enc, err := ParseKey(cfg.EncryptionKey)
	if err != nil {
		return Keys{}, fmt.Errorf("encryption key: %w", err)
	}
	if cfg.VoterHashKey != "" {
		hk, err := ParseKey(cfg.VoterHashKey)
		if err != nil {
			return Keys{}, fmt.Errorf("voter hash key: %w", err)
		}
		return Keys{Encryption: enc, VoterHash: hk}, nil
	}
	hk, err := DeriveKey(enc, voterHashInfo)
	if err != nil {
		return Keys{}, err
	}
	return Keys{Encryption: enc, VoterHash: hk}, nil
}

// DeriveKey expands secret into a KeySize subkey bound to info.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	out := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return out, nil
}
