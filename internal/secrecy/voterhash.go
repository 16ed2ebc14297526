package secrecy

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// VoterHasher produces the pseudonymous voter handle stored on anonymized
// ballots. It is a keyed BLAKE2b-256 MAC, so the handle cannot be recomputed
// from public identifiers without the key.
type VoterHasher struct {
	key []byte
}

func NewVoterHasher(key []byte) (*VoterHasher, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, fmt.Errorf("%w: voter hash key must be 1..%d bytes", ErrInvalidKey, blake2b.Size)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &VoterHasher{key: k}, nil
}

// Hash is deterministic for a (voterID, regNumber) pair: 64 lowercase hex chars.
func (h *VoterHasher) Hash(voterID, regNumber string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is checked in NewVoterHasher
		panic(err)
	}
	// Length-prefix both parts so ("ab","c") and ("a","bc") differ.
	fmt.Fprintf(mac, "%d:%s|%d:%s", len(voterID), voterID, len(regNumber), regNumber)
	return hex.EncodeToString(mac.Sum(nil))
}
