package attest

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// NonceFromID derives a stable attestation nonce from a contribution's
// external id. Deterministic so re-signing the same contribution yields the
// same nonce and replay protection on-chain collapses duplicates.
func NonceFromID(externalID string) uint64 {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(externalID))
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}
