package proofofwork

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"
)

// Hash computes SHA-256(seed || little-endian int64 nonce).
func Hash(seed []byte, nonce int64) [sha256.Size]byte {
	return newHasher(seed).sum(nonce)
}

// hasher reuses one SHA-256 state across nonces for the same seed.
type hasher struct {
	h     hash.Hash
	seed  []byte
	nonce [8]byte
}

func newHasher(seed []byte) *hasher {
	return &hasher{
		h:    sha256.New(),
		seed: seed,
	}
}

func (hs *hasher) sum(nonce int64) [sha256.Size]byte {
	var result [sha256.Size]byte

	binary.LittleEndian.PutUint64(hs.nonce[:], uint64(nonce))
	hs.h.Reset()
	hs.h.Write(hs.seed)
	hs.h.Write(hs.nonce[:])
	hs.h.Sum(result[:0])

	return result
}
