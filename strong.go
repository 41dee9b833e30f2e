// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"hash"

	"github.com/cespare/xxhash/v2"
	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/md4"
)

// Family names a strong-checksum algorithm. Both ends of a transfer must use
// the same family; signatures record theirs so deltas inherit it.
type Family string

const (
	// MD4 is what rsync protocols before 30 negotiate.
	MD4 Family = "md4"
	// MD5 is what rsync protocols 30 and later negotiate.
	MD5 Family = "md5"
	// SHA1 matches rsync's newer checksum choices.
	SHA1 Family = "sha1"
	// SHA256 trades speed for collision resistance beyond rsync's defaults.
	SHA256 Family = "sha256"
	// XXH64 is a fast non-cryptographic alternative with 8-byte digests.
	XXH64 Family = "xxh64"
	// BLAKE3 is a fast cryptographic alternative with 32-byte digests.
	BLAKE3 Family = "blake3"
)

// ParseFamily returns the family named by s, or an error for unknown names.
func ParseFamily(s string) (Family, error) {
	f := Family(s)
	if _, err := f.New(); err != nil {
		return "", err
	}
	return f, nil
}

func (f Family) String() string {
	return string(f)
}

// DefaultFamily returns the strong-checksum family an rsync peer of the given
// protocol version would negotiate without checksum options.
func DefaultFamily(protocol int) Family {
	if protocol == 0 {
		protocol = DefaultProtocol
	}
	if protocol >= 30 {
		return MD5
	}
	return MD4
}

// New returns a fresh hash of the family, or an error for unknown names.
func (f Family) New() (hash.Hash, error) {
	switch f {
	case MD4:
		return md4.New(), nil
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case XXH64:
		return xxhash.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, errors.Errorf("blocksync: unknown checksum family %q", string(f))
	}
}

// StrongHasher computes seeded strong checksums over basis blocks. It reuses
// one hash instance and one sum buffer, so a single hasher must not be shared
// across goroutines.
type StrongHasher struct {
	family Family
	seed   uint32
	h      hash.Hash
	sum    [64]byte
}

// NewStrongHasher returns a hasher for the family with the given seed. A zero
// seed hashes block bytes alone, matching the unseeded digest.
func NewStrongHasher(family Family, seed uint32) (*StrongHasher, error) {
	h, err := family.New()
	if err != nil {
		return nil, err
	}
	return &StrongHasher{family: family, seed: seed, h: h}, nil
}

// Size returns the full digest size of the underlying family in bytes.
func (s *StrongHasher) Size() int {
	return s.h.Size()
}

// BlockSum returns the seeded digest of block. The returned slice is
// overwritten by the next call.
func (s *StrongHasher) BlockSum(block []byte) []byte {
	s.h.Reset()
	if s.seed != 0 {
		var seed [4]byte
		binary.LittleEndian.PutUint32(seed[:], s.seed)
		s.h.Write(seed[:])
	}
	s.h.Write(block)
	return s.h.Sum(s.sum[:0])
}
