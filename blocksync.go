// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package blocksync implements an rsync-compatible delta-transfer engine: block
// signatures over a basis file, rolling-checksum matching of a target stream and
// reconstruction of the target from copy and literal instructions.
package blocksync

import (
	"github.com/pkg/errors"
)

const (
	// DefaultBlockLen is the block length used for small bases. Larger bases
	// derive a bigger block length from their size, see NewLayout.
	DefaultBlockLen = 700

	// MinBlockLen is the smallest block length a caller override is clamped to.
	MinBlockLen = 64

	// MaxBlockLen is the block length ceiling from protocol 30 on.
	MaxBlockLen = 1 << 17

	// maxBlockLenOld is the block length ceiling for protocols before 30.
	maxBlockLenOld = 1 << 29

	// DefaultStrongLen is the minimum strong-checksum truncation in bytes.
	DefaultStrongLen = 2

	// MaxStrongLen is the largest strong-checksum truncation in bytes.
	MaxStrongLen = 16

	// DefaultProtocol is the protocol version assumed when none is given.
	DefaultProtocol = 31
)

// Rolling checksum lanes are up to 16 bit length for simplicity and speed.
const mod = 1 << 16

// maxLiteral caps the size of a single literal instruction so that scripts can
// be produced and consumed in bounded memory.
const maxLiteral = 64 << 10

// Block contains one basis block's location and checksums.
type Block struct {
	// Index is the block ordinal.
	Index int32
	// Offset is the byte offset of the block in the basis.
	Offset int64
	// Len is the block length. Only the final block of a basis may be shorter
	// than the layout's block length.
	Len int32
	// Weak refers to the fast rolling checksum over the block bytes.
	Weak uint32
	// Strong refers to the seeded strong checksum, truncated to the layout's
	// strong length. It need not be cryptographic.
	Strong []byte
}

// Signature is the ordered block description of a basis file, together with
// the parameters used to build it. A signature is immutable once built and may
// be shared read-only across goroutines.
type Signature struct {
	Layout  Layout
	Family  Family
	Seed    uint32
	FileLen int64
	Blocks  []Block
}

// EnsureValid checks that the blocks exactly and contiguously tile the basis,
// that only the final block is short and that strong checksums have a uniform
// length. Decoded or handcrafted signatures should be validated before use.
func (s *Signature) EnsureValid() error {
	if s == nil {
		return errors.New("blocksync: nil signature")
	}
	if s.Layout.BlockLen == 0 {
		return errors.New("blocksync: signature has zero block length")
	}
	var offset int64
	for i := range s.Blocks {
		b := &s.Blocks[i]
		if int64(b.Index) != int64(i) {
			return errors.Errorf("blocksync: block %d carries index %d", i, b.Index)
		}
		if b.Offset != offset {
			return errors.Errorf("blocksync: block %d starts at %d, want %d", i, b.Offset, offset)
		}
		if b.Len <= 0 {
			return errors.Errorf("blocksync: block %d has length %d", i, b.Len)
		}
		if uint32(b.Len) > s.Layout.BlockLen {
			return errors.Errorf("blocksync: block %d longer than the layout's %d bytes", i, s.Layout.BlockLen)
		}
		if i < len(s.Blocks)-1 && uint32(b.Len) != s.Layout.BlockLen {
			return errors.Errorf("blocksync: non-final block %d has length %d", i, b.Len)
		}
		if len(b.Strong) != len(s.Blocks[0].Strong) {
			return errors.Errorf("blocksync: block %d strong checksum has %d bytes, want %d", i, len(b.Strong), len(s.Blocks[0].Strong))
		}
		offset += int64(b.Len)
	}
	if offset != s.FileLen {
		return errors.Errorf("blocksync: blocks cover %d bytes, file length is %d", offset, s.FileLen)
	}
	return nil
}

// Op represents a file re-construction instruction. An op carrying data
// reproduces those bytes verbatim; an op without data instructs the receiving
// end to copy block Index from its local basis instead.
type Op struct {
	// Index is the basis block to copy when Data is empty.
	Index int32
	// Len is the number of target bytes the op reproduces.
	Len int64
	// Data is the literal target bytes absent from the basis.
	Data []byte
}

// IsLiteral reports whether the op carries literal bytes.
func (o Op) IsLiteral() bool {
	return len(o.Data) > 0
}

// Script is the ordered op sequence produced by one delta pass. The sum of op
// lengths equals TotalBytes; LiteralBytes counts only bytes carried verbatim.
type Script struct {
	// BlockLen records the block length of the signature the script was
	// generated against.
	BlockLen uint32
	// Ops reconstruct the target when replayed in order.
	Ops []Op
	// TotalBytes is the size of the reconstructed target.
	TotalBytes int64
	// LiteralBytes is the number of bytes sent verbatim.
	LiteralBytes int64
}

func (s *Script) pushCopy(b *Block) {
	s.Ops = append(s.Ops, Op{Index: b.Index, Len: int64(b.Len)})
	s.TotalBytes += int64(b.Len)
}

// pushLiteral copies p, which usually aliases a reused generator buffer.
func (s *Script) pushLiteral(p []byte) {
	if len(p) == 0 {
		return
	}
	data := make([]byte, len(p))
	copy(data, p)
	s.Ops = append(s.Ops, Op{Len: int64(len(data)), Data: data})
	s.TotalBytes += int64(len(data))
	s.LiteralBytes += int64(len(data))
}

// Copies returns the number of copy ops in the script.
func (s *Script) Copies() int {
	n := 0
	for i := range s.Ops {
		if !s.Ops[i].IsLiteral() {
			n++
		}
	}
	return n
}

// Literals returns the number of literal ops in the script.
func (s *Script) Literals() int {
	n := 0
	for i := range s.Ops {
		if s.Ops[i].IsLiteral() {
			n++
		}
	}
	return n
}

// MatchRatio reports the fraction of target bytes reproduced from basis
// blocks rather than sent verbatim.
func (s *Script) MatchRatio() float64 {
	if s.TotalBytes == 0 {
		return 0
	}
	return float64(s.TotalBytes-s.LiteralBytes) / float64(s.TotalBytes)
}
