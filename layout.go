// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

// blockSumBias is the rsync heuristic bias for sizing strong checksums. Two
// bits are added per quadrupling of the file and one removed per doubling of
// the block, so bigger files keep enough checksum bytes to make accidental
// block collisions over the whole transfer unlikely.
const blockSumBias = 10

// LayoutParams selects the signature geometry for one basis file.
type LayoutParams struct {
	// FileLen is the basis length in bytes.
	FileLen int64
	// BlockLen overrides the derived block length when non-zero. Overrides
	// are clamped to the valid range rather than rejected.
	BlockLen uint32
	// StrongLen is the wanted strong-checksum truncation in bytes. Zero
	// means DefaultStrongLen. The derived length never goes below it.
	StrongLen uint32
	// Protocol is the rsync protocol version to stay compatible with. Zero
	// means DefaultProtocol.
	Protocol int
}

// Layout is the derived signature geometry: how long blocks are and to how
// many bytes strong checksums are truncated.
type Layout struct {
	BlockLen  uint32
	StrongLen uint32
}

// NewLayout derives the signature geometry from params following rsync's
// sizing rules, so signatures built here match what a stock rsync of the same
// protocol version would produce.
func NewLayout(params LayoutParams) Layout {
	protocol := params.Protocol
	if protocol == 0 {
		protocol = DefaultProtocol
	}
	requested := params.StrongLen
	if requested == 0 {
		requested = DefaultStrongLen
	}
	if requested > MaxStrongLen {
		requested = MaxStrongLen
	}
	fileLen := params.FileLen
	if fileLen < 0 {
		fileLen = 0
	}
	blockLen := blockLenFor(fileLen, params.BlockLen, protocol)
	return Layout{
		BlockLen:  blockLen,
		StrongLen: strongLenFor(fileLen, blockLen, requested, protocol),
	}
}

// blockLenFor grows the block length with the square root of the file length,
// in power-of-two steps between DefaultBlockLen and the protocol's ceiling.
func blockLenFor(fileLen int64, override uint32, protocol int) uint32 {
	max := uint32(MaxBlockLen)
	if protocol < 30 {
		max = maxBlockLenOld
	}
	if override != 0 {
		if override < MinBlockLen {
			return MinBlockLen
		}
		if override > max {
			return max
		}
		return override
	}
	if fileLen <= DefaultBlockLen*DefaultBlockLen {
		return DefaultBlockLen
	}
	c := uint32(1)
	for l := fileLen; l>>2 != 0; l >>= 2 {
		c <<= 1
	}
	if c >= max {
		return max
	}
	var blength uint32
	for cur := c; cur >= 8; cur >>= 1 {
		blength |= cur
		if fileLen < int64(blength)*int64(blength) {
			blength &^= cur
		}
	}
	if blength < DefaultBlockLen {
		return DefaultBlockLen
	}
	return blength
}

// strongLenFor picks the strong-checksum truncation. Protocols before 27 send
// exactly what was asked for, as does an explicit request for the full digest.
func strongLenFor(fileLen int64, blockLen, requested uint32, protocol int) uint32 {
	if protocol < 27 || requested == MaxStrongLen {
		return requested
	}
	b := blockSumBias
	for l := fileLen >> 1; l != 0; l >>= 1 {
		b += 2
	}
	for c := blockLen >> 1; c != 0 && b != 0; c >>= 1 {
		b--
	}
	// One extra bit, minus the 32 rolling-checksum bits, rounded up to bytes.
	n := (b + 1 - 32 + 7) / 8
	if n < int(requested) {
		return requested
	}
	if n > MaxStrongLen {
		return MaxStrongLen
	}
	return uint32(n)
}

// BlockCount returns how many blocks of the layout tile a file of fileLen
// bytes, counting a short final block.
func (l Layout) BlockCount(fileLen int64) int64 {
	if fileLen <= 0 {
		return 0
	}
	return (fileLen + int64(l.BlockLen) - 1) / int64(l.BlockLen)
}
