// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"bytes"
)

// Index maps weak checksums to the basis blocks bearing them, so the delta
// generator can test a window against all candidate blocks in one lookup.
// An index is read-only after construction and safe to share across
// goroutines and delta passes.
type Index struct {
	sig *Signature
	// buckets holds block ordinals in ascending order per weak checksum.
	buckets map[uint32][]int32
}

// NewIndex builds the weak-checksum lookup table of sig.
func NewIndex(sig *Signature) *Index {
	x := &Index{sig: sig, buckets: make(map[uint32][]int32, len(sig.Blocks))}
	for i := range sig.Blocks {
		b := &sig.Blocks[i]
		x.buckets[b.Weak] = append(x.buckets[b.Weak], b.Index)
	}
	return x
}

// Signature returns the signature the index was built from.
func (x *Index) Signature() *Signature {
	return x.sig
}

// Candidates returns the ordinals of all blocks carrying the weak checksum,
// in block order. The returned slice must not be modified.
func (x *Index) Candidates(weak uint32) []int32 {
	return x.buckets[weak]
}

// FindMatch reports the first basis block the window verifiably matches. The
// weak sum preselects candidates; each candidate must then match the window
// length exactly and its truncated strong checksum, computed at most once per
// call via sh. Candidates are tried in block order and the first verified one
// wins.
func (x *Index) FindMatch(weak uint32, window []byte, sh *StrongHasher) (int32, bool) {
	ordinals := x.buckets[weak]
	if len(ordinals) == 0 {
		return 0, false
	}
	var strong []byte
	for _, ord := range ordinals {
		b := &x.sig.Blocks[ord]
		if int(b.Len) != len(window) {
			continue
		}
		if strong == nil {
			strong = sh.BlockSum(window)
		}
		if len(b.Strong) > len(strong) {
			continue
		}
		if bytes.Equal(b.Strong, strong[:len(b.Strong)]) {
			return b.Index, true
		}
	}
	return 0, false
}
