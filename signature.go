// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Sign reads the basis and builds its block signature. fileLen is the
// expected basis length and sizes the layout; the signature records the
// number of bytes actually read. Only the final block may be short.
func Sign(basis io.Reader, fileLen int64, o Options) (*Signature, error) {
	o = o.withDefaults()
	layout := NewLayout(LayoutParams{
		FileLen:   fileLen,
		BlockLen:  o.BlockLen,
		StrongLen: o.StrongLen,
		Protocol:  o.Protocol,
	})
	sh, err := NewStrongHasher(o.Family, o.Seed)
	if err != nil {
		return nil, err
	}
	// Truncation never exceeds what the family produces.
	strongLen := int(layout.StrongLen)
	if size := sh.Size(); strongLen > size {
		strongLen = size
	}

	sig := &Signature{Layout: layout, Family: o.Family, Seed: o.Seed}
	if n := layout.BlockCount(fileLen); n > 0 {
		sig.Blocks = make([]Block, 0, int(n))
	}

	buf := make([]byte, layout.BlockLen)
	var offset int64
	for index := int32(0); ; index++ {
		n, err := io.ReadFull(basis, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(err, "failed reading basis block %d at offset %d", index, offset)
		}
		block := buf[:n]
		strong := make([]byte, strongLen)
		copy(strong, sh.BlockSum(block))
		sig.Blocks = append(sig.Blocks, Block{
			Index:  index,
			Offset: offset,
			Len:    int32(n),
			Weak:   weakSum(block),
			Strong: strong,
		})
		offset += int64(n)
		if err == io.ErrUnexpectedEOF {
			break
		}
	}
	sig.FileLen = offset
	signatureBlocks.Add(float64(len(sig.Blocks)))
	return sig, nil
}

// SignBytes builds the signature of an in-memory basis.
func SignBytes(basis []byte, o Options) (*Signature, error) {
	return Sign(bytes.NewReader(basis), int64(len(basis)), o)
}
