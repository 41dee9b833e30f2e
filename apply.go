// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// ErrShortBasis is returned when a copy op runs past the end of the basis,
// meaning the basis shrank or was truncated after it was signed.
var ErrShortBasis = errors.New("blocksync: basis shorter than the signature describes")

// Apply replays the script into dst, copying referenced blocks out of the
// basis and writing literals verbatim. The signature resolves block offsets
// and lengths; it must be the one the script was generated against. A nil
// signature and a nil basis are accepted for all-literal scripts. dst is
// written strictly in order, never seeked.
func Apply(dst io.Writer, basis io.ReadSeeker, sig *Signature, script *Script) error {
	if script == nil {
		return errors.New("blocksync: nil script")
	}
	var buf []byte
	for i := range script.Ops {
		op := &script.Ops[i]
		if op.IsLiteral() {
			if _, err := dst.Write(op.Data); err != nil {
				return errors.Wrap(err, "failed writing literal")
			}
			continue
		}
		switch {
		case sig == nil:
			return errors.Errorf("blocksync: copy op for block %d without a signature", op.Index)
		case basis == nil:
			return errors.Errorf("blocksync: copy op for block %d without a basis", op.Index)
		case op.Index < 0 || int(op.Index) >= len(sig.Blocks):
			return errors.Errorf("blocksync: copy op references unknown block %d", op.Index)
		}
		blk := &sig.Blocks[op.Index]
		if op.Len != 0 && op.Len != int64(blk.Len) {
			return errors.Errorf("blocksync: copy op for block %d carries length %d, signature says %d", op.Index, op.Len, blk.Len)
		}
		if _, err := basis.Seek(blk.Offset, io.SeekStart); err != nil {
			return errors.Wrapf(err, "failed seeking basis to block %d at offset %d", blk.Index, blk.Offset)
		}
		if len(buf) < int(blk.Len) {
			buf = make([]byte, blk.Len)
		}
		chunk := buf[:blk.Len]
		n, err := io.ReadFull(basis, chunk)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.Wrapf(ErrShortBasis, "block %d at offset %d: want %d bytes, got %d", blk.Index, blk.Offset, blk.Len, n)
		}
		if err != nil {
			return errors.Wrapf(err, "failed reading basis block %d at offset %d", blk.Index, blk.Offset)
		}
		if _, err := dst.Write(chunk); err != nil {
			return errors.Wrapf(err, "failed writing block %d", blk.Index)
		}
	}
	recordApply(script)
	return nil
}

// ApplyBytes replays the script against an in-memory basis and returns the
// rebuilt target.
func ApplyBytes(basis []byte, sig *Signature, script *Script) ([]byte, error) {
	var out bytes.Buffer
	if script != nil {
		if n := int(script.TotalBytes); n > 0 && int64(n) == script.TotalBytes {
			out.Grow(n)
		}
	}
	if err := Apply(&out, bytes.NewReader(basis), sig, script); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
