// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Delta reads the target and produces the script that rebuilds it from the
// indexed basis plus literal bytes. A nil or empty index degrades to an
// all-literal script. The index is only read, so concurrent passes may share
// it; the returned script is independent of the index afterwards.
func Delta(x *Index, target io.Reader) (*Script, error) {
	if x == nil || x.sig == nil || len(x.sig.Blocks) == 0 {
		blockLen := uint32(DefaultBlockLen)
		if x != nil && x.sig != nil && x.sig.Layout.BlockLen != 0 {
			blockLen = x.sig.Layout.BlockLen
		}
		script, err := literalScript(blockLen, target)
		if err != nil {
			return nil, err
		}
		recordDelta(script)
		return script, nil
	}
	sh, err := NewStrongHasher(x.sig.Family, x.sig.Seed)
	if err != nil {
		return nil, err
	}
	g := &generator{
		idx:      x,
		sig:      x.sig,
		sh:       sh,
		script:   &Script{BlockLen: x.sig.Layout.BlockLen},
		blockLen: int(x.sig.Layout.BlockLen),
	}
	g.buf = make([]byte, g.blockLen+maxLiteral)
	if err := g.run(target); err != nil {
		return nil, err
	}
	recordDelta(g.script)
	return g.script, nil
}

// DeltaBytes generates the script for an in-memory target.
func DeltaBytes(x *Index, target []byte) (*Script, error) {
	return Delta(x, bytes.NewReader(target))
}

// literalScript encodes the whole target as literals, in ops of at most
// maxLiteral bytes.
func literalScript(blockLen uint32, target io.Reader) (*Script, error) {
	script := &Script{BlockLen: blockLen}
	buf := make([]byte, maxLiteral)
	for {
		n, err := io.ReadFull(target, buf)
		if n > 0 {
			script.pushLiteral(buf[:n])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return script, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed reading target")
		}
	}
}

// generator slides a block-sized window along the target inside one linear
// buffer. The buffer is split into three adjacent regions:
//
//	buf[drain:wstart]  bytes popped off the window, pending as literal
//	buf[wstart:cur]    the checksum window
//	buf[cur:filled]    read but unprocessed bytes
//
// The window grows by absorbing unprocessed bytes until it spans a full
// block, then slides one byte at a time, pushing its oldest byte into the
// pending-literal region. Every state in which the window spans a full block
// is probed against the index exactly once.
type generator struct {
	idx      *Index
	sig      *Signature
	sh       *StrongHasher
	weak     RollingSum
	script   *Script
	buf      []byte
	blockLen int

	drain  int
	wstart int
	cur    int
	filled int
}

func (g *generator) run(target io.Reader) error {
	for {
		if g.filled == len(g.buf) {
			g.compact()
		}
		n, err := target.Read(g.buf[g.filled:])
		g.filled += n
		if err != nil && err != io.EOF {
			return errors.Wrap(err, "failed reading target")
		}
		if rerr := g.consume(); rerr != nil {
			return rerr
		}
		if err == io.EOF {
			return g.finish()
		}
	}
}

// consume advances over all unprocessed bytes, probing after every step that
// leaves the window spanning a full block.
func (g *generator) consume() error {
	for g.cur < g.filled {
		if size := g.cur - g.wstart; size < g.blockLen {
			k := g.blockLen - size
			if avail := g.filled - g.cur; k > avail {
				k = avail
			}
			g.weak.Update(g.buf[g.cur : g.cur+k])
			g.cur += k
			if g.cur-g.wstart < g.blockLen {
				continue
			}
		} else {
			if err := g.weak.Roll(g.buf[g.wstart], g.buf[g.cur]); err != nil {
				return errors.Wrap(err, "failed sliding checksum window")
			}
			g.wstart++
			g.cur++
		}
		g.probe()
	}
	return nil
}

// probe tests the current full window against the index. A match flushes the
// pending literal, emits the copy and restarts the window right behind it.
func (g *generator) probe() {
	ord, ok := g.idx.FindMatch(g.weak.Sum32(), g.buf[g.wstart:g.cur], g.sh)
	if !ok {
		return
	}
	g.script.pushLiteral(g.buf[g.drain:g.wstart])
	g.script.pushCopy(&g.sig.Blocks[ord])
	g.drain, g.wstart = g.cur, g.cur
	g.weak.Reset()
}

// compact flushes the pending literal and moves the window to the front of
// the buffer, freeing space for the next read. The pending literal never
// exceeds maxLiteral by the time the buffer fills, so ops stay bounded.
func (g *generator) compact() {
	g.script.pushLiteral(g.buf[g.drain:g.wstart])
	n := copy(g.buf, g.buf[g.wstart:g.filled])
	g.cur -= g.wstart
	g.filled = n
	g.drain, g.wstart = 0, 0
}

// finish handles the bytes left once the target is exhausted. A final short
// window has never been probed, and its rolling sum equals a fresh sum over
// the same bytes, so it gets the one probe that lets a short final basis
// block match. A full window here has already been probed after its last
// slide, so everything drains as literals.
func (g *generator) finish() error {
	if size := g.cur - g.wstart; size > 0 && size < g.blockLen {
		ord, ok := g.idx.FindMatch(g.weak.Sum32(), g.buf[g.wstart:g.cur], g.sh)
		if ok {
			g.script.pushLiteral(g.buf[g.drain:g.wstart])
			g.script.pushCopy(&g.sig.Blocks[ord])
			return nil
		}
	}
	for p := g.buf[g.drain:g.cur]; len(p) > 0; {
		n := len(p)
		if n > maxLiteral {
			n = maxLiteral
		}
		g.script.pushLiteral(p[:n])
		p = p[n:]
	}
	return nil
}
