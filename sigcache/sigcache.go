// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package sigcache persists basis signatures between transfers, so resumed
// or repeated syncs skip re-reading unchanged bases. Records are keyed by
// basis identity and stored lzma-compressed in badger. A record that cannot
// be read back is treated as a miss, never as a failure, since the caller
// can always rebuild the signature from the basis itself.
package sigcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/ulikunitz/xz/lzma"

	"github.com/blocksync/blocksync"
)

// magic versions the record encoding. Bump it when the layout changes and
// old records become misses.
const magic = "BSC1"

// Config selects where the cache lives.
type Config struct {
	// Path is the badger directory. Empty keeps the store in memory.
	Path string
	// Log receives cache activity. The zero value is silent.
	Log zerolog.Logger
}

// Store is a signature cache backed by badger. It is safe for concurrent
// use.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens or creates the cache.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed opening signature cache")
	}
	return &Store{db: db, log: cfg.Log}, nil
}

// Key derives the cache key of a basis from its path, size and modification
// time. Any change to the basis changes the key, so stale signatures are
// never returned for a rewritten file.
func Key(path string, size int64, mtime time.Time) []byte {
	return []byte(fmt.Sprintf("%s|%d|%d", path, size, mtime.UnixNano()))
}

// Put stores the signature under key, replacing any previous record.
func (s *Store) Put(key []byte, sig *blocksync.Signature) error {
	if err := sig.EnsureValid(); err != nil {
		return err
	}
	payload, err := compress(encode(sig))
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
	if err != nil {
		return errors.Wrap(err, "failed storing signature")
	}
	s.log.Debug().
		Str("key", string(key)).
		Int("blocks", len(sig.Blocks)).
		Int("bytes", len(payload)).
		Msg("signature cached")
	return nil
}

// Get loads the signature stored under key. A missing, corrupt or
// version-mismatched record returns (nil, nil).
func (s *Store) Get(key []byte) (*blocksync.Signature, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed loading signature")
	}
	data, err := decompress(payload)
	if err != nil {
		return s.miss(key, err)
	}
	sig, err := decode(data)
	if err != nil {
		return s.miss(key, err)
	}
	if err := sig.EnsureValid(); err != nil {
		return s.miss(key, err)
	}
	return sig, nil
}

// Delete drops the record stored under key, if any.
func (s *Store) Delete(key []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	return errors.Wrap(err, "failed deleting signature")
}

// Close releases the underlying store.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "failed closing signature cache")
}

func (s *Store) miss(key []byte, err error) (*blocksync.Signature, error) {
	s.log.Debug().
		Str("key", string(key)).
		Err(err).
		Msg("discarding unreadable cache record")
	return nil, nil
}

// encode flattens sig into the cache record: magic, block length, layout
// strong length, seed, family, file length, block count, stored strong
// length, then weak and strong checksums per block. Offsets and lengths are
// derivable, so they are not stored.
func encode(sig *blocksync.Signature) []byte {
	strongLen := 0
	if len(sig.Blocks) > 0 {
		strongLen = len(sig.Blocks[0].Strong)
	}
	buf := make([]byte, 0, 32+len(sig.Family)+len(sig.Blocks)*(4+strongLen))
	buf = append(buf, magic...)
	buf = binary.LittleEndian.AppendUint32(buf, sig.Layout.BlockLen)
	buf = append(buf, byte(sig.Layout.StrongLen))
	buf = binary.LittleEndian.AppendUint32(buf, sig.Seed)
	buf = append(buf, byte(len(sig.Family)))
	buf = append(buf, string(sig.Family)...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(sig.FileLen))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sig.Blocks)))
	buf = append(buf, byte(strongLen))
	for i := range sig.Blocks {
		b := &sig.Blocks[i]
		buf = binary.LittleEndian.AppendUint32(buf, b.Weak)
		buf = append(buf, b.Strong...)
	}
	return buf
}

func decode(data []byte) (*blocksync.Signature, error) {
	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return nil, errors.New("sigcache: bad record magic")
	}
	data = data[len(magic):]
	if len(data) < 10 {
		return nil, errors.New("sigcache: short record header")
	}
	blockLen := binary.LittleEndian.Uint32(data[0:4])
	layoutStrong := uint32(data[4])
	seed := binary.LittleEndian.Uint32(data[5:9])
	famLen := int(data[9])
	data = data[10:]
	if len(data) < famLen+13 {
		return nil, errors.New("sigcache: short record header")
	}
	family := blocksync.Family(data[:famLen])
	fileLen := int64(binary.LittleEndian.Uint64(data[famLen : famLen+8]))
	count := int64(binary.LittleEndian.Uint32(data[famLen+8 : famLen+12]))
	strongLen := int64(data[famLen+12])
	data = data[famLen+13:]
	if blockLen == 0 {
		return nil, errors.New("sigcache: zero block length")
	}
	if need := count * (4 + strongLen); int64(len(data)) != need {
		return nil, errors.Errorf("sigcache: record carries %d block bytes, want %d", len(data), need)
	}
	sig := &blocksync.Signature{
		Layout:  blocksync.Layout{BlockLen: blockLen, StrongLen: layoutStrong},
		Family:  family,
		Seed:    seed,
		FileLen: fileLen,
	}
	if count > 0 {
		sig.Blocks = make([]blocksync.Block, int(count))
	}
	var offset int64
	for i := range sig.Blocks {
		strong := make([]byte, strongLen)
		copy(strong, data[4:4+strongLen])
		length := int64(blockLen)
		if rest := fileLen - offset; rest < length {
			length = rest
		}
		sig.Blocks[i] = blocksync.Block{
			Index:  int32(i),
			Offset: offset,
			Len:    int32(length),
			Weak:   binary.LittleEndian.Uint32(data[0:4]),
			Strong: strong,
		}
		offset += length
		data = data[4+strongLen:]
	}
	return sig, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating lzma writer")
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed compressing record")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "failed compressing record")
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed creating lzma reader")
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed decompressing record")
	}
	return out, nil
}
