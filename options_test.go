// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hooklift/assert"
)

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equals(t, DefaultProtocol, o.Protocol)
	assert.Equals(t, MD5, o.Family)
	assert.Equals(t, uint32(DefaultStrongLen), o.StrongLen)

	old := Options{Protocol: 29}.withDefaults()
	assert.Equals(t, MD4, old.Family)

	keep := Options{Protocol: 29, Family: BLAKE3, StrongLen: 8}.withDefaults()
	assert.Equals(t, BLAKE3, keep.Family)
	assert.Equals(t, uint32(8), keep.StrongLen)
}

func TestOptionsValidate(t *testing.T) {
	assert.Ok(t, Options{}.Validate())
	assert.Ok(t, Options{Family: XXH64}.Validate())
	assert.Cond(t, Options{Family: "crc99"}.Validate() != nil, "unknown family should not validate")
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocksync.yml")
	doc := "block_len: 2048\nfamily: blake3\nseed: 7\n"
	assert.Ok(t, os.WriteFile(path, []byte(doc), 0640))

	o, err := LoadOptions(path)
	assert.Ok(t, err)
	assert.Equals(t, uint32(2048), o.BlockLen)
	assert.Equals(t, BLAKE3, o.Family)
	assert.Equals(t, uint32(7), o.Seed)
	assert.Equals(t, DefaultProtocol, o.Protocol)
	assert.Equals(t, uint32(DefaultStrongLen), o.StrongLen)
}

func TestLoadOptionsErrors(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Cond(t, err != nil, "missing file should fail")

	path := filepath.Join(t.TempDir(), "bad.yml")
	assert.Ok(t, os.WriteFile(path, []byte("family: crc99\n"), 0640))
	_, err = LoadOptions(path)
	assert.Cond(t, err != nil, "unknown family should fail")

	assert.Ok(t, os.WriteFile(path, []byte("{{\n"), 0640))
	_, err = LoadOptions(path)
	assert.Cond(t, err != nil, "malformed yaml should fail")
}
