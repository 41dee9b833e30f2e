// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Options selects how signatures are built. The zero value means rsync
// defaults: derived block length, protocol 31, md5, seed 0.
type Options struct {
	// BlockLen overrides the derived block length when non-zero.
	BlockLen uint32 `yaml:"block_len"`
	// StrongLen is the minimum strong-checksum truncation in bytes.
	StrongLen uint32 `yaml:"strong_len"`
	// Protocol is the rsync protocol version to stay compatible with.
	Protocol int `yaml:"protocol"`
	// Family picks the strong-checksum algorithm.
	Family Family `yaml:"family"`
	// Seed whitens strong checksums. Both ends must agree on it.
	Seed uint32 `yaml:"seed"`
}

// withDefaults fills unset fields with the protocol defaults.
func (o Options) withDefaults() Options {
	if o.Protocol == 0 {
		o.Protocol = DefaultProtocol
	}
	if o.Family == "" {
		o.Family = DefaultFamily(o.Protocol)
	}
	if o.StrongLen == 0 {
		o.StrongLen = DefaultStrongLen
	}
	return o
}

// Validate reports whether the options name a usable checksum family.
func (o Options) Validate() error {
	if _, err := o.withDefaults().Family.New(); err != nil {
		return err
	}
	return nil
}

// LoadOptions reads options from a YAML file and fills in defaults.
func LoadOptions(path string) (Options, error) {
	var o Options
	data, err := os.ReadFile(path)
	if err != nil {
		return o, errors.Wrapf(err, "failed reading options file %s", path)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, errors.Wrapf(err, "failed parsing options file %s", path)
	}
	o = o.withDefaults()
	if err := o.Validate(); err != nil {
		return o, err
	}
	return o, nil
}
