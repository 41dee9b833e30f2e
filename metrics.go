// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindCopy    = "copy"
	kindLiteral = "literal"
)

// Counters are recorded once per completed pass, never inside per-byte
// loops.
var (
	signatureBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blocksync_signature_blocks_total",
		Help: "Basis blocks checksummed into signatures.",
	})

	deltaOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blocksync_delta_ops_total",
		Help: "Script ops produced by delta generation, by kind.",
	}, []string{"kind"})

	deltaBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blocksync_delta_bytes_total",
		Help: "Target bytes covered by generated scripts, by kind.",
	}, []string{"kind"})

	appliedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blocksync_applied_bytes_total",
		Help: "Bytes written while applying scripts.",
	})
)

func recordDelta(s *Script) {
	deltaOps.WithLabelValues(kindCopy).Add(float64(s.Copies()))
	deltaOps.WithLabelValues(kindLiteral).Add(float64(s.Literals()))
	deltaBytes.WithLabelValues(kindCopy).Add(float64(s.TotalBytes - s.LiteralBytes))
	deltaBytes.WithLabelValues(kindLiteral).Add(float64(s.LiteralBytes))
}

func recordApply(s *Script) {
	appliedBytes.Add(float64(s.TotalBytes))
}
