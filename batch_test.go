// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/hooklift/assert"
	"github.com/pkg/errors"
)

func TestPipelineRun(t *testing.T) {
	basis := srand(210, 1<<20)
	sig, x := buildIndex(t, basis, Options{})

	// One shared read-only index serves every job.
	targets := [][]byte{
		basis,
		append([]byte("hdr:"), basis...),
		mutate(basis, 4096),
		cut(basis, 1000, 500),
		srand(211, 1<<18),
		nil,
	}
	jobs := make([]Job, len(targets))
	for i, target := range targets {
		jobs[i] = Job{Name: fmt.Sprintf("file-%d", i), Index: x, Target: bytes.NewReader(target)}
	}

	results, err := NewPipeline(4).Run(context.Background(), jobs)
	assert.Ok(t, err)
	assert.Equals(t, len(jobs), len(results))

	seen := make(map[string]bool)
	var total int64
	for i := range results {
		r := &results[i]
		assert.Equals(t, fmt.Sprintf("file-%d", i), r.Name)
		assert.Ok(t, r.Err)
		assert.Cond(t, r.ID != "", "result %d should carry a job id", i)
		assert.Cond(t, !seen[r.ID], "job ids should be unique")
		seen[r.ID] = true

		out, err := ApplyBytes(basis, sig, r.Script)
		assert.Ok(t, err)
		assert.Cond(t, bytes.Equal(targets[i], out), "job %d rebuilt file differs", i)
		total += int64(len(targets[i]))
	}

	stats := Summarize(results)
	assert.Equals(t, len(jobs), stats.Jobs)
	assert.Equals(t, 0, stats.Failed)
	assert.Equals(t, total, stats.TotalBytes)
	assert.Cond(t, stats.MatchRatio() > 0.5, "most bytes should come from the basis")
}

func TestPipelineSmallBatchRunsSequentially(t *testing.T) {
	basis := srand(220, 1<<18)
	sig, x := buildIndex(t, basis, Options{})

	jobs := []Job{
		{Name: "same", Index: x, Target: bytes.NewReader(basis)},
		{Name: "fresh", Index: x, Target: bytes.NewReader(srand(221, 1<<16))},
	}
	results, err := NewPipeline(8).Run(context.Background(), jobs)
	assert.Ok(t, err)
	assert.Equals(t, 2, len(results))
	assert.Equals(t, "same", results[0].Name)
	assert.Equals(t, "fresh", results[1].Name)

	for i := range results {
		assert.Ok(t, results[i].Err)
		out, err := ApplyBytes(basis, sig, results[i].Script)
		assert.Ok(t, err)
		assert.Cond(t, out != nil || results[i].Script.TotalBytes == 0, "job %d produced no output", i)
	}
	assert.Equals(t, int64(0), results[0].Script.LiteralBytes)
}

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = Job{Name: fmt.Sprintf("file-%d", i), Target: bytes.NewReader(srand(230, 1024))}
	}

	results, err := NewPipeline(2).Run(ctx, jobs)
	assert.Cond(t, err != nil, "cancelled context should fail the run")
	assert.Equals(t, context.Canceled, errors.Cause(err))
	assert.Cond(t, results == nil, "no results on cancellation")

	// The sequential path honors cancellation too.
	results, err = NewPipeline(2).Run(ctx, jobs[:2])
	assert.Cond(t, err != nil, "cancelled context should fail the sequential run")
	assert.Cond(t, results == nil, "no results on cancellation")
}

func TestPipelineJobFailure(t *testing.T) {
	basis := srand(240, 1<<16)
	_, x := buildIndex(t, basis, Options{})
	boom := errors.New("disk gone")

	jobs := []Job{
		{Name: "ok-0", Index: x, Target: bytes.NewReader(basis)},
		{Name: "ok-1", Index: x, Target: bytes.NewReader(basis)},
		{Name: "bad", Index: x, Target: &failReader{err: boom}},
		{Name: "ok-2", Index: x, Target: bytes.NewReader(basis)},
	}
	results, err := NewPipeline(2).Run(context.Background(), jobs)
	assert.Ok(t, err)

	assert.Cond(t, results[2].Err != nil, "failing job should report its error")
	assert.Equals(t, boom, errors.Cause(results[2].Err))
	assert.Cond(t, results[2].Script == nil, "failing job should carry no script")
	for _, i := range []int{0, 1, 3} {
		assert.Ok(t, results[i].Err)
	}

	stats := Summarize(results)
	assert.Equals(t, 4, stats.Jobs)
	assert.Equals(t, 1, stats.Failed)
}

func TestStats(t *testing.T) {
	results := []Result{
		{Script: &Script{TotalBytes: 800, LiteralBytes: 200}},
		{Script: &Script{TotalBytes: 200}},
		{Err: errors.New("boom")},
	}

	stats := Summarize(results)
	assert.Equals(t, 3, stats.Jobs)
	assert.Equals(t, 1, stats.Failed)
	assert.Equals(t, int64(1000), stats.TotalBytes)
	assert.Equals(t, int64(200), stats.LiteralBytes)
	assert.Equals(t, 0.8, stats.MatchRatio())

	assert.Equals(t, 0.0, Stats{}.MatchRatio())
}
