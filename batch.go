// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blocksync

import (
	"context"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// sequentialThreshold is the job count below which jobs run one after
// another on the caller's goroutine instead of fanning out.
const sequentialThreshold = 4

// Job is one delta generation unit: a target stream matched against an
// indexed basis. The index may be nil for basis-less targets and may be
// shared between jobs, since indexes are read-only.
type Job struct {
	Name   string
	Index  *Index
	Target io.Reader
}

// Result is the outcome of one job. Exactly one of Script and Err is set.
type Result struct {
	ID      string
	Name    string
	Script  *Script
	Err     error
	Elapsed time.Duration
}

// Stats aggregates a batch of results.
type Stats struct {
	Jobs         int
	Failed       int
	TotalBytes   int64
	LiteralBytes int64
	// Elapsed is the summed per-job generation time, not wall time.
	Elapsed time.Duration
}

// MatchRatio reports the fraction of all target bytes reproduced from basis
// blocks across the batch.
func (s Stats) MatchRatio() float64 {
	if s.TotalBytes == 0 {
		return 0
	}
	return float64(s.TotalBytes-s.LiteralBytes) / float64(s.TotalBytes)
}

// Summarize folds results into aggregate stats. Failed jobs count toward
// Jobs and Failed but contribute no bytes.
func Summarize(results []Result) Stats {
	var stats Stats
	for i := range results {
		r := &results[i]
		stats.Jobs++
		stats.Elapsed += r.Elapsed
		if r.Err != nil {
			stats.Failed++
			continue
		}
		stats.TotalBytes += r.Script.TotalBytes
		stats.LiteralBytes += r.Script.LiteralBytes
	}
	return stats
}

// Pipeline runs independent delta jobs, concurrently once there are enough
// of them to be worth the fan-out.
type Pipeline struct {
	workers int
	log     zerolog.Logger
}

// NewPipeline returns a pipeline running at most workers jobs at once. A
// non-positive count means one worker per CPU.
func NewPipeline(workers int) *Pipeline {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Pipeline{workers: workers, log: zerolog.Nop()}
}

// WithLogger makes the pipeline log per-job progress and a batch summary.
func (p *Pipeline) WithLogger(log zerolog.Logger) *Pipeline {
	p.log = log
	return p
}

// Run executes all jobs and returns their results in job order. Per-job
// failures land in the corresponding Result; Run itself fails only when ctx
// is cancelled before all jobs have been dispatched.
func (p *Pipeline) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	start := time.Now()
	results := make([]Result, len(jobs))

	if len(jobs) < sequentialThreshold {
		for i := range jobs {
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "failed running delta jobs")
			default:
			}
			results[i] = p.runJob(&jobs[i])
		}
		p.logSummary(results, time.Since(start))
		return results, nil
	}

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	jobc := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobc {
				results[i] = p.runJob(&jobs[i])
			}
		}()
	}
feed:
	for i := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case jobc <- i:
		}
	}
	close(jobc)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "failed running delta jobs")
	}
	p.logSummary(results, time.Since(start))
	return results, nil
}

func (p *Pipeline) runJob(job *Job) Result {
	r := Result{ID: uuid.NewString(), Name: job.Name}
	start := time.Now()
	r.Script, r.Err = Delta(job.Index, job.Target)
	r.Elapsed = time.Since(start)
	if r.Err != nil {
		p.log.Error().Str("job", r.ID).Str("name", r.Name).Err(r.Err).Msg("delta failed")
		return r
	}
	p.log.Debug().
		Str("job", r.ID).
		Str("name", r.Name).
		Int("ops", len(r.Script.Ops)).
		Float64("match_ratio", r.Script.MatchRatio()).
		Dur("elapsed", r.Elapsed).
		Msg("delta generated")
	return r
}

func (p *Pipeline) logSummary(results []Result, wall time.Duration) {
	stats := Summarize(results)
	p.log.Info().
		Int("jobs", stats.Jobs).
		Int("failed", stats.Failed).
		Int64("bytes", stats.TotalBytes).
		Int64("literal_bytes", stats.LiteralBytes).
		Float64("match_ratio", stats.MatchRatio()).
		Dur("elapsed", wall).
		Msg("delta batch done")
}
