package detector

import (
	"context"
	"fmt"
	"sync"

	"github.com/Serdar715/xssprobe/internal/config"

	"github.com/fatih/color"
)

// ParallelOptions tunes the fan-out scheduler.
type ParallelOptions struct {
	Concurrency  int
	StopOnFirst  bool
	ShareSession bool
}

// JobOutcome pairs one job with its report or error.
type JobOutcome struct {
	Job    Job
	Report *config.DetectReport
	Err    error
}

// runFunc lets tests substitute the per-job execution.
type runFunc func(ctx context.Context, job Job) (*config.DetectReport, error)

// sharedSessionName is the synthetic session adopted by all jobs of a
// share-session run.
const sharedSessionName = "parallel-shared"

// DetectParallel fans the jobs out in contiguous batches of size
// Concurrency. A batch fully settles before the next starts. With
// StopOnFirst, a batch containing a finding lets its in-flight jobs
// complete but skips all subsequent batches. With ShareSession, every
// job adopts one synthetic session which is closed after the last batch.
func (d *Detector) DetectParallel(ctx context.Context, jobs []Job, popts ParallelOptions) []JobOutcome {
	return d.detectParallel(ctx, jobs, popts, d.DetectXSS)
}

func (d *Detector) detectParallel(ctx context.Context, jobs []Job, popts ParallelOptions, run runFunc) []JobOutcome {
	concurrency := popts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	if popts.ShareSession {
		for i := range jobs {
			opts := jobs[i].Options
			if opts == nil {
				opts = config.Default()
				jobs[i].Options = opts
			}
			opts.Session.ID = sharedSessionName
			opts.Session.CloseAfter = false
		}
		defer d.Sessions.CloseSession(sharedSessionName)
	}

	outcomes := make([]JobOutcome, len(jobs))
	stopped := false

	for start := 0; start < len(jobs); start += concurrency {
		if stopped {
			for i := start; i < len(jobs); i++ {
				outcomes[i] = JobOutcome{Job: jobs[i], Err: fmt.Errorf("skipped: earlier batch found a vulnerability")}
			}
			break
		}

		end := start + concurrency
		if end > len(jobs) {
			end = len(jobs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				report, err := run(ctx, jobs[i])
				outcomes[i] = JobOutcome{Job: jobs[i], Report: report, Err: err}
			}(i)
		}
		wg.Wait()

		if popts.StopOnFirst {
			for i := start; i < end; i++ {
				if outcomes[i].Report != nil && len(outcomes[i].Report.Results) > 0 {
					stopped = true
					color.Yellow("[!] Vulnerability found; skipping remaining batches")
					break
				}
			}
		}
	}
	return outcomes
}
