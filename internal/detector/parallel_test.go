package detector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Serdar715/xssprobe/internal/browser"
	"github.com/Serdar715/xssprobe/internal/config"
)

func makeJobs(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = Job{
			URL:          fmt.Sprintf("http://example.com/%d", i),
			InputLocator: "input[name=q]",
			Options:      config.Default(),
		}
	}
	return jobs
}

func TestParallelBatchBarrier(t *testing.T) {
	d := &Detector{Sessions: browser.NewManager(t.TempDir())}
	jobs := makeJobs(5)

	var mu sync.Mutex
	var inFlight, maxInFlight int
	var order []string

	run := func(ctx context.Context, job Job) (*config.DetectReport, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		order = append(order, job.URL)
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return &config.DetectReport{TargetURL: job.URL}, nil
	}

	outcomes := d.detectParallel(context.Background(), jobs, ParallelOptions{Concurrency: 2}, run)
	if len(outcomes) != 5 {
		t.Fatalf("outcomes = %d, want 5", len(outcomes))
	}
	if maxInFlight > 2 {
		t.Errorf("max in-flight = %d, concurrency cap is 2", maxInFlight)
	}
	for i, o := range outcomes {
		if o.Report == nil || o.Report.TargetURL != jobs[i].URL {
			t.Errorf("outcome %d out of order: %+v", i, o.Report)
		}
	}

	// Batches are contiguous: jobs 0-1 start before 2-3, which start
	// before 4.
	pos := map[string]int{}
	for i, u := range order {
		pos[u] = i
	}
	if pos[jobs[4].URL] < pos[jobs[0].URL] || pos[jobs[4].URL] < pos[jobs[1].URL] {
		t.Errorf("later batch started before earlier batch settled: %v", order)
	}
}

func TestParallelStopOnFirstVulnerability(t *testing.T) {
	d := &Detector{Sessions: browser.NewManager(t.TempDir())}
	jobs := makeJobs(6)

	var executed int64
	run := func(ctx context.Context, job Job) (*config.DetectReport, error) {
		atomic.AddInt64(&executed, 1)
		report := &config.DetectReport{TargetURL: job.URL}
		if job.URL == jobs[1].URL {
			report.Results = []config.TestResult{{Payload: "<script>alert(1)</script>", Reflected: true}}
		}
		return report, nil
	}

	outcomes := d.detectParallel(context.Background(), jobs, ParallelOptions{
		Concurrency: 2,
		StopOnFirst: true,
	}, run)

	// Batch one (jobs 0,1) runs; job 1 finds a vulnerability; batches
	// two and three are skipped.
	if got := atomic.LoadInt64(&executed); got != 2 {
		t.Errorf("executed %d jobs, want 2", got)
	}
	for i := 2; i < 6; i++ {
		if outcomes[i].Err == nil {
			t.Errorf("job %d should have been skipped", i)
		}
	}
}

func TestParallelJobErrorsIsolated(t *testing.T) {
	d := &Detector{Sessions: browser.NewManager(t.TempDir())}
	jobs := makeJobs(3)

	run := func(ctx context.Context, job Job) (*config.DetectReport, error) {
		if job.URL == jobs[1].URL {
			return nil, fmt.Errorf("browser crashed")
		}
		return &config.DetectReport{TargetURL: job.URL}, nil
	}

	outcomes := d.detectParallel(context.Background(), jobs, ParallelOptions{Concurrency: 3}, run)
	if outcomes[1].Err == nil {
		t.Error("failing job should surface its error")
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Error("one job's failure must not poison its batch")
	}
}

func TestParallelShareSessionAdoptsOneName(t *testing.T) {
	d := &Detector{Sessions: browser.NewManager(t.TempDir())}
	jobs := makeJobs(3)

	names := map[string]bool{}
	var mu sync.Mutex
	run := func(ctx context.Context, job Job) (*config.DetectReport, error) {
		mu.Lock()
		names[job.Options.Session.ID] = true
		mu.Unlock()
		if job.Options.Session.CloseAfter {
			return nil, fmt.Errorf("shared session must not close between jobs")
		}
		return &config.DetectReport{TargetURL: job.URL}, nil
	}

	d.detectParallel(context.Background(), jobs, ParallelOptions{
		Concurrency:  2,
		ShareSession: true,
	}, run)

	if len(names) != 1 {
		t.Errorf("jobs used %d session names, want exactly one: %v", len(names), names)
	}
	for name := range names {
		if name == "" {
			t.Error("shared session name must be non-empty")
		}
	}
}
