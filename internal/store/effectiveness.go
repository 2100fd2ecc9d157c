package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Counters are the success counters kept per payload and per browser.
type Counters struct {
	TotalTests     int `json:"total_tests"`
	ReflectedCount int `json:"reflected_count"`
	ExecutedCount  int `json:"executed_count"`
}

// EffectivenessRecord aggregates one payload's history.
type EffectivenessRecord struct {
	Counters
	LastTested time.Time            `json:"last_tested"`
	Browsers   map[string]*Counters `json:"browsers"`
}

// effectivenessDoc is the on-disk document shape.
type effectivenessDoc struct {
	Payloads map[string]*EffectivenessRecord `json:"payloads"`
	Metadata struct {
		LastUpdated time.Time `json:"last_updated"`
		TotalTests  int       `json:"total_tests"`
	} `json:"metadata"`
}

// ScoreResult is the derived view of a payload's effectiveness.
type ScoreResult struct {
	Payload         string  `json:"payload"`
	ReflectionScore float64 `json:"reflection_score"`
	ExecutionScore  float64 `json:"execution_score"`
	TotalTests      int     `json:"total_tests"`
}

// Effectiveness is the persistent payload success store. Updates are
// read-modify-write against the whole document under an exclusive
// lock; readers take snapshots for ranking without blocking recording.
type Effectiveness struct {
	path string
	mu   sync.Mutex
	doc  *effectivenessDoc
}

// NewEffectiveness opens the store at path, loading any existing
// document. The path is a constructor argument so deployments and
// tests choose their own location.
func NewEffectiveness(path string) (*Effectiveness, error) {
	e := &Effectiveness{
		path: path,
		doc:  &effectivenessDoc{Payloads: make(map[string]*EffectivenessRecord)},
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read effectiveness store: %w", err)
	}
	if err := json.Unmarshal(data, e.doc); err != nil {
		return nil, fmt.Errorf("corrupt effectiveness store: %w", err)
	}
	if e.doc.Payloads == nil {
		e.doc.Payloads = make(map[string]*EffectivenessRecord)
	}
	return e, nil
}

// Record increments counters for one observed test at both payload and
// per-browser scope, then flushes the document.
func (e *Effectiveness) Record(payload string, reflected, executed bool, browser string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.doc.Payloads[payload]
	if !ok {
		rec = &EffectivenessRecord{Browsers: make(map[string]*Counters)}
		e.doc.Payloads[payload] = rec
	}
	if rec.Browsers == nil {
		rec.Browsers = make(map[string]*Counters)
	}
	bc, ok := rec.Browsers[browser]
	if !ok {
		bc = &Counters{}
		rec.Browsers[browser] = bc
	}

	rec.TotalTests++
	bc.TotalTests++
	if reflected {
		rec.ReflectedCount++
		bc.ReflectedCount++
	}
	if executed {
		rec.ExecutedCount++
		bc.ExecutedCount++
	}
	rec.LastTested = time.Now()
	e.doc.Metadata.LastUpdated = rec.LastTested
	e.doc.Metadata.TotalTests++

	return e.flushLocked()
}

func (e *Effectiveness) flushLocked() error {
	data, err := json.MarshalIndent(e.doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(e.path, data, 0644)
}

func scores(c *Counters) (reflection, execution float64) {
	if c == nil || c.TotalTests == 0 {
		return 0, 0
	}
	return float64(c.ReflectedCount) / float64(c.TotalTests),
		float64(c.ExecutedCount) / float64(c.TotalTests)
}

// Score returns the derived scores for a payload. With a browser id the
// per-browser counters are used, otherwise the payload-wide ones.
func (e *Effectiveness) Score(payload, browser string) ScoreResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := ScoreResult{Payload: payload}
	rec, ok := e.doc.Payloads[payload]
	if !ok {
		return out
	}
	counters := &rec.Counters
	if browser != "" {
		counters = rec.Browsers[browser]
	}
	out.ReflectionScore, out.ExecutionScore = scores(counters)
	if counters != nil {
		out.TotalTests = counters.TotalTests
	}
	return out
}

// Scores returns just the derived score pair, satisfying the payload
// selector's Scorer interface.
func (e *Effectiveness) Scores(payload, browser string) (reflection, execution float64) {
	s := e.Score(payload, browser)
	return s.ReflectionScore, s.ExecutionScore
}

// TopK returns the highest-scoring payloads ordered by execution score
// then reflection score, descending.
func (e *Effectiveness) TopK(limit int, browser string) []ScoreResult {
	e.mu.Lock()
	snapshot := make([]ScoreResult, 0, len(e.doc.Payloads))
	for payload, rec := range e.doc.Payloads {
		counters := &rec.Counters
		if browser != "" {
			counters = rec.Browsers[browser]
		}
		if counters == nil || counters.TotalTests == 0 {
			continue
		}
		r, x := scores(counters)
		snapshot = append(snapshot, ScoreResult{
			Payload:         payload,
			ReflectionScore: r,
			ExecutionScore:  x,
			TotalTests:      counters.TotalTests,
		})
	}
	e.mu.Unlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		if snapshot[i].ExecutionScore != snapshot[j].ExecutionScore {
			return snapshot[i].ExecutionScore > snapshot[j].ExecutionScore
		}
		if snapshot[i].ReflectionScore != snapshot[j].ReflectionScore {
			return snapshot[i].ReflectionScore > snapshot[j].ReflectionScore
		}
		return snapshot[i].Payload < snapshot[j].Payload
	})
	if limit > 0 && len(snapshot) > limit {
		snapshot = snapshot[:limit]
	}
	return snapshot
}
