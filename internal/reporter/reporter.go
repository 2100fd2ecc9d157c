// Package reporter renders detection reports: a colored console summary
// and a JSON results file. Richer output formats live outside this tool.
package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Serdar715/xssprobe/internal/config"

	"github.com/fatih/color"
)

// Reporter writes job reports per the report options.
type Reporter struct {
	opts config.ReportOptions
}

// New creates a reporter.
func New(opts config.ReportOptions) *Reporter {
	return &Reporter{opts: opts}
}

// Save writes the report file and returns its path. An empty output
// dir suppresses the file entirely.
func (r *Reporter) Save(report *config.DetectReport) (string, error) {
	if r.opts.OutputDir == "" {
		return "", nil
	}
	name := r.opts.Filename
	if name == "" {
		name = fmt.Sprintf("xssprobe-%s.json", time.Now().Format("20060102-150405"))
	}
	if err := os.MkdirAll(r.opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("cannot create output directory: %w", err)
	}
	path := filepath.Join(r.opts.OutputDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// PrintSummary writes the human-readable result summary to the console.
func PrintSummary(report *config.DetectReport) {
	fmt.Println()
	if len(report.Results) == 0 {
		color.Green("[✓] No XSS found on %s (%d payloads tested)", report.TargetURL, report.Tested)
		return
	}

	color.Red("[!] Found %d XSS result(s) on %s", len(report.Results), report.TargetURL)
	for i, res := range report.Results {
		kind := "reflected"
		if res.Executed {
			kind = "executed"
		}
		cached := ""
		if res.FromCache {
			cached = " (cached)"
		}
		color.Red("  %d. [%s]%s %s", i+1, kind, cached, res.Payload)
		if res.Evidence != "" {
			color.White("     evidence: %s", res.Evidence)
		}
	}
	if len(report.Errors) > 0 {
		color.Yellow("[!] %d payload(s) errored during testing", len(report.Errors))
	}
}
