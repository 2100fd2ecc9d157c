// Package config holds the detection option registry and its on-disk
// persistence under the user's home directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TimeoutOptions holds the per-operation timeout knobs in milliseconds.
type TimeoutOptions struct {
	Navigation float64 `json:"navigation"`
	Action     float64 `json:"action"`
	WaitFor    float64 `json:"waitFor"`
	Execution  float64 `json:"execution"`
	Global     float64 `json:"global"`
}

// RetryOptions configures the retry policy applied at browser I/O sites.
type RetryOptions struct {
	Enabled            bool     `json:"enabled"`
	MaxAttempts        int      `json:"maxAttempts"`
	Delay              float64  `json:"delay"` // base delay in ms
	ExponentialBackoff bool     `json:"exponentialBackoff"`
	Operations         []string `json:"operations"` // subset of navigation, submission, input
}

// AuthOptions is the declarative login recipe.
type AuthOptions struct {
	URL              string `json:"url"`
	UsernameSelector string `json:"usernameSelector"`
	PasswordSelector string `json:"passwordSelector"`
	SubmitSelector   string `json:"submitSelector"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	IsLoggedInCheck  string `json:"isLoggedInCheck,omitempty"` // JS expression evaluated in-page
}

// SessionOptions controls named browser session reuse.
type SessionOptions struct {
	ID         string `json:"id"`
	Reuse      bool   `json:"reuse"`
	Save       bool   `json:"save"`
	CloseAfter bool   `json:"closeAfter"`
}

// CacheOptions controls test-result memoization.
type CacheOptions struct {
	Enabled bool    `json:"enabled"`
	MaxAge  float64 `json:"maxAge"` // ms, 0 = forever
	Verbose bool    `json:"verbose"`
}

// EffectivenessOptions controls payload success tracking and ranking.
type EffectivenessOptions struct {
	Track                bool `json:"track"`
	UseEffectivePayloads bool `json:"useEffectivePayloads"`
	Limit                int  `json:"limit"`
}

// SmartSelectionOptions controls context-aware payload selection.
type SmartSelectionOptions struct {
	Enabled bool `json:"enabled"`
	Limit   int  `json:"limit"`
}

// ReportOptions is passed opaquely to the external reporter.
type ReportOptions struct {
	Format    string `json:"format"`
	OutputDir string `json:"outputDir"`
	Filename  string `json:"filename,omitempty"`
}

// LoggingOptions controls the progress stream.
type LoggingOptions struct {
	Verbose                bool `json:"verbose"`
	ShowProgress           bool `json:"showProgress"`
	ProgressUpdateInterval int  `json:"progressUpdateInterval"`
}

// Options is the full detection option registry.
type Options struct {
	Browser          string                `json:"browser"` // chromium, firefox, webkit
	SubmitSelector   string                `json:"submitSelector,omitempty"`
	VerifyExecution  bool                  `json:"verifyExecution"`
	RequireExecution bool                  `json:"requireExecution"`
	Timeouts         TimeoutOptions        `json:"timeouts"`
	Retry            RetryOptions          `json:"retry"`
	Auth             *AuthOptions          `json:"auth,omitempty"`
	Session          SessionOptions        `json:"session"`
	Cache            CacheOptions          `json:"cache"`
	Effectiveness    EffectivenessOptions  `json:"effectiveness"`
	SmartSelection   SmartSelectionOptions `json:"smartPayloadSelection"`
	Report           ReportOptions         `json:"report"`
	Logging          LoggingOptions        `json:"logging"`
}

// Browsers lists the supported engine identifiers.
var Browsers = []string{"chromium", "firefox", "webkit"}

// ValidBrowser reports whether id names a supported engine.
func ValidBrowser(id string) bool {
	for _, b := range Browsers {
		if b == id {
			return true
		}
	}
	return false
}

// Default returns the built-in option defaults.
func Default() *Options {
	return &Options{
		Browser:         "chromium",
		VerifyExecution: true,
		Timeouts: TimeoutOptions{
			Navigation: 30000,
			Action:     10000,
			WaitFor:    5000,
			Execution:  2000,
			Global:     300000,
		},
		Retry: RetryOptions{
			Enabled:            true,
			MaxAttempts:        3,
			Delay:              500,
			ExponentialBackoff: true,
			Operations:         []string{"navigation", "submission", "input"},
		},
		Cache: CacheOptions{
			Enabled: true,
			MaxAge:  3600000,
		},
		Effectiveness: EffectivenessOptions{
			Track: true,
			Limit: 20,
		},
		SmartSelection: SmartSelectionOptions{
			Enabled: true,
			Limit:   25,
		},
		Report: ReportOptions{
			Format:    "json",
			OutputDir: ".",
		},
		Logging: LoggingOptions{
			ShowProgress:           true,
			ProgressUpdateInterval: 5,
		},
	}
}

// Dir returns the per-user state directory, creating it if missing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".xssprobe")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("cannot create state directory: %w", err)
	}
	return dir, nil
}

// Path returns the persisted config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the persisted options, falling back to defaults when the
// file does not exist yet.
func Load() (*Options, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads options from an explicit path.
func LoadFrom(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	opts := Default()
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return opts, nil
}

// Save persists the options to the default location.
func Save(opts *Options) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(path, opts)
}

// SaveTo persists the options to an explicit path. Per-run report
// filenames carry timestamps and are stripped before persisting.
func SaveTo(path string, opts *Options) error {
	persisted := *opts
	persisted.Report.Filename = ""
	data, err := json.MarshalIndent(&persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Merge overlays the provided options onto the persisted base.
// Provided wins field by field. Zero values of the browser, timeouts,
// retry attempts/delay/operations, auth, limits, report format and
// directory, and progress interval fall back to base; booleans,
// selectors, session and cache settings are taken from provided as-is.
func Merge(base, provided *Options) *Options {
	if provided == nil {
		out := *base
		return &out
	}
	out := *provided
	if out.Browser == "" {
		out.Browser = base.Browser
	}
	if out.Timeouts.Navigation == 0 {
		out.Timeouts.Navigation = base.Timeouts.Navigation
	}
	if out.Timeouts.Action == 0 {
		out.Timeouts.Action = base.Timeouts.Action
	}
	if out.Timeouts.WaitFor == 0 {
		out.Timeouts.WaitFor = base.Timeouts.WaitFor
	}
	if out.Timeouts.Execution == 0 {
		out.Timeouts.Execution = base.Timeouts.Execution
	}
	if out.Timeouts.Global == 0 {
		out.Timeouts.Global = base.Timeouts.Global
	}
	if out.Retry.MaxAttempts == 0 {
		out.Retry.MaxAttempts = base.Retry.MaxAttempts
	}
	if out.Retry.Delay == 0 {
		out.Retry.Delay = base.Retry.Delay
	}
	if len(out.Retry.Operations) == 0 {
		out.Retry.Operations = base.Retry.Operations
	}
	if out.Auth == nil {
		out.Auth = base.Auth
	}
	if out.Effectiveness.Limit == 0 {
		out.Effectiveness.Limit = base.Effectiveness.Limit
	}
	if out.SmartSelection.Limit == 0 {
		out.SmartSelection.Limit = base.SmartSelection.Limit
	}
	if out.Report.Format == "" {
		out.Report.Format = base.Report.Format
	}
	if out.Report.OutputDir == "" {
		out.Report.OutputDir = base.Report.OutputDir
	}
	if out.Logging.ProgressUpdateInterval == 0 {
		out.Logging.ProgressUpdateInterval = base.Logging.ProgressUpdateInterval
	}
	return &out
}
