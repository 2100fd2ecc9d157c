package config

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	opts := Default()
	opts.Browser = "firefox"
	opts.Timeouts.Navigation = 12345
	opts.Session.ID = "audit"
	opts.Report.Filename = "report-20240101-120000.json"

	if err := SaveTo(path, opts); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if loaded.Browser != "firefox" {
		t.Errorf("Browser = %s", loaded.Browser)
	}
	if loaded.Timeouts.Navigation != 12345 {
		t.Errorf("Navigation = %v", loaded.Timeouts.Navigation)
	}
	if loaded.Session.ID != "audit" {
		t.Errorf("Session.ID = %s", loaded.Session.ID)
	}
	if loaded.Report.Filename != "" {
		t.Error("per-run report filenames must not be persisted")
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	opts, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if opts.Browser != "chromium" {
		t.Errorf("default browser = %s", opts.Browser)
	}
}

func TestMergeProvidedWins(t *testing.T) {
	base := Default()
	base.Browser = "webkit"
	base.Timeouts.Navigation = 11111
	base.SmartSelection.Limit = 40

	provided := &Options{
		Browser:         "firefox",
		VerifyExecution: true,
	}

	merged := Merge(base, provided)
	if merged.Browser != "firefox" {
		t.Errorf("provided browser should win, got %s", merged.Browser)
	}
	if merged.Timeouts.Navigation != 11111 {
		t.Errorf("unset timeout should fall back to base, got %v", merged.Timeouts.Navigation)
	}
	if merged.SmartSelection.Limit != 40 {
		t.Errorf("unset limit should fall back to base, got %d", merged.SmartSelection.Limit)
	}
}

func TestMergeNilProvided(t *testing.T) {
	base := Default()
	base.Browser = "webkit"
	merged := Merge(base, nil)
	if merged.Browser != "webkit" {
		t.Errorf("nil provided should clone the base, got %s", merged.Browser)
	}
	merged.Browser = "firefox"
	if base.Browser != "webkit" {
		t.Error("merge must not alias the base")
	}
}

func TestValidBrowser(t *testing.T) {
	for _, b := range Browsers {
		if !ValidBrowser(b) {
			t.Errorf("%s should be valid", b)
		}
	}
	for _, b := range []string{"opera", "", "Chromium"} {
		if ValidBrowser(b) {
			t.Errorf("%q should be invalid", b)
		}
	}
}
