package store

import (
	"testing"
	"time"
)

func TestFingerprintStability(t *testing.T) {
	opts := FingerprintOptions{Browser: "chromium", VerifyExecution: true, SubmitSelector: "#go"}

	a := Fingerprint("http://example.com/?q=", "input[name=q]", "<script>alert(1)</script>", opts)
	b := Fingerprint("http://example.com/?q=", "input[name=q]", "<script>alert(1)</script>", opts)
	if a != b {
		t.Errorf("same inputs produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("fingerprint should be md5 hex (32 chars), got %d", len(a))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := FingerprintOptions{Browser: "chromium", VerifyExecution: true}
	ref := Fingerprint("http://example.com", "input", "<b>x</b>", base)

	tests := []struct {
		name    string
		url     string
		locator string
		payload string
		opts    FingerprintOptions
	}{
		{"different URL", "http://example.org", "input", "<b>x</b>", base},
		{"different locator", "http://example.com", "textarea", "<b>x</b>", base},
		{"different payload", "http://example.com", "input", "<i>x</i>", base},
		{"different browser", "http://example.com", "input", "<b>x</b>", FingerprintOptions{Browser: "webkit", VerifyExecution: true}},
		{"different verify flag", "http://example.com", "input", "<b>x</b>", FingerprintOptions{Browser: "chromium"}},
		{"different submit selector", "http://example.com", "input", "<b>x</b>", FingerprintOptions{Browser: "chromium", VerifyExecution: true, SubmitSelector: "#s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fingerprint(tt.url, tt.locator, tt.payload, tt.opts)
			if got == ref {
				t.Errorf("fingerprint did not change")
			}
		})
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	fp := Fingerprint("http://example.com", "input", "<b>x</b>", FingerprintOptions{Browser: "chromium"})
	want := CachedResult{Detected: true, Executed: false, CapturedAt: time.Now().Truncate(time.Millisecond)}

	if cache.Exists(fp, 0) {
		t.Error("Exists() should be false before Put")
	}
	if err := cache.Put(fp, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !cache.Exists(fp, 0) {
		t.Error("Exists() should be true after Put")
	}

	got := cache.Get(fp)
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Detected != want.Detected || got.Executed != want.Executed {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
	if !got.CapturedAt.Equal(want.CapturedAt) {
		t.Errorf("CapturedAt = %v, want %v", got.CapturedAt, want.CapturedAt)
	}
}

func TestCacheExpiry(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	fp := "0123456789abcdef0123456789abcdef"
	old := CachedResult{Detected: true, CapturedAt: time.Now().Add(-2 * time.Hour)}
	if err := cache.Put(fp, old); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if !cache.Exists(fp, 0) {
		t.Error("maxAge 0 should mean entries never expire")
	}
	if cache.Exists(fp, time.Hour) {
		t.Error("entry older than maxAge should be expired")
	}
	// Pruned on read: even unbounded lookups no longer see it.
	if cache.Exists(fp, 0) {
		t.Error("expired entry should be removed, not just hidden")
	}
}

func TestCacheClearAndStats(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	fps := []string{"a1", "b2", "c3"}
	for _, fp := range fps {
		if err := cache.Put(fp, CachedResult{Detected: true, CapturedAt: time.Now()}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != 3 {
		t.Errorf("Count = %d, want 3", stats.Count)
	}
	if stats.TotalBytes <= 0 || stats.AverageBytes <= 0 {
		t.Errorf("byte stats should be positive: %+v", stats)
	}

	if err := cache.Clear("a1"); err != nil {
		t.Fatalf("Clear(a1): %v", err)
	}
	if cache.Exists("a1", 0) {
		t.Error("cleared fingerprint should be gone")
	}
	if !cache.Exists("b2", 0) {
		t.Error("other fingerprints should survive a selective clear")
	}

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear(): %v", err)
	}
	stats, _ = cache.Stats()
	if stats.Count != 0 {
		t.Errorf("Count after full clear = %d, want 0", stats.Count)
	}
}
