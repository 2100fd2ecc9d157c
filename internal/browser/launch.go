package browser

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// launchArgs trims the chromium resource footprint: no sandbox, no GPU,
// no extensions, no background networking or sync, muted audio.
var launchArgs = []string{
	"--disable-gpu",
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-extensions",
	"--disable-translate",
	"--disable-background-networking",
	"--disable-sync",
	"--disable-default-apps",
	"--disable-accelerated-2d-canvas",
	"--no-zygote",
	"--no-first-run",
	"--mute-audio",
	"--hide-scrollbars",
	"--js-flags=--max-old-space-size=512",
}

// launchEnv caps the JS heap for the driver process.
var launchEnv = map[string]string{
	"NODE_OPTIONS": "--max-old-space-size=512",
}

// BrowserType resolves an engine id to its Playwright browser type.
func BrowserType(pw *playwright.Playwright, id string) (playwright.BrowserType, error) {
	switch id {
	case "chromium", "":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	}
	return nil, fmt.Errorf("unknown browser: %s", id)
}

// LaunchOptions returns the default launch options for an engine.
// The chromium flag set is meaningless to firefox/webkit, which only
// get the headless and env settings.
func LaunchOptions(id string, headless bool) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Env:      launchEnv,
	}
	if id == "chromium" || id == "" {
		opts.Args = launchArgs
	}
	return opts
}

// ContextOptions returns the default browser-context options.
func ContextOptions() playwright.BrowserNewContextOptions {
	return playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  1280,
			Height: 720,
		},
	}
}
