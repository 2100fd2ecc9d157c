// Package browser manages Playwright engines, named sessions and page
// pooling for the detection pipeline.
package browser

import (
	"github.com/playwright-community/playwright-go"
)

// Page is the capability set the detection pipeline needs from a
// browser page. Keeping it narrow isolates the engine and lets tests
// substitute fakes.
type Page interface {
	Goto(url string, timeoutMs float64) error
	Fill(selector, value string, timeoutMs float64) error
	Click(selector string, timeoutMs float64) error
	Press(selector, key string, timeoutMs float64) error
	Evaluate(expression string, args ...interface{}) (interface{}, error)
	Content() (string, error)
	AddInitScript(source string) error
	WaitForLoadState(state string, timeoutMs float64) error
	SetContent(html string) error
	// OnDialog registers a handler for native dialogs; the dialog is
	// accepted after the handler runs so the page never blocks on it.
	OnDialog(handler func(message string))
	IsClosed() bool
	Close() error
}

// pwPage adapts a playwright.Page to the Page capability set.
type pwPage struct {
	page playwright.Page
}

// WrapPage exposes a playwright page through the capability interface.
func WrapPage(p playwright.Page) Page {
	return &pwPage{page: p}
}

func (p *pwPage) Goto(url string, timeoutMs float64) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(timeoutMs),
	})
	return err
}

func (p *pwPage) Fill(selector, value string, timeoutMs float64) error {
	return p.page.Fill(selector, value, playwright.PageFillOptions{
		Timeout: playwright.Float(timeoutMs),
	})
}

func (p *pwPage) Click(selector string, timeoutMs float64) error {
	return p.page.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(timeoutMs),
	})
}

func (p *pwPage) Press(selector, key string, timeoutMs float64) error {
	return p.page.Press(selector, key, playwright.PagePressOptions{
		Timeout: playwright.Float(timeoutMs),
	})
}

func (p *pwPage) Evaluate(expression string, args ...interface{}) (interface{}, error) {
	if len(args) > 0 {
		return p.page.Evaluate(expression, args[0])
	}
	return p.page.Evaluate(expression)
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) AddInitScript(source string) error {
	return p.page.AddInitScript(playwright.Script{Content: playwright.String(source)})
}

func (p *pwPage) WaitForLoadState(state string, timeoutMs float64) error {
	var s *playwright.LoadState
	switch state {
	case "networkidle":
		s = playwright.LoadStateNetworkidle
	case "load":
		s = playwright.LoadStateLoad
	default:
		s = playwright.LoadStateDomcontentloaded
	}
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   s,
		Timeout: playwright.Float(timeoutMs),
	})
}

func (p *pwPage) SetContent(html string) error {
	return p.page.SetContent(html)
}

func (p *pwPage) OnDialog(handler func(message string)) {
	p.page.On("dialog", func(dialog playwright.Dialog) {
		if handler != nil {
			handler(dialog.Message())
		}
		dialog.Accept()
	})
}

func (p *pwPage) IsClosed() bool {
	return p.page.IsClosed()
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

// Raw returns the underlying playwright page, for callers that need
// engine-level access (dialog handlers, storage state).
func (p *pwPage) Raw() playwright.Page {
	return p.page
}
