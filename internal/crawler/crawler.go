// Package crawler discovers injectable form inputs on a page. Its only
// contract with the detection engine is the Target it emits: a URL, an
// input selector and an optional submit selector.
package crawler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Target is one discovered injection point.
type Target struct {
	URL            string `json:"url"`
	Selector       string `json:"selector"`
	SubmitSelector string `json:"submitSelector,omitempty"`
}

// Crawler fetches pages and extracts form inputs.
type Crawler struct {
	client *http.Client
}

// New creates a crawler with a bounded request timeout.
func New(timeout time.Duration) *Crawler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Crawler{
		client: &http.Client{Timeout: timeout},
	}
}

// Discover fetches the page and returns a target for every text-like
// input that has a name or id, inside a form or standalone. Inputs with
// neither are skipped.
func (c *Crawler) Discover(pageURL string) ([]Target, error) {
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid crawl URL: %s", pageURL)
	}

	resp, err := c.client.Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	var targets []Target
	seen := make(map[string]bool)

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		action := form.AttrOr("action", "")
		formURL := resolve(base, action)

		submitSel := ""
		if submit := form.Find(`button[type="submit"], input[type="submit"]`).First(); submit.Length() > 0 {
			submitSel = elementSelector(submit)
			if submitSel == "" {
				// Unnamed submit controls fall back to a type selector.
				submitSel = fmt.Sprintf(`%s[type="submit"]`, goquery.NodeName(submit))
			}
		}

		form.Find("input, textarea").Each(func(_ int, input *goquery.Selection) {
			if !injectable(input) {
				return
			}
			sel := elementSelector(input)
			if sel == "" {
				return
			}
			key := formURL + "|" + sel
			if seen[key] {
				return
			}
			seen[key] = true
			targets = append(targets, Target{
				URL:            formURL,
				Selector:       sel,
				SubmitSelector: submitSel,
			})
		})
	})

	// Inputs outside any form can still feed DOM sinks.
	doc.Find("input, textarea").Each(func(_ int, input *goquery.Selection) {
		if input.ParentsFiltered("form").Length() > 0 || !injectable(input) {
			return
		}
		sel := elementSelector(input)
		if sel == "" {
			return
		}
		key := pageURL + "|" + sel
		if seen[key] {
			return
		}
		seen[key] = true
		targets = append(targets, Target{URL: pageURL, Selector: sel})
	})

	return targets, nil
}

// injectable filters out inputs that cannot carry a payload.
func injectable(sel *goquery.Selection) bool {
	if goquery.NodeName(sel) == "textarea" {
		return true
	}
	switch strings.ToLower(sel.AttrOr("type", "text")) {
	case "text", "search", "url", "email", "tel", "":
		return true
	}
	return false
}

// elementSelector builds a CSS selector for an input, preferring name
// over id over nothing.
func elementSelector(sel *goquery.Selection) string {
	tag := goquery.NodeName(sel)
	if name, ok := sel.Attr("name"); ok && name != "" {
		return fmt.Sprintf(`%s[name="%s"]`, tag, name)
	}
	if id, ok := sel.Attr("id"); ok && id != "" {
		return "#" + id
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return base.String()
	}
	u, err := url.Parse(ref)
	if err != nil {
		return base.String()
	}
	return base.ResolveReference(u).String()
}
