// A deliberately vulnerable demo server. Each route reflects the q
// parameter into a different injection context so every analyzer
// branch can be exercised locally.
package main

import (
	"fmt"
	"net/http"
)

func page(body string) string {
	return "<html><body>" + body + "</body></html>"
}

func main() {
	// HTML body context
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page(`<h1>Search</h1>
<form method="GET" action="/">
  <input type="text" name="q" value="">
  <button type="submit">Go</button>
</form>
<p>You searched for: `+q+`</p>`))
	})

	// Double-quoted attribute context
	http.HandleFunc("/attr", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page(`<form method="GET" action="/attr">
  <input type="text" name="q" value="`+q+`">
  <button type="submit">Go</button>
</form>`))
	})

	// Event-handler attribute context
	http.HandleFunc("/event", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page(`<form method="GET" action="/event">
  <input type="text" name="q" onchange="track('`+q+`')">
  <button type="submit">Go</button>
</form>`))
	})

	// Inline script context
	http.HandleFunc("/js", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page(`<form method="GET" action="/js">
  <input type="text" name="q">
  <button type="submit">Go</button>
</form>
<script>var term = '`+q+`';</script>`))
	})

	// URL attribute context
	http.HandleFunc("/link", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("redirect")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page(`<form method="GET" action="/link">
  <input type="text" name="redirect">
  <button type="submit">Go</button>
</form>
<a href="`+q+`">continue</a>`))
	})

	// CSS context
	http.HandleFunc("/style", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("theme")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page(`<form method="GET" action="/style">
  <input type="text" name="theme">
  <button type="submit">Go</button>
</form>
<style>body { color: `+q+`; }</style>`))
	})

	// ENTER submission is swallowed here; only form.submit() works.
	http.HandleFunc("/noenter", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page(`<form method="GET" action="/noenter" onkeydown="if(event.key==='Enter'){event.preventDefault();return false;}">
  <input type="text" name="q">
</form>
<p>Result: `+q+`</p>`))
	})

	fmt.Println("Vulnerable demo server running on http://127.0.0.1:8081")
	http.ListenAndServe(":8081", nil)
}
