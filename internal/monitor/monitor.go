// Package monitor holds the in-page instrumentation that proves payload
// execution. The agent is injected as an init script before every
// document load; it writes a state object on window whose shape is the
// contract between the page and the host. The host reads it with short
// evaluate calls, never by re-parsing the script.
package monitor

import (
	"encoding/json"
	"fmt"

	"github.com/Serdar715/xssprobe/internal/browser"
)

// stateKey is the window property holding the agent's state bag.
const stateKey = "__xssprobe_monitor"

// promptSentinel is what the wrapped prompt() returns to the page.
const promptSentinel = "xssprobe"

// AgentSource is the instrumentation installed into every frame.
//
// It records dialog calls, suspicious console use, DOM mutations that
// inject scripts or dangerous event handlers, network egress and CSP
// violations. Original implementations are still invoked so page
// behavior stays observable.
const AgentSource = `
(() => {
  if (window.` + stateKey + `) return;
  const state = {
    executed: false,
    dialogs: [],
    consoleCalls: [],
    scriptInjections: [],
    handlerInjections: [],
    networkCalls: [],
    errors: [],
    cspViolations: []
  };
  window.` + stateKey + ` = state;

  const stack = () => { try { throw new Error(); } catch (e) { return e.stack || ''; } };

  const origAlert = window.alert;
  window.alert = function (msg) {
    state.dialogs.push({ type: 'alert', message: String(msg), time: performance.now(), stack: stack() });
    state.executed = true;
    try { return origAlert.call(window, msg); } catch (e) { return undefined; }
  };
  const origConfirm = window.confirm;
  window.confirm = function (msg) {
    state.dialogs.push({ type: 'confirm', message: String(msg), time: performance.now(), stack: stack() });
    state.executed = true;
    try { origConfirm.call(window, msg); } catch (e) {}
    return true;
  };
  const origPrompt = window.prompt;
  window.prompt = function (msg, def) {
    state.dialogs.push({ type: 'prompt', message: String(msg), time: performance.now(), stack: stack() });
    state.executed = true;
    try { origPrompt.call(window, msg, def); } catch (e) {}
    return '` + promptSentinel + `';
  };

  const origLog = console.log;
  console.log = function (...args) {
    const text = args.map(a => { try { return String(a); } catch (e) { return ''; } }).join(' ').toLowerCase();
    if (text.includes('xss') || text.includes('alert') || text.includes('script')) {
      state.consoleCalls.push({ message: text, time: performance.now() });
      state.executed = true;
    }
    return origLog.apply(console, args);
  };

  const dangerous = ['onload', 'onerror', 'onclick', 'onmouseover', 'onfocus', 'onblur'];
  const inspect = (node) => {
    if (!node || node.nodeType !== 1) return;
    if (node.tagName === 'SCRIPT') {
      state.scriptInjections.push({ content: node.textContent || '', src: node.src || '', time: performance.now() });
      state.executed = true;
    }
    for (const attr of dangerous) {
      if (node.hasAttribute && node.hasAttribute(attr)) {
        state.handlerInjections.push({ tag: node.tagName, attribute: attr, value: node.getAttribute(attr), time: performance.now() });
        state.executed = true;
      }
    }
  };
  const start = () => {
    const observer = new MutationObserver((mutations) => {
      for (const m of mutations) {
        for (const added of m.addedNodes) {
          inspect(added);
          if (added.querySelectorAll) added.querySelectorAll('*').forEach(inspect);
        }
        if (m.type === 'attributes') inspect(m.target);
      }
    });
    observer.observe(document.documentElement, {
      childList: true,
      subtree: true,
      attributes: true,
      attributeFilter: dangerous.concat(['src', 'href'])
    });
  };
  if (document.documentElement) start();
  else document.addEventListener('DOMContentLoaded', start);

  const origFetch = window.fetch;
  window.fetch = function (input, init) {
    const url = typeof input === 'string' ? input : (input && input.url) || '';
    state.networkCalls.push({ url: url, method: (init && init.method) || 'GET', time: performance.now() });
    if (url && url !== 'about:blank') state.executed = true;
    return origFetch.apply(window, arguments);
  };
  const origOpen = XMLHttpRequest.prototype.open;
  XMLHttpRequest.prototype.open = function (method, url) {
    state.networkCalls.push({ url: String(url), method: String(method), time: performance.now() });
    return origOpen.apply(this, arguments);
  };

  window.addEventListener('error', (e) => {
    state.errors.push({ message: e.message, file: e.filename, line: e.lineno, col: e.colno, stack: e.error && e.error.stack || '' });
  });
  window.addEventListener('securitypolicyviolation', (e) => {
    state.cspViolations.push({ directive: e.violatedDirective, blockedURI: e.blockedURI, time: performance.now() });
  });
})();
`

// DialogRecord is one captured alert/confirm/prompt invocation.
type DialogRecord struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Time    float64 `json:"time"`
	Stack   string  `json:"stack"`
}

// ConsoleRecord is a console.log call that matched the suspicion heuristic.
type ConsoleRecord struct {
	Message string  `json:"message"`
	Time    float64 `json:"time"`
}

// ScriptInjection is a <script> element added after load.
type ScriptInjection struct {
	Content string  `json:"content"`
	Src     string  `json:"src"`
	Time    float64 `json:"time"`
}

// HandlerInjection is an element added bearing a dangerous event handler.
type HandlerInjection struct {
	Tag       string  `json:"tag"`
	Attribute string  `json:"attribute"`
	Value     string  `json:"value"`
	Time      float64 `json:"time"`
}

// NetworkCall is a fetch or XHR issued by the page.
type NetworkCall struct {
	URL    string  `json:"url"`
	Method string  `json:"method"`
	Time   float64 `json:"time"`
}

// ErrorRecord is an uncaught runtime error.
type ErrorRecord struct {
	Message string `json:"message"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Stack   string `json:"stack"`
}

// CSPViolation is a securitypolicyviolation event.
type CSPViolation struct {
	Directive  string  `json:"directive"`
	BlockedURI string  `json:"blockedURI"`
	Time       float64 `json:"time"`
}

// State is the agent's state bag as read back from the page.
type State struct {
	Executed          bool               `json:"executed"`
	Dialogs           []DialogRecord     `json:"dialogs"`
	ConsoleCalls      []ConsoleRecord    `json:"consoleCalls"`
	ScriptInjections  []ScriptInjection  `json:"scriptInjections"`
	HandlerInjections []HandlerInjection `json:"handlerInjections"`
	NetworkCalls      []NetworkCall      `json:"networkCalls"`
	Errors            []ErrorRecord      `json:"errors"`
	CSPViolations     []CSPViolation     `json:"cspViolations"`
}

// Verdict reports whether the state bag proves execution: any dialog,
// suspicious console call, script injection or handler injection.
func (s *State) Verdict() bool {
	if s == nil {
		return false
	}
	return len(s.Dialogs) > 0 || len(s.ConsoleCalls) > 0 ||
		len(s.ScriptInjections) > 0 || len(s.HandlerInjections) > 0
}

// Methods names the detection methods that fired, for reporting.
func (s *State) Methods() []string {
	if s == nil {
		return nil
	}
	var out []string
	if len(s.Dialogs) > 0 {
		out = append(out, "dialog")
	}
	if len(s.ConsoleCalls) > 0 {
		out = append(out, "console")
	}
	if len(s.ScriptInjections) > 0 {
		out = append(out, "script-injection")
	}
	if len(s.HandlerInjections) > 0 {
		out = append(out, "event-handler-injection")
	}
	if len(s.NetworkCalls) > 0 {
		out = append(out, "network")
	}
	if len(s.CSPViolations) > 0 {
		out = append(out, "csp-violation")
	}
	return out
}

// Install registers the agent to run before every document load.
func Install(page browser.Page) error {
	if err := page.AddInitScript(AgentSource); err != nil {
		return fmt.Errorf("failed to install monitor agent: %w", err)
	}
	return nil
}

// ResetFlag clears the simple executed flag between payloads. The
// recorded lists that Verdict reads are left in place; they start empty
// only when a new document load creates a fresh state bag.
func ResetFlag(page browser.Page) error {
	_, err := page.Evaluate(`() => { if (window.` + stateKey + `) window.` + stateKey + `.executed = false; }`)
	return err
}

// ReadState evaluates the state bag out of the page. A page without the
// agent (navigated before install, or about:blank) yields an empty state.
func ReadState(page browser.Page) (*State, error) {
	raw, err := page.Evaluate(`() => JSON.stringify(window.` + stateKey + ` || null)`)
	if err != nil {
		return nil, fmt.Errorf("failed to read monitor state: %w", err)
	}
	text, ok := raw.(string)
	if !ok || text == "null" || text == "" {
		return &State{}, nil
	}
	var state State
	if err := json.Unmarshal([]byte(text), &state); err != nil {
		return nil, fmt.Errorf("malformed monitor state: %w", err)
	}
	return &state, nil
}

// Severity levels attached to HTTP-API findings.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
	SeverityNone   = "none"
)

// Assess maps the observed evidence onto a severity and confidence.
// Direct execution evidence (dialogs, console, network egress)
// dominates DOM-mutation evidence, which dominates bare reflection.
// Confidence is the max across methods, clamped to [0,1].
func Assess(state *State, reflected bool) (severity string, confidence float64) {
	severity = SeverityNone
	switch {
	case state != nil && (len(state.Dialogs) > 0 || len(state.ConsoleCalls) > 0 || len(state.NetworkCalls) > 0):
		severity = SeverityHigh
		confidence = 0.9
		if len(state.Dialogs) > 0 {
			confidence = 0.95
		}
	case state != nil && (len(state.ScriptInjections) > 0 || len(state.HandlerInjections) > 0):
		severity = SeverityMedium
		confidence = 0.8
	case reflected:
		severity = SeverityLow
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return severity, confidence
}
