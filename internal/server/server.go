// Package server exposes the HTTP submission endpoint used by
// third-party integrators (notably the Burp extension): callers POST a
// captured HTTP response plus the payload they injected, and the engine
// renders it in a real browser to verify execution.
package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Serdar715/xssprobe/internal/browser"
	"github.com/Serdar715/xssprobe/internal/config"
	"github.com/Serdar715/xssprobe/internal/monitor"

	"github.com/fatih/color"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// SubmitRequest is the POST / body. Byte fields are base64-encoded.
type SubmitRequest struct {
	HTTPResponse string          `json:"http-response"`
	HTTPURL      string          `json:"http-url"`
	HTTPHeaders  string          `json:"http-headers"`
	Payload      string          `json:"payload"`
	Browser      string          `json:"browser"`
	Options      json.RawMessage `json:"options,omitempty"`
}

// Enhanced is the detailed verdict attached to every response.
type Enhanced struct {
	Detected         bool                   `json:"detected"`
	Executed         bool                   `json:"executed"`
	Severity         string                 `json:"severity"`
	Confidence       float64                `json:"confidence"`
	Messages         []string               `json:"messages"`
	DetectionMethods []string               `json:"detectionMethods"`
	Context          map[string]interface{} `json:"context"`
	Timing           map[string]interface{} `json:"timing"`
	Metadata         map[string]interface{} `json:"metadata"`
}

// SubmitResponse is the POST / reply.
type SubmitResponse struct {
	Value      int       `json:"value"` // 1 = XSS found, 0 = clean
	Msg        string    `json:"msg"`
	Enhanced   *Enhanced `json:"enhanced,omitempty"`
	RetryAfter int       `json:"retryAfter,omitempty"`
}

// Server is the submission endpoint.
type Server struct {
	sessions *browser.Manager
	opts     *config.Options

	maxConcurrent int
	active        int64
	startedAt     time.Time

	// fixed-window per-client rate limiting
	rateLimit  int
	rateWindow time.Duration
	rateMu     sync.Mutex
	rateCounts map[string]*rateEntry

	// metrics counters
	totalRequests int64
	foundCount    int64
	cleanCount    int64
	errorCount    int64
	rejectedCount int64
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

// New builds a server around the shared session manager.
func New(sessions *browser.Manager, opts *config.Options, maxConcurrentPages, requestsPerMinute int) *Server {
	if maxConcurrentPages <= 0 {
		maxConcurrentPages = 5
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &Server{
		sessions:      sessions,
		opts:          opts,
		maxConcurrent: maxConcurrentPages,
		startedAt:     time.Now(),
		rateLimit:     requestsPerMinute,
		rateWindow:    time.Minute,
		rateCounts:    make(map[string]*rateEntry),
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSubmit)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

// ListenAndServe runs the endpoint until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	color.Cyan("[*] Submission endpoint listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Msg: "POST required"})
		return
	}
	atomic.AddInt64(&s.totalRequests, 1)

	if retryAfter, limited := s.rateLimited(clientKey(r)); limited {
		atomic.AddInt64(&s.rejectedCount, 1)
		writeJSON(w, http.StatusTooManyRequests, SubmitResponse{
			Msg:        "rate limit exceeded",
			RetryAfter: retryAfter,
		})
		return
	}

	if atomic.LoadInt64(&s.active) >= int64(s.maxConcurrent) {
		atomic.AddInt64(&s.rejectedCount, 1)
		writeJSON(w, http.StatusServiceUnavailable, SubmitResponse{Msg: "capacity exceeded"})
		return
	}
	atomic.AddInt64(&s.active, 1)
	defer atomic.AddInt64(&s.active, -1)

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Msg: "malformed JSON body"})
		return
	}

	body, err := base64.StdEncoding.DecodeString(req.HTTPResponse)
	if err != nil || len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Msg: "http-response must be non-empty base64"})
		return
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil || len(payload) == 0 {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Msg: "payload must be non-empty base64"})
		return
	}
	pageURL := ""
	if req.HTTPURL != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.HTTPURL)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, SubmitResponse{Msg: "http-url must be base64"})
			return
		}
		pageURL = string(decoded)
	}
	engine := req.Browser
	if engine == "" {
		engine = s.opts.Browser
	}
	if !config.ValidBrowser(engine) {
		writeJSON(w, http.StatusBadRequest, SubmitResponse{Msg: fmt.Sprintf("unknown browser: %s", engine)})
		return
	}

	started := time.Now()
	enhanced, err := s.verify(engine, string(body), string(payload))
	if err != nil {
		atomic.AddInt64(&s.errorCount, 1)
		writeJSON(w, http.StatusInternalServerError, SubmitResponse{Msg: err.Error()})
		return
	}
	enhanced.Timing = map[string]interface{}{
		"totalMs": time.Since(started).Milliseconds(),
	}
	enhanced.Metadata = map[string]interface{}{
		"browser": engine,
		"url":     pageURL,
		"version": Version,
	}

	if enhanced.Detected || enhanced.Executed {
		atomic.AddInt64(&s.foundCount, 1)
		writeJSON(w, http.StatusOK, SubmitResponse{Value: 1, Msg: "XSS found", Enhanced: enhanced})
		return
	}
	atomic.AddInt64(&s.cleanCount, 1)
	writeJSON(w, http.StatusCreated, SubmitResponse{Value: 0, Msg: "no XSS detected", Enhanced: enhanced})
}

// verify renders the captured response body in a monitored page and
// reads the execution evidence back out.
func (s *Server) verify(engine, body, payload string) (*Enhanced, error) {
	b, bctx, raw, err := s.sessions.NewEphemeral(engine, true)
	if err != nil {
		return nil, fmt.Errorf("browser unavailable: %w", err)
	}
	defer func() {
		raw.Close()
		bctx.Close()
		b.Close()
	}()

	page := browser.WrapPage(raw)
	page.OnDialog(nil)
	if err := monitor.Install(page); err != nil {
		return nil, err
	}
	if err := page.SetContent(body); err != nil {
		return nil, fmt.Errorf("failed to render response: %w", err)
	}

	wait := time.Duration(s.opts.Timeouts.Execution) * time.Millisecond
	if wait <= 0 {
		wait = 2 * time.Second
	}
	time.Sleep(wait)

	state, err := monitor.ReadState(page)
	if err != nil {
		return nil, err
	}

	reflected := strings.Contains(body, payload)
	severity, confidence := monitor.Assess(state, reflected)

	var messages []string
	for _, d := range state.Dialogs {
		messages = append(messages, d.Message)
	}
	return &Enhanced{
		Detected:         reflected || state.Verdict(),
		Executed:         state.Verdict(),
		Severity:         severity,
		Confidence:       confidence,
		Messages:         messages,
		DetectionMethods: state.Methods(),
		Context: map[string]interface{}{
			"reflected": reflected,
		},
	}, nil
}

func (s *Server) rateLimited(client string) (retryAfter int, limited bool) {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()
	now := time.Now()
	entry, ok := s.rateCounts[client]
	if !ok || now.After(entry.resetAt) {
		s.rateCounts[client] = &rateEntry{count: 1, resetAt: now.Add(s.rateWindow)}
		return 0, false
	}
	entry.count++
	if entry.count > s.rateLimit {
		return int(time.Until(entry.resetAt).Seconds()) + 1, true
	}
	return 0, false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	total := atomic.LoadInt64(&s.totalRequests)
	found := atomic.LoadInt64(&s.foundCount)
	clean := atomic.LoadInt64(&s.cleanCount)
	successRate := 0.0
	if total > 0 {
		successRate = float64(found+clean) / float64(total)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"version":            Version,
		"uptime":             time.Since(s.startedAt).String(),
		"memory":             map[string]interface{}{"allocBytes": mem.Alloc, "sysBytes": mem.Sys},
		"activeRequests":     atomic.LoadInt64(&s.active),
		"maxConcurrentPages": s.maxConcurrent,
		"availableBrowsers":  config.Browsers,
		"metrics": map[string]interface{}{
			"successRate":   successRate,
			"totalRequests": total,
		},
		"browserPool": map[string]interface{}{
			"sessions": s.sessions.ListSessions(),
		},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalRequests": atomic.LoadInt64(&s.totalRequests),
		"found":         atomic.LoadInt64(&s.foundCount),
		"clean":         atomic.LoadInt64(&s.cleanCount),
		"errors":        atomic.LoadInt64(&s.errorCount),
		"rejected":      atomic.LoadInt64(&s.rejectedCount),
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
