package detector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Serdar715/xssprobe/internal/analyzer"
	"github.com/Serdar715/xssprobe/internal/browser"
	"github.com/Serdar715/xssprobe/internal/config"
	"github.com/Serdar715/xssprobe/internal/monitor"
	"github.com/Serdar715/xssprobe/internal/payloads"
	"github.com/Serdar715/xssprobe/internal/store"

	"github.com/fatih/color"
)

// Job is one (target, locator, payloads, options) detection request.
type Job struct {
	URL          string
	InputLocator string
	// Payloads is an optional flat list; Categories an optional
	// categorized corpus. Both nil means the built-in bank.
	Payloads   []string
	Categories []payloads.Category
	Options    *config.Options
}

// Detector executes detection jobs against a browser session manager
// and the process-wide stores.
type Detector struct {
	Sessions      *browser.Manager
	Cache         *store.Cache
	Effectiveness *store.Effectiveness
	Bank          []payloads.Category

	// PersistOptions writes the merged options back to the user config
	// when set (the CLI sets it; library callers usually don't).
	PersistOptions bool

	// Progress overrides the default colored progress line when set.
	Progress func(done, total int, payload string)

	// Headless is forced on unless a caller flips it for debugging.
	Headful bool
}

// New builds a detector around the shared stores.
func New(sessions *browser.Manager, cache *store.Cache, effectiveness *store.Effectiveness) *Detector {
	return &Detector{
		Sessions:      sessions,
		Cache:         cache,
		Effectiveness: effectiveness,
		Bank:          payloads.DefaultBank(),
	}
}

// pageHandle abstracts the two acquisition modes: a pooled session
// page, or a one-shot browser/context/page chain.
type pageHandle struct {
	page     browser.Page
	acquired *browser.Acquired
	teardown func()
}

// DetectXSS runs one job and returns its report. Per-payload failures
// are recorded and skipped; only launch, initial navigation and
// monitor installation are fatal. On cancellation the partial result
// list is returned alongside the context error.
func (d *Detector) DetectXSS(ctx context.Context, job Job) (*config.DetectReport, error) {
	if err := validateJob(job); err != nil {
		return nil, err
	}

	persisted, err := config.Load()
	if err != nil {
		persisted = config.Default()
	}
	opts := config.Merge(persisted, job.Options)
	if opts.RequireExecution {
		opts.VerifyExecution = true
	}
	if d.PersistOptions {
		if err := config.Save(opts); err != nil && opts.Logging.Verbose {
			color.Yellow("[!] Could not persist config: %v", err)
		}
	}

	if opts.Timeouts.Global > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeouts.Global)*time.Millisecond)
		defer cancel()
	}

	report := &config.DetectReport{
		TargetURL:    job.URL,
		InputLocator: job.InputLocator,
		Browser:      opts.Browser,
		StartedAt:    time.Now(),
	}
	defer func() { report.FinishedAt = time.Now() }()

	handle, err := d.acquirePage(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}
	defer func() {
		d.finishSession(handle, opts)
		handle.teardown()
	}()

	page := handle.page
	page.OnDialog(nil)

	// Installed before any navigation so the agent is already in place
	// when the first document loads.
	if err := monitor.Install(page); err != nil {
		return report, fmt.Errorf("%w: %v", ErrMonitorInstall, err)
	}

	if opts.Auth != nil && opts.Auth.URL != "" {
		d.authenticate(ctx, page, opts)
	}

	retry := PolicyFrom(opts.Retry)
	navTimeout := opts.Timeouts.Navigation

	if err := retry.Do(ctx, OpNavigation, func() error {
		return page.Goto(job.URL, navTimeout)
	}); err != nil {
		return report, fmt.Errorf("%w: %s: %v", ErrNavigation, job.URL, err)
	}

	selected := d.choosePayloads(page, job, opts)
	if opts.Logging.Verbose {
		color.Cyan("[*] Selected %d payloads for %s", len(selected), opts.Browser)
	}

	baseline, _ := page.Content()

	for i, payload := range selected {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		result, testErr := d.testPayload(ctx, page, job, opts, retry, payload, i > 0, baseline)
		report.Tested++
		if testErr != nil {
			report.Errors = append(report.Errors, testErr.Error())
			if opts.Logging.Verbose {
				color.Yellow("  [!] %v", testErr)
			}
			// A dead page is replaced when a session can supply one;
			// otherwise the remaining payloads cannot be tested.
			if page.IsClosed() {
				fresh, refreshErr := d.refreshPage(handle, opts, job.URL)
				if refreshErr != nil {
					report.Errors = append(report.Errors, refreshErr.Error())
					break
				}
				page = fresh
			}
			continue
		}

		if result != nil {
			report.Results = append(report.Results, *result)
		}
		d.emitProgress(opts, report.Tested, len(selected), payload)
	}

	if opts.RequireExecution {
		report.Results = filterExecuted(report.Results)
	}
	return report, nil
}

func validateJob(job Job) error {
	u, err := url.Parse(job.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %s", ErrInvalidURL, job.URL)
	}
	if strings.TrimSpace(job.InputLocator) == "" {
		return ErrEmptyLocator
	}
	if job.Options != nil && job.Options.Browser != "" && !config.ValidBrowser(job.Options.Browser) {
		return fmt.Errorf("%w: %s", ErrUnknownBrowser, job.Options.Browser)
	}
	return nil
}

// acquirePage borrows a pooled page from the named session, or builds a
// one-shot browser + context + page.
func (d *Detector) acquirePage(opts *config.Options) (*pageHandle, error) {
	headless := !d.Headful
	if opts.Session.ID != "" {
		statePath := ""
		if opts.Session.Reuse {
			statePath = d.Sessions.StorageStatePath(opts.Session.ID)
		}
		acq, err := d.Sessions.GetSession(opts.Session.ID, opts.Browser, statePath, headless)
		if err != nil {
			return nil, err
		}
		return &pageHandle{
			page:     browser.WrapPage(acq.Page),
			acquired: acq,
			teardown: func() {},
		}, nil
	}

	b, bctx, page, err := d.Sessions.NewEphemeral(opts.Browser, headless)
	if err != nil {
		return nil, err
	}
	return &pageHandle{
		page: browser.WrapPage(page),
		teardown: func() {
			page.Close()
			bctx.Close()
			b.Close()
		},
	}, nil
}

// finishSession releases the page back to the pool and honors the
// session save/close options. Safe to call more than once.
func (d *Detector) finishSession(handle *pageHandle, opts *config.Options) {
	if handle.acquired == nil {
		return
	}
	handle.acquired.Release()
	if opts.Session.Save {
		if _, err := d.Sessions.SaveStorageState(opts.Session.ID, handle.acquired.Session.Context); err != nil && opts.Logging.Verbose {
			color.Yellow("[!] Could not save session state: %v", err)
		}
	}
	if opts.Session.CloseAfter {
		d.Sessions.CloseSession(opts.Session.ID)
	}
	handle.acquired = nil
}

// refreshPage replaces a dead page from the session pool and restores
// the monitor and target navigation on it.
func (d *Detector) refreshPage(handle *pageHandle, opts *config.Options, targetURL string) (browser.Page, error) {
	if handle.acquired == nil {
		return nil, fmt.Errorf("page lost and no session to replace it")
	}
	acq, err := d.Sessions.GetSession(opts.Session.ID, opts.Browser, "", !d.Headful)
	if err != nil {
		return nil, fmt.Errorf("could not replace page: %w", err)
	}
	handle.acquired = acq
	page := browser.WrapPage(acq.Page)
	page.OnDialog(nil)
	if err := monitor.Install(page); err != nil {
		return nil, err
	}
	if err := page.Goto(targetURL, opts.Timeouts.Navigation); err != nil {
		return nil, fmt.Errorf("could not replace page: %w", err)
	}
	return page, nil
}

// authenticate runs the declarative login recipe. Failure is logged and
// never fatal; the job continues unauthenticated.
func (d *Detector) authenticate(ctx context.Context, page browser.Page, opts *config.Options) {
	auth := opts.Auth
	actionTimeout := opts.Timeouts.Action

	fail := func(step string, err error) {
		color.Yellow("[!] Authentication %s failed, continuing unauthenticated: %v", step, err)
	}

	if err := page.Goto(auth.URL, opts.Timeouts.Navigation); err != nil {
		fail("navigation", err)
		return
	}
	if err := page.Fill(auth.UsernameSelector, auth.Username, actionTimeout); err != nil {
		fail("username fill", err)
		return
	}
	if err := page.Fill(auth.PasswordSelector, auth.Password, actionTimeout); err != nil {
		fail("password fill", err)
		return
	}
	if err := page.Click(auth.SubmitSelector, actionTimeout); err != nil {
		fail("submit", err)
		return
	}
	// Settling is best-effort; login pages that keep sockets open would
	// otherwise stall the whole job.
	_ = page.WaitForLoadState("networkidle", opts.Timeouts.WaitFor)

	if auth.IsLoggedInCheck != "" {
		res, err := page.Evaluate(auth.IsLoggedInCheck)
		if err != nil {
			fail("probe", err)
			return
		}
		if ok, isBool := res.(bool); isBool && !ok {
			color.Yellow("[!] Login probe returned false, continuing unauthenticated")
			return
		}
	}
	if opts.Logging.Verbose {
		color.Green("[✓] Authenticated")
	}
}

// choosePayloads applies the selection precedence: smart selection,
// then effectiveness ranking, then caller categories, then a caller
// flat list, then the built-in default set.
func (d *Detector) choosePayloads(page browser.Page, job Job, opts *config.Options) []string {
	bank := d.Bank
	if len(bank) == 0 {
		bank = payloads.DefaultBank()
	}

	if opts.SmartSelection.Enabled {
		ctxResult := analyzer.Analyze(page, job.URL, job.InputLocator)
		sel := payloads.Selection{
			Context:          ctxResult.Context,
			AttributeKind:    ctxResult.AttributeKind,
			Browser:          opts.Browser,
			Limit:            opts.SmartSelection.Limit,
			Custom:           job.Payloads,
			CustomCategories: job.Categories,
		}
		if opts.Effectiveness.UseEffectivePayloads && d.Effectiveness != nil {
			sel.Scorer = d.Effectiveness
		}
		return payloads.Select(bank, sel)
	}

	if opts.Effectiveness.UseEffectivePayloads && d.Effectiveness != nil {
		top := d.Effectiveness.TopK(opts.Effectiveness.Limit, opts.Browser)
		if len(top) > 0 {
			out := make([]string, len(top))
			for i, s := range top {
				out[i] = s.Payload
			}
			return out
		}
	}

	if len(job.Categories) > 0 {
		return payloads.FlattenCompatible(job.Categories, opts.Browser)
	}
	if len(job.Payloads) > 0 {
		return job.Payloads
	}
	return payloads.DefaultFlat()
}

// testPayload runs one payload end to end and returns a TestResult when
// the payload reflected or executed, nil when the page proved clean.
func (d *Detector) testPayload(ctx context.Context, page browser.Page, job Job, opts *config.Options, retry *RetryPolicy, payload string, renavigate bool, baseline string) (*config.TestResult, error) {
	fp := store.Fingerprint(job.URL, job.InputLocator, payload, store.FingerprintOptions{
		Browser:         opts.Browser,
		VerifyExecution: opts.VerifyExecution,
		SubmitSelector:  opts.SubmitSelector,
	})

	maxAge := time.Duration(opts.Cache.MaxAge) * time.Millisecond
	if opts.Cache.Enabled && d.Cache != nil && d.Cache.Exists(fp, maxAge) {
		if cached := d.Cache.Get(fp); cached != nil {
			if opts.Cache.Verbose {
				color.White("  [cache] %s", truncate(payload, 50))
			}
			if !cached.Detected && !cached.Executed {
				return nil, nil
			}
			return &config.TestResult{
				Payload:    payload,
				Reflected:  cached.Detected,
				Executed:   cached.Executed,
				URL:        job.URL,
				CapturedAt: cached.CapturedAt,
				FromCache:  true,
			}, nil
		}
	}

	// Each payload starts from a fresh load of the target so the
	// previous payload's page state cannot leak into this one.
	if renavigate {
		if err := retry.Do(ctx, OpNavigation, func() error {
			return page.Goto(job.URL, opts.Timeouts.Navigation)
		}); err != nil {
			return nil, newDetectError("navigation", job.URL, "", payload, err)
		}
	}

	if err := monitor.ResetFlag(page); err != nil {
		return nil, newDetectError("monitor reset", job.URL, "", payload, err)
	}

	if err := retry.Do(ctx, OpInput, func() error {
		return page.Fill(job.InputLocator, payload, opts.Timeouts.Action)
	}); err != nil {
		return nil, newDetectError("input", job.URL, job.InputLocator, payload, err)
	}

	if err := d.submit(ctx, page, job, opts, retry); err != nil {
		return nil, newDetectError("submission", job.URL, job.InputLocator, payload, err)
	}

	// Timing out here is expected; in-page forms never navigate.
	_ = page.WaitForLoadState("load", opts.Timeouts.WaitFor)

	executed := false
	if opts.VerifyExecution {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(opts.Timeouts.Execution) * time.Millisecond):
		}
		state, err := monitor.ReadState(page)
		if err != nil {
			return nil, newDetectError("verdict read", job.URL, "", payload, err)
		}
		executed = state.Verdict()
	}

	content, err := page.Content()
	if err != nil {
		return nil, newDetectError("content read", job.URL, "", payload, err)
	}
	reflected := strings.Contains(content, payload)

	if opts.Effectiveness.Track && d.Effectiveness != nil {
		if err := d.Effectiveness.Record(payload, reflected, executed, opts.Browser); err != nil && opts.Logging.Verbose {
			color.Yellow("  [!] Effectiveness update lost: %v", err)
		}
	}
	if opts.Cache.Enabled && d.Cache != nil {
		if err := d.Cache.Put(fp, store.CachedResult{
			Detected:   reflected,
			Executed:   executed,
			CapturedAt: time.Now(),
		}); err != nil && opts.Logging.Verbose {
			color.Yellow("  [!] Cache write failed: %v", err)
		}
	}

	if !reflected && !executed {
		return nil, nil
	}
	return &config.TestResult{
		Payload:    payload,
		Reflected:  reflected,
		Executed:   executed,
		URL:        job.URL,
		CapturedAt: time.Now(),
		Evidence:   analyzer.ReflectionEvidence(baseline, content, payload),
	}, nil
}

// pressSettle is how long a pressed ENTER gets to start navigating
// before the sentinel check decides it was swallowed.
const pressSettle = 300 * time.Millisecond

// submit walks the fallback chain until one strategy takes: configured
// selector click, ENTER on the input, the enclosing form's submit
// method, then a bubbling change event.
func (d *Detector) submit(ctx context.Context, page browser.Page, job Job, opts *config.Options, retry *RetryPolicy) error {
	actionTimeout := opts.Timeouts.Action
	var lastErr error

	if opts.SubmitSelector != "" {
		if err := retry.Do(ctx, OpSubmission, func() error {
			return page.Click(opts.SubmitSelector, actionTimeout)
		}); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if err := retry.Do(ctx, OpSubmission, func() error {
		// Pages can swallow ENTER without an error, so an accepted
		// keystroke only counts when the sentinel set before the press
		// is gone afterwards (the document reloaded) or the execution
		// context died mid-navigation.
		if _, evalErr := page.Evaluate(`() => { window.__xssprobe_nav_probe = true; }`); evalErr != nil {
			return evalErr
		}
		if pressErr := page.Press(job.InputLocator, "Enter", actionTimeout); pressErr != nil {
			return pressErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pressSettle):
		}
		res, evalErr := page.Evaluate(`() => window.__xssprobe_nav_probe === true`)
		if evalErr != nil {
			return nil
		}
		if survived, isBool := res.(bool); isBool && survived {
			return fmt.Errorf("enter press had no effect")
		}
		return nil
	}); err == nil {
		return nil
	} else {
		lastErr = err
	}

	if err := retry.Do(ctx, OpSubmission, func() error {
		res, evalErr := page.Evaluate(`(selector) => {
			const el = document.querySelector(selector);
			const form = el && el.closest('form');
			if (!form) return false;
			form.submit();
			return true;
		}`, job.InputLocator)
		if evalErr != nil {
			return evalErr
		}
		if ok, isBool := res.(bool); !isBool || !ok {
			return fmt.Errorf("no enclosing form found")
		}
		return nil
	}); err == nil {
		return nil
	} else {
		lastErr = err
	}

	if err := retry.Do(ctx, OpSubmission, func() error {
		_, evalErr := page.Evaluate(`(selector) => {
			const el = document.querySelector(selector);
			if (el) el.dispatchEvent(new Event('change', { bubbles: true }));
		}`, job.InputLocator)
		return evalErr
	}); err == nil {
		return nil
	} else {
		lastErr = err
	}

	return fmt.Errorf("all submission strategies failed: %w", lastErr)
}

func (d *Detector) emitProgress(opts *config.Options, done, total int, payload string) {
	if d.Progress != nil {
		d.Progress(done, total, payload)
		return
	}
	if !opts.Logging.ShowProgress {
		return
	}
	interval := opts.Logging.ProgressUpdateInterval
	if interval <= 0 {
		interval = 1
	}
	if done%interval == 0 || done == total {
		color.White("  [%d/%d] %s", done, total, truncate(payload, 50))
	}
}

func filterExecuted(results []config.TestResult) []config.TestResult {
	out := results[:0]
	for _, r := range results {
		if !r.Reflected || r.Executed {
			out = append(out, r)
		}
	}
	return out
}
