// Package cli wires the cobra command surface onto the detection engine.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Serdar715/xssprobe/internal/banner"
	"github.com/Serdar715/xssprobe/internal/browser"
	"github.com/Serdar715/xssprobe/internal/config"
	"github.com/Serdar715/xssprobe/internal/crawler"
	"github.com/Serdar715/xssprobe/internal/detector"
	"github.com/Serdar715/xssprobe/internal/payloads"
	"github.com/Serdar715/xssprobe/internal/reporter"
	"github.com/Serdar715/xssprobe/internal/server"
	"github.com/Serdar715/xssprobe/internal/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// detect options
	browserID        string
	submitSelector   string
	verifyExecution  bool
	requireExecution bool
	payloadFile      string
	silent           bool
	verbose          bool

	navigationTimeout float64
	actionTimeout     float64
	waitForTimeout    float64
	executionTimeout  float64
	globalTimeout     float64

	retryEnabled bool
	retryMax     int
	retryDelay   float64
	retryBackoff bool
	retryOps     []string

	authURL          string
	authUserSelector string
	authPassSelector string
	authSubmit       string
	authUser         string
	authPass         string

	sessionID         string
	sessionReuse      bool
	sessionSave       bool
	sessionCloseAfter bool

	cacheEnabled bool
	cacheMaxAge  float64

	effTrack bool
	effUse   bool
	effLimit int

	smartEnabled bool
	smartLimit   int

	outputDir      string
	outputFilename string

	// config options
	showConfig   bool
	resetConfig  bool
	printPath    bool
	updateConfig string

	// payloads options
	generateFile  string
	payloadCtx    string
	attributeKind string
	effectiveN    int

	// crawl options
	crawlTest        bool
	crawlConcurrency int

	// serve options
	serveAddr     string
	serveMaxPages int
	serveRate     int
)

// Execute builds and runs the root command.
func Execute() error {
	rootCmd := &cobra.Command{
		Use:           "xssprobe",
		Short:         "Browser-verified XSS detection engine",
		Long:          banner.GetBanner() + "\nxssprobe drives real browser engines to inject payloads and prove execution.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(payloadsCmd())
	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(serveCmd())
	return rootCmd.Execute()
}

// buildEngine wires the session manager and stores from the user state
// directory. Store failures degrade to nil stores, never abort.
func buildEngine() (*detector.Detector, *browser.Manager) {
	dir, err := config.Dir()
	if err != nil {
		color.Yellow("[!] State directory unavailable, running stateless: %v", err)
		sessions := browser.NewManager(os.TempDir())
		return detector.New(sessions, nil, nil), sessions
	}

	sessions := browser.NewManager(filepath.Join(dir, "sessions"))

	cache, err := store.NewCache(filepath.Join(dir, "cache"))
	if err != nil {
		color.Yellow("[!] Cache unavailable: %v", err)
	}
	effectiveness, err := store.NewEffectiveness(filepath.Join(dir, "payload-effectiveness.json"))
	if err != nil {
		color.Yellow("[!] Effectiveness store unavailable: %v", err)
	}

	d := detector.New(sessions, cache, effectiveness)
	return d, sessions
}

func detectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect URL LOCATOR",
		Short: "Test one input field for XSS",
		Example: `  # Basic detection
  xssprobe detect "http://target/search" "input[name=q]"

  # Firefox with explicit submit button and session reuse
  xssprobe detect "http://target/search" "input[name=q]" \
    --browser firefox --submit-selector "button[type=submit]" \
    --session-id target --session-reuse --session-save`,
		Args: cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !config.ValidBrowser(browserID) {
				return fmt.Errorf("invalid browser %q (chromium, firefox, webkit)", browserID)
			}
			if payloadCtx != "" && !payloads.ValidContext(payloadCtx) {
				return fmt.Errorf("invalid context %q", payloadCtx)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !silent {
				fmt.Println(banner.GetBanner())
			}

			opts := optionsFromFlags()
			job := detector.Job{
				URL:          args[0],
				InputLocator: args[1],
				Options:      opts,
			}
			if payloadFile != "" {
				bank, err := payloads.LoadCategorizedFile(payloadFile)
				if err != nil {
					return err
				}
				job.Categories = bank
			}

			d, sessions := buildEngine()
			d.PersistOptions = true
			defer sessions.CloseAll()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				color.Yellow("\n[!] Interrupted, returning partial results")
				cancel()
			}()

			color.Cyan("[*] Testing %s (%s) on %s", job.URL, job.InputLocator, opts.Browser)
			report, err := d.DetectXSS(ctx, job)
			if err != nil && report == nil {
				return err
			}
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				// Fatal engine error: show what was collected, exit nonzero.
				reporter.PrintSummary(report)
				return err
			}
			if err != nil {
				color.Yellow("[!] Job ended early: %v", err)
			}

			reporter.PrintSummary(report)
			if path, saveErr := reporter.New(opts.Report).Save(report); saveErr != nil {
				color.Yellow("[!] Could not save report: %v", saveErr)
			} else if path != "" && !silent {
				color.Cyan("[*] Report written to %s", path)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&browserID, "browser", "b", "chromium", "engine: chromium, firefox or webkit")
	flags.StringVar(&submitSelector, "submit-selector", "", "CSS selector of the submit control")
	flags.BoolVar(&verifyExecution, "verify-execution", true, "verify JavaScript execution via the in-page monitor")
	flags.BoolVar(&requireExecution, "require-execution", false, "report only payloads that actually executed")
	flags.StringVarP(&payloadFile, "payloads", "p", "", "categorized payload bank file")
	flags.BoolVar(&silent, "silent", false, "suppress banner and progress")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	flags.Float64Var(&navigationTimeout, "timeout-navigation", 30000, "navigation timeout (ms)")
	flags.Float64Var(&actionTimeout, "timeout-action", 10000, "input/click timeout (ms)")
	flags.Float64Var(&waitForTimeout, "timeout-wait", 5000, "post-submit wait (ms)")
	flags.Float64Var(&executionTimeout, "timeout-execution", 2000, "execution verification wait (ms)")
	flags.Float64Var(&globalTimeout, "timeout-global", 300000, "whole-job ceiling (ms)")

	flags.BoolVar(&retryEnabled, "retry", true, "retry transient failures")
	flags.IntVar(&retryMax, "retry-max", 3, "max attempts per operation")
	flags.Float64Var(&retryDelay, "retry-delay", 500, "base retry delay (ms)")
	flags.BoolVar(&retryBackoff, "retry-backoff", true, "exponential backoff")
	flags.StringSliceVar(&retryOps, "retry-ops", []string{"navigation", "submission", "input"}, "operations to retry")

	flags.StringVar(&authURL, "auth-url", "", "login page URL")
	flags.StringVar(&authUserSelector, "auth-user-selector", "", "username field selector")
	flags.StringVar(&authPassSelector, "auth-pass-selector", "", "password field selector")
	flags.StringVar(&authSubmit, "auth-submit", "", "login submit selector")
	flags.StringVar(&authUser, "auth-user", "", "username")
	flags.StringVar(&authPass, "auth-pass", "", "password")

	flags.StringVar(&sessionID, "session-id", "", "named session to use")
	flags.BoolVar(&sessionReuse, "session-reuse", false, "reuse saved storage state")
	flags.BoolVar(&sessionSave, "session-save", false, "persist storage state after the run")
	flags.BoolVar(&sessionCloseAfter, "session-close", false, "close the session when done")

	flags.BoolVar(&cacheEnabled, "cache", true, "cache test results")
	flags.Float64Var(&cacheMaxAge, "cache-max-age", 3600000, "cache entry lifetime (ms, 0 = forever)")

	flags.BoolVar(&effTrack, "track-effectiveness", true, "record payload success rates")
	flags.BoolVar(&effUse, "use-effective", false, "prefer historically effective payloads")
	flags.IntVar(&effLimit, "effective-limit", 20, "how many top payloads to pull")

	flags.BoolVar(&smartEnabled, "smart", true, "context-aware payload selection")
	flags.IntVar(&smartLimit, "smart-limit", 25, "smart selection cap")

	flags.StringVarP(&outputDir, "output-dir", "o", "", "report output directory")
	flags.StringVar(&outputFilename, "output-file", "", "report filename")

	return cmd
}

func optionsFromFlags() *config.Options {
	opts := config.Default()
	opts.Browser = browserID
	opts.SubmitSelector = submitSelector
	opts.VerifyExecution = verifyExecution
	opts.RequireExecution = requireExecution
	opts.Timeouts = config.TimeoutOptions{
		Navigation: navigationTimeout,
		Action:     actionTimeout,
		WaitFor:    waitForTimeout,
		Execution:  executionTimeout,
		Global:     globalTimeout,
	}
	opts.Retry = config.RetryOptions{
		Enabled:            retryEnabled,
		MaxAttempts:        retryMax,
		Delay:              retryDelay,
		ExponentialBackoff: retryBackoff,
		Operations:         retryOps,
	}
	if authURL != "" {
		opts.Auth = &config.AuthOptions{
			URL:              authURL,
			UsernameSelector: authUserSelector,
			PasswordSelector: authPassSelector,
			SubmitSelector:   authSubmit,
			Username:         authUser,
			Password:         authPass,
		}
	}
	opts.Session = config.SessionOptions{
		ID:         sessionID,
		Reuse:      sessionReuse,
		Save:       sessionSave,
		CloseAfter: sessionCloseAfter,
	}
	opts.Cache = config.CacheOptions{Enabled: cacheEnabled, MaxAge: cacheMaxAge, Verbose: verbose}
	opts.Effectiveness = config.EffectivenessOptions{Track: effTrack, UseEffectivePayloads: effUse, Limit: effLimit}
	opts.SmartSelection = config.SmartSelectionOptions{Enabled: smartEnabled, Limit: smartLimit}
	opts.Report = config.ReportOptions{Format: "json", OutputDir: outputDir, Filename: outputFilename}
	opts.Logging = config.LoggingOptions{
		Verbose:                verbose,
		ShowProgress:           !silent,
		ProgressUpdateInterval: 5,
	}
	return opts
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage persisted defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case printPath:
				path, err := config.Path()
				if err != nil {
					return err
				}
				fmt.Println(path)
			case resetConfig:
				if err := config.Save(config.Default()); err != nil {
					return err
				}
				color.Green("[✓] Configuration reset to defaults")
			case updateConfig != "":
				opts, err := config.LoadFrom(updateConfig)
				if err != nil {
					return err
				}
				if err := config.Save(opts); err != nil {
					return err
				}
				color.Green("[✓] Configuration updated from %s", updateConfig)
			default:
				opts, err := config.Load()
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(opts, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showConfig, "show", false, "print the current configuration")
	cmd.Flags().BoolVar(&resetConfig, "reset", false, "restore built-in defaults")
	cmd.Flags().BoolVar(&printPath, "path", false, "print the config file location")
	cmd.Flags().StringVar(&updateConfig, "update", "", "replace config from FILE")
	return cmd
}

func payloadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payloads",
		Short: "Inspect and generate the payload corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case generateFile != "":
				if err := payloads.WriteCategorizedFile(generateFile, payloads.DefaultBank()); err != nil {
					return err
				}
				color.Green("[✓] Categorized payload bank written to %s", generateFile)
			case payloadCtx != "":
				if !payloads.ValidContext(payloadCtx) {
					return fmt.Errorf("invalid context %q", payloadCtx)
				}
				if attributeKind != "" && !payloads.ValidAttributeKind(attributeKind) {
					return fmt.Errorf("invalid attribute kind %q", attributeKind)
				}
				list := payloads.Generate(payloads.Context(payloadCtx), payloads.GenerateOptions{
					AttributeKind: payloads.AttributeKind(attributeKind),
				})
				for _, p := range list {
					fmt.Println(p)
				}
			case effectiveN > 0:
				dir, err := config.Dir()
				if err != nil {
					return err
				}
				eff, err := store.NewEffectiveness(filepath.Join(dir, "payload-effectiveness.json"))
				if err != nil {
					return err
				}
				top := eff.TopK(effectiveN, browserID)
				if len(top) == 0 {
					color.Yellow("[*] No effectiveness history yet")
					return nil
				}
				for i, s := range top {
					fmt.Printf("%2d. exec=%.2f refl=%.2f n=%d  %s\n",
						i+1, s.ExecutionScore, s.ReflectionScore, s.TotalTests, s.Payload)
				}
			default:
				return cmd.Help()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&generateFile, "generate", "", "write the categorized bank to FILE")
	cmd.Flags().StringVar(&payloadCtx, "context", "", "print payloads for a context")
	cmd.Flags().StringVar(&attributeKind, "attribute", "", "attribute kind for --context attribute")
	cmd.Flags().IntVar(&effectiveN, "effective", 0, "print the top N effective payloads")
	cmd.Flags().StringVar(&browserID, "browser", "", "restrict --effective to one engine")
	return cmd
}

func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl URL",
		Short: "Discover injectable inputs, optionally testing each",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := crawler.New(15 * time.Second)
			targets, err := c.Discover(args[0])
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				color.Yellow("[*] No injectable inputs found on %s", args[0])
				return nil
			}
			color.Cyan("[*] Discovered %d injectable input(s)", len(targets))
			for _, t := range targets {
				fmt.Printf("  %s  %s  %s\n", t.URL, t.Selector, t.SubmitSelector)
			}
			if !crawlTest {
				return nil
			}

			d, sessions := buildEngine()
			defer sessions.CloseAll()

			jobs := make([]detector.Job, len(targets))
			for i, t := range targets {
				opts := config.Default()
				opts.SubmitSelector = t.SubmitSelector
				jobs[i] = detector.Job{URL: t.URL, InputLocator: t.Selector, Options: opts}
			}
			outcomes := d.DetectParallel(context.Background(), jobs, detector.ParallelOptions{
				Concurrency:  crawlConcurrency,
				ShareSession: true,
			})
			for _, o := range outcomes {
				if o.Err != nil {
					color.Yellow("[!] %s: %v", o.Job.URL, o.Err)
					continue
				}
				reporter.PrintSummary(o.Report)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&crawlTest, "test", false, "run detection against each discovered input")
	cmd.Flags().IntVar(&crawlConcurrency, "concurrency", 2, "parallel jobs when testing")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP submission endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load()
			if err != nil {
				opts = config.Default()
			}
			dir, err := config.Dir()
			if err != nil {
				return err
			}
			sessions := browser.NewManager(filepath.Join(dir, "sessions"))
			defer sessions.CloseAll()
			return server.New(sessions, opts, serveMaxPages, serveRate).ListenAndServe(serveAddr)
		},
	}
	cmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8093", "listen address")
	cmd.Flags().IntVar(&serveMaxPages, "max-pages", 5, "max concurrent verification pages")
	cmd.Flags().IntVar(&serveRate, "rate", 60, "requests per minute per client")
	return cmd
}
