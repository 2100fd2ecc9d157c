package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// PagePoolCap bounds how many idle pages a session keeps around.
const PagePoolCap = 5

// Session is a named browser + context + recycleable page pool.
type Session struct {
	Name    string
	Engine  string
	Browser playwright.Browser
	Context playwright.BrowserContext

	mu   sync.Mutex
	pool []playwright.Page
}

// Acquired is the result of borrowing a page from a session.
type Acquired struct {
	Session    *Session
	Page       playwright.Page
	IsExisting bool
	// Release returns the page to the session pool, or closes it when
	// invalid or the pool is full.
	Release func()
}

type sessionEntry struct {
	ready chan struct{}
	sess  *Session
	err   error
}

// Manager is the process-wide session registry.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	dir      string

	pwOnce sync.Once
	pw     *playwright.Playwright
	pwErr  error
}

// NewManager creates a session manager persisting storage state under dir.
func NewManager(dir string) *Manager {
	return &Manager{
		sessions: make(map[string]*sessionEntry),
		dir:      dir,
	}
}

// runtime lazily starts the Playwright driver, once per process.
func (m *Manager) runtime() (*playwright.Playwright, error) {
	m.pwOnce.Do(func() {
		m.pw, m.pwErr = playwright.Run()
		if m.pwErr != nil {
			m.pwErr = fmt.Errorf("failed to start browser driver (run `xssprobe detect` after installing engines with playwright.Install): %w", m.pwErr)
		}
	})
	return m.pw, m.pwErr
}

// GetSession returns the named session, launching the engine on first
// use. Concurrent calls for the same name coalesce onto one launch.
// Requesting a different engine under an existing name closes the old
// session first.
func (m *Manager) GetSession(name, engine string, storageStatePath string, headless bool) (*Acquired, error) {
	for {
		m.mu.Lock()
		entry, ok := m.sessions[name]
		if !ok {
			entry = &sessionEntry{ready: make(chan struct{})}
			m.sessions[name] = entry
			m.mu.Unlock()

			sess, err := m.launch(name, engine, storageStatePath, headless)
			entry.sess, entry.err = sess, err
			close(entry.ready)
			if err != nil {
				m.mu.Lock()
				delete(m.sessions, name)
				m.mu.Unlock()
				return nil, err
			}
			return m.acquirePage(sess, false)
		}
		m.mu.Unlock()

		<-entry.ready
		if entry.err != nil {
			return nil, entry.err
		}
		if entry.sess.Engine != engine {
			// Engine switch under the same name: tear down and relaunch.
			m.CloseSession(name)
			continue
		}
		return m.acquirePage(entry.sess, true)
	}
}

func (m *Manager) launch(name, engine, storageStatePath string, headless bool) (*Session, error) {
	pw, err := m.runtime()
	if err != nil {
		return nil, err
	}
	bt, err := BrowserType(pw, engine)
	if err != nil {
		return nil, err
	}
	b, err := bt.Launch(LaunchOptions(engine, headless))
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", engine, err)
	}
	ctxOpts := ContextOptions()
	if storageStatePath != "" {
		if _, statErr := os.Stat(storageStatePath); statErr == nil {
			ctxOpts.StorageStatePath = playwright.String(storageStatePath)
		}
	}
	bctx, err := b.NewContext(ctxOpts)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	return &Session{
		Name:    name,
		Engine:  engine,
		Browser: b,
		Context: bctx,
	}, nil
}

// acquirePage pops a pooled page or opens a fresh one, and builds the
// release-on-drop handle.
func (m *Manager) acquirePage(sess *Session, existing bool) (*Acquired, error) {
	sess.mu.Lock()
	var page playwright.Page
	if n := len(sess.pool); n > 0 {
		page = sess.pool[n-1]
		sess.pool = sess.pool[:n-1]
	}
	sess.mu.Unlock()

	if page == nil || page.IsClosed() {
		var err error
		page, err = sess.Context.NewPage()
		if err != nil {
			return nil, fmt.Errorf("failed to open page: %w", err)
		}
	}

	released := false
	acq := &Acquired{
		Session:    sess,
		Page:       page,
		IsExisting: existing,
	}
	acq.Release = func() {
		if released {
			return
		}
		released = true
		sess.releasePage(page)
	}
	return acq, nil
}

// releasePage resets and pools a page when it is still valid and the
// pool has room; any failure closes the page instead.
func (s *Session) releasePage(page playwright.Page) {
	if page == nil {
		return
	}
	if page.IsClosed() || !resetPage(page) {
		page.Close()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pool) >= PagePoolCap {
		page.Close()
		return
	}
	s.pool = append(s.pool, page)
}

// resetPage blanks the page, clears web storage and probes that the
// execution context still responds.
func resetPage(page playwright.Page) bool {
	if _, err := page.Goto("about:blank"); err != nil {
		return false
	}
	if _, err := page.Evaluate(`() => { try { localStorage.clear(); sessionStorage.clear(); } catch (e) {} }`); err != nil {
		return false
	}
	probe, err := page.Evaluate(`() => 1 + 1`)
	if err != nil {
		return false
	}
	if v, ok := probe.(int); ok {
		return v == 2
	}
	if v, ok := probe.(float64); ok {
		return v == 2
	}
	return false
}

// SessionExists reports whether a session is registered under name.
func (m *Manager) SessionExists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[name]
	if !ok {
		return false
	}
	select {
	case <-entry.ready:
		return entry.err == nil
	default:
		return true
	}
}

// ListSessions returns the registered session names.
func (m *Manager) ListSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	return names
}

// CloseSession tears down the named session and its pooled pages.
func (m *Manager) CloseSession(name string) bool {
	m.mu.Lock()
	entry, ok := m.sessions[name]
	if ok {
		delete(m.sessions, name)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	<-entry.ready
	if entry.err != nil || entry.sess == nil {
		return false
	}
	sess := entry.sess
	sess.mu.Lock()
	pool := sess.pool
	sess.pool = nil
	sess.mu.Unlock()
	for _, p := range pool {
		p.Close()
	}
	sess.Context.Close()
	sess.Browser.Close()
	return true
}

// CloseAll closes every session and stops the driver.
func (m *Manager) CloseAll() {
	for _, name := range m.ListSessions() {
		m.CloseSession(name)
	}
	if m.pw != nil {
		m.pw.Stop()
	}
}

// StorageStatePath returns the snapshot file location for a session name.
func (m *Manager) StorageStatePath(name string) string {
	return filepath.Join(m.dir, name+".json")
}

// SaveStorageState serializes the session's cookies and storage to its
// snapshot file and returns the path.
func (m *Manager) SaveStorageState(name string, bctx playwright.BrowserContext) (string, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", fmt.Errorf("cannot create sessions directory: %w", err)
	}
	path := m.StorageStatePath(name)
	if _, err := bctx.StorageState(path); err != nil {
		return "", fmt.Errorf("failed to save storage state: %w", err)
	}
	return path, nil
}

// LoadStorageState returns the parsed snapshot for a session name, or
// nil when none has been saved.
func (m *Manager) LoadStorageState(name string) (*playwright.StorageState, error) {
	data, err := os.ReadFile(m.StorageStatePath(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state playwright.StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt storage state for session %s: %w", name, err)
	}
	return &state, nil
}

// NewEphemeral launches a one-shot browser + context + page outside the
// registry. The caller owns the teardown chain page -> context -> browser.
func (m *Manager) NewEphemeral(engine string, headless bool) (playwright.Browser, playwright.BrowserContext, playwright.Page, error) {
	pw, err := m.runtime()
	if err != nil {
		return nil, nil, nil, err
	}
	bt, err := BrowserType(pw, engine)
	if err != nil {
		return nil, nil, nil, err
	}
	b, err := bt.Launch(LaunchOptions(engine, headless))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to launch %s: %w", engine, err)
	}
	bctx, err := b.NewContext(ContextOptions())
	if err != nil {
		b.Close()
		return nil, nil, nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		return nil, nil, nil, err
	}
	return b, bctx, page, nil
}
