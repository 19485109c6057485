// Package browser owns the per-worker headless Chrome lifecycle: lazy
// creation behind a process-wide gate, page preparation before extraction,
// and recycling when the session has done enough work or the host is
// running out of processes and file descriptors.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/sync/semaphore"

	"prodex/internal/dom"
	"prodex/internal/guard"
	"prodex/internal/types"
)

const (
	// NavTimeout bounds one navigation, excluding the post-load waits.
	NavTimeout = 30 * time.Second
	// DefaultWaitSeconds is how long to wait for content after load.
	DefaultWaitSeconds = 12
	// DefaultCleanupEvery recycles the browser after this many URLs.
	DefaultCleanupEvery = 10

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// creationGate serializes browser startup process-wide. Spawning several
// Chromes at once is exactly what exhausts the PID budget.
var creationGate = semaphore.NewWeighted(1)

// Session is one worker's browser. The worker goroutine owns it; only the
// handle swap is locked so a registry CloseAll can yank the browser out
// from under an in-flight job.
type Session struct {
	index        int
	cleanupEvery int
	guard        *guard.Guard
	logger       *slog.Logger

	mu            sync.Mutex
	browser       *rod.Browser
	profileDir    string
	urlsProcessed int
}

// NewSession builds an idle session for worker index. No browser is
// started until the first Navigate.
func NewSession(index, cleanupEvery int, g *guard.Guard, logger *slog.Logger) *Session {
	if cleanupEvery <= 0 {
		cleanupEvery = DefaultCleanupEvery
	}
	return &Session{
		index:        index,
		cleanupEvery: cleanupEvery,
		guard:        g,
		logger:       logger.With("component", "browser_session", "worker_id", index),
	}
}

// Navigate renders pageURL: ensure a browser, open a stealth page, wait
// for the body, dismiss popups, run progressive scroll, then wait for any
// product card selector. The returned cleanup must be called when the
// caller is done with the page.
func (s *Session) Navigate(ctx context.Context, pageURL string, waitSeconds int) (dom.Page, func(), error) {
	if waitSeconds <= 0 {
		waitSeconds = DefaultWaitSeconds
	}
	b, err := s.ensure(ctx)
	if err != nil {
		return nil, nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, nil, &types.RenderError{URL: pageURL, Err: fmt.Errorf("open page: %w", err), Transient: true}
	}
	cleanup := func() {
		_ = proto.NetworkClearBrowserCookies{}.Call(page)
		_ = page.Close()
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		s.logger.Warn("set user agent failed", "error", err)
	}

	if err := page.Context(ctx).Timeout(NavTimeout).Navigate(pageURL); err != nil {
		cleanup()
		return nil, nil, &types.RenderError{URL: pageURL, Err: err, Transient: isNavTransient(err)}
	}

	wait := time.Duration(waitSeconds) * time.Second
	if _, err := page.Timeout(wait).Element("body"); err != nil {
		cleanup()
		return nil, nil, &types.RenderError{URL: pageURL, Err: fmt.Errorf("body never appeared: %w", err)}
	}

	dismissPopups(page)
	progressiveScroll(page)
	waitForCards(page, wait)

	s.mu.Lock()
	s.urlsProcessed++
	s.mu.Unlock()

	return dom.WrapPage(page, pageURL), cleanup, nil
}

// ensure returns a live browser, recycling first when the session is due.
func (s *Session) ensure(ctx context.Context) (*rod.Browser, error) {
	if due, reason := s.needsRecycle(); due {
		s.logger.Info("recycling browser", "reason", reason)
		s.Recycle()
	}

	s.mu.Lock()
	b := s.browser
	s.mu.Unlock()
	if b != nil {
		return b, nil
	}
	return s.create(ctx)
}

// needsRecycle applies the recycle policy against a live browser.
func (s *Session) needsRecycle() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return false, ""
	}
	if s.urlsProcessed >= s.cleanupEvery {
		return true, "urls_processed"
	}
	if s.guard != nil {
		if pressured, reason := s.guard.UnderPressure(); pressured {
			return true, reason
		}
	}
	return false, ""
}

// create starts a fresh Chrome with an ephemeral profile. Startup is
// serialized and jittered so a large pool does not fork-bomb the host.
func (s *Session) create(ctx context.Context) (*rod.Browser, error) {
	if err := creationGate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer creationGate.Release(1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(creationJitter(s.index)):
	}

	profileDir, err := os.MkdirTemp("", "prodex-profile-*")
	if err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	l := launcher.New().
		Headless(true).
		UserDataDir(profileDir).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("disable-notifications").
		Set("disable-blink-features", "AutomationControlled").
		Set("blink-settings", "imagesEnabled=false").
		Set("window-size", "1920,1080")

	controlURL, err := l.Launch()
	if err != nil {
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		os.RemoveAll(profileDir)
		return nil, fmt.Errorf("connect chrome: %w", err)
	}

	s.mu.Lock()
	s.browser = b
	s.profileDir = profileDir
	s.urlsProcessed = 0
	s.mu.Unlock()

	s.logger.Info("browser started", "profile_dir", profileDir)
	return b, nil
}

// Recycle closes the browser, removes the ephemeral profile, and resets
// the counter. Safe to call from any goroutine and when already idle.
func (s *Session) Recycle() {
	s.mu.Lock()
	b := s.browser
	profileDir := s.profileDir
	s.browser = nil
	s.profileDir = ""
	s.urlsProcessed = 0
	s.mu.Unlock()

	if b != nil {
		if err := b.Close(); err != nil {
			s.logger.Warn("browser close failed", "error", err)
		}
	}
	if profileDir != "" {
		if err := os.RemoveAll(profileDir); err != nil {
			s.logger.Warn("profile dir removal failed", "path", profileDir, "error", err)
		}
	}
}

// Close is Recycle for shutdown paths.
func (s *Session) Close() { s.Recycle() }

// creationJitter spreads simultaneous first-starts of a large pool over
// the 0.5s-5s window, deterministically by worker index.
func creationJitter(index int) time.Duration {
	if index < 0 {
		index = 0
	}
	return 500*time.Millisecond + time.Duration(index%10)*450*time.Millisecond
}

// isNavTransient treats every navigation failure as retryable except a
// deliberate cancellation.
func isNavTransient(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
