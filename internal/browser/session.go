package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/config"
)

// Session is a chromedp-backed Driver implementation. One session owns one
// browser tab; it is not safe for concurrent use by multiple adapter runs.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	onClose   func()
	closeOnce sync.Once
}

var _ Driver = (*Session)(nil)

func newSession(allocCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()

	ctx, cancel := chromedp.NewContext(allocCtx)

	// A blank run forces the browser process and target to start now, so a
	// broken Chrome install fails the session up front instead of on the
	// first navigation.
	startCtx, startCancel := context.WithTimeout(ctx, cfg.NavigationTimeout)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser target: %w", err)
	}

	return &Session{
		id:     sessionID,
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.Named("session").With(zap.String("session_id", sessionID)),
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// run executes chromedp actions against this session's tab, bounded by the
// given timeout and the caller's context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := mergeContext(s.ctx, ctx, timeout)
	defer cancel()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w (after %s)", ErrNotFound, timeout)
	}
	return err
}

// mergeContext derives an operation context from the session context that is
// also cancelled when the caller's context is.
func mergeContext(sessionCtx, callerCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(sessionCtx, timeout)
	stop := context.AfterFunc(callerCtx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// query converts a locator into a chromedp selector + query option pair.
func query(loc Locator) (string, chromedp.QueryOption, error) {
	switch loc.Strategy {
	case ByID:
		return "#" + loc.Value, chromedp.ByQuery, nil
	case ByName:
		return fmt.Sprintf(`[name=%q]`, loc.Value), chromedp.ByQuery, nil
	case ByCSS:
		return loc.Value, chromedp.ByQuery, nil
	case ByXPath:
		return loc.Value, chromedp.BySearch, nil
	}
	return "", nil, fmt.Errorf("unknown locator strategy %q", loc.Strategy)
}

func (s *Session) Fill(ctx context.Context, loc Locator, value string) error {
	sel, opt, err := query(loc)
	if err != nil {
		return err
	}
	err = s.run(ctx, s.cfg.ElementTimeout,
		chromedp.WaitVisible(sel, opt),
		chromedp.Clear(sel, opt),
		chromedp.SendKeys(sel, value, opt),
	)
	if err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, loc Locator) error {
	sel, opt, err := query(loc)
	if err != nil {
		return err
	}
	err = s.run(ctx, s.cfg.ElementTimeout,
		chromedp.WaitVisible(sel, opt),
		chromedp.Click(sel, opt),
	)
	if err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// selectOption drives a <select> element through the DOM, matching either the
// option's visible text or its value attribute.
func (s *Session) selectOption(ctx context.Context, loc Locator, needle string, byText bool) error {
	cssSel, err := loc.cssSelector()
	if err != nil {
		return fmt.Errorf("select on %s: %w", loc, err)
	}

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el || !el.options) { return false; }
		for (const opt of el.options) {
			const matched = %t ? opt.text.trim() === %q : opt.value === %q;
			if (matched) {
				el.value = opt.value;
				el.dispatchEvent(new Event('change', { bubbles: true }));
				return true;
			}
		}
		return false;
	})()`, cssSel, byText, needle, needle)

	var matched bool
	err = s.run(ctx, s.cfg.ElementTimeout,
		chromedp.WaitVisible(cssSel, chromedp.ByQuery),
		chromedp.Evaluate(script, &matched),
	)
	if err != nil {
		return fmt.Errorf("select on %s: %w", loc, err)
	}
	if !matched {
		return fmt.Errorf("select on %s: option %q: %w", loc, needle, ErrNotFound)
	}
	return nil
}

func (s *Session) SelectByText(ctx context.Context, loc Locator, text string) error {
	return s.selectOption(ctx, loc, text, true)
}

func (s *Session) SelectByValue(ctx context.Context, loc Locator, value string) error {
	return s.selectOption(ctx, loc, value, false)
}

func (s *Session) UploadFile(ctx context.Context, loc Locator, path string) error {
	sel, opt, err := query(loc)
	if err != nil {
		return err
	}
	err = s.run(ctx, s.cfg.ElementTimeout,
		chromedp.SetUploadFiles(sel, []string{path}, opt),
	)
	if err != nil {
		return fmt.Errorf("upload to %s: %w", loc, err)
	}
	return nil
}

func (s *Session) Text(ctx context.Context, loc Locator) (string, error) {
	sel, opt, err := query(loc)
	if err != nil {
		return "", err
	}
	var out string
	err = s.run(ctx, s.cfg.ElementTimeout,
		chromedp.WaitVisible(sel, opt),
		chromedp.Text(sel, &out, opt),
	)
	if err != nil {
		return "", fmt.Errorf("text of %s: %w", loc, err)
	}
	return strings.TrimSpace(out), nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return loc, nil
}

const conditionPollInterval = 250 * time.Millisecond

func (s *Session) WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error {
	switch cond.Kind {
	case ElementVisible, ElementEnabled:
		sel, opt, err := query(cond.Element)
		if err != nil {
			return err
		}
		wait := chromedp.WaitVisible
		if cond.Kind == ElementEnabled {
			wait = chromedp.WaitEnabled
		}
		if err := s.run(ctx, timeout, wait(sel, opt)); err != nil {
			return fmt.Errorf("wait for %s: %w", cond, err)
		}
		return nil
	case URLContains, TitleContains:
		return s.pollCondition(ctx, cond, timeout)
	}
	return fmt.Errorf("unknown wait condition kind %q", cond.Kind)
}

// pollCondition checks a page-level predicate every conditionPollInterval
// until it holds or the timeout elapses.
func (s *Session) pollCondition(ctx context.Context, cond Condition, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(conditionPollInterval)
	defer ticker.Stop()

	for {
		var current string
		var action chromedp.Action
		if cond.Kind == URLContains {
			action = chromedp.Location(&current)
		} else {
			action = chromedp.Title(&current)
		}

		// Each probe gets a short slice of the remaining budget.
		if err := s.run(ctx, conditionPollInterval*4, action); err == nil {
			if strings.Contains(current, cond.Value) {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("wait for %s: %w (after %s)", cond, ErrNotFound, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.cfg.ElementTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Close tears down the tab and releases the session slot in the manager.
// Safe to call more than once.
func (s *Session) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing session.")
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}
