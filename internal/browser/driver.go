package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates an element lookup or wait condition did not resolve
// within its timeout. There is no silent nil return: every miss is an error
// the caller must handle.
var ErrNotFound = errors.New("element not found or condition not met within timeout")

// Strategy selects how a Locator resolves an element on the page.
type Strategy string

const (
	ByID    Strategy = "id"
	ByName  Strategy = "name"
	ByCSS   Strategy = "css"
	ByXPath Strategy = "xpath"
)

// Locator identifies one element on a portal page.
type Locator struct {
	Strategy Strategy
	Value    string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%q", l.Strategy, l.Value)
}

func ID(v string) Locator    { return Locator{Strategy: ByID, Value: v} }
func Name(v string) Locator  { return Locator{Strategy: ByName, Value: v} }
func CSS(v string) Locator   { return Locator{Strategy: ByCSS, Value: v} }
func XPath(v string) Locator { return Locator{Strategy: ByXPath, Value: v} }

// cssSelector converts a locator into a CSS selector. XPath locators have no
// CSS form; callers that require CSS (script-based operations) get an error.
func (l Locator) cssSelector() (string, error) {
	switch l.Strategy {
	case ByID:
		return "#" + l.Value, nil
	case ByName:
		return fmt.Sprintf(`[name=%q]`, l.Value), nil
	case ByCSS:
		return l.Value, nil
	case ByXPath:
		return "", fmt.Errorf("xpath locator %q has no CSS selector form", l.Value)
	}
	return "", fmt.Errorf("unknown locator strategy %q", l.Strategy)
}

// ConditionKind enumerates the wait conditions a portal flow can block on.
type ConditionKind string

const (
	URLContains    ConditionKind = "url_contains"
	TitleContains  ConditionKind = "title_contains"
	ElementVisible ConditionKind = "element_visible"
	ElementEnabled ConditionKind = "element_enabled"
)

// Condition is a predicate over the live page, polled until it holds or the
// timeout elapses.
type Condition struct {
	Kind    ConditionKind
	Value   string
	Element Locator
}

func (c Condition) String() string {
	if c.Kind == ElementVisible || c.Kind == ElementEnabled {
		return fmt.Sprintf("%s(%s)", c.Kind, c.Element)
	}
	return fmt.Sprintf("%s(%q)", c.Kind, strings.TrimSpace(c.Value))
}

// Driver is the browser automation contract the portal adapters program
// against. Implementations wrap one live browser session; every method is a
// network call to that browser and may fail with ErrNotFound on lookup or
// wait timeouts.
type Driver interface {
	// Navigate loads the URL and waits for the page load to settle.
	Navigate(ctx context.Context, url string) error
	// Fill clears the located input and types the value into it.
	Fill(ctx context.Context, loc Locator, value string) error
	// Click clicks the located element.
	Click(ctx context.Context, loc Locator) error
	// SelectByText chooses a <select> option by its visible text.
	SelectByText(ctx context.Context, loc Locator, text string) error
	// SelectByValue chooses a <select> option by its value attribute.
	SelectByValue(ctx context.Context, loc Locator, value string) error
	// UploadFile attaches a local file to a file input.
	UploadFile(ctx context.Context, loc Locator, path string) error
	// Text returns the trimmed text content of the located element.
	Text(ctx context.Context, loc Locator) (string, error)
	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)
	// WaitFor blocks until the condition holds, up to the timeout.
	WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error
	// Screenshot captures the visible viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close tears the session down, releasing the browser tab.
	Close(ctx context.Context) error
}
