package scraper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"

	"jobharvest/config"
	"jobharvest/identity"
)

// BrowserFetcher drives a real browser session for sources that require
// an authenticated login before any extraction. The session is a scoped
// resource: acquired once per run per source, and always released
// (logged out, context closed) on both success and failure paths.
type BrowserFetcher struct {
	cfg      *config.SourceConfig
	id       identity.Identity
	pw       *playwright.Playwright
	browser  playwright.Browser
	bctx     playwright.BrowserContext
	page     playwright.Page
	loggedIn bool
}

func NewBrowserFetcher(cfg *config.SourceConfig, id identity.Identity) *BrowserFetcher {
	return &BrowserFetcher{cfg: cfg, id: id}
}

// Start launches the browser with the assigned identity applied to the
// context: user-agent, viewport and optional upstream proxy.
func (f *BrowserFetcher) Start(ctx context.Context) error {
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}
	f.pw = pw

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}
	if f.id.ProxyURL != "" {
		opts.Proxy = &playwright.Proxy{Server: f.id.ProxyURL}
	}

	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		f.pw.Stop()
		return fmt.Errorf("launch browser: %w", err)
	}
	f.browser = browser

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(f.id.UserAgent),
		Viewport: &playwright.Size{
			Width:  f.id.ViewportWidth,
			Height: f.id.ViewportHeight,
		},
	})
	if err != nil {
		f.Close()
		return fmt.Errorf("browser context: %w", err)
	}
	f.bctx = bctx

	page, err := bctx.NewPage()
	if err != nil {
		f.Close()
		return fmt.Errorf("new page: %w", err)
	}
	f.page = page

	return nil
}

// Login authenticates the session using the source's configured
// credentials. Required before Fetch on auth sources.
func (f *BrowserFetcher) Login(ctx context.Context) error {
	loginURL := f.cfg.Endpoints["login"]
	if loginURL == "" {
		return fmt.Errorf("source %s: no login endpoint configured", f.cfg.ID)
	}
	username, password := f.cfg.Username(), f.cfg.Password()
	if username == "" || password == "" {
		return fmt.Errorf("source %s: credentials not set (%s/%s)", f.cfg.ID, f.cfg.UsernameEnv, f.cfg.PasswordEnv)
	}

	if _, err := f.page.Goto(loginURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	f.humanDelay(1500, 3000)
	f.handleConsent()

	if err := f.fillFirstVisible([]string{
		"input[name='username']", "input[type='email']", "#inlineUserEmail",
	}, username); err != nil {
		return fmt.Errorf("username field: %w", err)
	}
	f.humanDelay(400, 900)
	if err := f.fillFirstVisible([]string{
		"input[name='password']", "input[type='password']", "#inlineUserPassword",
	}, password); err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	f.humanDelay(400, 900)

	if err := f.clickFirstVisible([]string{
		"button[type='submit']",
		"button[name='submit']",
		"button:has-text('Sign In')",
	}); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	f.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(30000),
	})

	content, _ := f.page.Content()
	if detectChallenge(200, []byte(content)) {
		return ErrChallenge
	}

	f.loggedIn = true
	log.Printf("Session authenticated for %s", f.cfg.ID)
	return nil
}

// Fetch navigates the session to the requested URL and returns the
// rendered document.
func (f *BrowserFetcher) Fetch(ctx context.Context, req *Request) (*Page, error) {
	if f.page == nil {
		return nil, fmt.Errorf("browser session not started")
	}

	resp, err := f.page.Goto(req.URL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	f.humanDelay(800, 1800)
	f.simulateHumanBehavior()

	status := 200
	if resp != nil {
		status = resp.Status()
	}

	content, err := f.page.Content()
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	if detectChallenge(status, []byte(content)) {
		return nil, ErrChallenge
	}
	if status != 200 {
		return nil, &FetchError{URL: req.URL, Status: status}
	}

	return &Page{URL: req.URL, Status: status, Body: []byte(content)}, nil
}

// Close logs the session out when one was established and tears down
// the browser. Safe to call at any point after NewBrowserFetcher.
func (f *BrowserFetcher) Close() {
	if f.loggedIn {
		if logoutURL := f.cfg.Endpoints["logout"]; logoutURL != "" && f.page != nil {
			f.page.Goto(logoutURL, playwright.PageGotoOptions{
				Timeout: playwright.Float(15000),
			})
		}
		f.loggedIn = false
	}
	if f.bctx != nil {
		f.bctx.Close()
		f.bctx = nil
	}
	if f.browser != nil {
		f.browser.Close()
		f.browser = nil
	}
	if f.pw != nil {
		f.pw.Stop()
		f.pw = nil
	}
	f.page = nil
}

func (f *BrowserFetcher) fillFirstVisible(selectors []string, value string) error {
	for _, sel := range selectors {
		el := f.page.Locator(sel).First()
		if visible, _ := el.IsVisible(); visible {
			return el.Fill(value)
		}
	}
	return fmt.Errorf("no visible element among %v", selectors)
}

func (f *BrowserFetcher) clickFirstVisible(selectors []string) error {
	for _, sel := range selectors {
		el := f.page.Locator(sel).First()
		if visible, _ := el.IsVisible(); visible {
			return el.Click()
		}
	}
	return fmt.Errorf("no visible element among %v", selectors)
}

func (f *BrowserFetcher) handleConsent() {
	consentSelectors := []string{
		"button:has-text('Consent')",
		"button[id*='accept']",
		"#onetrust-accept-btn-handler",
		"button:has-text('Accept All')",
		"button:has-text('Agree')",
	}
	for _, sel := range consentSelectors {
		btn := f.page.Locator(sel).First()
		if visible, _ := btn.IsVisible(); visible {
			btn.Click()
			f.page.WaitForTimeout(1500)
			break
		}
	}
}

func (f *BrowserFetcher) simulateHumanBehavior() {
	f.page.Mouse().Move(float64(300+rand.Intn(400)), float64(200+rand.Intn(300)))
	f.page.WaitForTimeout(float64(150 + rand.Intn(300)))
	f.page.Mouse().Move(float64(400+rand.Intn(300)), float64(300+rand.Intn(200)))

	scrollAmount := 150 + rand.Intn(400)
	f.page.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, scrollAmount))
}

func (f *BrowserFetcher) humanDelay(minMs, maxMs int) {
	delay := minMs + rand.Intn(maxMs-minMs)
	time.Sleep(time.Duration(delay) * time.Millisecond)
}
