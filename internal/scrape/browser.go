package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"planforge/internal/core"
	"planforge/internal/logging"
)

// BrowserConfig configures the headless browser scraper.
type BrowserConfig struct {
	BrowserPath string
	Timeout     time.Duration
}

// BrowserScraper implements core.ScrapeAPI with a shared headless Chrome
// session for pages that render their content with JavaScript. The browser
// launches lazily on first use.
type BrowserScraper struct {
	cfg BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowserScraper creates a browser scraper. The browser is not launched
// until the first Scrape call.
func NewBrowserScraper(cfg BrowserConfig) *BrowserScraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &BrowserScraper{cfg: cfg}
}

func (b *BrowserScraper) ensureStarted(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return b.browser, nil
		}
		logging.Scrape("stale browser connection, relaunching")
		_ = b.browser.Close()
		b.browser = nil
	}

	launch := launcher.New().Headless(true)
	if b.cfg.BrowserPath != "" {
		launch = launch.Bin(b.cfg.BrowserPath)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("scrape: launch chrome: %w: %v", core.ErrNetwork, err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("scrape: connect to chrome: %w: %v", core.ErrNetwork, err)
	}
	b.browser = browser
	logging.Scrape("headless browser started")
	return browser, nil
}

// Scrape renders the page and returns its post-JavaScript HTML.
func (b *BrowserScraper) Scrape(ctx context.Context, rawURL string) (*core.ScrapedPage, error) {
	if !validURL(rawURL) {
		return nil, fmt.Errorf("scrape: invalid url %q: %w", rawURL, core.ErrInvalidInput)
	}

	browser, err := b.ensureStarted(ctx)
	if err != nil {
		return nil, err
	}

	timer := logging.StartTimer(logging.CategoryScrape, "BrowserScrape")
	defer timer.StopWithThreshold(10 * time.Second)

	page, err := browser.Page(proto.TargetCreateTarget{URL: rawURL})
	if err != nil {
		return nil, fmt.Errorf("scrape: open page: %w: %v", core.ErrNetwork, err)
	}
	defer page.Close()

	page = page.Timeout(b.cfg.Timeout).Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("scrape: wait load %s: %w: %v", rawURL, core.ErrNetwork, err)
	}

	rendered, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("scrape: read html %s: %w: %v", rawURL, core.ErrNetwork, err)
	}

	return &core.ScrapedPage{
		URL:       rawURL,
		Title:     ExtractTitle(rendered),
		Text:      rendered,
		Kind:      ClassifyPage(rawURL, "text/html"),
		FetchedAt: time.Now(),
	}, nil
}

// Close shuts the browser down.
func (b *BrowserScraper) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
