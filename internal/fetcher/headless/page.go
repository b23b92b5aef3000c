package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

const (
	eventDOMContentLoaded = "DOMContentLoaded"
	eventNetworkIdle      = "networkIdle"
)

var errHardTimeout = errors.New("hard timeout reached")

// Page is one browser tab.
type Page struct {
	ctx      context.Context
	cancel   context.CancelFunc
	launcher *Launcher
	logger   *zap.Logger

	mu      sync.Mutex
	waiters map[string][]chan struct{}
	doc     documentMeta
}

type documentMeta struct {
	status  int
	headers http.Header
	url     string
}

func newPage(ctx context.Context, cancel context.CancelFunc, l *Launcher) *Page {
	return &Page{
		ctx:      ctx,
		cancel:   cancel,
		launcher: l,
		logger:   l.logger,
		waiters:  make(map[string][]chan struct{}),
	}
}

func (p *Page) listen() {
	chromedp.ListenTarget(p.ctx, func(ev any) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			if inFrame(p.mainFrame(), e.FrameID) {
				p.notify(e.Name)
			}
		case *fetch.EventRequestPaused:
			go p.decide(e)
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument && e.Response != nil && inFrame(p.mainFrame(), e.FrameID) {
				p.captureDocument(e.Response)
			}
		}
	})
}

// mainFrame returns the tab's top-level frame, whose ID equals the target ID.
func (p *Page) mainFrame() cdp.FrameID {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return ""
	}
	return cdp.FrameID(c.Target.TargetID)
}

// inFrame keeps events of the main frame; iframes and trackers fire their own lifecycle.
// An unknown main frame accepts everything.
func inFrame(main, frame cdp.FrameID) bool {
	return main == "" || frame == main
}

// decide runs outside the listener; issuing commands from inside it would deadlock.
func (p *Page) decide(e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(p.ctx, c.Target)
	var err error
	if p.launcher.filter.Blocked(e.Request.URL, e.ResourceType) {
		err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	} else {
		err = fetch.ContinueRequest(e.RequestID).Do(ctx)
	}
	if err != nil && p.ctx.Err() == nil {
		p.logger.Debug("intercept decision failed", zap.String("url", e.Request.URL), zap.Error(err))
	}
}

func (p *Page) captureDocument(resp *network.Response) {
	headers := http.Header{}
	for k, v := range resp.Headers {
		headers.Add(k, fmt.Sprint(v))
	}
	p.mu.Lock()
	p.doc = documentMeta{status: int(resp.Status), headers: headers, url: resp.URL}
	p.mu.Unlock()
}

func (p *Page) resetDocument() {
	p.mu.Lock()
	p.doc = documentMeta{}
	p.mu.Unlock()
}

func (p *Page) document() documentMeta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

func (p *Page) notify(name string) {
	p.mu.Lock()
	chans := p.waiters[name]
	delete(p.waiters, name)
	p.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
}

// await registers interest in the next lifecycle event called name.
func (p *Page) await(name string) <-chan struct{} {
	ch := make(chan struct{})
	p.mu.Lock()
	p.waiters[name] = append(p.waiters[name], ch)
	p.mu.Unlock()
	return ch
}

func (p *Page) setupActions(region *rank.Region) chromedp.Tasks {
	cfg := p.launcher.cfg
	tasks := chromedp.Tasks{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}),
		emulation.SetUserAgentOverride(cfg.UserAgent),
	}
	if region != nil {
		tasks = append(tasks, network.ClearBrowserCookies())
		for _, name := range cfg.CookieNames {
			tasks = append(tasks, network.SetCookie(name, region.Code).WithDomain(cfg.CookieDomain).WithPath("/"))
		}
	}
	return tasks
}

// Load navigates to url and returns whatever HTML is present. It never fails.
func (p *Page) Load(ctx context.Context, url string) rank.Document {
	doc := rank.Document{URL: url}
	logger := p.logger.With(zap.String("url", url))

	if err := p.launcher.limiter.Wait(ctx, url); err != nil {
		logger.Warn("navigation budget wait aborted", zap.Error(err))
		return doc
	}

	loadCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	p.resetDocument()
	if err := p.navigate(loadCtx, url); err != nil {
		if errors.Is(err, errHardTimeout) {
			logger.Warn("navigation hit hard timeout, using partial page")
		} else {
			logger.Warn("navigation failed", zap.Error(err))
		}
	}
	if loadCtx.Err() != nil {
		return doc
	}

	cfg := p.launcher.cfg
	waitCtx, waitCancel := context.WithTimeout(loadCtx, cfg.SelectorWait)
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(cfg.ContentSelector, chromedp.ByQuery)); err != nil {
		logger.Info("content selector not present", zap.Duration("waited", cfg.SelectorWait))
	}
	waitCancel()

	captureCtx, captureCancel := context.WithTimeout(loadCtx, cfg.CaptureTimeout)
	defer captureCancel()
	var html, finalURL string
	if err := chromedp.Run(captureCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		logger.Warn("capture html failed", zap.Error(err))
		return doc
	}
	if finalURL != "" {
		doc.URL = finalURL
	}
	doc.HTML = html
	return doc
}

// navigate waits for DOMContentLoaded; on failure it re-navigates and accepts
// networkIdle or the hard timer, whichever comes first.
func (p *Page) navigate(ctx context.Context, url string) error {
	cfg := p.launcher.cfg
	err := p.navigateUntil(ctx, url, eventDOMContentLoaded, cfg.DOMTimeout)
	if err == nil || ctx.Err() != nil {
		return err
	}
	p.logger.Info("content-parsed wait failed, falling back to network idle",
		zap.String("url", url),
		zap.Error(err),
	)

	idleCtx, idleCancel := context.WithCancel(ctx)
	defer idleCancel()
	idleDone := make(chan error, 1)
	go func() {
		idleDone <- p.navigateUntil(idleCtx, url, eventNetworkIdle, cfg.IdleTimeout)
	}()

	hard := time.NewTimer(cfg.HardTimeout)
	defer hard.Stop()
	select {
	case err := <-idleDone:
		return err
	case <-hard.C:
		idleCancel()
		return errHardTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// navigateUntil starts a navigation and returns once the named lifecycle event fires.
func (p *Page) navigateUntil(ctx context.Context, url, event string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fired := p.await(event)
	navErr := make(chan error, 1)
	go func() {
		navErr <- chromedp.Run(navCtx, chromedp.Navigate(url))
	}()

	for {
		select {
		case <-fired:
			return nil
		case err := <-navErr:
			if err != nil {
				select {
				case <-fired:
					return nil
				default:
				}
				return fmt.Errorf("navigate: %w", err)
			}
			// Navigate returned after the load event, which follows both lifecycle events.
			navErr = nil
			select {
			case <-fired:
				return nil
			case <-navCtx.Done():
				return fmt.Errorf("wait %s: %w", event, navCtx.Err())
			}
		case <-navCtx.Done():
			return fmt.Errorf("wait %s: %w", event, navCtx.Err())
		}
	}
}

// Status returns the main document's HTTP status and headers from the last Load.
func (p *Page) Status() (int, http.Header) {
	doc := p.document()
	return doc.status, doc.headers
}

// Close closes the tab.
func (p *Page) Close() {
	p.cancel()
}
