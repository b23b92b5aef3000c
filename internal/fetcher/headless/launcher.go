package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/rankwatch/internal/policy/ratelimit"
	"github.com/JakeFAU/rankwatch/internal/rank"
)

// Launcher starts one Chrome process per crawl.
type Launcher struct {
	cfg     Config
	logger  *zap.Logger
	sem     chan struct{}
	filter  *requestFilter
	limiter *ratelimit.Limiter
}

// NewLauncher validates cfg and prepares the shared slot semaphore and host limiter.
func NewLauncher(cfg Config, logger *zap.Logger) (*Launcher, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var sem chan struct{}
	if cfg.MaxParallel > 0 {
		sem = make(chan struct{}, cfg.MaxParallel)
	}
	return &Launcher{
		cfg:     cfg,
		logger:  logger.Named("headless"),
		sem:     sem,
		filter:  newRequestFilter(cfg),
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.NavigationQPS, Burst: 1}),
	}, nil
}

// Launch starts a browser bound to ctx. Cancelling ctx kills the process.
func (l *Launcher) Launch(ctx context.Context) (rank.Browser, error) {
	release, err := l.acquireSlot(ctx)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(l.cfg.UserAgent),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		release()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	l.logger.Debug("browser started")

	return &Browser{
		launcher: l,
		ctx:      browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		release: release,
	}, nil
}

func (l *Launcher) acquireSlot(ctx context.Context) (func(), error) {
	if l.sem == nil {
		return func() {}, nil
	}
	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-l.sem }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire browser slot: %w", ctx.Err())
	}
}

// Browser is one running Chrome process.
type Browser struct {
	launcher *Launcher
	ctx      context.Context
	cancel   func()
	release  func()
	once     sync.Once
}

// OpenPage opens a tab with request blocking and, when opts.Region is set, locality cookies.
func (b *Browser) OpenPage(ctx context.Context, opts rank.PageOptions) (rank.Page, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, fmt.Errorf("browser closed: %w", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	p := newPage(tabCtx, tabCancel, b.launcher)
	p.listen()

	setupCtx, cancel := context.WithTimeout(tabCtx, b.launcher.cfg.DOMTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(setupCtx, p.setupActions(opts.Region)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("prepare tab: %w", err)
	}
	return p, nil
}

// Close terminates the browser process and frees its slot. It is safe to call twice.
func (b *Browser) Close() error {
	b.once.Do(func() {
		b.cancel()
		b.release()
		b.launcher.logger.Debug("browser closed")
	})
	return nil
}

// forwardCancel cancels cancel when parent is done, until the returned stop is called.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
