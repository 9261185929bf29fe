// Package headless provides the rich fetch mode: rendering sessions backed by
// headless Chrome through chromedp, and a light fallback when rendering is off.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/fetcher/useragent"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// Config controls the behavior of the rendering sessions.
type Config struct {
	// MaxParallel caps live browsers; 0 means unlimited.
	MaxParallel     int
	Headless        bool
	ExecPath        string
	PageLoadTimeout time.Duration
	ScriptTimeout   time.Duration
	BodyWait        time.Duration
	MaxFrameDepth   int
	// UserAgent pins the agent; empty picks a random one per session.
	UserAgent string
}

func (c Config) withDefaults() Config {
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = 30 * time.Second
	}
	if c.ScriptTimeout <= 0 {
		c.ScriptTimeout = 15 * time.Second
	}
	if c.BodyWait <= 0 {
		c.BodyWait = 5 * time.Second
	}
	if c.MaxFrameDepth < 0 {
		c.MaxFrameDepth = 0
	}
	return c
}

// Pool implements harvest.SessionPool with one Chrome process per session.
type Pool struct {
	cfg     Config
	limiter chan struct{}
	logger  *zap.Logger
}

// NewPool creates a pool of chromedp sessions.
func NewPool(cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Pool{cfg: cfg.withDefaults(), limiter: limiter, logger: logger}, nil
}

// Acquire starts a browser and returns a session bound to it. Release must be
// called exactly once for every successful Acquire.
func (p *Pool) Acquire(ctx context.Context) (harvest.Session, error) {
	if err := p.acquireSlot(ctx); err != nil {
		return nil, err
	}
	ua := p.cfg.UserAgent
	if ua == "" {
		ua = useragent.Random()
	}
	lang := useragent.Language()

	// The browser outlives the caller's context so shutdown never kills a render.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), p.allocatorOptions(ua, lang)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:    p.cfg,
		ctx:    browserCtx,
		meta:   newResponseMeta(),
		logger: p.logger,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}
	chromedp.ListenTarget(browserCtx, s.meta.captureEvent)

	// The first Run owns the browser lifetime, so it gets the unbounded context.
	if err := chromedp.Run(browserCtx); err != nil {
		s.cancel()
		p.releaseSlot()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	setupCtx, cancel := context.WithTimeout(browserCtx, p.cfg.PageLoadTimeout)
	defer cancel()
	if err := chromedp.Run(setupCtx, setupAction(ua, lang)); err != nil {
		s.cancel()
		p.releaseSlot()
		return nil, fmt.Errorf("configure browser: %w", err)
	}
	return s, nil
}

// Release closes the session's browser and frees its slot.
func (p *Pool) Release(session harvest.Session) {
	if s, ok := session.(*Session); ok && s != nil {
		s.close()
	}
	p.releaseSlot()
}

func (p *Pool) allocatorOptions(ua, lang string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("lang", primaryLanguage(lang)),
		chromedp.UserAgent(ua),
	)
	if p.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
	}
	return opts
}

func (p *Pool) acquireSlot(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	select {
	case p.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (p *Pool) releaseSlot() {
	if p.limiter == nil {
		return
	}
	select {
	case <-p.limiter:
	default:
	}
}

// stealthScript hides the usual automation fingerprints from page scripts.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
window.chrome = window.chrome || { runtime: {} };`

func setupAction(ua, lang string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(ua).WithAcceptLanguage(lang).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
			return fmt.Errorf("install stealth script: %w", err)
		}
		return nil
	})
}

func primaryLanguage(acceptLanguage string) string {
	lang, _, _ := strings.Cut(acceptLanguage, ",")
	return strings.TrimSpace(lang)
}

// Session is one live browser tab. It is not safe for concurrent use.
type Session struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	meta   *responseMeta
	logger *zap.Logger
	once   sync.Once
}

// Navigate loads pageURL, dismisses any cookie banner and returns the rendered HTML.
func (s *Session) Navigate(ctx context.Context, pageURL string) (*harvest.Page, error) {
	if s.ctx.Err() != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, harvest.ErrSessionLost)
	}
	s.meta.reset()

	navCtx, cancel := s.scoped(ctx, s.cfg.PageLoadTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(pageURL))
	timedOut := errors.Is(navCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil && !(timedOut && s.ctx.Err() == nil) {
		return nil, s.classify(fmt.Errorf("navigate %s: %w", pageURL, err))
	}
	if timedOut {
		s.logger.Debug("page load timed out, extracting partial document", zap.String("url", pageURL))
	}

	bodyCtx, cancel := s.scoped(ctx, s.cfg.BodyWait)
	if err := chromedp.Run(bodyCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		s.logger.Debug("body not ready", zap.String("url", pageURL), zap.Error(err))
	}
	cancel()

	consentCtx, cancel := s.scoped(ctx, s.cfg.ScriptTimeout)
	if dismissed := newConsentDismisser(s.cfg.MaxFrameDepth).Dismiss(consentCtx); dismissed {
		s.logger.Debug("dismissed cookie consent", zap.String("url", pageURL))
	}
	cancel()

	var html, finalURL string
	htmlCtx, cancel := s.scoped(ctx, s.cfg.ScriptTimeout)
	defer cancel()
	if err := chromedp.Run(htmlCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, s.classify(fmt.Errorf("capture %s: %w", pageURL, err))
	}

	status, responseURL := s.meta.snapshotWithFallbacks(pageURL, finalURL)
	return &harvest.Page{
		URL:        responseURL,
		StatusCode: status,
		Body:       []byte(html),
		Rendered:   true,
	}, nil
}

// Evaluate runs script in the current document and decodes its result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	if s.ctx.Err() != nil {
		return harvest.ErrSessionLost
	}
	evalCtx, cancel := s.scoped(ctx, s.cfg.ScriptTimeout)
	defer cancel()
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(script, out)); err != nil {
		return s.classify(fmt.Errorf("evaluate: %w", err))
	}
	return nil
}

// Alive reports whether the browser still answers.
func (s *Session) Alive(ctx context.Context) bool {
	if s.ctx.Err() != nil {
		return false
	}
	var one int
	return s.Evaluate(ctx, "1", &one) == nil
}

func (s *Session) close() {
	s.once.Do(s.cancel)
}

// scoped derives a context from the browser with a timeout that also ends
// when the caller's context does.
func (s *Session) scoped(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	scoped, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return scoped, func() {
		stop()
		cancel()
	}
}

var lostMarkers = []string{
	"target closed",
	"target crashed",
	"session closed",
	"websocket",
	"connection refused",
	"no such target",
}

// classify maps errors that mean the browser is gone to harvest.ErrSessionLost.
func (s *Session) classify(err error) error {
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil ||
		errors.Is(err, chromedp.ErrInvalidContext) ||
		errors.Is(err, chromedp.ErrInvalidTarget) ||
		errors.Is(err, chromedp.ErrChannelClosed) {
		return fmt.Errorf("%w: %v", harvest.ErrSessionLost, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range lostMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", harvest.ErrSessionLost, err)
		}
	}
	return err
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// The first document response belongs to the top frame; iframes come later.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status = 0
	m.url = ""
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
