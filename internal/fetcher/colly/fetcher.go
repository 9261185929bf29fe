// Package collyfetcher implements the light fetch mode using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/contact-harvester/internal/fetcher/useragent"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// Config controls collector behavior.
type Config struct {
	// UserAgent pins the agent; empty picks a random one per fetch.
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Limiter paces requests per domain. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements harvest.LightFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	limiter       Limiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

var errEmptyBody = errors.New("empty response body")

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter Limiter) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.IgnoreRobotsTxt(), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns the HTML body.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*harvest.Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, pageURL); err != nil {
			return nil, err
		}
	}
	var (
		page     harvest.Page
		fetchErr error
	)
	collector := f.buildCollector(pageURL, &page, &fetchErr)
	if err := f.runCollector(ctx, collector, pageURL, &fetchErr); err != nil {
		return nil, err
	}
	return &page, nil
}

func (f *Fetcher) buildCollector(pageURL string, page *harvest.Page, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	if collector.UserAgent == "" {
		collector.UserAgent = useragent.Random()
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, requestHeaders(pageURL), page, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	headers http.Header,
	page *harvest.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = strings.ToLower(r.Headers.Get("Content-Type"))
		}
		if !strings.Contains(contentType, "text/html") {
			*fetchErr = fmt.Errorf("%w: %q", harvest.ErrNotHTML, contentType)
			return
		}
		if len(r.Body) == 0 {
			*fetchErr = errEmptyBody
			return
		}
		*page = harvest.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			*fetchErr = fmt.Errorf("http status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, pageURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func requestHeaders(pageURL string) http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		h.Set("Referer", u.Scheme+"://"+u.Host+"/")
	}
	return h
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
