package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// LightPool hands out sessions that fetch without a browser. It is used when
// rendering is disabled.
type LightPool struct {
	fetcher harvest.LightFetcher
}

// NewLightPool wraps fetcher as a session pool.
func NewLightPool(fetcher harvest.LightFetcher) *LightPool {
	return &LightPool{fetcher: fetcher}
}

// Acquire returns a light session.
func (p *LightPool) Acquire(context.Context) (harvest.Session, error) {
	if p.fetcher == nil {
		return nil, fmt.Errorf("light session: %w", harvest.ErrRenderingDisabled)
	}
	return &LightSession{fetcher: p.fetcher}, nil
}

// Release is a no-op; light sessions hold no resources.
func (p *LightPool) Release(harvest.Session) {}

// LightSession navigates with a plain HTTP fetch and cannot run scripts.
type LightSession struct {
	fetcher harvest.LightFetcher
}

// Navigate fetches pageURL.
func (s *LightSession) Navigate(ctx context.Context, pageURL string) (*harvest.Page, error) {
	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("light navigate: %w", err)
	}
	return page, nil
}

// Evaluate always fails with harvest.ErrRenderingDisabled.
func (s *LightSession) Evaluate(context.Context, string, any) error {
	return harvest.ErrRenderingDisabled
}

// Alive is always true.
func (s *LightSession) Alive(context.Context) bool { return true }
