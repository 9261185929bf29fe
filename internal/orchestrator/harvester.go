// Package orchestrator drives the per-record harvest: normalize, breaker check,
// light fetch, rich render, contact-page sweep, then clean, score and rank.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/clean"
	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/metrics"
	"github.com/JakeFAU/contact-harvester/internal/score"
)

// Breaker is the per-domain failure isolation the harvester consults.
// *breaker.Breaker satisfies it.
type Breaker interface {
	IsOpen(domain string) bool
	RecordFailure(domain string) bool
	RecordSuccess(domain string)
}

// Config tunes a Harvester.
type Config struct {
	// TargetEmails stops the contact sweep once this many unique addresses are known.
	TargetEmails int
	MinDelay     time.Duration
	MaxDelay     time.Duration
	// ContactPaths overrides extract.ContactPaths when set.
	ContactPaths []string
	// SkipLight disables the cheap fetch of the home page.
	SkipLight bool
}

// Sleeper pauses between contact pages. It returns early when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration)

// Harvester runs one harvest at a time per call; it is safe for concurrent use
// as long as each call gets its own Session.
type Harvester struct {
	light     harvest.LightFetcher
	breaker   Breaker
	extractor *extract.Extractor
	cfg       Config
	sleep     Sleeper
	logger    *zap.Logger
}

// New constructs a Harvester. light may be nil.
func New(light harvest.LightFetcher, br Breaker, extractor *extract.Extractor, cfg Config, logger *zap.Logger) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = extract.New(logger)
	}
	if cfg.TargetEmails <= 0 {
		cfg.TargetEmails = 3
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if len(cfg.ContactPaths) == 0 {
		cfg.ContactPaths = extract.ContactPaths
	}
	return &Harvester{
		light:     light,
		breaker:   br,
		extractor: extractor,
		cfg:       cfg,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// WithSleeper replaces the politeness sleeper.
func (h *Harvester) WithSleeper(s Sleeper) *Harvester {
	h.sleep = s
	return h
}

// run holds the state of a single harvest.
type run struct {
	site       string
	domain     string
	candidates *harvest.CandidateSet
	social     harvest.SocialProfiles
	pages      int
	fatal      error
}

// Harvest examines website with session and returns a ranked result. It always
// returns exactly one terminal status.
func (h *Harvester) Harvest(ctx context.Context, session harvest.Session, website, businessName string) harvest.Result {
	start := time.Now()
	result := h.harvest(ctx, session, website, businessName)
	result.Duration = time.Since(start)
	metrics.ObserveRecord(string(result.Status), len(result.Emails), result.Duration)
	return result
}

func (h *Harvester) harvest(ctx context.Context, session harvest.Session, website, businessName string) harvest.Result {
	site, err := harvest.NormalizeWebsite(website)
	if err != nil {
		h.logger.Debug("skipping record", zap.String("website", website), zap.Error(err))
		return harvest.Result{Website: website, Status: harvest.StatusSkipped, Err: err}
	}
	r := &run{
		site:       site,
		domain:     harvest.Domain(site),
		candidates: harvest.NewCandidateSet(),
		social:     harvest.SocialProfiles{},
	}
	logger := h.logger.With(zap.String("domain", r.domain), zap.String("business", businessName))

	if h.breaker != nil && h.breaker.IsOpen(r.domain) {
		logger.Info("circuit open, skipping domain")
		return h.finish(r, harvest.StatusFailed, errBreakerOpen)
	}

	if !h.cfg.SkipLight && h.light != nil {
		h.lightFetch(ctx, r, logger)
	}

	if session != nil {
		if err := h.render(ctx, session, r, site, logger); err != nil {
			h.recordFailure(r.domain)
			if errors.Is(err, harvest.ErrSessionLost) {
				logger.Warn("rendering session lost on home page", zap.Error(err))
				return h.finish(r, harvest.StatusFailed, err)
			}
			logger.Info("home page render failed", zap.Error(err))
		}
		h.sweep(ctx, session, r, logger)
	}

	ranked := h.rank(r)
	result := h.finish(r, harvest.StatusChecked, r.fatal)
	result.Scored = ranked
	result.Emails = score.Addresses(ranked)
	switch {
	case len(result.Emails) > 0:
		result.Status = harvest.StatusFound
		result.Err = nil
		h.recordSuccess(r.domain)
	case r.fatal != nil:
		result.Status = harvest.StatusFailed
	default:
		h.recordSuccess(r.domain)
	}
	logger.Info("harvest finished",
		zap.String("status", string(result.Status)),
		zap.Int("emails", len(result.Emails)),
		zap.Int("social", len(result.SocialProfiles)),
		zap.Int("pages", r.pages),
	)
	return result
}

var errBreakerOpen = errors.New("circuit open for domain")

func (h *Harvester) lightFetch(ctx context.Context, r *run, logger *zap.Logger) {
	start := time.Now()
	page, err := h.light.Fetch(ctx, r.site)
	if err != nil {
		metrics.ObserveFetch("light", "error", time.Since(start))
		logger.Debug("light fetch failed", zap.Error(err))
		return
	}
	metrics.ObserveFetch("light", "ok", time.Since(start))
	r.pages++
	h.merge(r, h.extractor.Extract(page))
}

func (h *Harvester) render(ctx context.Context, session harvest.Session, r *run, pageURL string, logger *zap.Logger) error {
	start := time.Now()
	page, err := session.Navigate(ctx, pageURL)
	if err != nil {
		metrics.ObserveFetch("rich", "error", time.Since(start))
		return err
	}
	metrics.ObserveFetch("rich", "ok", time.Since(start))
	r.pages++
	findings := h.extractor.ExtractRendered(ctx, page, session)
	for name, ferr := range findings.Failures {
		logger.Debug("extraction step failed",
			zap.String("step", name),
			zap.String("url", pageURL),
			zap.Error(ferr),
		)
	}
	h.merge(r, findings)
	return nil
}

func (h *Harvester) sweep(ctx context.Context, session harvest.Session, r *run, logger *zap.Logger) {
	for i, path := range h.cfg.ContactPaths {
		if r.candidates.Len() >= h.cfg.TargetEmails {
			return
		}
		if i > 0 {
			h.sleep(ctx, h.delay())
		}
		pageURL := harvest.JoinPath(r.site, path)
		if !session.Alive(ctx) {
			h.lose(r, pageURL, fmt.Errorf("session not responding: %w", harvest.ErrSessionLost), logger)
			return
		}
		err := h.render(ctx, session, r, pageURL, logger)
		if err == nil {
			continue
		}
		if !errors.Is(err, harvest.ErrSessionLost) && session.Alive(ctx) {
			logger.Debug("contact page failed", zap.String("url", pageURL), zap.Error(err))
			continue
		}
		if !errors.Is(err, harvest.ErrSessionLost) {
			err = fmt.Errorf("%w: %w", harvest.ErrSessionLost, err)
		}
		h.lose(r, pageURL, err, logger)
		return
	}
}

// lose records a dead session against the domain and ends the sweep.
func (h *Harvester) lose(r *run, pageURL string, err error, logger *zap.Logger) {
	h.recordFailure(r.domain)
	r.fatal = err
	logger.Warn("rendering session lost during contact sweep",
		zap.String("url", pageURL),
		zap.Error(err),
	)
}

func (h *Harvester) merge(r *run, f extract.Findings) {
	r.candidates.Merge(f.Candidates)
	r.social.Merge(f.Social)
}

// rank cleans the accumulated addresses, scores each with its merged flags and
// orders them.
func (h *Harvester) rank(r *run) []harvest.ScoredEmail {
	cleaned := clean.Clean(r.candidates.Addresses())
	scored := make([]harvest.ScoredEmail, 0, len(cleaned))
	for _, addr := range cleaned {
		flags, _ := r.candidates.Flags(addr)
		s, ok := score.Score(addr, r.domain, flags)
		if !ok {
			continue
		}
		scored = append(scored, harvest.ScoredEmail{Address: addr, Score: s})
	}
	return score.Prioritize(scored)
}

func (h *Harvester) finish(r *run, status harvest.Status, err error) harvest.Result {
	return harvest.Result{
		Website:        r.site,
		Domain:         r.domain,
		Status:         status,
		Emails:         []string{},
		SocialProfiles: r.social.Normalized(),
		PagesVisited:   r.pages,
		Err:            err,
	}
}

func (h *Harvester) recordFailure(domain string) {
	if h.breaker == nil {
		return
	}
	if h.breaker.RecordFailure(domain) {
		h.logger.Warn("circuit opened", zap.String("domain", domain))
	}
}

func (h *Harvester) recordSuccess(domain string) {
	if h.breaker != nil {
		h.breaker.RecordSuccess(domain)
	}
}

func (h *Harvester) delay() time.Duration {
	span := h.cfg.MaxDelay - h.cfg.MinDelay
	if span <= 0 {
		return h.cfg.MinDelay
	}
	return h.cfg.MinDelay + rand.N(span)
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
