package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// Evaluator runs a script in a live document. harvest.Session satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, out any) error
}

// Findings is everything one page yielded.
type Findings struct {
	Candidates *harvest.CandidateSet
	Social     harvest.SocialProfiles
	Failures   map[string]error
}

// Extractor runs an ordered list of strategies over a page.
type Extractor struct {
	strategies []Strategy
	logger     *zap.Logger
}

// New returns an Extractor. When no strategies are given the defaults are used.
func New(logger *zap.Logger, strategies ...Strategy) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{strategies: strategies, logger: logger}
}

// Extract parses page and runs every static strategy plus social extraction.
func (e *Extractor) Extract(page *harvest.Page) Findings {
	findings := Findings{
		Candidates: harvest.NewCandidateSet(),
		Social:     harvest.SocialProfiles{},
		Failures:   map[string]error{},
	}
	doc, err := NewDocument(page)
	if err != nil {
		findings.Failures["parse"] = err
		return findings
	}
	for _, s := range e.strategies {
		outcome := runStrategy(s, doc)
		findings.Candidates.AddAll(outcome.Candidates)
		if outcome.Err != nil {
			findings.Failures[s.Name()] = outcome.Err
			e.logger.Debug("strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("url", doc.URL),
				zap.Error(outcome.Err),
			)
			continue
		}
		if n := len(outcome.Candidates); n > 0 {
			e.logger.Debug("strategy matched",
				zap.String("strategy", s.Name()),
				zap.String("url", doc.URL),
				zap.Int("candidates", n),
			)
		}
	}
	findings.Social = Social(doc, !doc.Rendered)
	return findings
}

// ExtractRendered runs Extract and then the script-driven strategies against
// the live document behind eval.
func (e *Extractor) ExtractRendered(ctx context.Context, page *harvest.Page, eval Evaluator) Findings {
	findings := e.Extract(page)
	if eval == nil {
		return findings
	}
	base := harvest.Flags(0)
	if IsContactPage(page.URL) {
		base = base.With(harvest.FlagContactPage)
	}

	var fragments []string
	if err := eval.Evaluate(ctx, ObfuscationScript, &fragments); err != nil {
		findings.Failures["rendered_obfuscated"] = err
	}
	for _, f := range fragments {
		for _, addr := range FromText(f) {
			findings.Candidates.Add(addr, base.With(harvest.FlagObfuscated))
		}
	}

	var bodyText string
	if err := eval.Evaluate(ctx, bodyTextScript, &bodyText); err != nil {
		findings.Failures["rendered_body"] = err
	}
	for _, addr := range FromText(bodyText) {
		findings.Candidates.Add(addr, base.With(harvest.FlagBody))
	}
	return findings
}

func runStrategy(s Strategy, doc *Document) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Err: fmt.Errorf("strategy %s panicked: %v", s.Name(), r)}
		}
	}()
	return s.Extract(doc)
}

const bodyTextScript = `document.body ? document.body.innerText : ""`

// ObfuscationScript collects data-attribute assembled addresses and short
// text fragments that may hide an address.
const ObfuscationScript = `(() => {
  const results = new Set();
  document.querySelectorAll('[data-email], [data-user], [data-name], [data-domain], [data-host]').forEach(el => {
    try {
      let email = el.dataset.email || null;
      if (!email) {
        const name = el.dataset.name || el.dataset.user || null;
        const domain = el.dataset.domain || el.dataset.host || null;
        if (name && domain) { email = name + '@' + domain; }
      }
      if (email && email.includes('@') && email.includes('.')) { results.add(email.toLowerCase().trim()); }
      const text = el.innerText || el.textContent || '';
      if ((text.includes('@') || text.includes('(at)') || text.includes('[at]')) && text.length < 100) { results.add(text); }
    } catch (e) {}
  });
  document.querySelectorAll('span').forEach(span => {
    try {
      if (span.innerText && span.innerText.includes('@')) { results.add(span.innerText.toLowerCase().trim()); }
    } catch (e) {}
  });
  return Array.from(results);
})()`
