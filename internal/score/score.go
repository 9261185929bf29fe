// Package score ranks candidate addresses for a business domain.
package score

import (
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

var (
	primaryPrefixes = map[string]struct{}{
		"info": {}, "contact": {}, "hello": {}, "enquiries": {},
		"support": {}, "sales": {}, "bookings": {}, "reservations": {},
	}
	secondaryPrefixes = map[string]struct{}{
		"admin": {}, "office": {}, "mail": {}, "help": {}, "general": {},
	}
	departmentPrefixes = map[string]struct{}{
		"press": {}, "media": {}, "jobs": {}, "careers": {}, "hr": {},
	}
	numericPrefix = regexp.MustCompile(`^\d+$`)
	hashPrefix    = regexp.MustCompile(`[a-f0-9]{8,}`)
)

var provenanceBonus = map[harvest.Flag]int{
	harvest.FlagContactPage:   30,
	harvest.FlagMailto:        20,
	harvest.FlagForm:          20,
	harvest.FlagFooter:        15,
	harvest.FlagNearContact:   15,
	harvest.FlagHeader:        10,
	harvest.FlagObfuscated:    10,
	harvest.FlagAccessibility: 5,
	harvest.FlagScript:        0,
	harvest.FlagMeta:          0,
}

// textual sightings share a single bonus.
var textual = harvest.NewFlags(harvest.FlagText, harvest.FlagBody, harvest.FlagElement)

var lowTrust = harvest.NewFlags(harvest.FlagSource, harvest.FlagScript, harvest.FlagMeta)

// Score rates address for domain given its merged provenance. The result is in
// [0,100]. ok is false when the address has no parsable domain; such addresses
// score 0 and should be dropped.
func Score(address, domain string, flags harvest.Flags) (score int, ok bool) {
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 || strings.Count(address, "@") != 1 {
		return 0, false
	}
	prefix := strings.ToLower(address[:at])
	emailDomain := strings.ToLower(address[at+1:])
	domain = strings.ToLower(domain)

	score = 10
	switch {
	case domain == "":
	case emailDomain == domain:
		score += 50
	case strings.HasSuffix(emailDomain, "."+domain):
		score += 30
	case strings.Contains(emailDomain, domain):
		score += 15
	}

	score += prefixScore(prefix)

	for f, bonus := range provenanceBonus {
		if flags.Has(f) {
			score += bonus
		}
	}
	if flags&textual != 0 {
		score += 5
	}

	if flags&lowTrust != 0 && flags.Only(lowTrust) {
		score -= 10
	}
	return clamp(score), true
}

func prefixScore(prefix string) int {
	if _, ok := primaryPrefixes[prefix]; ok {
		return 25
	}
	if _, ok := secondaryPrefixes[prefix]; ok {
		return 15
	}
	if _, ok := departmentPrefixes[prefix]; ok {
		return 10
	}
	switch {
	case len(prefix) <= 3 && !numericPrefix.MatchString(prefix):
		return -5
	case numericPrefix.MatchString(prefix):
		return -10
	case hashPrefix.MatchString(prefix):
		return -15
	}
	return 0
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Prioritize orders addresses by their maximum observed score, highest first.
// Each address appears once; equal scores keep first-discovery order.
func Prioritize(scored []harvest.ScoredEmail) []harvest.ScoredEmail {
	best := make(map[string]int, len(scored))
	order := make([]string, 0, len(scored))
	for _, s := range scored {
		prev, seen := best[s.Address]
		if !seen {
			order = append(order, s.Address)
			best[s.Address] = s.Score
			continue
		}
		if s.Score > prev {
			best[s.Address] = s.Score
		}
	}
	out := make([]harvest.ScoredEmail, 0, len(order))
	for _, addr := range order {
		out = append(out, harvest.ScoredEmail{Address: addr, Score: best[addr]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Addresses returns just the addresses of a prioritized list.
func Addresses(ranked []harvest.ScoredEmail) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Address
	}
	return out
}
