package harvest

import (
	"strings"
)

// Flag records where a candidate address was observed.
type Flag uint16

// Provenance flags. The set is closed; Flags is a bitset over these values.
const (
	FlagText Flag = 1 << iota
	FlagBody
	FlagElement
	FlagMailto
	FlagContactPage
	FlagHeader
	FlagFooter
	FlagNearContact
	FlagForm
	FlagHiddenField
	FlagObfuscated
	FlagAccessibility
	FlagScript
	FlagMeta
	FlagSource

	flagSentinel
)

var flagNames = map[Flag]string{
	FlagText:          "text",
	FlagBody:          "body",
	FlagElement:       "element",
	FlagMailto:        "mailto",
	FlagContactPage:   "contact_page",
	FlagHeader:        "header",
	FlagFooter:        "footer",
	FlagNearContact:   "near_contact",
	FlagForm:          "form",
	FlagHiddenField:   "hidden_field",
	FlagObfuscated:    "obfuscated",
	FlagAccessibility: "accessibility",
	FlagScript:        "script",
	FlagMeta:          "meta",
	FlagSource:        "source",
}

// Flags is a set of provenance flags.
type Flags uint16

// NewFlags builds a set from individual flags.
func NewFlags(flags ...Flag) Flags {
	var out Flags
	for _, f := range flags {
		out |= Flags(f)
	}
	return out
}

// Has reports whether f is in the set.
func (s Flags) Has(f Flag) bool { return s&Flags(f) != 0 }

// With returns the set plus f.
func (s Flags) With(f Flag) Flags { return s | Flags(f) }

// Union merges two sets.
func (s Flags) Union(o Flags) Flags { return s | o }

// Empty reports whether no flag is set.
func (s Flags) Empty() bool { return s == 0 }

// Only reports whether every flag in s is contained in allowed.
func (s Flags) Only(allowed Flags) bool { return s&^allowed == 0 }

// List returns the flags in declaration order.
func (s Flags) List() []Flag {
	var out []Flag
	for f := FlagText; f < flagSentinel; f <<= 1 {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (f Flag) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	return "unknown"
}

func (s Flags) String() string {
	flags := s.List()
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		names = append(names, f.String())
	}
	return strings.Join(names, "|")
}

// Candidate is an address observed during a harvest with its merged provenance.
type Candidate struct {
	Address string
	Flags   Flags
}

// CandidateSet accumulates candidates in discovery order, merging flags of
// repeated sightings. Addresses are keyed case-insensitively.
type CandidateSet struct {
	order []string
	index map[string]int
	items []Candidate
}

// NewCandidateSet returns an empty set.
func NewCandidateSet() *CandidateSet {
	return &CandidateSet{index: make(map[string]int)}
}

// Add records a sighting of address with flags.
func (c *CandidateSet) Add(address string, flags Flags) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return
	}
	if i, ok := c.index[key]; ok {
		c.items[i].Flags = c.items[i].Flags.Union(flags)
		return
	}
	c.index[key] = len(c.items)
	c.order = append(c.order, key)
	c.items = append(c.items, Candidate{Address: key, Flags: flags})
}

// AddAll records each candidate in order.
func (c *CandidateSet) AddAll(candidates []Candidate) {
	for _, cand := range candidates {
		c.Add(cand.Address, cand.Flags)
	}
}

// Merge folds other into c, preserving c's order for known addresses.
func (c *CandidateSet) Merge(other *CandidateSet) {
	if other == nil {
		return
	}
	c.AddAll(other.items)
}

// Len returns the number of unique addresses.
func (c *CandidateSet) Len() int { return len(c.items) }

// Flags returns the merged flags for address.
func (c *CandidateSet) Flags(address string) (Flags, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(address))]
	if !ok {
		return 0, false
	}
	return c.items[i].Flags, true
}

// Addresses returns unique addresses in discovery order.
func (c *CandidateSet) Addresses() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Candidates returns a copy of the merged candidates in discovery order.
func (c *CandidateSet) Candidates() []Candidate {
	out := make([]Candidate, len(c.items))
	copy(out, c.items)
	return out
}
