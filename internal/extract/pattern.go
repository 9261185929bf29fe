package extract

import (
	"html"
	"regexp"
	"strings"
)

// EmailPattern is the canonical address pattern applied to every text source.
var EmailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.(?:co\.uk|org\.uk|ac\.uk|gov\.uk|nhs\.uk|[a-zA-Z]{2,})`)

var deobfuscators = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`(?i)\s*\[\s*(?:at|@)\s*\]\s*`), "@"},
	{regexp.MustCompile(`(?i)\s*\[\s*(?:dot|\.)\s*\]\s*`), "."},
	{regexp.MustCompile(`(?i)\s*\(\s*(?:at|@)\s*\)\s*`), "@"},
	{regexp.MustCompile(`(?i)\s*\(\s*(?:dot|\.)\s*\)\s*`), "."},
	{regexp.MustCompile(`(?i) at `), "@"},
	{regexp.MustCompile(`(?i) dot `), "."},
}

// Deobfuscate decodes HTML entities and rewrites textual [at]/[dot] style
// substitutions back into address punctuation.
func Deobfuscate(text string) string {
	out := html.UnescapeString(text)
	for _, d := range deobfuscators {
		out = d.pattern.ReplaceAllString(out, d.repl)
	}
	return out
}

// FromText returns every address found in text after de-obfuscation, in order
// of appearance. Duplicates are kept; callers merge them.
func FromText(text string) []string {
	if text == "" {
		return nil
	}
	decoded := Deobfuscate(text)
	if !strings.Contains(decoded, "@") {
		return nil
	}
	return EmailPattern.FindAllString(decoded, -1)
}
