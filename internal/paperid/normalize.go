// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package paperid canonicalizes the reference forms a work can arrive in
// (bare OpenAlex ids, OpenAlex URLs, DOIs) into one comparable PaperID.
package paperid

import (
	"regexp"
	"strings"

	"github.com/pdiddy/citation-crawler/pkg/types"
)

// DOIPrefix is the canonical form every DOI normalizes to. The works
// endpoint resolves ids of this shape directly.
const DOIPrefix = "https://doi.org/"

var openAlexPrefixes = []string{
	"https://api.openalex.org/works/",
	"http://api.openalex.org/works/",
	"https://api.openalex.org/",
	"http://api.openalex.org/",
	"https://openalex.org/works/",
	"http://openalex.org/works/",
	"https://openalex.org/",
	"http://openalex.org/",
	"openalex:",
}

var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

// localID matches OpenAlex entity ids: works, authors, sources,
// institutions, concepts, publishers, funders, topics.
var localID = regexp.MustCompile(`^[wasicpft][0-9]+$`)

// Normalize maps raw to its canonical PaperID. It never fails: input that
// is neither an OpenAlex id nor a DOI is returned trimmed and otherwise
// unchanged. Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(raw string) types.PaperID {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if rest, ok := cutPrefixFold(s, openAlexPrefixes); ok {
		rest = strings.Trim(rest, "/ ")
		if localID.MatchString(strings.ToLower(rest)) {
			return types.PaperID(strings.ToUpper(rest))
		}
		return types.PaperID(s)
	}

	if localID.MatchString(strings.ToLower(s)) {
		return types.PaperID(strings.ToUpper(s))
	}

	if doi, ok := DOI(s); ok {
		return types.PaperID(DOIPrefix + doi)
	}

	return types.PaperID(s)
}

// DOI extracts the bare, lowercased DOI from s when s is one of the
// accepted DOI forms (10.x/y, doi:10.x/y, doi.org and dx.doi.org URLs).
func DOI(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if rest, ok := cutPrefixFold(s, doiPrefixes); ok {
		s = strings.TrimSpace(rest)
	}
	s = strings.TrimRight(s, "/")
	if !strings.HasPrefix(s, "10.") || !strings.Contains(s, "/") {
		return "", false
	}
	return strings.ToLower(s), true
}

// IsWork reports whether id is a canonical OpenAlex work id (W followed by
// digits).
func IsWork(id types.PaperID) bool {
	s := string(id)
	return len(s) > 1 && s[0] == 'W' && localID.MatchString(strings.ToLower(s))
}

// IsDOI reports whether id is in canonical DOI form.
func IsDOI(id types.PaperID) bool {
	return strings.HasPrefix(string(id), DOIPrefix)
}

// NormalizeAll normalizes every entry in raw, dropping empties and keeping
// the first occurrence of duplicates.
func NormalizeAll(raw []string) []types.PaperID {
	seen := make(map[types.PaperID]bool, len(raw))
	out := make([]types.PaperID, 0, len(raw))
	for _, r := range raw {
		id := Normalize(r)
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func cutPrefixFold(s string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			return s[len(p):], true
		}
	}
	return s, false
}
