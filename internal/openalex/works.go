// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package openalex

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/citation-crawler/internal/paperid"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// OpenAlex API JSON structures.
type listResponse struct {
	Meta    listMeta  `json:"meta"`
	Results []apiWork `json:"results"`
}

type listMeta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

type apiWork struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	CitedByCount          int              `json:"cited_by_count"`
	Authorships           []apiAuthorship  `json:"authorships"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	ReferencedWorks       []string         `json:"referenced_works"`
	RelatedWorks          []string         `json:"related_works"`
	BestOALocation        *apiLocation     `json:"best_oa_location"`
	PrimaryLocation       *apiLocation     `json:"primary_location"`
	Locations             []apiLocation    `json:"locations"`
	IDs                   apiIDs           `json:"ids"`
}

type apiAuthorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type apiLocation struct {
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
}

type apiIDs struct {
	PMCID string `json:"pmcid"`
}

func (w apiWork) toWork() types.Work {
	title := w.Title
	if title == "" {
		title = w.DisplayName
	}
	out := types.Work{
		ID:              normalizeRef(w.ID),
		DOI:             bareDOI(w.DOI),
		Title:           strings.TrimSpace(title),
		Abstract:        reconstructAbstract(w.AbstractInvertedIndex),
		Year:            w.PublicationYear,
		CitedByCount:    w.CitedByCount,
		ReferencedWorks: normalizeRefs(w.ReferencedWorks),
		RelatedWorks:    normalizeRefs(w.RelatedWorks),
		ContentURLs:     w.contentCandidates(),
	}
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			out.Authors = append(out.Authors, a.Author.DisplayName)
		}
	}
	return out
}

func normalizeRef(raw string) types.PaperID {
	return paperid.Normalize(raw)
}

func bareDOI(raw string) string {
	doi, _ := paperid.DOI(raw)
	return doi
}

func normalizeRefs(raw []string) []types.PaperID {
	if len(raw) == 0 {
		return nil
	}
	return paperid.NormalizeAll(raw)
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].pos == pairs[j].pos {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

var pmcID = regexp.MustCompile(`PMC\d+`)

// contentCandidates lists PDF locations in the order they should be tried:
// best open-access, primary, every other location, then PMC landing pages
// rewritten to their PDF endpoint. Duplicates keep their first position.
func (w apiWork) contentCandidates() []string {
	var urls []string
	seen := map[string]bool{}
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	if w.BestOALocation != nil {
		add(w.BestOALocation.PDFURL)
	}
	if w.PrimaryLocation != nil {
		add(w.PrimaryLocation.PDFURL)
	}
	for _, loc := range w.Locations {
		add(loc.PDFURL)
	}

	for _, loc := range w.Locations {
		if id := pmcFromLanding(loc.LandingURL); id != "" {
			add(pmcPDFURL(id))
		}
	}
	if id := pmcID.FindString(w.IDs.PMCID); id != "" {
		add(pmcPDFURL(id))
	}
	return urls
}

func pmcFromLanding(landing string) string {
	if !strings.Contains(landing, "ncbi.nlm.nih.gov") || !strings.Contains(landing, "articles/") {
		return ""
	}
	return pmcID.FindString(landing)
}

func pmcPDFURL(id string) string {
	return "https://www.ncbi.nlm.nih.gov/pmc/articles/" + id + "/pdf/"
}
