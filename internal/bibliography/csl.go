// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bibliography renders works as CSL-YAML, the citation format Pandoc
// and reference managers read.
package bibliography

import (
	"io"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citation-crawler/pkg/types"
)

// Item is one CSL entry.
type Item struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Title    string `yaml:"title"`
	Author   []Name `yaml:"author,omitempty"`
	Abstract string `yaml:"abstract,omitempty"`
	Issued   *Date  `yaml:"issued,omitempty"`
	DOI      string `yaml:"DOI,omitempty"`
	URL      string `yaml:"URL,omitempty"`

	// Note carries the graph's inbound citation count.
	Note string `yaml:"note,omitempty"`
}

type Name struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// Date holds CSL date-parts. Works only carry a year.
type Date struct {
	DateParts [][]int `yaml:"date-parts"`
}

// WriteCSL writes works as a CSL-YAML list.
func WriteCSL(w io.Writer, works []types.Work) error {
	items := make([]Item, len(works))
	for i, wk := range works {
		items[i] = ToItem(wk)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// ToItem converts a work. The CSL id is the work identifier.
func ToItem(w types.Work) Item {
	item := Item{
		ID:       string(w.ID),
		Type:     "article-journal",
		Title:    w.Title,
		Abstract: w.Abstract,
		DOI:      w.DOI,
	}
	for _, a := range w.Authors {
		if n := parseName(a); n != (Name{}) {
			item.Author = append(item.Author, n)
		}
	}
	if w.Year > 0 {
		item.Issued = &Date{DateParts: [][]int{{w.Year}}}
	}
	if w.DOI != "" {
		item.URL = "https://doi.org/" + w.DOI
	}
	if w.CitedByCount > 0 {
		item.Note = "cited by " + strconv.Itoa(w.CitedByCount)
	}
	return item
}

// parseName splits on the last space: the last token is the family name.
// Single-token names use the literal field.
func parseName(name string) Name {
	name = strings.TrimSpace(name)
	if name == "" {
		return Name{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return Name{Literal: name}
	}
	return Name{Given: strings.TrimSpace(name[:idx]), Family: name[idx+1:]}
}
