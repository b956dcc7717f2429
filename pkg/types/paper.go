// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PaperID is the normalized key of one work in the citation graph. Two
// differently formatted references to the same work normalize to the same
// PaperID (see internal/paperid).
type PaperID string

// String returns the identifier as a plain string.
func (id PaperID) String() string { return string(id) }

// IsZero reports whether the identifier is empty.
func (id PaperID) IsZero() bool { return id == "" }

// Work holds the metadata fetched for one paper. It is transient: the
// traversal fetches it per paper and never persists it in the frontier.
type Work struct {
	// ID is the normalized identifier of the work.
	ID PaperID `json:"id" yaml:"id"`

	// DOI is the bare DOI (e.g. "10.1145/1234567"), empty when unknown.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Title is the work title.
	Title string `json:"title" yaml:"title"`

	// Abstract is reconstructed from the inverted index the graph API returns.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists author display names in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the publication year, 0 when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// CitedByCount is the inbound citation count reported by the graph.
	CitedByCount int `json:"cited_by_count" yaml:"cited_by_count"`

	// ReferencedWorks are the outbound references, normalized.
	ReferencedWorks []PaperID `json:"referenced_works,omitempty" yaml:"referenced_works,omitempty"`

	// RelatedWorks are the related works the graph suggests, normalized.
	RelatedWorks []PaperID `json:"related_works,omitempty" yaml:"related_works,omitempty"`

	// ContentURLs are candidate content locations in priority order:
	// best open-access first, primary location second, all others last.
	ContentURLs []string `json:"content_urls,omitempty" yaml:"content_urls,omitempty"`
}

// PaperMetadata is the sidecar written next to a downloaded PDF.
type PaperMetadata struct {
	Work `yaml:",inline"`

	// PDFPath is the local path of the downloaded content.
	PDFPath string `json:"pdf_path" yaml:"pdf_path"`

	// SourceURL is the candidate URL the content was downloaded from.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// DownloadedAt is when the content landed on disk.
	DownloadedAt time.Time `json:"downloaded_at" yaml:"downloaded_at"`
}
