// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the citation crawler.
// It holds the traversal vocabulary (PaperID, Work, Outcome, Result),
// the persisted frontier layout (StateFile), extraction artifacts, and
// the configuration tree.
package types

import (
	"encoding/json"
	"time"
)

// Outcome is the terminal state of one paper after the pipeline ran.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Failure reasons recorded in the failed set for the fixed pipeline exits.
// Extraction failures carry the capability's own reason instead.
const (
	ReasonNoPDF          = "no_pdf"
	ReasonNotFound       = "not_found"
	ReasonMetadataFailed = "metadata_fetch_failed"
	ReasonRelevanceError = "relevance_check_failed"
	ReasonInternalError  = "internal_error"
)

// Result is what a stage executor reports for one paper. Neighbors is only
// populated for OutcomeProcessed.
type Result struct {
	ID        PaperID
	Outcome   Outcome
	Reason    string
	Neighbors []PaperID
}

// Verdict is the answer of the relevance capability.
type Verdict struct {
	Relevant bool   `json:"is_relevant"`
	Reason   string `json:"reason"`
}

// RelevanceRequest is the input to the relevance capability.
type RelevanceRequest struct {
	ID       PaperID
	Title    string
	Abstract string
	Criteria string
}

// ExtractionRequest is the input to the extraction capability.
type ExtractionRequest struct {
	ID           PaperID
	Content      []byte
	Instructions string
	Schema       json.RawMessage
}

// ExtractionRecord is the artifact produced when extraction succeeds. Data
// is opaque JSON honoring the project schema.
type ExtractionRecord struct {
	PaperID     PaperID         `json:"paper_id"`
	Title       string          `json:"title"`
	Data        json.RawMessage `json:"data"`
	Items       int             `json:"items"`
	RunID       string          `json:"run_id"`
	ExtractedAt time.Time       `json:"extracted_at"`
}
