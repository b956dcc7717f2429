// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"

	"github.com/pdiddy/citation-crawler/pkg/types"
)

// Graph is the part of the graph client a stage executor needs.
type Graph interface {
	GetWork(ctx context.Context, id types.PaperID) (types.Work, error)
	FindCitingWorks(ctx context.Context, id types.PaperID, n int) ([]types.PaperID, error)
}

// Fetcher makes a work's content available on disk.
type Fetcher interface {
	Fetch(ctx context.Context, work types.Work) (types.PaperMetadata, error)
}

// RelevanceJudge decides whether a paper belongs in the dataset. A
// negative verdict is not an error.
type RelevanceJudge interface {
	Judge(ctx context.Context, req types.RelevanceRequest) (types.Verdict, error)
}

// JudgeFunc adapts a function to RelevanceJudge.
type JudgeFunc func(ctx context.Context, req types.RelevanceRequest) (types.Verdict, error)

func (f JudgeFunc) Judge(ctx context.Context, req types.RelevanceRequest) (types.Verdict, error) {
	return f(ctx, req)
}

// Extractor turns content into JSON honoring the request schema. The error
// message is recorded as the failure reason.
type Extractor interface {
	Extract(ctx context.Context, req types.ExtractionRequest) (json.RawMessage, error)
}

// ExtractFunc adapts a function to Extractor.
type ExtractFunc func(ctx context.Context, req types.ExtractionRequest) (json.RawMessage, error)

func (f ExtractFunc) Extract(ctx context.Context, req types.ExtractionRequest) (json.RawMessage, error) {
	return f(ctx, req)
}

// RecordSink persists extraction records.
type RecordSink interface {
	PutRecord(ctx context.Context, rec types.ExtractionRecord) error
}
