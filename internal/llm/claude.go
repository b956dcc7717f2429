// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm backs the relevance and extraction capabilities with the
// Claude Messages API.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 8192

	// relevanceMaxTokens bounds the short verdict reply.
	relevanceMaxTokens = 512
)

// Client implements pipeline.RelevanceJudge and pipeline.Extractor.
type Client struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	log        *slog.Logger
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.log = l }
}

// New creates a Client. The API key is required.
func New(cfg types.AIConfig, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, crawlerr.New(crawlerr.CodeConfigInvalid,
			"missing AI API key (set ai.api_key, ANTHROPIC_API_KEY or .secrets/anthropic-api-key)")
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Client{
		api:       anthropic.NewClient(reqOpts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
		log:       o.log,
	}, nil
}

// Judge asks the model whether the paper matches req.Criteria.
func (c *Client) Judge(ctx context.Context, req types.RelevanceRequest) (types.Verdict, error) {
	prompt, err := render(relevancePromptTmpl, relevanceVars{
		ID:       string(req.ID),
		Title:    req.Title,
		Abstract: req.Abstract,
		Criteria: req.Criteria,
	})
	if err != nil {
		return types.Verdict{}, crawlerr.Wrap(err, crawlerr.CodeRelevanceFailure, "building prompt")
	}

	text, err := c.complete(ctx, relevanceMaxTokens, anthropic.NewTextBlock(prompt))
	if err != nil {
		return types.Verdict{}, crawlerr.Wrap(err, crawlerr.CodeRelevanceFailure, "calling model",
			crawlerr.FieldPaper(string(req.ID)))
	}

	payload, ok := jsonPayload(text)
	if !ok {
		return types.Verdict{}, crawlerr.New(crawlerr.CodeRelevanceFailure, "model reply has no JSON verdict",
			crawlerr.FieldPaper(string(req.ID)))
	}
	var raw struct {
		Relevant *bool  `json:"is_relevant"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return types.Verdict{}, crawlerr.Wrap(err, crawlerr.CodeRelevanceFailure, "parsing verdict",
			crawlerr.FieldPaper(string(req.ID)))
	}
	if raw.Relevant == nil {
		return types.Verdict{}, crawlerr.New(crawlerr.CodeRelevanceFailure, "verdict is missing is_relevant",
			crawlerr.FieldPaper(string(req.ID)))
	}

	c.log.Debug("relevance verdict", "paper_id", req.ID, "relevant", *raw.Relevant, "reason", raw.Reason)
	return types.Verdict{Relevant: *raw.Relevant, Reason: strings.TrimSpace(raw.Reason)}, nil
}

// Extract sends the paper content with the extraction instructions and
// returns the JSON document the model produced. Schema validation is left
// to the caller.
func (c *Client) Extract(ctx context.Context, req types.ExtractionRequest) (json.RawMessage, error) {
	if len(req.Content) == 0 {
		return nil, crawlerr.New(crawlerr.CodeExtractionFailure, "extraction_failed: empty content",
			crawlerr.FieldPaper(string(req.ID)))
	}
	prompt, err := render(extractionPromptTmpl, extractionVars{
		Instructions: req.Instructions,
		Schema:       string(req.Schema),
	})
	if err != nil {
		return nil, crawlerr.Wrap(err, crawlerr.CodeExtractionFailure, "extraction_failed")
	}

	text, err := c.complete(ctx, c.maxTokens, documentBlock(req.Content), anthropic.NewTextBlock(prompt))
	if err != nil {
		return nil, crawlerr.Errorf(crawlerr.CodeExtractionFailure, "extraction_failed: %w", err)
	}

	payload, ok := jsonPayload(text)
	if !ok || !json.Valid([]byte(payload)) {
		return nil, crawlerr.New(crawlerr.CodeExtractionFailure, "extraction_failed: model reply is not JSON",
			crawlerr.FieldPaper(string(req.ID)))
	}
	return json.RawMessage(payload), nil
}

// complete sends one user turn and returns the concatenated text blocks.
func (c *Client) complete(ctx context.Context, maxTokens int64, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("claude API returned %d", apiErr.StatusCode)
		}
		return "", err
	}
	if msg.StopReason == anthropic.StopReasonMaxTokens {
		return "", fmt.Errorf("reply truncated at %d tokens", maxTokens)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in reply")
	}
	return sb.String(), nil
}

// documentBlock attaches PDFs as base64 documents and anything else as
// plain text.
func documentBlock(content []byte) anthropic.ContentBlockParamUnion {
	if bytes.HasPrefix(content, []byte("%PDF-")) {
		return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(content),
		})
	}
	return anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{
		Data: string(content),
	})
}
