// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire downloads paper content from candidate locations and
// writes the per-paper metadata sidecar.
package acquire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
	"golang.org/x/time/rate"

	"github.com/pdiddy/citation-crawler/internal/httputil"
	"github.com/pdiddy/citation-crawler/internal/metrics"
	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

const (
	PDFDir      = "pdfs"
	MetadataDir = "metadata"

	defaultDownloadRPS = 5.0
	defaultUserAgent   = "citation-crawler/0.1"
	sniffBytes         = 512
)

// Downloader tries a work's content candidates in order and keeps the
// first one that yields a PDF. It paces its own requests; content hosts
// are not behind the graph API limiter.
type Downloader struct {
	client    *http.Client
	root      string
	userAgent string
	limiter   *rate.Limiter
	policy    httputil.RetryPolicy
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

func WithHTTPClient(hc *http.Client) Option {
	return func(d *Downloader) { d.client = hc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Downloader) { d.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) { d.log = l }
}

func WithRetryPolicy(p httputil.RetryPolicy) Option {
	return func(d *Downloader) { d.policy = p }
}

// NewDownloader writes content under root/pdfs and sidecars under
// root/metadata.
func NewDownloader(root string, cfg types.AcquisitionConfig, opts ...Option) *Downloader {
	rps := cfg.DownloadRPS
	if rps <= 0 {
		rps = defaultDownloadRPS
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	policy := httputil.PolicyFrom(cfg.Retry)
	if cfg.Retry.MaxAttempts == 0 {
		// One retry per candidate; the next candidate is the fallback.
		policy.MaxAttempts = 2
	}

	d := &Downloader{
		client:    &http.Client{Timeout: timeout},
		root:      root,
		userAgent: ua,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		policy:    policy,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// PDFPath returns where content for id is stored.
func (d *Downloader) PDFPath(id types.PaperID) string {
	return filepath.Join(d.root, PDFDir, Slug(id)+".pdf")
}

// MetadataPath returns where the sidecar for id is stored.
func (d *Downloader) MetadataPath(id types.PaperID) string {
	return filepath.Join(d.root, MetadataDir, Slug(id)+".yaml")
}

// Fetch makes content for work available on disk. An existing file is
// reused. Otherwise candidates are tried in order and the first PDF wins.
// When no candidate yields a PDF the error is coded content.unavailable.
func (d *Downloader) Fetch(ctx context.Context, work types.Work) (types.PaperMetadata, error) {
	pdfPath := d.PDFPath(work.ID)
	metaPath := d.MetadataPath(work.ID)

	if info, err := os.Stat(pdfPath); err == nil && info.Size() > 0 {
		d.metrics.Download("reused")
		if meta, readErr := readMetadata(metaPath); readErr == nil {
			return *meta, nil
		}
		meta := types.PaperMetadata{Work: work, PDFPath: pdfPath, DownloadedAt: info.ModTime().UTC()}
		if err := writeMetadata(&meta, metaPath); err != nil {
			d.log.Warn("rewriting metadata sidecar", "paper_id", work.ID, "error", err)
		}
		return meta, nil
	}

	if len(work.ContentURLs) == 0 {
		d.metrics.Download("no_candidates")
		return types.PaperMetadata{}, crawlerr.New(crawlerr.CodeContentUnavailable,
			"no content locations", crawlerr.FieldPaper(string(work.ID)))
	}

	for _, dir := range []string{filepath.Dir(pdfPath), filepath.Dir(metaPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.PaperMetadata{}, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	var lastErr error
	for _, u := range work.ContentURLs {
		if err := d.download(ctx, u, pdfPath); err != nil {
			if ctx.Err() != nil {
				return types.PaperMetadata{}, ctx.Err()
			}
			d.log.Debug("candidate failed", "paper_id", work.ID, "url", u, "error", err)
			d.metrics.Download("candidate_failed")
			lastErr = err
			continue
		}

		meta := types.PaperMetadata{
			Work:         work,
			PDFPath:      pdfPath,
			SourceURL:    u,
			DownloadedAt: time.Now().UTC(),
		}
		if err := writeMetadata(&meta, metaPath); err != nil {
			return types.PaperMetadata{}, fmt.Errorf("writing metadata for %s: %w", work.ID, err)
		}
		d.metrics.Download("ok")
		return meta, nil
	}

	return types.PaperMetadata{}, crawlerr.Wrap(lastErr, crawlerr.CodeContentUnavailable,
		fmt.Sprintf("all %d content locations failed", len(work.ContentURLs)),
		crawlerr.FieldPaper(string(work.ID)))
}

// download fetches url to destPath through a temporary file in the same
// directory, rejecting responses that are not PDFs.
func (d *Downloader) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := httputil.DoWithRetry(ctx, d.client, req, d.policy, d.limiter.Wait)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body := bufio.NewReaderSize(resp.Body, sniffBytes)
	head, _ := body.Peek(sniffBytes)
	if len(head) == 0 {
		return fmt.Errorf("empty body from %s", url)
	}
	if !isPDF(resp.Header.Get("Content-Type"), resp.Request.URL.String(), head) {
		return fmt.Errorf("not a PDF: %s (Content-Type: %s)", url, resp.Header.Get("Content-Type"))
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".acquire-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// writeMetadata writes the sidecar YAML.
func writeMetadata(meta *types.PaperMetadata, path string) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// readMetadata reads a sidecar back.
func readMetadata(path string) (*types.PaperMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta types.PaperMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ReadMetadata loads the sidecar written for id, if any.
func (d *Downloader) ReadMetadata(id types.PaperID) (*types.PaperMetadata, error) {
	return readMetadata(d.MetadataPath(id))
}
