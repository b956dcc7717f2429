// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package openalex

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/citation-crawler/internal/paperid"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// batchConcurrency bounds the chunks in flight at once. The limiter still
// paces every request.
const batchConcurrency = 4

// BatchGetWorks resolves ids in chunks of at most MaxBatch per request.
// W ids go through the openalex_id filter, canonical DOIs through the doi
// filter. The result is keyed by the requested id; ids that do not resolve
// are absent from the map.
func (c *Client) BatchGetWorks(ctx context.Context, ids []types.PaperID) (map[types.PaperID]types.Work, error) {
	var workIDs, dois []types.PaperID
	seen := make(map[types.PaperID]bool, len(ids))
	for _, id := range ids {
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		switch {
		case paperid.IsWork(id):
			workIDs = append(workIDs, id)
		case paperid.IsDOI(id):
			dois = append(dois, id)
		}
	}

	out := make(map[types.PaperID]types.Work, len(workIDs)+len(dois))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	schedule := func(chunk []types.PaperID, field string, key func(types.Work) types.PaperID) {
		g.Go(func() error {
			works, err := c.filterWorks(gctx, field, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, w := range works {
				if k := key(w); seen[k] {
					out[k] = w
				}
			}
			return nil
		})
	}

	for _, chunk := range chunks(workIDs, MaxBatch) {
		schedule(chunk, "openalex_id", func(w types.Work) types.PaperID { return w.ID })
	}
	for _, chunk := range chunks(dois, MaxBatch) {
		schedule(chunk, "doi", func(w types.Work) types.PaperID { return paperid.Normalize(w.DOI) })
	}

	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("batch lookup: %w", err)
	}
	return out, nil
}

func (c *Client) filterWorks(ctx context.Context, field string, ids []types.PaperID) ([]types.Work, error) {
	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = string(id)
	}
	params := url.Values{
		"filter":   {field + ":" + strings.Join(values, "|")},
		"per_page": {fmt.Sprintf("%d", MaxBatch)},
	}

	var lr listResponse
	if err := c.get(ctx, "batch", "/works", params, &lr); err != nil {
		return nil, err
	}
	works := make([]types.Work, 0, len(lr.Results))
	for _, w := range lr.Results {
		works = append(works, w.toWork())
	}
	return works, nil
}

func chunks(ids []types.PaperID, size int) [][]types.PaperID {
	var out [][]types.PaperID
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
