// Package fetch provides the built-in Fetcher step kinds.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/semaphore"

	"github.com/geoflow/pipeline/internal/item"
	"github.com/geoflow/pipeline/internal/steps"
	"github.com/geoflow/pipeline/internal/workflow"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

func init() {
	steps.Register("IngestFromAPI", steps.RoleFetcher, newIngestFromAPI)
}

type pageResponse struct {
	Items      []map[string]any `json:"items"`
	TotalPages int              `json:"total_pages"`
}

type ingestFromAPI struct {
	catalogURL     string
	collectionID   string
	maxConcurrency int64
	client         *retryablehttp.Client
}

func newIngestFromAPI(config map[string]any, ctx *workflow.Context) (any, error) {
	catalogURL, _ := config["catalog_url"].(string)
	if catalogURL == "" {
		return nil, pkgerrors.NewConfigurationError("config.catalog_url", "IngestFromAPI requires a non-empty catalog_url", nil)
	}

	collectionID, _ := config["collection_id"].(string)
	if collectionID == "" {
		collectionID, _ = ctx.MatrixEntry["collection_id"].(string)
	}

	maxConcurrency := int64(4)
	if v, ok := config["max_concurrency"]; ok {
		if n, ok := toInt(v); ok && n > 0 {
			maxConcurrency = int64(n)
		}
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3

	return &ingestFromAPI{
		catalogURL:     catalogURL,
		collectionID:   collectionID,
		maxConcurrency: maxConcurrency,
		client:         client,
	}, nil
}

// Fetch crawls the catalog's pages, bounding concurrent page requests
// with a semaphore, and emits items onto out in page order.
func (f *ingestFromAPI) Fetch(ctx *workflow.Context, out chan<- item.Item) error {
	first, err := f.fetchPage(ctx.Context, 1)
	if err != nil {
		return err
	}

	if err := f.emitPage(ctx, out, first.Items); err != nil {
		return err
	}

	if first.TotalPages <= 1 {
		return nil
	}

	pages := make([][]map[string]any, first.TotalPages+1)
	sem := semaphore.NewWeighted(f.maxConcurrency)
	errCh := make(chan error, first.TotalPages)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for p := 2; p <= first.TotalPages; p++ {
			if err := sem.Acquire(ctx.Context, 1); err != nil {
				errCh <- err
				return
			}
			go func(page int) {
				defer sem.Release(1)
				resp, err := f.fetchPage(ctx.Context, page)
				if err != nil {
					errCh <- err
					return
				}
				pages[page] = resp.Items
			}(p)
		}
		_ = sem.Acquire(ctx.Context, f.maxConcurrency)
	}()

	<-done
	select {
	case err := <-errCh:
		return err
	default:
	}

	for p := 2; p <= first.TotalPages; p++ {
		if err := f.emitPage(ctx, out, pages[p]); err != nil {
			return err
		}
	}
	return nil
}

func (f *ingestFromAPI) emitPage(ctx *workflow.Context, out chan<- item.Item, items []map[string]any) error {
	for _, raw := range items {
		it := item.Item(raw)
		if f.collectionID != "" {
			if _, ok := it["collection"]; !ok {
				it["collection"] = f.collectionID
			}
		}
		select {
		case out <- it:
		case <-ctx.Context.Done():
			return pkgerrors.NewCancellationError(ctx.Context.Err())
		}
	}
	return nil
}

func (f *ingestFromAPI) fetchPage(ctx context.Context, page int) (*pageResponse, error) {
	url := fmt.Sprintf("%s?page=%d", f.catalogURL, page)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.NewDataProcessingError("ingest_from_api", "<unknown>", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, pkgerrors.NewDataProcessingError("ingest_from_api", "<unknown>", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, pkgerrors.NewDataProcessingError("ingest_from_api", "<unknown>", fmt.Errorf("catalog returned status %d", resp.StatusCode))
	}

	var decoded pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.NewDataProcessingError("ingest_from_api", "<unknown>", err)
	}
	return &decoded, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
