// Package incremental implements IncrementalUpdater (spec section
// 4.10): periodically polls a wiki's upstream log API for new uploads
// since the last watermark and reconciles them into MetadataStore.
package incremental

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
	"github.com/wikimedia/operations-software-mediabackups/internal/mblog"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
	"github.com/wikimedia/operations-software-mediabackups/internal/metadatastore"
	"github.com/wikimedia/operations-software-mediabackups/internal/prodcatalog"
)

// Updater polls one wiki's upload log and feeds discovered rows through
// MetadataStore.CheckAndUpdate.
type Updater struct {
	Wiki          string
	APIBase       string
	HTTPClient    *http.Client
	Log           *mblog.Logger
	APIWaitTime   time.Duration
	BatchWaitTime time.Duration

	// OpenProduction and OpenMetadata are called at the start of every
	// outer cycle, re-opening both DB connections per spec section
	// 4.10's "both connections are re-opened each outer cycle" rule.
	OpenProduction func(ctx context.Context) (*prodcatalog.Catalog, error)
	OpenMetadata   func(ctx context.Context) (*metadatastore.Store, *metadatastore.FKCaches, error)
}

// logEventsResponse is the subset of the MediaWiki logevents API this
// updater consumes.
type logEventsResponse struct {
	Query struct {
		LogEvents []struct {
			Title     string `json:"title"`
			Timestamp string `json:"timestamp"`
		} `json:"logevents"`
	} `json:"query"`
	Continue struct {
		LeContinue string `json:"lecontinue"`
		Continue   string `json:"continue"`
	} `json:"continue"`
}

// RunOnce executes a single outer cycle: open fresh connections,
// determine the watermark, page through logevents since it, and
// reconcile each page's entries. Callers loop this with BatchWaitTime
// between calls; it is not itself an infinite loop so a CLI can drive
// it under its own cancellation.
func (u *Updater) RunOnce(ctx context.Context) (reconciled int, err error) {
	prod, err := u.OpenProduction(ctx)
	if err != nil {
		return 0, err
	}
	defer prod.Close()

	meta, caches, err := u.OpenMetadata(ctx)
	if err != nil {
		return 0, err
	}
	defer meta.Close()

	watermark, err := meta.GetLatestUploadTime(ctx, u.Wiki)
	if err != nil {
		return 0, err
	}
	start := time.Unix(1, 0).UTC()
	if watermark.Valid {
		start = watermark.Time
	}

	leContinue := ""
	for {
		titles, next, err := u.fetchPage(ctx, start, leContinue)
		if err != nil {
			return reconciled, err
		}

		var batch []*filerecord.FileRecord
		for _, title := range titles {
			// logevents titles carry the File namespace and spaces;
			// img_name has neither.
			name := strings.ReplaceAll(title, " ", "_")
			if idx := strings.Index(name, ":"); idx >= 0 {
				name = name[idx+1:]
			}
			fr, ok, err := prod.LookupByTitle(ctx, name)
			if err != nil {
				return reconciled, err
			}
			if !ok {
				if u.Log != nil {
					u.Log.Printf("WARN: logevents entry for %q no longer resolves to a live row, skipping", title)
				}
				continue
			}
			batch = append(batch, fr)
		}

		if len(batch) > 0 {
			n, err := meta.CheckAndUpdate(ctx, caches, u.Wiki, batch)
			if err != nil {
				return reconciled, err
			}
			reconciled += n
		}

		if next == "" {
			break
		}
		leContinue = next

		select {
		case <-ctx.Done():
			return reconciled, ctx.Err()
		case <-time.After(u.APIWaitTime):
		}
	}
	return reconciled, nil
}

func (u *Updater) fetchPage(ctx context.Context, start time.Time, leContinue string) (titles []string, next string, err error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "logevents")
	q.Set("letype", "upload")
	q.Set("leprop", "title|timestamp|user|comment|details")
	q.Set("format", "json")
	q.Set("ledir", "newer")
	q.Set("lestart", start.Format(time.RFC3339))
	q.Set("lelimit", "max")
	if leContinue != "" {
		q.Set("lecontinue", leContinue)
	}

	reqURL := fmt.Sprintf("%s?%s", u.APIBase, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", errors.AddContext(mberrors.ErrConfig, "incremental: invalid log_event_api_base")
	}

	client := u.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", errors.Extend(err, mberrors.ErrDownload)
	}
	defer resp.Body.Close()

	var parsed logEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", errors.AddContext(err, "incremental: decoding logevents response")
	}

	for _, e := range parsed.Query.LogEvents {
		titles = append(titles, e.Title)
	}
	return titles, parsed.Continue.LeContinue, nil
}
