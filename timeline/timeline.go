// Package timeline walks the brokerage's paginated transaction timeline to
// completion and optionally enriches each transaction with its detail record.
//
// Pagination is a cursor chain: each page request carries the continuation
// cursor of the previous response, pages are fetched strictly in order with
// no concurrency, and items are accumulated in server-provided order.
// Downstream consumers treat document order as stable, so no reordering
// happens anywhere in this package.
//
// A malformed or status-only response frame decodes fail-soft to "no items"
// and ends pagination early instead of failing the run. Transport errors
// from the channel layer propagate and terminate the run.
package timeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/c360/trsync/errors"
	"github.com/c360/trsync/frame"
	"github.com/c360/trsync/metric"
	"github.com/c360/trsync/normalize"
)

// Channel is the correlated request primitive the syncer needs. Implemented
// by channel.Session.
type Channel interface {
	Request(ctx context.Context, payload any) ([]byte, error)
}

// Options configures a Syncer
type Options struct {
	// ExtractDetails routes every item through the detail enricher
	ExtractDetails bool
	Logger         *slog.Logger
	Metrics        *metric.Metrics
}

// Syncer accumulates the full transaction history over one channel
type Syncer struct {
	channel Channel
	token   string
	opts    Options
	logger  *slog.Logger
}

// NewSyncer creates a syncer for one run. The session token is assumed valid
// for the run's duration.
func NewSyncer(ch Channel, token string, opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		channel: ch,
		token:   token,
		opts:    opts,
		logger:  logger.With("component", "timeline"),
	}
}

// page is the expected shape of a timelineTransactions response
type page struct {
	Items   []*normalize.Record `json:"items"`
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
}

// FetchAll walks the cursor chain until the server returns no items or no
// continuation cursor, and returns the accumulated items in order.
func (s *Syncer) FetchAll(ctx context.Context) ([]*normalize.Record, error) {
	var all []*normalize.Record
	after := ""

	for {
		payload := map[string]any{
			"type":  "timelineTransactions",
			"token": s.token,
		}
		if after != "" {
			payload["after"] = after
		}

		raw, err := s.channel.Request(ctx, payload)
		if err != nil {
			return nil, errors.Wrap(err, "Syncer", "FetchAll", "fetch page")
		}

		current, ok := s.decodePage(raw)
		if !ok || len(current.Items) == 0 {
			break
		}

		if s.opts.ExtractDetails {
			for _, item := range current.Items {
				if err := s.enrichItem(ctx, item); err != nil {
					return nil, err
				}
			}
		}

		all = append(all, current.Items...)
		if s.opts.Metrics != nil {
			s.opts.Metrics.PagesFetched.Inc()
			s.opts.Metrics.ItemsCollected.Add(float64(len(current.Items)))
		}
		s.logger.Debug("page accumulated", "items", len(current.Items), "cursor", current.Cursors.After)

		if current.Cursors.After == "" {
			break
		}
		after = current.Cursors.After
	}

	s.logger.Info("timeline sync complete", "items", len(all))
	return all, nil
}

// decodePage extracts and decodes one page. Malformed frames and shape
// mismatches both read as "no page": pagination degrades rather than crashes.
func (s *Syncer) decodePage(raw []byte) (page, bool) {
	extracted := frame.ExtractObject(raw)
	if extracted.Empty {
		s.noteEmptyFrame("unextractable frame")
		return page{}, false
	}

	var p page
	if err := json.Unmarshal(extracted.Raw, &p); err != nil {
		s.noteEmptyFrame("page shape mismatch")
		return page{}, false
	}
	return p, true
}

func (s *Syncer) noteEmptyFrame(reason string) {
	s.logger.Warn("treating frame as empty result", "reason", reason)
	if s.opts.Metrics != nil {
		s.opts.Metrics.EmptyFrames.Inc()
	}
}

// detailResponse is the expected shape of a timelineDetailV2 response
type detailResponse struct {
	Sections []struct {
		Title string `json:"title"`
		Data  []struct {
			Title  string `json:"title"`
			Detail struct {
				Text string `json:"text"`
			} `json:"detail"`
		} `json:"data"`
	} `json:"sections"`
}

// enrichItem fetches the detail record for an item and merges the
// "Transaction" section's entries into the item's top-level keys, overwriting
// on conflict and never removing keys. Items without an id, and detail
// responses without a Transaction section, are a no-op.
func (s *Syncer) enrichItem(ctx context.Context, item *normalize.Record) error {
	idValue, _ := item.Get("id")
	id, ok := idValue.(string)
	if !ok || id == "" {
		return nil
	}

	raw, err := s.channel.Request(ctx, map[string]any{
		"type":  "timelineDetailV2",
		"id":    id,
		"token": s.token,
	})
	if err != nil {
		return errors.Wrap(err, "Syncer", "enrichItem", "fetch detail")
	}

	extracted := frame.ExtractObject(raw)
	if extracted.Empty {
		s.noteEmptyFrame("unextractable detail frame")
		return nil
	}

	var detail detailResponse
	if err := json.Unmarshal(extracted.Raw, &detail); err != nil {
		s.noteEmptyFrame("detail shape mismatch")
		return nil
	}

	merged := 0
	for _, section := range detail.Sections {
		if section.Title != "Transaction" {
			continue
		}
		for _, entry := range section.Data {
			if entry.Title == "" || entry.Detail.Text == "" {
				continue
			}
			item.Set(entry.Title, entry.Detail.Text)
			merged++
		}
	}

	if merged > 0 && s.opts.Metrics != nil {
		s.opts.Metrics.DetailsEnriched.Inc()
	}
	return nil
}
