// Package profile fetches the cash-position snapshot for the authenticated
// account. The availableCash subscription answers with a JSON array of
// profile records; like the timeline, a malformed frame reads as an empty
// result rather than an error.
package profile

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/c360/trsync/errors"
	"github.com/c360/trsync/frame"
	"github.com/c360/trsync/metric"
	"github.com/c360/trsync/normalize"
)

// Channel is the correlated request primitive the fetcher needs. Implemented
// by channel.Session.
type Channel interface {
	Request(ctx context.Context, payload any) ([]byte, error)
}

// Options configures a Fetcher
type Options struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// Fetcher retrieves profile cash records over one channel
type Fetcher struct {
	channel Channel
	token   string
	opts    Options
	logger  *slog.Logger
}

// NewFetcher creates a fetcher for one run
func NewFetcher(ch Channel, token string, opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		channel: ch,
		token:   token,
		opts:    opts,
		logger:  logger.With("component", "profile"),
	}
}

// Fetch issues the availableCash subscription and returns the profile
// records in server order
func (f *Fetcher) Fetch(ctx context.Context) ([]*normalize.Record, error) {
	raw, err := f.channel.Request(ctx, map[string]any{
		"type":  "availableCash",
		"token": f.token,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Fetcher", "Fetch", "fetch profile")
	}

	extracted := frame.ExtractArray(raw)
	if extracted.Empty {
		f.logger.Warn("treating frame as empty result", "reason", "unextractable frame")
		if f.opts.Metrics != nil {
			f.opts.Metrics.EmptyFrames.Inc()
		}
		return nil, nil
	}

	var records []*normalize.Record
	if err := json.Unmarshal(extracted.Raw, &records); err != nil {
		f.logger.Warn("treating frame as empty result", "reason", "profile shape mismatch")
		if f.opts.Metrics != nil {
			f.opts.Metrics.EmptyFrames.Inc()
		}
		return nil, nil
	}

	f.logger.Info("profile fetch complete", "records", len(records))
	return records, nil
}
