// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/hostsync/lib/conductor"
	"github.com/bureau-foundation/hostsync/lib/hashes"
)

// RecordSource supplies checkpoint records. *Client implements it.
type RecordSource interface {
	GetRecordsSince(ctx context.Context, cell hashes.CellID, since hashes.ActionHash) ([]conductor.SignedRecord, error)
}

// Grafter appends records to a cell's chain. *conductor.AdminClient
// implements it.
type Grafter interface {
	GraftRecords(ctx context.Context, cell hashes.CellID, validate bool, records []conductor.SignedRecord) error
}

// Resynchronizer restores diverged cells from checkpoints.
type Resynchronizer struct {
	source  RecordSource
	grafter Grafter
	logger  *slog.Logger
}

// NewResynchronizer returns a Resynchronizer.
func NewResynchronizer(source RecordSource, grafter Grafter, logger *slog.Logger) *Resynchronizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resynchronizer{source: source, grafter: grafter, logger: logger}
}

// Restore fetches the full checkpointed chain of each cell and grafts
// it without validation. It returns the number of records grafted.
// divergence may be nil for an operator-forced restore.
func (r *Resynchronizer) Restore(ctx context.Context, cells []hashes.CellID, divergence *Divergence) (int, error) {
	if divergence != nil {
		heads := make([]string, len(divergence.Heads))
		for index, head := range divergence.Heads {
			heads[index] = head.String()
		}
		r.logger.Warn("source chain diverged, restoring from checkpoint",
			"cells", len(cells),
			"heads", heads,
		)
	}

	total := 0
	for _, cell := range cells {
		records, err := r.source.GetRecordsSince(ctx, cell, nil)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			r.logger.Info("no checkpoint records for cell", "cell", cell.String())
			continue
		}
		if err := r.grafter.GraftRecords(ctx, cell, false, records); err != nil {
			return total, &Error{Kind: KindGraft, Cell: cell.String(), Err: err}
		}
		total += len(records)
		r.logger.Info("grafted checkpoint records",
			"cell", cell.String(),
			"records", len(records),
		)
	}
	return total, nil
}
