package sqlite

import (
	"context"
	"fmt"

	"github.com/c0deZ3R0/signsync/bus"
)

// DefaultPageSize bounds one Pull when the caller passes no limit.
const DefaultPageSize = 500

// Pull returns up to limit entries after since and the cursor for the next
// page. The cursor equals since when nothing new was found.
func (j *Journal) Pull(ctx context.Context, since int64, limit int) ([]Entry, int64, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	entries, err := j.query(ctx,
		fmt.Sprintf(`SELECT seq, id, topic, source_app, emitted_at, payload FROM %s WHERE seq > ? ORDER BY seq ASC LIMIT ?`, j.table),
		since, limit)
	if err != nil {
		return nil, since, err
	}
	next := since
	if len(entries) > 0 {
		next = entries[len(entries)-1].Seq
	}
	return entries, next, nil
}

// Replay feeds every event after since to fn in journal order, one page at
// a time. It stops at the first error from fn and returns the last sequence
// handled, so the caller can resume from there.
func (j *Journal) Replay(ctx context.Context, since int64, fn func(context.Context, bus.Event) error) (int64, error) {
	cursor := since
	for {
		if err := ctx.Err(); err != nil {
			return cursor, err
		}
		page, next, err := j.Pull(ctx, cursor, DefaultPageSize)
		if err != nil {
			return cursor, err
		}
		if len(page) == 0 {
			return cursor, nil
		}
		for _, e := range page {
			if err := fn(ctx, e.Event); err != nil {
				return cursor, fmt.Errorf("replay seq %d: %w", e.Seq, err)
			}
			cursor = e.Seq
		}
		cursor = next
	}
}
