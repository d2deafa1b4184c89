package repository

import (
	"context"

	"awakener/pkg/model"

	"github.com/m-mizutani/goerr/v2"
)

var ErrRoundNotFound = goerr.New("round not found")

// Repository persists the agent's durable state: the notebook, the timeline
// and the pending inspiration. The activation loop is the only writer of
// round data; the control plane reads concurrently and may delete rounds.
type Repository interface {
	// PutNotebook saves a notebook entry. Writing the same round twice
	// replaces the earlier entry (last wins).
	PutNotebook(ctx context.Context, entry *model.NotebookEntry) error

	// GetNotebook retrieves one round's notebook entry
	GetNotebook(ctx context.Context, round int64) (*model.NotebookEntry, error)

	// RecentNotebook returns the n most recent entries, newest first
	RecentNotebook(ctx context.Context, n int) ([]*model.NotebookEntry, error)

	// ListNotebook returns entries newest first with the total count
	ListNotebook(ctx context.Context, offset, limit int) ([]*model.NotebookEntry, int, error)

	// PutTimeline saves a round's timeline entry, the finalize write
	PutTimeline(ctx context.Context, entry *model.TimelineEntry) error

	// GetTimeline retrieves one round's timeline entry
	GetTimeline(ctx context.Context, round int64) (*model.TimelineEntry, error)

	// ListTimeline returns entries newest first with the total count
	ListTimeline(ctx context.Context, offset, limit int) ([]*model.TimelineEntry, int, error)

	// LastRound returns the highest round recorded in either the timeline
	// or the notebook, 0 when no rounds exist
	LastRound(ctx context.Context) (int64, error)

	// DeleteRound removes the round's timeline entry and notebook entry.
	// The cascade is all-or-nothing per round.
	DeleteRound(ctx context.Context, round int64) error

	// PutInspiration stores the pending operator hint, replacing any
	// unconsumed one
	PutInspiration(ctx context.Context, insp *model.Inspiration) error

	// TakeInspiration returns the pending hint and clears it. Returns nil
	// when none is pending.
	TakeInspiration(ctx context.Context) (*model.Inspiration, error)
}
