package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"awakener/pkg/model"
	"awakener/pkg/repository"

	"github.com/m-mizutani/gt"
)

func newLocal(t *testing.T) (*repository.Local, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := repository.NewLocal(dir)
	gt.NoError(t, err)
	return repo, dir
}

func notebookEntry(round int64) *model.NotebookEntry {
	return &model.NotebookEntry{
		Round:     round,
		Timestamp: time.Now().UTC(),
		Content:   fmt.Sprintf("note for round %d", round),
	}
}

func timelineEntry(round int64) *model.TimelineEntry {
	return &model.TimelineEntry{
		Round:         round,
		Timestamp:     time.Now().UTC(),
		Status:        model.RoundCompleted,
		ToolsUsed:     2,
		Duration:      12.5,
		Summary:       fmt.Sprintf("summary for round %d", round),
		NotebookSaved: true,
		ToolCalls: []model.ToolCall{
			{Name: "shell_execute", Args: map[string]any{"command": "ls"}, Result: "ok"},
		},
	}
}

func TestNotebookLastWins(t *testing.T) {
	repo, _ := newLocal(t)
	ctx := context.Background()

	gt.NoError(t, repo.PutNotebook(ctx, notebookEntry(1)))
	gt.NoError(t, repo.PutNotebook(ctx, &model.NotebookEntry{
		Round: 1, Timestamp: time.Now().UTC(), Content: "revised",
	}))

	entry, err := repo.GetNotebook(ctx, 1)
	gt.NoError(t, err)
	gt.V(t, entry.Content).Equal("revised")

	entries, total, err := repo.ListNotebook(ctx, 0, 10)
	gt.NoError(t, err)
	gt.V(t, total).Equal(1)
	gt.A(t, entries).Length(1)
}

func TestRecentNotebook(t *testing.T) {
	repo, _ := newLocal(t)
	ctx := context.Background()

	for round := int64(1); round <= 5; round++ {
		gt.NoError(t, repo.PutNotebook(ctx, notebookEntry(round)))
	}

	entries, err := repo.RecentNotebook(ctx, 3)
	gt.NoError(t, err)
	gt.A(t, entries).Length(3)
	gt.V(t, entries[0].Round).Equal(5)
	gt.V(t, entries[1].Round).Equal(4)
	gt.V(t, entries[2].Round).Equal(3)
}

func TestRecentNotebookFewerThanN(t *testing.T) {
	repo, _ := newLocal(t)
	ctx := context.Background()

	gt.NoError(t, repo.PutNotebook(ctx, notebookEntry(1)))

	entries, err := repo.RecentNotebook(ctx, 3)
	gt.NoError(t, err)
	gt.A(t, entries).Length(1)
	gt.V(t, entries[0].Round).Equal(1)
}

func TestListTimelinePagination(t *testing.T) {
	repo, _ := newLocal(t)
	ctx := context.Background()

	for round := int64(1); round <= 7; round++ {
		gt.NoError(t, repo.PutTimeline(ctx, timelineEntry(round)))
	}

	entries, total, err := repo.ListTimeline(ctx, 0, 3)
	gt.NoError(t, err)
	gt.V(t, total).Equal(7)
	gt.A(t, entries).Length(3)
	gt.V(t, entries[0].Round).Equal(7)
	gt.V(t, entries[2].Round).Equal(5)

	entries, total, err = repo.ListTimeline(ctx, 5, 3)
	gt.NoError(t, err)
	gt.V(t, total).Equal(7)
	gt.A(t, entries).Length(2)
	gt.V(t, entries[0].Round).Equal(2)
	gt.V(t, entries[1].Round).Equal(1)

	entries, _, err = repo.ListTimeline(ctx, 100, 3)
	gt.NoError(t, err)
	gt.A(t, entries).Length(0)
}

func TestLastRound(t *testing.T) {
	repo, _ := newLocal(t)
	ctx := context.Background()

	last, err := repo.LastRound(ctx)
	gt.NoError(t, err)
	gt.V(t, last).Equal(0)

	gt.NoError(t, repo.PutTimeline(ctx, timelineEntry(3)))
	gt.NoError(t, repo.PutNotebook(ctx, notebookEntry(5)))

	last, err = repo.LastRound(ctx)
	gt.NoError(t, err)
	gt.V(t, last).Equal(5)
}

func TestDeleteRoundCascade(t *testing.T) {
	repo, _ := newLocal(t)
	ctx := context.Background()

	for round := int64(1); round <= 3; round++ {
		gt.NoError(t, repo.PutTimeline(ctx, timelineEntry(round)))
		gt.NoError(t, repo.PutNotebook(ctx, notebookEntry(round)))
	}

	gt.NoError(t, repo.DeleteRound(ctx, 2))

	_, err := repo.GetTimeline(ctx, 2)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrRoundNotFound))
	_, err = repo.GetNotebook(ctx, 2)
	gt.Error(t, err)

	// Neighbors are unaffected.
	entry, err := repo.GetTimeline(ctx, 1)
	gt.NoError(t, err)
	gt.V(t, entry.Round).Equal(1)
	entry, err = repo.GetTimeline(ctx, 3)
	gt.NoError(t, err)
	gt.V(t, entry.Round).Equal(3)

	err = repo.DeleteRound(ctx, 2)
	gt.Error(t, err)
}

func TestPersistenceAcrossReload(t *testing.T) {
	repo, dir := newLocal(t)
	ctx := context.Background()

	gt.NoError(t, repo.PutTimeline(ctx, timelineEntry(1)))
	gt.NoError(t, repo.PutNotebook(ctx, notebookEntry(1)))
	gt.NoError(t, repo.PutNotebook(ctx, &model.NotebookEntry{
		Round: 1, Timestamp: time.Now().UTC(), Content: "revised",
	}))
	gt.NoError(t, repo.PutTimeline(ctx, timelineEntry(2)))

	reloaded, err := repository.NewLocal(dir)
	gt.NoError(t, err)

	last, err := reloaded.LastRound(ctx)
	gt.NoError(t, err)
	gt.V(t, last).Equal(2)

	entry, err := reloaded.GetNotebook(ctx, 1)
	gt.NoError(t, err)
	gt.V(t, entry.Content).Equal("revised")

	_, total, err := reloaded.ListTimeline(ctx, 0, 0)
	gt.NoError(t, err)
	gt.V(t, total).Equal(2)
}

func TestDeleteSurvivesReload(t *testing.T) {
	repo, dir := newLocal(t)
	ctx := context.Background()

	for round := int64(1); round <= 3; round++ {
		gt.NoError(t, repo.PutTimeline(ctx, timelineEntry(round)))
		gt.NoError(t, repo.PutNotebook(ctx, notebookEntry(round)))
	}
	gt.NoError(t, repo.DeleteRound(ctx, 2))

	reloaded, err := repository.NewLocal(dir)
	gt.NoError(t, err)

	_, err = reloaded.GetTimeline(ctx, 2)
	gt.Error(t, err)
	_, err = reloaded.GetNotebook(ctx, 2)
	gt.Error(t, err)

	_, total, err := reloaded.ListTimeline(ctx, 0, 0)
	gt.NoError(t, err)
	gt.V(t, total).Equal(2)
}

func TestInspirationTakeAndClear(t *testing.T) {
	repo, _ := newLocal(t)
	ctx := context.Background()

	insp, err := repo.TakeInspiration(ctx)
	gt.NoError(t, err)
	gt.V(t, insp).Nil()

	gt.NoError(t, repo.PutInspiration(ctx, &model.Inspiration{
		Message: "first", SubmittedAt: time.Now().UTC(),
	}))
	gt.NoError(t, repo.PutInspiration(ctx, &model.Inspiration{
		Message: "second", SubmittedAt: time.Now().UTC(),
	}))

	insp, err = repo.TakeInspiration(ctx)
	gt.NoError(t, err)
	gt.V(t, insp).NotNil()
	gt.V(t, insp.Message).Equal("second")

	insp, err = repo.TakeInspiration(ctx)
	gt.NoError(t, err)
	gt.V(t, insp).Nil()
}
