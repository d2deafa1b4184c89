package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"awakener/pkg/model"
	"awakener/pkg/repository"

	"github.com/m-mizutani/gt"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestFirestoreRoundTrip(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	round := time.Now().UnixNano()
	entry := &model.TimelineEntry{
		Round:         round,
		Timestamp:     time.Now().UTC(),
		Status:        model.RoundCompleted,
		ToolsUsed:     1,
		Duration:      3.2,
		Summary:       "firestore round trip",
		NotebookSaved: true,
		ToolCalls: []model.ToolCall{
			{Name: "shell_execute", Args: map[string]any{"command": "uptime"}, Result: "up"},
		},
	}
	gt.NoError(t, repo.PutTimeline(ctx, entry))
	gt.NoError(t, repo.PutNotebook(ctx, &model.NotebookEntry{
		Round: round, Timestamp: time.Now().UTC(), Content: "note",
	}))

	got, err := repo.GetTimeline(ctx, round)
	gt.NoError(t, err)
	gt.V(t, got.Summary).Equal("firestore round trip")

	last, err := repo.LastRound(ctx)
	gt.NoError(t, err)
	gt.Number(t, last).GreaterOrEqual(round)

	gt.NoError(t, repo.DeleteRound(ctx, round))
	_, err = repo.GetTimeline(ctx, round)
	gt.Error(t, err)
	_, err = repo.GetNotebook(ctx, round)
	gt.Error(t, err)
}

func TestFirestoreInspiration(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	gt.NoError(t, repo.PutInspiration(ctx, &model.Inspiration{
		Message: "check the backups", SubmittedAt: time.Now().UTC(),
	}))

	insp, err := repo.TakeInspiration(ctx)
	gt.NoError(t, err)
	gt.V(t, insp).NotNil()
	gt.V(t, insp.Message).Equal("check the backups")

	insp, err = repo.TakeInspiration(ctx)
	gt.NoError(t, err)
	gt.V(t, insp).Nil()
}
