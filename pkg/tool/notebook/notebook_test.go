package notebook_test

import (
	"context"
	"testing"

	"awakener/pkg/repository"
	"awakener/pkg/tool"
	"awakener/pkg/tool/notebook"

	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func newNotebookTool(t *testing.T) (*notebook.Tool, repository.Repository) {
	t.Helper()
	repo := gt.R1(repository.NewLocal(t.TempDir())).NoError(t)
	x := notebook.New()
	client := &tool.Client{Repo: repo}
	gt.R1(x.Init(context.Background(), client)).NoError(t)
	return x, repo
}

func call(t *testing.T, x *notebook.Tool, name string, args map[string]any) string {
	t.Helper()
	resp := gt.R1(x.Execute(context.Background(), genai.FunctionCall{
		Name: name,
		Args: args,
	})).NoError(t)
	output, ok := resp.Response["output"].(string)
	gt.True(t, ok)
	return output
}

func TestWriteAndRead(t *testing.T) {
	x, _ := newNotebookTool(t)
	x.BeginRound(7)

	gt.False(t, x.Saved())
	out := call(t, x, "notebook_write", map[string]any{
		"content": "set up nginx reverse proxy",
	})
	gt.S(t, out).Contains("round 7")
	gt.True(t, x.Saved())

	read := call(t, x, "notebook_read", map[string]any{"round": float64(7)})
	gt.S(t, read).Contains("Round 7")
	gt.S(t, read).Contains("set up nginx reverse proxy")
}

func TestReadMissingRound(t *testing.T) {
	x, _ := newNotebookTool(t)
	x.BeginRound(1)

	out := call(t, x, "notebook_read", map[string]any{"round": float64(99)})
	gt.S(t, out).Contains("no note recorded for round 99")
}

func TestWriteEmptyContent(t *testing.T) {
	x, _ := newNotebookTool(t)
	x.BeginRound(1)

	out := call(t, x, "notebook_write", map[string]any{"content": "  "})
	gt.S(t, out).Contains("error")
	gt.False(t, x.Saved())
}

func TestBeginRoundResetsSaved(t *testing.T) {
	x, _ := newNotebookTool(t)
	x.BeginRound(1)
	call(t, x, "notebook_write", map[string]any{"content": "first"})
	gt.True(t, x.Saved())

	x.BeginRound(2)
	gt.False(t, x.Saved())
}

func TestLastWriteWinsWithinRound(t *testing.T) {
	x, repo := newNotebookTool(t)
	x.BeginRound(3)
	call(t, x, "notebook_write", map[string]any{"content": "draft"})
	call(t, x, "notebook_write", map[string]any{"content": "final"})

	entry := gt.R1(repo.GetNotebook(context.Background(), 3)).NoError(t)
	gt.V(t, entry.Content).Equal("final")
}
