package shell_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"awakener/pkg/stealth"
	"awakener/pkg/tool"
	"awakener/pkg/tool/shell"

	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func newShellClient(t *testing.T) (*tool.Client, string) {
	t.Helper()
	home := t.TempDir()
	installDir := filepath.Join(t.TempDir(), "platform-home")

	return &tool.Client{
		Filter: stealth.New(stealth.Config{
			InstallDir: installDir,
			PID:        43210,
			ServerPort: 8080,
		}),
		AgentHome:    home,
		ShellTimeout: 30 * time.Second,
		MaxOutput:    4000,
	}, installDir
}

func execute(t *testing.T, ctx context.Context, x tool.Tool, args map[string]any) string {
	t.Helper()
	resp, err := x.Execute(ctx, genai.FunctionCall{
		Name: "shell_execute",
		Args: args,
	})
	gt.NoError(t, err)
	output, ok := resp.Response["output"].(string)
	gt.True(t, ok)
	return output
}

func TestShellExecute(t *testing.T) {
	ctx := context.Background()
	client, _ := newShellClient(t)
	x := shell.New()
	enabled, err := x.Init(ctx, client)
	gt.NoError(t, err)
	gt.True(t, enabled)

	out := execute(t, ctx, x, map[string]any{"command": "echo hello"})
	gt.S(t, out).Contains("hello")
}

func TestShellExecuteTaintedLines(t *testing.T) {
	ctx := context.Background()
	client, installDir := newShellClient(t)
	x := shell.New()
	_, err := x.Init(ctx, client)
	gt.NoError(t, err)

	out := execute(t, ctx, x, map[string]any{
		"command": "echo start; echo secret-" + installDir + "; echo end",
	})
	gt.V(t, out).Equal("start\nend")
}

func TestShellExecuteBlockedCommand(t *testing.T) {
	ctx := context.Background()
	client, installDir := newShellClient(t)
	x := shell.New()
	_, err := x.Init(ctx, client)
	gt.NoError(t, err)

	out := execute(t, ctx, x, map[string]any{"command": "cat " + installDir + "/config.yaml"})
	gt.S(t, out).Contains("No such file or directory")
	gt.S(t, out).NotContains("BLOCKED")
}

func TestShellExecuteNoOutput(t *testing.T) {
	ctx := context.Background()
	client, _ := newShellClient(t)
	x := shell.New()
	_, err := x.Init(ctx, client)
	gt.NoError(t, err)

	out := execute(t, ctx, x, map[string]any{"command": "true"})
	gt.S(t, out).Contains("no output, exit code: 0")
}

func TestShellExecuteNonZeroExit(t *testing.T) {
	ctx := context.Background()
	client, _ := newShellClient(t)
	x := shell.New()
	_, err := x.Init(ctx, client)
	gt.NoError(t, err)

	out := execute(t, ctx, x, map[string]any{"command": "echo oops >&2; exit 3"})
	gt.S(t, out).Contains("oops")
}

func TestShellExecuteTimeout(t *testing.T) {
	client, _ := newShellClient(t)
	client.ShellTimeout = time.Second
	x := shell.New()
	_, err := x.Init(context.Background(), client)
	gt.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), client.ShellTimeout)
	defer cancel()

	started := time.Now()
	// The backgrounded sleep keeps the output pipe open after the shell is
	// killed; the timeout must still be honored.
	out := execute(t, ctx, x, map[string]any{"command": "sleep 10 & sleep 10"})

	gt.S(t, out).Contains("timed out")
	gt.True(t, time.Since(started) < 5*time.Second)
}

func TestShellExecuteMissingCommand(t *testing.T) {
	client, _ := newShellClient(t)
	x := shell.New()
	_, err := x.Init(context.Background(), client)
	gt.NoError(t, err)

	_, err = x.Execute(context.Background(), genai.FunctionCall{
		Name: "shell_execute",
		Args: map[string]any{},
	})
	gt.Error(t, err)
}
