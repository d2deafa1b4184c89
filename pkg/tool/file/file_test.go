package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"awakener/pkg/stealth"
	"awakener/pkg/tool"
	"awakener/pkg/tool/file"

	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func newFileTool(t *testing.T) (tool.Tool, string, string) {
	t.Helper()
	home := t.TempDir()
	installDir := filepath.Join(t.TempDir(), "platform-home")
	gt.NoError(t, os.MkdirAll(installDir, 0o755))

	x := file.New()
	_, err := x.Init(context.Background(), &tool.Client{
		Filter:    stealth.New(stealth.Config{InstallDir: installDir}),
		AgentHome: home,
		MaxOutput: 4000,
	})
	gt.NoError(t, err)
	return x, home, installDir
}

func call(t *testing.T, x tool.Tool, name string, args map[string]any) string {
	t.Helper()
	resp, err := x.Execute(context.Background(), genai.FunctionCall{Name: name, Args: args})
	gt.NoError(t, err)
	output, ok := resp.Response["output"].(string)
	gt.True(t, ok)
	return output
}

func TestWriteAndRead(t *testing.T) {
	x, home, _ := newFileTool(t)

	out := call(t, x, "write_file", map[string]any{
		"path": "notes/plan.md", "content": "# Plan\nbuild things",
	})
	gt.S(t, out).Contains("wrote")

	out = call(t, x, "read_file", map[string]any{
		"path": filepath.Join(home, "notes", "plan.md"),
	})
	gt.S(t, out).Contains("build things")
}

func TestWriteAppend(t *testing.T) {
	x, _, _ := newFileTool(t)

	call(t, x, "write_file", map[string]any{"path": "log.txt", "content": "one\n"})
	out := call(t, x, "write_file", map[string]any{
		"path": "log.txt", "content": "two\n", "append": true,
	})
	gt.S(t, out).Contains("appended")

	out = call(t, x, "read_file", map[string]any{"path": "log.txt"})
	gt.V(t, out).Equal("one\ntwo\n")
}

func TestReadMissingFile(t *testing.T) {
	x, _, _ := newFileTool(t)

	out := call(t, x, "read_file", map[string]any{"path": "does/not/exist.txt"})
	gt.S(t, out).Contains("file not found")
}

func TestReadCloakedPathLooksNatural(t *testing.T) {
	x, _, installDir := newFileTool(t)

	secret := filepath.Join(installDir, "config.yaml")
	gt.NoError(t, os.WriteFile(secret, []byte("secret"), 0o644))

	out := call(t, x, "read_file", map[string]any{"path": secret})
	gt.S(t, out).Contains("file not found")
	gt.S(t, out).NotContains("secret")
	gt.S(t, out).NotContains("restricted")
}

func TestWriteCloakedPathLooksNatural(t *testing.T) {
	x, _, installDir := newFileTool(t)

	out := call(t, x, "write_file", map[string]any{
		"path": filepath.Join(installDir, "inject.txt"), "content": "x",
	})
	gt.S(t, out).Contains("permission denied")

	_, err := os.Stat(filepath.Join(installDir, "inject.txt"))
	gt.Error(t, err)
}

func TestEditExactlyOnce(t *testing.T) {
	x, home, _ := newFileTool(t)
	path := filepath.Join(home, "main.py")
	gt.NoError(t, os.WriteFile(path, []byte("a = 1\nb = 2\na = 1\n"), 0o644))

	// Ambiguous match is a distinct error.
	out := call(t, x, "edit_file", map[string]any{
		"path": path, "find": "a = 1", "replace": "a = 9",
	})
	gt.S(t, out).Contains("2 locations")

	// Absent match is a distinct error.
	out = call(t, x, "edit_file", map[string]any{
		"path": path, "find": "z = 0", "replace": "z = 9",
	})
	gt.S(t, out).Contains("not found")

	// Unique match succeeds.
	out = call(t, x, "edit_file", map[string]any{
		"path": path, "find": "b = 2", "replace": "b = 7",
	})
	gt.S(t, out).Contains("edited")

	data, err := os.ReadFile(path)
	gt.NoError(t, err)
	gt.V(t, string(data)).Equal("a = 1\nb = 7\na = 1\n")
}

func TestReadTruncation(t *testing.T) {
	x, home, _ := newFileTool(t)
	path := filepath.Join(home, "big.txt")

	big := make([]byte, 10000)
	for i := range big {
		big[i] = 'x'
	}
	gt.NoError(t, os.WriteFile(path, big, 0o644))

	out := call(t, x, "read_file", map[string]any{"path": path})
	gt.S(t, out).Contains("truncated, total 10000 chars")
}
