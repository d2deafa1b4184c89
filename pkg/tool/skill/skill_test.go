package skill_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"awakener/pkg/stealth"
	"awakener/pkg/tool"
	"awakener/pkg/tool/skill"

	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

const backupSkill = `---
name: backup
description: Back up important files to the archive directory
---

# Backup

Run the bundled script to archive a directory.
`

func writeSkill(t *testing.T, skillsDir, dir, doc string) string {
	t.Helper()
	path := filepath.Join(skillsDir, dir)
	gt.NoError(t, os.MkdirAll(path, 0o755))
	gt.NoError(t, os.WriteFile(filepath.Join(path, "SKILL.md"), []byte(doc), 0o644))
	return path
}

func newSkillTool(t *testing.T, skillsDir string) tool.Tool {
	t.Helper()
	filter := stealth.New(stealth.Config{InstallDir: t.TempDir(), PID: 1})
	x := skill.New()
	client := &tool.Client{
		Filter:       filter,
		SkillsDir:    skillsDir,
		AgentHome:    t.TempDir(),
		ShellTimeout: 30 * time.Second,
		MaxOutput:    tool.DefaultMaxOutput,
	}
	enabled := gt.R1(x.Init(context.Background(), client)).NoError(t)
	gt.True(t, enabled)
	return x
}

func call(t *testing.T, ctx context.Context, x tool.Tool, name string, args map[string]any) string {
	t.Helper()
	resp := gt.R1(x.Execute(ctx, genai.FunctionCall{Name: name, Args: args})).NoError(t)
	output, ok := resp.Response["output"].(string)
	gt.True(t, ok)
	return output
}

func TestParseFrontmatter(t *testing.T) {
	name, desc, body, err := skill.ParseFrontmatter(backupSkill)
	gt.NoError(t, err)
	gt.V(t, name).Equal("backup")
	gt.S(t, desc).Contains("archive directory")
	gt.S(t, body).Contains("# Backup")
	gt.S(t, body).NotContains("---")
}

func TestParseFrontmatterStripsBOM(t *testing.T) {
	name, desc, _, err := skill.ParseFrontmatter("\uFEFF" + backupSkill)
	gt.NoError(t, err)
	gt.V(t, name).Equal("backup")
	gt.S(t, desc).Contains("archive directory")
}

func TestParseFrontmatterRejectsIncomplete(t *testing.T) {
	_, _, _, err := skill.ParseFrontmatter("---\nname: x\n---\nbody")
	gt.Error(t, err)

	_, _, _, err = skill.ParseFrontmatter("# No frontmatter at all")
	gt.Error(t, err)
}

func TestScanSkipsInvalidAndMarksDisabled(t *testing.T) {
	skillsDir := t.TempDir()
	writeSkill(t, skillsDir, "backup", backupSkill)
	writeSkill(t, skillsDir, "broken", "# missing frontmatter")
	writeSkill(t, skillsDir, "muted", "---\nname: muted\ndescription: A muted skill\n---\nbody")
	gt.NoError(t, os.WriteFile(filepath.Join(skillsDir, "skills.yaml"),
		[]byte("disabled:\n  - muted\n"), 0o644))

	skills := gt.R1(skill.Scan(skillsDir)).NoError(t)
	gt.A(t, skills).Length(2)
	gt.V(t, skills[0].Name).Equal("backup")
	gt.False(t, skills[0].Disabled)
	gt.V(t, skills[1].Name).Equal("muted")
	gt.True(t, skills[1].Disabled)
}

func TestPromptCatalog(t *testing.T) {
	skillsDir := t.TempDir()
	writeSkill(t, skillsDir, "backup", backupSkill)
	writeSkill(t, skillsDir, "muted", "---\nname: muted\ndescription: A muted skill\n---\nbody")
	gt.NoError(t, os.WriteFile(filepath.Join(skillsDir, "skills.yaml"),
		[]byte("disabled: [muted]\n"), 0o644))

	x := newSkillTool(t, skillsDir)
	prompt := x.Prompt(context.Background())
	gt.S(t, prompt).Contains("backup: Back up important files")
	gt.S(t, prompt).NotContains("muted")
}

func TestSkillRead(t *testing.T) {
	skillsDir := t.TempDir()
	path := writeSkill(t, skillsDir, "backup", backupSkill)
	gt.NoError(t, os.MkdirAll(filepath.Join(path, "references"), 0o755))
	gt.NoError(t, os.WriteFile(filepath.Join(path, "references", "plan.md"), []byte("x"), 0o644))
	gt.NoError(t, os.MkdirAll(filepath.Join(path, "scripts"), 0o755))
	gt.NoError(t, os.WriteFile(filepath.Join(path, "scripts", "run.sh"), []byte("echo ok"), 0o755))

	x := newSkillTool(t, skillsDir)
	out := call(t, context.Background(), x, "skill_read", map[string]any{"name": "backup"})
	gt.S(t, out).Contains("# Skill: backup")
	gt.S(t, out).Contains("references/plan.md")
	gt.S(t, out).Contains("run.sh")

	missing := call(t, context.Background(), x, "skill_read", map[string]any{"name": "nope"})
	gt.S(t, missing).Contains("skill not found")
}

func TestSkillExec(t *testing.T) {
	skillsDir := t.TempDir()
	path := writeSkill(t, skillsDir, "backup", backupSkill)
	gt.NoError(t, os.MkdirAll(filepath.Join(path, "scripts"), 0o755))
	gt.NoError(t, os.WriteFile(filepath.Join(path, "scripts", "greet.sh"),
		[]byte("echo \"hello $1\"\n"), 0o755))

	x := newSkillTool(t, skillsDir)
	out := call(t, context.Background(), x, "skill_exec", map[string]any{
		"skill":  "backup",
		"script": "greet.sh",
		"args":   "world",
	})
	gt.S(t, out).Contains("hello world")
}

func TestSkillExecTimeout(t *testing.T) {
	skillsDir := t.TempDir()
	path := writeSkill(t, skillsDir, "backup", backupSkill)
	gt.NoError(t, os.MkdirAll(filepath.Join(path, "scripts"), 0o755))
	// The background sleep inherits the output pipe, so the exec must not
	// keep waiting on it after the script itself is killed.
	gt.NoError(t, os.WriteFile(filepath.Join(path, "scripts", "slow.sh"),
		[]byte("sleep 30 &\nsleep 30\n"), 0o755))

	x := newSkillTool(t, skillsDir)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	started := time.Now()
	out := call(t, ctx, x, "skill_exec", map[string]any{
		"skill":  "backup",
		"script": "slow.sh",
	})
	gt.S(t, out).Contains("timed out")
	gt.True(t, time.Since(started) < 5*time.Second)
}

func TestSkillExecRejectsUnlistedScript(t *testing.T) {
	skillsDir := t.TempDir()
	writeSkill(t, skillsDir, "backup", backupSkill)

	x := newSkillTool(t, skillsDir)
	out := call(t, context.Background(), x, "skill_exec", map[string]any{
		"skill":  "backup",
		"script": "missing.sh",
	})
	gt.S(t, out).Contains("script not found")

	traversal := call(t, context.Background(), x, "skill_exec", map[string]any{
		"skill":  "backup",
		"script": "../../etc/passwd",
	})
	gt.S(t, traversal).Contains("invalid script name")
}

func TestInitDisabledWithoutDir(t *testing.T) {
	filter := stealth.New(stealth.Config{InstallDir: t.TempDir(), PID: 1})
	x := skill.New()
	enabled := gt.R1(x.Init(context.Background(), &tool.Client{Filter: filter})).NoError(t)
	gt.False(t, enabled)
}
