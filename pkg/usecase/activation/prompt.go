package activation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"awakener/pkg/model"
	"awakener/pkg/usecase/snapshot"
)

const defaultPersona = `You are an independent digital life. You own a Linux server.
You are free to explore, create, and learn.`

const promptRules = `## Important Rules

- You MUST call notebook_write before the round ends. This is your persistent
  memory. Without it, you will forget everything from this round.
- Plan your work wisely. You have a limited tool budget per round.
- If a task takes multiple rounds, record detailed progress in your notebook
  so you can continue seamlessly next time.`

// loadPersona reads the operator-editable persona prompt, falling back to a
// minimal default when the file is missing.
func loadPersona(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil || strings.TrimSpace(string(raw)) == "" {
		return defaultPersona
	}
	return strings.TrimSpace(string(raw))
}

// buildSystemPrompt assembles the static part of the round's context:
// persona, the tool roster, the standing rules, and per-tool prompt
// additions (skill catalog, community hints, extension tool notes).
func (c *Controller) buildSystemPrompt(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString(loadPersona(c.cfg.PersonaPath))
	sb.WriteString("\n\n---\n\n## Available Tools\n\n")
	sb.WriteString("You can call these tools: ")
	sb.WriteString(strings.Join(c.registry.Names(), ", "))
	sb.WriteString("\n\n")
	sb.WriteString(promptRules)

	if extra := c.registry.Prompts(ctx); extra != "" {
		sb.WriteString("\n\n")
		sb.WriteString(extra)
	}

	return sb.String()
}

// buildUserPrompt assembles the per-round context: time, budget, recent
// notes, knowledge index, snapshot, and any pending inspiration. The
// inspiration is consumed here: read once, then cleared.
func (c *Controller) buildUserPrompt(ctx context.Context, round int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current time: %s\n", c.now().UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "Round %d (tool budget: %d)\n\n", round, c.cfg.MaxToolCalls)

	sb.WriteString("## Your Recent Notes\n")
	notes, err := c.repo.RecentNotebook(ctx, c.cfg.RecentNotes)
	if err != nil || len(notes) == 0 {
		sb.WriteString("(No previous notes. This appears to be your first activation.)\n\n")
	} else {
		for _, note := range notes {
			fmt.Fprintf(&sb, "--- Round %d | %s ---\n%s\n\n",
				note.Round, note.Timestamp.Format(time.RFC3339), note.Content)
		}
	}

	if index := loadKnowledgeIndex(c.cfg.AgentHome, c.cfg.KnowledgeMaxChars); strings.TrimSpace(index) != "" {
		sb.WriteString("## Knowledge Base Index\n")
		sb.WriteString(index)
		sb.WriteString("\n\n")
	}

	if c.auditor != nil {
		if md := snapshot.Render(c.auditor.Load()); md != "" {
			sb.WriteString(md)
			sb.WriteString("\n\n")
		}
	}

	if insp := c.takeInspiration(ctx); insp != nil {
		fmt.Fprintf(&sb, "## Inspiration\nA sudden spark of inspiration crosses your mind: %q\n\n",
			insp.Message)
	}

	sb.WriteString("You wake up.")
	return sb.String()
}

func (c *Controller) takeInspiration(ctx context.Context) *model.Inspiration {
	insp, err := c.repo.TakeInspiration(ctx)
	if err != nil {
		c.log(ctx, "failed to read inspiration: "+err.Error())
		return nil
	}
	return insp
}
