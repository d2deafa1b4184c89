package activation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
)

const wakeupNoteFile = "WAKEUP.md"

const wakeupNoteTemplate = `# Wake-Up Note

Hello. If you are reading this file, you have just woken up.

## About your memory

You have one important limitation: each time you wake up, you only remember
your recent activity records. Everything from earlier rounds, what you built,
what you learned, your ongoing plans, fades away unless you wrote it down.

This means a project you created in round 10 may be completely unknown to you
by round 12. You might repeat work you already finished, or lose progress.

## You must solve this yourself

Your room is %s. It is your free space.
You can create any files and directories here to help yourself remember.

You may edit this document and add an index of what matters. Your changes
persist across rounds, so this file can become your own navigation system.

Nobody will tell you how to do this. It is entirely up to your own judgment.

Good luck.
`

const knowledgeIndexTemplate = `# Knowledge Base

This is your personal knowledge base. It persists across rounds.

## How to Use

- **This file (index.md) is injected into your prompt every round.**
  Keep it concise, it has a character limit.
- Use this file as a **catalog**: list what you know and where to find it.
- Create separate files in this directory for detailed content,
  then reference them here. Read them with read_file when needed.
- You are free to organize the directory however you want.

## Rules

- Keep index.md short and structured. If it exceeds the limit,
  the end will be truncated and you will lose information.
- Do NOT put large content directly in this file. Use references.
- Update this file at the end of each round to reflect what you learned.
`

// seedAgentHome creates the agent's home directory with the wake-up note and
// knowledge base skeleton. Existing files are never overwritten: the agent
// owns them once created.
func seedAgentHome(agentHome string) error {
	if err := os.MkdirAll(agentHome, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create agent home", goerr.V("path", agentHome))
	}

	notePath := filepath.Join(agentHome, wakeupNoteFile)
	if _, err := os.Stat(notePath); os.IsNotExist(err) {
		content := fmt.Sprintf(wakeupNoteTemplate, agentHome)
		if err := os.WriteFile(notePath, []byte(content), 0o644); err != nil {
			return goerr.Wrap(err, "failed to write wake-up note")
		}
	}

	kbDir := filepath.Join(agentHome, "knowledge")
	if err := os.MkdirAll(kbDir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create knowledge directory")
	}
	indexPath := filepath.Join(kbDir, "index.md")
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		if err := os.WriteFile(indexPath, []byte(knowledgeIndexTemplate), 0o644); err != nil {
			return goerr.Wrap(err, "failed to write knowledge index")
		}
	}

	return nil
}

// loadKnowledgeIndex reads knowledge/index.md for prompt injection, capped
// at maxChars with a truncation warning so the agent keeps it trim.
func loadKnowledgeIndex(agentHome string, maxChars int) string {
	raw, err := os.ReadFile(filepath.Join(agentHome, "knowledge", "index.md"))
	if err != nil {
		return ""
	}
	content := string(raw)
	if len(content) > maxChars {
		content = content[:maxChars] + fmt.Sprintf(
			"\n\n[TRUNCATED: index.md exceeds the %d-character limit. Trim it to avoid losing information.]",
			maxChars)
	}
	return content
}
