package tool

import (
	"fmt"
	"time"

	"awakener/pkg/adapter"
	"awakener/pkg/repository"
	"awakener/pkg/stealth"
)

// Client contains shared resources that tools can use
type Client struct {
	Repo    repository.Repository
	Storage adapter.Storage
	Filter  *stealth.Filter

	// AgentHome is the working directory for shell and file operations
	AgentHome string

	// SkillsDir holds the skill catalog
	SkillsDir string

	// ShellTimeout bounds shell and skill execution, enforced by the
	// dispatcher through the call context
	ShellTimeout time.Duration

	// MaxOutput caps the characters returned to the model per call
	MaxOutput int
}

const DefaultMaxOutput = 4000

// Truncate caps s at the client's output limit, appending a note with the
// original length.
func (c *Client) Truncate(s string) string {
	limit := c.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	return TruncateAt(s, limit)
}

func TruncateAt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return fmt.Sprintf("%s\n... (truncated, total %d chars)", s[:limit], len(s))
}
