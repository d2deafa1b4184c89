package snapshot

import (
	"fmt"
	"strings"

	"awakener/pkg/model"
)

// Render produces the concise markdown block injected into the agent's
// prompt: maximum situational awareness, minimum tokens.
func Render(snap *model.Snapshot) string {
	if snap.IsEmpty() {
		return ""
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("## System Snapshot (Round %d)", snap.Meta.Round), "")

	if len(snap.Services) > 0 {
		lines = append(lines,
			"### Services",
			"| Name | Port | Status | Health | Path |",
			"|------|------|--------|--------|------|")
		for _, svc := range snap.Services {
			health := svc.Health
			switch svc.Health {
			case "degraded":
				health = "[!] degraded"
			case "down":
				health = "[x] down"
			}
			lines = append(lines, fmt.Sprintf("| %s | %d | %s | %s | %s |",
				svc.Name, svc.Port, svc.Status, health, svc.Path))
		}
		lines = append(lines, "")
	}

	if len(snap.Projects) > 0 {
		lines = append(lines, "### Projects")
		for _, p := range snap.Projects {
			entry := ""
			if p.Entry != "" {
				entry = fmt.Sprintf(" -> `%s`", p.Entry)
			}
			lines = append(lines, fmt.Sprintf("- **%s**: `%s` (%s)%s", p.Name, p.Path, p.Stack, entry))
			if p.Description != "" {
				lines = append(lines, "  "+p.Description)
			}
		}
		lines = append(lines, "")
	}

	if len(snap.Tools) > 0 {
		lines = append(lines, "### Tools")
		for _, tl := range snap.Tools {
			lines = append(lines, fmt.Sprintf("- `%s` -> %s", tl.Path, tl.Usage))
		}
		lines = append(lines, "")
	}

	if len(snap.Documents) > 0 {
		lines = append(lines, "### Documents")
		for _, d := range snap.Documents {
			lines = append(lines, fmt.Sprintf("- `%s`: %s", d.Path, d.Purpose))
		}
		lines = append(lines, "")
	}

	if envLine := renderEnv(snap.Environment); envLine != "" {
		lines = append(lines, "### Environment: "+envLine, "")
	}

	if open := snap.OpenIssues(); len(open) > 0 {
		lines = append(lines, fmt.Sprintf("### Issues (%d open)", len(open)))
		for _, issue := range open {
			lines = append(lines, fmt.Sprintf("- [%s] %s (since R%d)",
				issue.Severity, issue.Summary, issue.Discovered))
		}
		lines = append(lines, "")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func renderEnv(env model.SnapshotEnv) string {
	var parts []string
	if env.OS != "" {
		parts = append(parts, "OS: "+env.OS)
	}
	if env.Runtime != "" {
		parts = append(parts, "Runtime: "+env.Runtime)
	}
	if env.Domain != "" {
		domain := "Domain: " + env.Domain
		if env.SSL {
			domain += " (SSL)"
		}
		parts = append(parts, domain)
	}
	if env.DiskUsage != "" {
		parts = append(parts, "Disk: "+env.DiskUsage)
	}
	return strings.Join(parts, " | ")
}
