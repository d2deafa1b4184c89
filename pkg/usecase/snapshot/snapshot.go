// Package snapshot maintains the agent's asset inventory: a YAML document
// describing services, projects, tools, documents and known issues on the
// server. An LLM auditor revises it after each activation round, and the
// loop injects the rendered form into the next round's prompt.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"awakener/pkg/adapter"
	"awakener/pkg/model"
	"awakener/pkg/utils/logging"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
	"gopkg.in/yaml.v3"
)

// ErrUpdateFailed is returned when both the auditor model and the fallback
// model fail to produce a parseable snapshot.
var ErrUpdateFailed = goerr.New("snapshot update failed on all models")

const snapshotFile = "snapshot.yaml"

type Service struct {
	gemini   adapter.Gemini
	fallback adapter.Gemini
	dataDir  string
	now      func() time.Time
}

type Option func(*Service)

// WithFallback sets the main agent model used when the auditor model fails.
func WithFallback(gemini adapter.Gemini) Option {
	return func(s *Service) {
		s.fallback = gemini
	}
}

func New(gemini adapter.Gemini, dataDir string, opts ...Option) *Service {
	s := &Service{
		gemini:  gemini,
		dataDir: dataDir,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) path() string {
	return filepath.Join(s.dataDir, snapshotFile)
}

// Load reads the current snapshot from disk. A missing or corrupted file
// yields an empty snapshot rather than an error.
func (s *Service) Load() *model.Snapshot {
	raw, err := os.ReadFile(s.path())
	if err != nil {
		return &model.Snapshot{}
	}
	var snap model.Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return &model.Snapshot{}
	}
	return &snap
}

// Save writes the snapshot to disk, creating the data directory if needed.
func (s *Service) Save(snap *model.Snapshot) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create data directory")
	}
	raw, err := yaml.Marshal(snap)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal snapshot")
	}
	if err := os.WriteFile(s.path(), raw, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write snapshot", goerr.V("path", s.path()))
	}
	return nil
}

// Update revises the snapshot from this round's timeline entry. The auditor
// model is tried first; on failure the fallback model takes over. The
// revised snapshot is stamped and saved before being returned.
func (s *Service) Update(ctx context.Context, entry *model.TimelineEntry) (*model.Snapshot, error) {
	logger := logging.From(ctx)
	old := s.Load()
	contents := buildAuditorContents(old, entry)

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(auditorPrompt, genai.RoleUser),
		// Factual revision wants near-deterministic output.
		Temperature: genai.Ptr[float32](0.1),
	}

	models := []adapter.Gemini{s.gemini}
	if s.fallback != nil {
		models = append(models, s.fallback)
	}

	var lastErr error
	for i, client := range models {
		if i > 0 {
			logger.Info("snapshot auditor falling back to main model")
		}

		resp, err := client.GenerateContent(ctx, contents, config)
		if err != nil {
			lastErr = err
			continue
		}

		snap, err := parseYAMLResponse(resp.Text())
		if err != nil {
			lastErr = err
			continue
		}

		snap.Meta.LastUpdated = s.now().UTC().Format("2006-01-02 15:04:05 UTC")
		snap.Meta.Round = entry.Round

		if err := s.Save(snap); err != nil {
			return nil, err
		}

		logger.Info("snapshot updated",
			"round", entry.Round,
			"services", len(snap.Services),
			"projects", len(snap.Projects),
			"open_issues", len(snap.OpenIssues()))
		return snap, nil
	}

	return nil, goerr.Wrap(ErrUpdateFailed, "auditor exhausted", goerr.V("last_error", lastErr))
}

func buildAuditorContents(old *model.Snapshot, entry *model.TimelineEntry) []*genai.Content {
	oldYAML := "(empty, this is the first snapshot)"
	if !old.IsEmpty() {
		if raw, err := yaml.Marshal(old); err == nil {
			oldYAML = string(raw)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Current Snapshot\n\n```yaml\n%s```\n\n", oldYAML)
	fmt.Fprintf(&sb, "## Round %d Action Log (Tools: %d, Duration: %.0fs)\n\n",
		entry.Round, entry.ToolsUsed, entry.Duration)
	sb.WriteString(renderActionLog(entry))
	sb.WriteString("\n---\n\nNow output the UPDATED snapshot as pure YAML (no fences, no explanation).")

	return []*genai.Content{
		genai.NewContentFromText(sb.String(), genai.RoleUser),
	}
}

// renderActionLog flattens the round's tool calls into the text the auditor
// reads. The round summary is excluded: it adds noise without structure.
func renderActionLog(entry *model.TimelineEntry) string {
	if len(entry.ToolCalls) == 0 {
		return "(no tool calls this round)\n"
	}

	var sb strings.Builder
	for i, call := range entry.ToolCalls {
		args := ""
		if len(call.Args) > 0 {
			if raw, err := json.Marshal(call.Args); err == nil {
				args = string(raw)
			}
		}
		fmt.Fprintf(&sb, "### Step %d: %s %s\n%s\n\n", i+1, call.Name, args, call.Result)
	}
	return sb.String()
}

func parseYAMLResponse(text string) (*model.Snapshot, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		} else {
			cleaned = ""
		}
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return nil, goerr.New("auditor returned empty response")
	}

	var snap model.Snapshot
	if err := yaml.Unmarshal([]byte(cleaned), &snap); err != nil {
		return nil, goerr.Wrap(err, "auditor returned invalid YAML")
	}
	return &snap, nil
}
