// Package notebook provides notebook_write and notebook_read, the agent's
// cross-round continuity memory.
package notebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"awakener/pkg/model"
	"awakener/pkg/repository"
	"awakener/pkg/tool"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type writeInput struct {
	Content string `json:"content"`
}

type readInput struct {
	Round int64 `json:"round"`
}

type Tool struct {
	client *tool.Client

	// round is the current round, set by the loop before each round starts.
	round atomic.Int64
	// saved flips when the agent writes its notebook this round.
	saved atomic.Bool
}

func New() *Tool {
	return &Tool{}
}

// BeginRound resets the tool for a new round.
func (x *Tool) BeginRound(round int64) {
	x.round.Store(round)
	x.saved.Store(false)
}

// Saved reports whether the agent wrote its notebook in the current round.
func (x *Tool) Saved() bool {
	return x.saved.Load()
}

func (x *Tool) Flags() []cli.Flag {
	return nil
}

func (x *Tool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	x.client = client
	return true, nil
}

func (x *Tool) Prompt(ctx context.Context) string {
	return "Save a note with notebook_write before the round ends. It is the only memory that survives to your next activation."
}

func (x *Tool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name: "notebook_write",
				Description: "Save your note for this activation round. " +
					"Write down your progress, discoveries, plans for next round, " +
					"and anything you want to remember. " +
					"You MUST call this tool at least once before the round ends.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"content": {
							Type: genai.TypeString,
							Description: "Your note content for this round. " +
								"Include what you did, what you learned, " +
								"and what you plan to do next.",
						},
					},
					Required: []string{"content"},
				},
			},
			{
				Name: "notebook_read",
				Description: "Read your note from a specific historical activation round. " +
					"Your recent rounds are already shown to you automatically. " +
					"Use this tool to look up older rounds.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"round": {
							Type:        genai.TypeInteger,
							Description: "The round number to read (e.g. 1, 5, 42)",
						},
					},
					Required: []string{"round"},
				},
			},
		},
	}
}

func (x *Tool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	paramsJSON, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments")
	}

	var result string
	switch fc.Name {
	case "notebook_write":
		var input writeInput
		if err := json.Unmarshal(paramsJSON, &input); err != nil {
			return nil, goerr.Wrap(err, "failed to parse input parameters")
		}
		result, err = x.write(ctx, input)

	case "notebook_read":
		var input readInput
		if err := json.Unmarshal(paramsJSON, &input); err != nil {
			return nil, goerr.Wrap(err, "failed to parse input parameters")
		}
		result, err = x.read(ctx, input)

	default:
		return nil, goerr.New("unknown function", goerr.V("name", fc.Name))
	}
	if err != nil {
		return nil, err
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"output": result},
	}, nil
}

func (x *Tool) write(ctx context.Context, input writeInput) (string, error) {
	if strings.TrimSpace(input.Content) == "" {
		return "(error: content argument is required)", nil
	}

	round := x.round.Load()
	entry := &model.NotebookEntry{
		Round:     round,
		Timestamp: time.Now().UTC(),
		Content:   input.Content,
	}
	if err := x.client.Repo.PutNotebook(ctx, entry); err != nil {
		return "", goerr.Wrap(err, "failed to save notebook", goerr.V("round", round))
	}
	x.saved.Store(true)
	return fmt.Sprintf("(saved note for round %d)", round), nil
}

func (x *Tool) read(ctx context.Context, input readInput) (string, error) {
	entry, err := x.client.Repo.GetNotebook(ctx, input.Round)
	if err != nil {
		if errors.Is(err, repository.ErrRoundNotFound) {
			return fmt.Sprintf("(no note recorded for round %d)", input.Round), nil
		}
		return "", err
	}
	return fmt.Sprintf("## Round %d (%s)\n\n%s",
		entry.Round, entry.Timestamp.Format("2006-01-02 15:04"), entry.Content), nil
}
