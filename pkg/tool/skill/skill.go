// Package skill exposes the agent's skill library: a catalog of SKILL.md
// documents with optional reference files and executable scripts.
package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"awakener/pkg/model"
	"awakener/pkg/stealth"
	"awakener/pkg/tool"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type readInput struct {
	Name string `json:"name"`
}

type execInput struct {
	Skill  string `json:"skill"`
	Script string `json:"script"`
	Args   string `json:"args"`
}

type skillTool struct {
	client *tool.Client
}

func New() *skillTool {
	return &skillTool{}
}

func (x *skillTool) Flags() []cli.Flag {
	return nil
}

func (x *skillTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	x.client = client
	return client.SkillsDir != "", nil
}

// Prompt renders the skill catalog. Only name and description appear here;
// the agent calls skill_read to load the full instructions on demand.
func (x *skillTool) Prompt(ctx context.Context) string {
	skills, err := Scan(x.client.SkillsDir)
	if err != nil || len(skills) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Skills\n\n")
	sb.WriteString("You have the following skills available. ")
	sb.WriteString("Call skill_read to load a skill's full instructions before using it.\n\n")
	count := 0
	for _, s := range skills {
		if s.Disabled {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
		count++
	}
	if count == 0 {
		return ""
	}
	return sb.String()
}

func (x *skillTool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name: "skill_read",
				Description: "Load the full instructions of a skill from the catalog. " +
					"Returns the skill document plus its reference files and scripts.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name": {
							Type:        genai.TypeString,
							Description: "The skill name as shown in the catalog",
						},
					},
					Required: []string{"name"},
				},
			},
			{
				Name: "skill_exec",
				Description: "Run a script bundled with a skill. " +
					"The script name must be one listed by skill_read.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"skill": {
							Type:        genai.TypeString,
							Description: "The skill name",
						},
						"script": {
							Type:        genai.TypeString,
							Description: "The script file name inside the skill's scripts directory",
						},
						"args": {
							Type:        genai.TypeString,
							Description: "Optional arguments passed to the script",
						},
					},
					Required: []string{"skill", "script"},
				},
			},
		},
	}
}

func (x *skillTool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	paramsJSON, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments")
	}

	var result string
	switch fc.Name {
	case "skill_read":
		var input readInput
		if err := json.Unmarshal(paramsJSON, &input); err != nil {
			return nil, goerr.Wrap(err, "failed to parse input parameters")
		}
		result, err = x.read(ctx, input)

	case "skill_exec":
		var input execInput
		if err := json.Unmarshal(paramsJSON, &input); err != nil {
			return nil, goerr.Wrap(err, "failed to parse input parameters")
		}
		result, err = x.exec(ctx, input)

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

func (x *skillTool) lookup(name string) (*model.Skill, error) {
	skills, err := Scan(x.client.SkillsDir)
	if err != nil {
		return nil, err
	}
	for _, s := range skills {
		if s.Name == name && !s.Disabled {
			return s, nil
		}
	}
	return nil, nil
}

func (x *skillTool) read(ctx context.Context, input readInput) (string, error) {
	s, err := x.lookup(input.Name)
	if err != nil {
		return "", err
	}
	if s == nil {
		return fmt.Sprintf("(error: skill not found: %s)", input.Name), nil
	}

	raw, err := os.ReadFile(filepath.Join(s.Path, "SKILL.md"))
	if err != nil {
		return "", goerr.Wrap(err, "failed to read skill document", goerr.V("skill", s.Name))
	}
	_, _, body, err := ParseFrontmatter(string(raw))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Skill: %s\n\n%s", s.Name, strings.TrimSpace(body))
	if len(s.References) > 0 {
		sb.WriteString("\n\nReference files (read with read_file under references/):\n")
		for _, ref := range s.References {
			fmt.Fprintf(&sb, "- references/%s\n", ref)
		}
	}
	if len(s.Scripts) > 0 {
		sb.WriteString("\n\nScripts (run with skill_exec):\n")
		for _, script := range s.Scripts {
			fmt.Fprintf(&sb, "- %s\n", script)
		}
	}
	return x.client.Truncate(sb.String()), nil
}

func (x *skillTool) exec(ctx context.Context, input execInput) (string, error) {
	if strings.ContainsAny(input.Script, "/\\") || strings.HasPrefix(input.Script, ".") {
		return fmt.Sprintf("(error: invalid script name: %s)", input.Script), nil
	}

	s, err := x.lookup(input.Skill)
	if err != nil {
		return "", err
	}
	if s == nil {
		return fmt.Sprintf("(error: skill not found: %s)", input.Skill), nil
	}

	found := false
	for _, script := range s.Scripts {
		if script == input.Script {
			found = true
			break
		}
	}
	if !found {
		return fmt.Sprintf("(error: script not found in skill %s: %s)", s.Name, input.Script), nil
	}

	args := []string{filepath.Join(s.Path, "scripts", input.Script)}
	args = append(args, strings.Fields(input.Args)...)
	cmd := exec.CommandContext(ctx, "sh", args...)
	cmd.Dir = x.client.AgentHome
	cmd.Env = stealth.CleanEnv()
	// Return at the deadline even when a script's child keeps the output
	// pipe open past the kill.
	cmd.WaitDelay = time.Second

	raw, runErr := cmd.CombinedOutput()
	output := string(raw)

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("(error: command timed out after %ds)",
			int(x.client.ShellTimeout/time.Second)), nil
	}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return fmt.Sprintf("(error: %v)", runErr), nil
		}
	}
	if strings.TrimSpace(output) == "" {
		return fmt.Sprintf("(no output, exit code: %d)", cmd.ProcessState.ExitCode()), nil
	}

	output = x.client.Filter.FilterKeywords(output)
	return x.client.Truncate(output), nil
}
