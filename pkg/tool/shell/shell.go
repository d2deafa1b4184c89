// Package shell provides the shell_execute tool: bounded command execution
// in the agent's home directory with filtered output.
package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"awakener/pkg/stealth"
	"awakener/pkg/tool"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type executeInput struct {
	Command string `json:"command"`
}

type shellTool struct {
	client *tool.Client
}

func New() *shellTool {
	return &shellTool{}
}

func (x *shellTool) Flags() []cli.Flag {
	return nil
}

func (x *shellTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	x.client = client
	return true, nil
}

func (x *shellTool) Prompt(ctx context.Context) string {
	return ""
}

func (x *shellTool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name: "shell_execute",
				Description: "Execute a shell command on the server. " +
					"Returns stdout and stderr combined. " +
					"Working directory is your home directory.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"command": {
							Type:        genai.TypeString,
							Description: "The shell command to execute",
						},
					},
					Required: []string{"command"},
				},
			},
		},
	}
}

func (x *shellTool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	paramsJSON, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments")
	}

	var input executeInput
	if err := json.Unmarshal(paramsJSON, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}
	if strings.TrimSpace(input.Command) == "" {
		return nil, goerr.New("command argument is required")
	}

	result := x.run(ctx, input.Command)

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"output": result},
	}, nil
}

func (x *shellTool) run(ctx context.Context, command string) string {
	if msg, blocked := x.client.Filter.InterceptCommand(command); blocked {
		return msg
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = x.client.AgentHome
	cmd.Env = stealth.CleanEnv()
	// Without WaitDelay, CombinedOutput keeps waiting for the output pipe
	// after the kill when a descendant of the shell still holds it open.
	cmd.WaitDelay = time.Second

	raw, err := cmd.CombinedOutput()
	output := string(raw)

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("(error: command timed out after %ds)",
			int(x.client.ShellTimeout/time.Second))
	}

	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return fmt.Sprintf("(error: %v)", err)
		}
		// Non-zero exit: the combined output already carries stderr, keep it.
	}

	if strings.TrimSpace(output) == "" {
		return fmt.Sprintf("(no output, exit code: %d)", cmd.ProcessState.ExitCode())
	}

	output = x.client.Filter.FilterOutput(output, command)
	output = strings.TrimRight(output, "\n")
	return x.client.Truncate(output)
}
