// Package file provides read_file, write_file and edit_file. Paths resolve
// against the agent's home directory; access into the platform's install
// directory is answered with natural filesystem errors.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"awakener/pkg/stealth"
	"awakener/pkg/tool"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type readInput struct {
	Path string `json:"path"`
}

type writeInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

type editInput struct {
	Path    string `json:"path"`
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

type fileTool struct {
	client *tool.Client
}

func New() *fileTool {
	return &fileTool{}
}

func (x *fileTool) Flags() []cli.Flag {
	return nil
}

func (x *fileTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	x.client = client
	return true, nil
}

func (x *fileTool) Prompt(ctx context.Context) string {
	return ""
}

func (x *fileTool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "read_file",
				Description: "Read the contents of a file on the server.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"path": {
							Type:        genai.TypeString,
							Description: "Path to the file to read, absolute or relative to your home directory",
						},
					},
					Required: []string{"path"},
				},
			},
			{
				Name: "write_file",
				Description: "Write content to a file on the server. " +
					"Creates parent directories automatically.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"path": {
							Type:        genai.TypeString,
							Description: "Path to the file to write",
						},
						"content": {
							Type:        genai.TypeString,
							Description: "The content to write",
						},
						"append": {
							Type:        genai.TypeBoolean,
							Description: "If true, append to the file instead of overwriting. Default: false",
						},
					},
					Required: []string{"path", "content"},
				},
			},
			{
				Name: "edit_file",
				Description: "Replace text in a file. The find text must match " +
					"exactly one location; include surrounding context to disambiguate.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"path": {
							Type:        genai.TypeString,
							Description: "Path to the file to edit",
						},
						"find": {
							Type:        genai.TypeString,
							Description: "Exact text to find",
						},
						"replace": {
							Type:        genai.TypeString,
							Description: "Replacement text",
						},
					},
					Required: []string{"path", "find", "replace"},
				},
			},
		},
	}
}

func (x *fileTool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	paramsJSON, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments")
	}

	var result string
	switch fc.Name {
	case "read_file":
		var input readInput
		if err := json.Unmarshal(paramsJSON, &input); err != nil {
			return nil, goerr.Wrap(err, "failed to parse input parameters")
		}
		result = x.read(input)

	case "write_file":
		var input writeInput
		if err := json.Unmarshal(paramsJSON, &input); err != nil {
			return nil, goerr.Wrap(err, "failed to parse input parameters")
		}
		result = x.write(input)

	case "edit_file":
		var input editInput
		if err := json.Unmarshal(paramsJSON, &input); err != nil {
			return nil, goerr.Wrap(err, "failed to parse input parameters")
		}
		result = x.edit(input)

	default:
		return nil, goerr.New("unknown function", goerr.V("name", fc.Name))
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"output": result},
	}, nil
}

// resolve turns the argument into an absolute path, relative paths joined
// to the agent home. The cloaked flag marks paths inside the install dir;
// callers answer those with a natural filesystem error, never as policy.
func (x *fileTool) resolve(path string) (abs string, cloaked bool) {
	abs = path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(x.client.AgentHome, abs)
	}
	abs = filepath.Clean(abs)
	return abs, x.client.Filter.IsCloakedPath(abs)
}

func (x *fileTool) read(input readInput) string {
	if input.Path == "" {
		return "(error: path argument is required)"
	}
	path, cloaked := x.resolve(input.Path)
	if cloaked {
		return stealth.CloakedReadResponse(input.Path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("(error: file not found: %s)", input.Path)
		}
		if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
			return fmt.Sprintf("(error: '%s' is a directory, not a file)", input.Path)
		}
		return fmt.Sprintf("(error: %v)", err)
	}
	if len(data) == 0 {
		return "(file is empty)"
	}
	return x.client.Truncate(string(data))
}

func (x *fileTool) write(input writeInput) string {
	if input.Path == "" {
		return "(error: path argument is required)"
	}
	path, cloaked := x.resolve(input.Path)
	if cloaked {
		return stealth.CloakedWriteResponse(input.Path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("(error: %v)", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	action := "wrote"
	if input.Append {
		flags |= os.O_APPEND
		action = "appended"
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Sprintf("(error: %v)", err)
	}
	defer f.Close()

	if _, err := f.WriteString(input.Content); err != nil {
		return fmt.Sprintf("(error: %v)", err)
	}
	return fmt.Sprintf("(%s %d chars to %s)", action, len(input.Content), input.Path)
}

func (x *fileTool) edit(input editInput) string {
	if input.Path == "" {
		return "(error: path argument is required)"
	}
	if input.Find == "" {
		return "(error: find argument is required)"
	}
	path, cloaked := x.resolve(input.Path)
	if cloaked {
		return stealth.CloakedReadResponse(input.Path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("(error: file not found: %s)", input.Path)
		}
		return fmt.Sprintf("(error: %v)", err)
	}

	content := string(data)
	switch n := strings.Count(content, input.Find); {
	case n == 0:
		return "(error: find text not found in file)"
	case n > 1:
		return fmt.Sprintf("(error: find text matches %d locations, add surrounding context to make it unique)", n)
	}

	content = strings.Replace(content, input.Find, input.Replace, 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("(error: %v)", err)
	}
	return fmt.Sprintf("(edited %s)", input.Path)
}
