package tool

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

var ErrToolNotFound = goerr.New("tool not found")

// Registry manages the tools available to the agent
type Registry struct {
	tools    map[string]Tool
	allTools []Tool
	specs    []*genai.Tool
}

// New creates a new tool registry with the given tools. Call Init before
// use to run conditional enablement.
func New(tools ...Tool) *Registry {
	r := &Registry{allTools: tools}
	r.index()
	return r
}

// Init runs tool initialization and drops tools that report themselves
// disabled.
func (r *Registry) Init(ctx context.Context, client *Client) error {
	enabled := make([]Tool, 0, len(r.allTools))
	for _, t := range r.allTools {
		if init, ok := t.(Initializer); ok {
			on, err := init.Init(ctx, client)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize tool")
			}
			if !on {
				continue
			}
		}
		enabled = append(enabled, t)
	}
	r.allTools = enabled
	r.index()
	return nil
}

func (r *Registry) index() {
	r.tools = make(map[string]Tool)
	r.specs = r.specs[:0]
	for _, t := range r.allTools {
		spec := t.Spec()
		if spec == nil || len(spec.FunctionDeclarations) == 0 {
			continue
		}
		r.specs = append(r.specs, spec)
		for _, fd := range spec.FunctionDeclarations {
			r.tools[fd.Name] = t
		}
	}
}

// Add registers additional tools, such as MCP extension tools discovered at
// startup.
func (r *Registry) Add(tools ...Tool) {
	r.allTools = append(r.allTools, tools...)
	r.index()
}

// Specs returns all tool specifications for Gemini function calling
func (r *Registry) Specs() []*genai.Tool {
	return r.specs
}

// Names returns the declared function names in registration order.
func (r *Registry) Names() []string {
	var names []string
	for _, spec := range r.specs {
		for _, fd := range spec.FunctionDeclarations {
			names = append(names, fd.Name)
		}
	}
	return names
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts(ctx context.Context) string {
	var prompts []string
	for _, t := range r.allTools {
		if prompt := t.Prompt(ctx); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Flags returns all tool flags combined
func (r *Registry) Flags() []cli.Flag {
	var flags []cli.Flag
	for _, t := range r.allTools {
		if toolFlags := t.Flags(); toolFlags != nil {
			flags = append(flags, toolFlags...)
		}
	}
	return flags
}

// Execute runs the tool with the given function call
func (r *Registry) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	tool, ok := r.tools[fc.Name]
	if !ok {
		return nil, goerr.Wrap(ErrToolNotFound, "unknown tool", goerr.V("name", fc.Name))
	}

	return tool.Execute(ctx, fc)
}
