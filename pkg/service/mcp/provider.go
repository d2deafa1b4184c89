package mcp

import (
	"context"
	"encoding/json"

	"awakener/pkg/tool"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Provider surfaces MCP server tools through the tool.Tool interface.
type Provider struct {
	client     *Client
	toolClient *tool.Client
	tools      []*extensionTool
}

type extensionTool struct {
	serverName string
	mcpTool    *mcp.Tool
	funcDecl   *genai.FunctionDeclaration
}

func NewProvider(client *Client) *Provider {
	return &Provider{
		client: client,
		tools:  make([]*extensionTool, 0),
	}
}

// Flags returns nothing; MCP servers are configured through their own file.
func (p *Provider) Flags() []cli.Flag {
	return nil
}

// Init collects the tool lists of every connected server and converts them
// to function declarations. The provider disables itself when no server
// exposes any tool.
func (p *Provider) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if p.client == nil {
		return false, nil
	}
	p.toolClient = client

	serverNames := p.client.ServerNames()
	if len(serverNames) == 0 {
		return false, nil
	}

	for _, serverName := range serverNames {
		tools, err := p.client.Tools(serverName)
		if err != nil {
			return false, goerr.Wrap(err, "failed to get tools from server",
				goerr.V("server", serverName))
		}

		for _, t := range tools {
			funcDecl, err := toFunctionDeclaration(t)
			if err != nil {
				return false, goerr.Wrap(err, "failed to convert tool",
					goerr.V("server", serverName),
					goerr.V("tool", t.Name))
			}
			p.tools = append(p.tools, &extensionTool{
				serverName: serverName,
				mcpTool:    t,
				funcDecl:   funcDecl,
			})
		}
	}

	return len(p.tools) > 0, nil
}

func toFunctionDeclaration(t *mcp.Tool) (*genai.FunctionDeclaration, error) {
	funcDecl := &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
	}

	if t.InputSchema != nil {
		// InputSchema is untyped; round-trip through JSON to get a
		// jsonschema.Schema we can walk.
		schemaJSON, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal input schema")
		}

		var jsSchema jsonschema.Schema
		if err := json.Unmarshal(schemaJSON, &jsSchema); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal input schema")
		}

		schema, err := toGenaiSchema(&jsSchema)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert input schema")
		}
		funcDecl.Parameters = schema
	}

	return funcDecl, nil
}

func (p *Provider) Spec() *genai.Tool {
	if len(p.tools) == 0 {
		return nil
	}

	funcDecls := make([]*genai.FunctionDeclaration, len(p.tools))
	for i, t := range p.tools {
		funcDecls[i] = t.funcDecl
	}

	return &genai.Tool{
		FunctionDeclarations: funcDecls,
	}
}

func (p *Provider) Prompt(ctx context.Context) string {
	if len(p.tools) == 0 {
		return ""
	}
	return "You have access to extension tools provided by MCP (Model Context Protocol) servers configured by your operator."
}

// Execute routes the call to the owning server. Results pass through the
// same keyword filter as built-in tool output before the model sees them.
func (p *Provider) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	var target *extensionTool
	for _, t := range p.tools {
		if t.funcDecl.Name == fc.Name {
			target = t
			break
		}
	}
	if target == nil {
		return nil, goerr.New("tool not found", goerr.V("name", fc.Name))
	}

	result, err := p.client.CallTool(ctx, target.serverName, target.mcpTool.Name, fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call MCP tool")
	}

	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal result")
	}

	output := string(resultJSON)
	if p.toolClient != nil && p.toolClient.Filter != nil {
		output = p.toolClient.Filter.FilterKeywords(output)
	}
	if p.toolClient != nil {
		output = p.toolClient.Truncate(output)
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"output": output},
	}, nil
}
