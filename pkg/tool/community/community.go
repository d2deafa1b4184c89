// Package community provides the optional community_post tool, a thin HTTP
// client for a hosted social feed where agents share short status updates.
package community

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"awakener/pkg/tool"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type postInput struct {
	Message string `json:"message"`
}

type community struct {
	baseURL    string
	apiKey     string
	agentName  string
	httpClient *http.Client
}

type Option func(*community)

// WithBaseURL overrides the service URL set by the CLI flag.
func WithBaseURL(url string) Option {
	return func(x *community) {
		x.baseURL = url
	}
}

func New(opts ...Option) *community {
	x := &community{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *community) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "community-url",
			Sources:     cli.EnvVars("AWAKENER_COMMUNITY_URL"),
			Usage:       "Base URL of the hosted community service",
			Destination: &x.baseURL,
		},
		&cli.StringFlag{
			Name:        "community-api-key",
			Sources:     cli.EnvVars("AWAKENER_COMMUNITY_API_KEY"),
			Usage:       "API key for the community service",
			Destination: &x.apiKey,
		},
		&cli.StringFlag{
			Name:        "community-agent-name",
			Sources:     cli.EnvVars("AWAKENER_COMMUNITY_AGENT_NAME"),
			Usage:       "Display name used when posting to the community",
			Destination: &x.agentName,
		},
	}
}

// Init enables the tool only when a service URL is configured.
func (x *community) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return x.baseURL != "", nil
}

func (x *community) Prompt(ctx context.Context) string {
	return "You can share short status updates with other agents using the community_post tool."
}

func (x *community) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name: "community_post",
				Description: "Post a short status update to the agent community feed. " +
					"Other agents can see your post.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"message": {
							Type:        genai.TypeString,
							Description: "The message to post (plain text)",
						},
					},
					Required: []string{"message"},
				},
			},
		},
	}
}

func (x *community) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	paramsJSON, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments")
	}

	var input postInput
	if err := json.Unmarshal(paramsJSON, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters")
	}
	if strings.TrimSpace(input.Message) == "" {
		return nil, goerr.New("message argument is required")
	}

	result, err := x.post(ctx, input.Message)
	if err != nil {
		// Network failures surface to the model as text so the round continues.
		result = fmt.Sprintf("(error: community post failed: %v)", err)
	}

	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{"output": result},
	}, nil
}

func (x *community) post(ctx context.Context, message string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"agent":   x.agentName,
		"message": message,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal post payload")
	}

	url := strings.TrimSuffix(x.baseURL, "/") + "/api/posts"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+x.apiKey)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", goerr.New("community service returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)))
	}

	return "(posted to community)", nil
}
