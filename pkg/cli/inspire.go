package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serverFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "server",
		Aliases:     []string{"s"},
		Usage:       "Base URL of a running awakener server",
		Value:       "http://127.0.0.1:8080",
		Sources:     cli.EnvVars("AWAKENER_SERVER"),
		Destination: dest,
	}
}

func inspireCommand() *cli.Command {
	var serverURL string

	return &cli.Command{
		Name:      "inspire",
		Usage:     "Queue an inspiration message for the agent's next round",
		ArgsUsage: "<message>",
		Flags:     []cli.Flag{serverFlag(&serverURL)},
		Action: func(ctx context.Context, c *cli.Command) error {
			message := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if message == "" {
				return goerr.New("message is required")
			}

			body, err := json.Marshal(map[string]string{"message": message})
			if err != nil {
				return goerr.Wrap(err, "failed to encode message")
			}

			resp, err := apiRequest(ctx, http.MethodPost, serverURL+"/api/agent/inspiration", body)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}
			fmt.Println("Inspiration queued. The agent will see it next round.")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	var serverURL string

	return &cli.Command{
		Name:  "status",
		Usage: "Show the agent's current state",
		Flags: []cli.Flag{serverFlag(&serverURL)},
		Action: func(ctx context.Context, c *cli.Command) error {
			resp, err := apiRequest(ctx, http.MethodGet, serverURL+"/api/agent/status", nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}

			var status struct {
				State     string `json:"state"`
				Round     int64  `json:"round"`
				ToolsUsed int    `json:"tools_used"`
				LastError string `json:"last_error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return goerr.Wrap(err, "failed to decode status")
			}

			fmt.Printf("State:      %s\n", status.State)
			fmt.Printf("Round:      %d\n", status.Round)
			fmt.Printf("Tools used: %d\n", status.ToolsUsed)
			if status.LastError != "" {
				fmt.Printf("Last error: %s\n", status.LastError)
			}
			return nil
		},
	}
}

func apiRequest(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to reach server", goerr.V("url", url))
	}
	return resp, nil
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != "" {
		return goerr.New(decoded.Error, goerr.V("status", resp.StatusCode))
	}
	return goerr.New("request failed", goerr.V("status", resp.StatusCode))
}
