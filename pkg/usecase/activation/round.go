package activation

import (
	"context"
	"fmt"
	"strings"

	"awakener/pkg/model"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// maxLLMRetries bounds transport-error retries within a single turn before
// the round is abandoned as an error.
const maxLLMRetries = 2

type roundResult struct {
	toolsUsed int
	summary   string
	toolCalls []model.ToolCall
	status    model.RoundStatus
}

// runRound drives one full LLM conversation: prompt, streamed turns, tool
// dispatch under budget, and termination. Tool failures never escape; only
// exhausted LLM transport errors end the round as an error.
func (c *Controller) runRound(ctx context.Context, round int64) *roundResult {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.buildSystemPrompt(ctx), genai.RoleUser),
		Tools:             c.registry.Specs(),
	}
	contents := []*genai.Content{
		genai.NewContentFromText(c.buildUserPrompt(ctx, round), genai.RoleUser),
	}

	res := &roundResult{status: model.RoundCompleted}
	var summary strings.Builder
	llmFailures := 0

	// Termination guard: enough turns for the budget, the forced conclusion
	// and a few refused calls, but never unbounded.
	maxTurns := c.cfg.MaxToolCalls*2 + 8

	for turn := 0; turn < maxTurns; turn++ {
		if turn > 0 && c.stopRequested() {
			res.status = model.RoundStopped
			break
		}

		content, text, calls, err := c.streamTurn(ctx, contents, config)
		if err != nil {
			llmFailures++
			c.log(ctx, fmt.Sprintf("[LLM] call failed (%d/%d): %v", llmFailures, maxLLMRetries+1, err))
			if llmFailures > maxLLMRetries {
				res.status = model.RoundError
				c.setLastError(err.Error())
				c.emit(model.EventError, map[string]any{"round": round, "message": err.Error()})
				break
			}
			continue
		}
		llmFailures = 0

		if text != "" {
			summary.WriteString(text)
			summary.WriteString("\n")
		}
		if content != nil {
			contents = append(contents, content)
		}
		if len(calls) == 0 {
			break
		}

		responses, stopped := c.dispatchCalls(ctx, res, calls)
		if len(responses) > 0 {
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: responses,
			})
		}
		if stopped {
			res.status = model.RoundStopped
			break
		}

		// Budget exhausted: disable function calling so the next turn can
		// only conclude in text.
		if res.toolsUsed >= c.cfg.MaxToolCalls && config.ToolConfig == nil {
			config.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{
					Mode: genai.FunctionCallingConfigModeNone,
				},
			}
		}
	}

	res.summary = tailTruncate(strings.TrimSpace(summary.String()), c.cfg.MaxSummaryChars)
	if res.summary == "" {
		res.summary = "(no text output this round)"
	}
	return res
}

// streamTurn issues one streamed LLM call, publishing thought chunks as they
// arrive and a thought_done marker with the accumulated text at the end.
func (c *Controller) streamTurn(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.Content, string, []genai.FunctionCall, error) {
	var parts []*genai.Part
	var text strings.Builder
	var calls []genai.FunctionCall

	for resp, err := range c.gemini.GenerateContentStream(ctx, contents, config) {
		if err != nil {
			return nil, "", nil, goerr.Wrap(err, "stream failed")
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
				c.emit(model.EventThoughtChunk, map[string]any{"text": part.Text})
			}
			if part.FunctionCall != nil {
				calls = append(calls, *part.FunctionCall)
			}
			parts = append(parts, part)
		}
	}

	full := text.String()
	if full != "" {
		c.emit(model.EventThoughtDone, map[string]any{"text": full})
		c.runlogWrite("[THOUGHT] " + headTruncate(full, 1000))
	}

	var content *genai.Content
	if len(parts) > 0 {
		content = &genai.Content{Role: genai.RoleModel, Parts: parts}
	}
	return content, full, calls, nil
}

// dispatchCalls executes the turn's tool calls in order, refusing everything
// past the budget. A stop request is honored between dispatches: the
// in-flight call always finishes, and no further call starts.
func (c *Controller) dispatchCalls(ctx context.Context, res *roundResult, calls []genai.FunctionCall) ([]*genai.Part, bool) {
	var responses []*genai.Part

	for _, fc := range calls {
		if c.stopRequested() {
			return responses, true
		}

		if res.toolsUsed >= c.cfg.MaxToolCalls {
			refusal := fmt.Sprintf(
				"[System: Tool budget reached (%d/%d). This call was not executed. Stop calling tools, and produce your final summary for this round.]",
				c.cfg.MaxToolCalls, c.cfg.MaxToolCalls)
			c.log(ctx, fmt.Sprintf("[LIMIT] refused %s: budget exhausted", fc.Name))
			responses = append(responses, functionResponsePart(fc.Name, refusal))
			continue
		}

		call := c.dispatch(ctx, fc)
		res.toolsUsed++
		res.toolCalls = append(res.toolCalls, call)
		c.setToolsUsed(res.toolsUsed)

		hint := c.budgetHint(res.toolsUsed)
		responses = append(responses, functionResponsePart(fc.Name, hint+"\n\n"+call.Result))
	}

	return responses, false
}

// dispatch runs a single tool call through the registry with the per-call
// timeout. All failure modes become result text; nothing is raised.
func (c *Controller) dispatch(ctx context.Context, fc genai.FunctionCall) model.ToolCall {
	started := c.now()
	c.emit(model.EventToolCall, map[string]any{"name": fc.Name, "args": fc.Args})
	c.runlogWrite(fmt.Sprintf("[TOOL] %s(%s)", fc.Name, headTruncate(fmt.Sprintf("%v", fc.Args), 200)))

	tctx, cancel := context.WithTimeout(ctx, c.cfg.ShellTimeout)
	resp, err := c.registry.Execute(tctx, fc)
	cancel()

	var result string
	switch {
	case err != nil:
		result = fmt.Sprintf("(error: %s)", err.Error())
	case resp == nil:
		result = "(no output)"
	default:
		if s, ok := resp.Response["output"].(string); ok {
			result = s
		} else if s, ok := resp.Response["result"].(string); ok {
			result = s
		} else {
			result = fmt.Sprintf("%v", resp.Response)
		}
	}

	c.emit(model.EventToolResult, map[string]any{"text": headTruncate(result, 500)})
	c.runlogWrite("[RESULT] " + headTruncate(result, 500))

	return model.ToolCall{
		Name:      fc.Name,
		Args:      fc.Args,
		Result:    result,
		StartedAt: started,
		Duration:  c.now().Sub(started).Seconds(),
	}
}

// budgetHint is prepended to every tool result so the agent always knows
// how much of its budget remains.
func (c *Controller) budgetHint(used int) string {
	budget := c.cfg.MaxToolCalls
	remaining := budget - used
	switch {
	case remaining <= 0:
		return fmt.Sprintf("[System: Tool budget reached (%d/%d). Make sure your notebook is saved, then stop calling tools so this round can end.]", used, budget)
	case remaining <= 3:
		return fmt.Sprintf("[System: WARNING: %d of %d tool calls used, only %d left! Finish up and save your notebook now.]", used, budget, remaining)
	case remaining <= 8:
		return fmt.Sprintf("[System: %d of %d tool calls used, %d remaining. Start wrapping up.]", used, budget, remaining)
	default:
		return fmt.Sprintf("[System: %d of %d tool calls used, %d remaining.]", used, budget, remaining)
	}
}

func functionResponsePart(name, output string) *genai.Part {
	return &genai.Part{
		FunctionResponse: &genai.FunctionResponse{
			Name:     name,
			Response: map[string]any{"output": output},
		},
	}
}

// headTruncate keeps the beginning of s, marking the cut.
func headTruncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// tailTruncate keeps the end of s: for round summaries the conclusion is
// worth more than the opening.
func tailTruncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-(limit-3):]
}
