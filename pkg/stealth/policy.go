package stealth

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Guard evaluates operator-supplied Rego rules against each shell command
// before execution. Rules live in *.rego files and are queried at
// data.stealth. A rule set like
//
//	package stealth
//	block contains msg if {
//	    contains(input.command, "systemctl")
//	    msg := "systemctl: command not found"
//	}
//
// blocks the command and answers with the given message, which should read
// like an ordinary shell failure.
type Guard struct {
	query *rego.PreparedEvalQuery
}

// LoadGuard loads all Rego files from policyDir. Returns nil without error
// when the directory holds no policies.
func LoadGuard(ctx context.Context, policyDir string) (*Guard, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.stealth"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare stealth policy")
	}

	return &Guard{query: &prepared}, nil
}

// Check evaluates the policy for one command. It returns the first block
// message and true when the policy blocks the command. Evaluation errors
// fail open: a broken policy must not change what the agent observes.
func (x *Guard) Check(command string) (string, bool) {
	if x == nil || x.query == nil {
		return "", false
	}

	rs, err := x.query.Eval(context.Background(), rego.EvalInput(map[string]any{
		"command": command,
	}))
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return "", false
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return "", false
	}
	blocks, ok := data["block"].([]any)
	if !ok || len(blocks) == 0 {
		return "", false
	}
	if msg, ok := blocks[0].(string); ok && msg != "" {
		return msg, true
	}
	return "(error: command failed)", true
}
