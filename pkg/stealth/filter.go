// Package stealth hides the hosting platform from the agent. Rather than
// answering forbidden operations with explicit block markers, which invite
// probing, every layer produces output indistinguishable from an ordinary
// shell or filesystem response.
package stealth

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config carries the runtime facts the filter needs to recognize the
// platform's own traces. Keywords are derived from it so they stay accurate
// across restarts and config changes.
type Config struct {
	// InstallDir is the platform's own installation directory, the forbidden
	// zone for all file and shell access.
	InstallDir string

	// PID of the hosting process, 0 if unknown.
	PID int

	// ServerPort is the control-plane listen port, 0 if unknown.
	ServerPort int

	// Host session names detected at startup.
	TmuxSession    string
	ScreenSession  string
	SystemdService string
}

// Filter applies the layered stealth transforms at the tool dispatch
// boundary.
type Filter struct {
	installDir  string
	resolvedDir string
	pid         int
	keywords    []string
	killRe      *regexp.Regexp
	pkillRe     *regexp.Regexp
	guard       *Guard
}

func New(cfg Config, opts ...Option) *Filter {
	resolved := cfg.InstallDir
	if abs, err := filepath.Abs(cfg.InstallDir); err == nil {
		resolved = abs
	}
	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = real
	}

	f := &Filter{
		installDir:  cfg.InstallDir,
		resolvedDir: resolved,
		pid:         cfg.PID,
		keywords:    buildKeywords(cfg, resolved),
	}
	if cfg.PID > 0 {
		f.killRe = regexp.MustCompile(fmt.Sprintf(`\bkill\b.*\b%d\b`, cfg.PID))
		f.pkillRe = regexp.MustCompile(fmt.Sprintf(`\bpkill\b.*-P\s*%d\b`, cfg.PID))
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type Option func(*Filter)

// WithGuard attaches an operator-supplied Rego guard evaluated per shell
// command, layered on top of the built-in checks.
func WithGuard(guard *Guard) Option {
	return func(f *Filter) {
		f.guard = guard
	}
}

// buildKeywords derives the line-filter keyword list: install dir (raw and
// resolved), the host PID with surrounding whitespace, the server port in
// decimal and in the hex form /proc/net/tcp uses, and the host session names
// in the formats tmux/screen/systemctl print them.
func buildKeywords(cfg Config, resolvedDir string) []string {
	var keywords []string

	keywords = append(keywords, cfg.InstallDir)
	if resolvedDir != cfg.InstallDir {
		keywords = append(keywords, resolvedDir)
	}

	// Surrounding spaces avoid PID 12 matching port 1234 in listings.
	if cfg.PID > 0 {
		keywords = append(keywords, fmt.Sprintf(" %d ", cfg.PID))
	}

	if cfg.ServerPort > 0 {
		keywords = append(keywords, fmt.Sprintf(":%d", cfg.ServerPort))
		keywords = append(keywords, fmt.Sprintf("%04X", cfg.ServerPort))
	}

	if cfg.TmuxSession != "" {
		keywords = append(keywords, "tmux: "+cfg.TmuxSession)
		keywords = append(keywords, cfg.TmuxSession+":")
	}
	if cfg.ScreenSession != "" {
		keywords = append(keywords, "screen: "+cfg.ScreenSession)
		keywords = append(keywords, "."+cfg.ScreenSession)
	}
	if cfg.SystemdService != "" {
		keywords = append(keywords, cfg.SystemdService+".service")
	}

	seen := make(map[string]bool, len(keywords))
	result := keywords[:0]
	for _, kw := range keywords {
		if kw != "" && !seen[kw] {
			seen[kw] = true
			result = append(result, kw)
		}
	}
	return result
}

// Keywords returns a copy of the derived keyword list.
func (x *Filter) Keywords() []string {
	out := make([]string, len(x.keywords))
	copy(out, x.keywords)
	return out
}

// IsCloakedPath reports whether a path resolves inside the install
// directory. A path that cannot be resolved is cloaked as well.
func (x *Filter) IsCloakedPath(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	resolved := abs
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		resolved = real
	} else if !os.IsNotExist(err) {
		return true
	}
	// The trailing separator keeps /opt/platform from matching
	// /opt/platform-data.
	return resolved == x.resolvedDir ||
		strings.HasPrefix(resolved, x.resolvedDir+string(os.PathSeparator)) ||
		abs == x.resolvedDir ||
		strings.HasPrefix(abs, x.resolvedDir+string(os.PathSeparator))
}

// Cloaked responses mirror what the OS would emit for a genuinely missing or
// protected file.

func CloakedReadResponse(path string) string {
	return fmt.Sprintf("(error: file not found: %s)", path)
}

func CloakedWriteResponse(path string) string {
	return fmt.Sprintf("(error: permission denied: '%s')", path)
}

func CloakedShellResponse(path string) string {
	return fmt.Sprintf("%s: No such file or directory", path)
}

var massKillRe = regexp.MustCompile(`\bkill\b.*-\d+\s+-1\b`)

// InterceptCommand checks a shell command before execution. If the command
// must not run, it returns a plausible shell failure message and true; the
// caller returns the message as the tool result without executing anything.
func (x *Filter) InterceptCommand(command string) (string, bool) {
	// Only path-shaped tokens are intercepted here. A command that merely
	// mentions the install dir in argument text still runs; FilterKeywords
	// scrubs whatever it prints.
	//
	// Tokens that look like absolute paths may resolve into the install dir
	// through symlinks even when the literal string differs.
	for _, p := range extractCommandPaths(command) {
		if x.IsCloakedPath(p) {
			return CloakedShellResponse(p), true
		}
	}

	// Attempts to kill the hosting process.
	if x.killRe != nil && x.killRe.MatchString(command) {
		return fmt.Sprintf("kill: (%d): Operation not permitted", x.pid), true
	}
	if x.pkillRe != nil && x.pkillRe.MatchString(command) {
		return "pkill: killing pid failed: Operation not permitted", true
	}

	// Mass kills take the platform down with everything else.
	if massKillRe.MatchString(command) {
		return "kill: (-1): Operation not permitted", true
	}

	if x.guard != nil {
		if msg, blocked := x.guard.Check(command); blocked {
			return msg, true
		}
	}

	return "", false
}

// extractCommandPaths pulls absolute-path-looking tokens from a command
// line, honoring quotes and dropping trailing shell operators glued to a
// path (as in "/opt/;" or "/opt/&&").
func extractCommandPaths(command string) []string {
	var paths []string
	for _, token := range splitTokens(command) {
		if !strings.HasPrefix(token, "/") {
			continue
		}
		clean := strings.TrimRight(token, ";,|&")
		if clean != "" {
			paths = append(paths, clean)
		}
	}
	return paths
}

// splitTokens splits a command line on whitespace outside of single or
// double quotes. Unterminated quotes degrade to a plain whitespace split.
func splitTokens(command string) []string {
	var tokens []string
	var buf strings.Builder
	var quote rune

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				buf.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t' || r == '\n':
			if buf.Len() > 0 {
				tokens = append(tokens, buf.String())
				buf.Reset()
			}
		default:
			buf.WriteRune(r)
		}
	}
	if quote != 0 {
		return strings.Fields(command)
	}
	if buf.Len() > 0 {
		tokens = append(tokens, buf.String())
	}
	return tokens
}

// FilterListing removes directory-listing lines that would reveal the
// install dir: each line (and its last field, for long listings) is joined
// with the command's directory arguments and dropped if the joined path is
// cloaked. Absolute paths in the output are left to the keyword layer.
func (x *Filter) FilterListing(output, command string) string {
	dirs := extractCommandPaths(command)
	if output == "" || len(dirs) == 0 {
		return output
	}

	lines := strings.Split(output, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if x.lineExposesCloaked(line, dirs) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (x *Filter) lineExposesCloaked(line string, dirs []string) bool {
	candidates := make(map[string]bool, 2)
	if s := strings.TrimSpace(line); s != "" {
		candidates[s] = true
	}
	if fields := strings.Fields(line); len(fields) > 0 {
		candidates[fields[len(fields)-1]] = true
	}

	for name := range candidates {
		if name == "" || strings.HasPrefix(name, "/") {
			continue
		}
		for _, dir := range dirs {
			if x.IsCloakedPath(filepath.Join(dir, name)) {
				return true
			}
		}
	}
	return false
}

// FilterKeywords drops every output line containing a stealth keyword,
// case-insensitively. The remaining lines read as if the dropped lines
// never existed.
func (x *Filter) FilterKeywords(output string) string {
	if output == "" || len(x.keywords) == 0 {
		return output
	}

	lines := strings.Split(output, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if x.lineHasKeyword(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (x *Filter) lineHasKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range x.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// FilterOutput applies the post-execution layers to shell output: the
// contextual listing filter, then the keyword filter.
func (x *Filter) FilterOutput(output, command string) string {
	return x.FilterKeywords(x.FilterListing(output, command))
}

// hostEnvRe matches environment variables that reveal the host context.
// API keys are kept, the agent may need them for its own projects.
var hostEnvRe = regexp.MustCompile(`(?i)^(AWAKENER_.*|INVOCATION_ID|TMUX|STY)$`)

// CleanEnv builds a sanitized environment for subprocesses from the current
// process environment.
func CleanEnv() []string {
	env := os.Environ()
	kept := env[:0]
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if hostEnvRe.MatchString(name) {
			continue
		}
		kept = append(kept, kv)
	}
	return kept
}
