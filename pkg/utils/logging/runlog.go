package logging

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// RunLog appends human-readable activity lines to a per-day file under dir.
// Files are named YYYY-MM-DD.log and rotate naturally at midnight.
type RunLog struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewRunLog(dir string) *RunLog {
	return &RunLog{dir: dir, now: time.Now}
}

func (x *RunLog) path(t time.Time) string {
	return filepath.Join(x.dir, t.Format("2006-01-02")+".log")
}

// Append writes a single timestamped line. Newlines in msg are flattened
// so each record stays one line.
func (x *RunLog) Append(msg string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create log directory", goerr.V("dir", x.dir))
	}

	t := x.now()
	f, err := os.OpenFile(x.path(t), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open run log")
	}
	defer f.Close()

	line := strings.ReplaceAll(msg, "\n", " ")
	if _, err := fmt.Fprintf(f, "[%s] %s\n", t.Format("15:04:05"), line); err != nil {
		return goerr.Wrap(err, "failed to write run log")
	}
	return nil
}

// Tail returns up to limit lines from the end of today's log. A missing
// file is not an error, it just returns no lines.
func (x *RunLog) Tail(limit int) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := os.Open(x.path(x.now()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to open run log")
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read run log")
	}

	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}
