package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"awakener/pkg/model"

	"github.com/m-mizutani/goerr/v2"
)

const (
	notebookFile    = "notebook.jsonl"
	timelineFile    = "timeline.jsonl"
	inspirationFile = "inspiration.json"
)

// Local implements Repository on JSONL files under a data directory. Files
// are append-only; last-wins dedupe per round happens in the in-memory
// index, which also keeps recent-N reads independent of history length.
// Deletion rewrites the affected file.
type Local struct {
	dataDir string

	mu             sync.Mutex
	notebook       map[int64]*model.NotebookEntry
	notebookRounds []int64 // sorted ascending
	timeline       map[int64]*model.TimelineEntry
	timelineRounds []int64 // sorted ascending
}

func NewLocal(dataDir string) (*Local, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create data directory", goerr.V("dir", dataDir))
	}

	r := &Local{
		dataDir:  dataDir,
		notebook: make(map[int64]*model.NotebookEntry),
		timeline: make(map[int64]*model.TimelineEntry),
	}

	if err := loadJSONL(filepath.Join(dataDir, notebookFile), func(e *model.NotebookEntry) {
		r.notebook[e.Round] = e
	}); err != nil {
		return nil, err
	}
	if err := loadJSONL(filepath.Join(dataDir, timelineFile), func(e *model.TimelineEntry) {
		r.timeline[e.Round] = e
	}); err != nil {
		return nil, err
	}
	r.notebookRounds = sortedRounds(r.notebook)
	r.timelineRounds = sortedRounds(r.timeline)

	return r, nil
}

func loadJSONL[T any](path string, add func(*T)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return goerr.Wrap(err, "failed to open store file", goerr.V("path", path))
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry T
		if err := json.Unmarshal(line, &entry); err != nil {
			// A truncated trailing line from a crash is skipped rather
			// than poisoning the whole store.
			continue
		}
		add(&entry)
	}
	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read store file", goerr.V("path", path))
	}
	return nil
}

func sortedRounds[T any](m map[int64]T) []int64 {
	rounds := make([]int64, 0, len(m))
	for round := range m {
		rounds = append(rounds, round)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i] < rounds[j] })
	return rounds
}

// insertRound keeps the slice sorted; a round already present is left alone.
func insertRound(rounds []int64, round int64) []int64 {
	i := sort.Search(len(rounds), func(i int) bool { return rounds[i] >= round })
	if i < len(rounds) && rounds[i] == round {
		return rounds
	}
	rounds = append(rounds, 0)
	copy(rounds[i+1:], rounds[i:])
	rounds[i] = round
	return rounds
}

func removeRound(rounds []int64, round int64) []int64 {
	i := sort.Search(len(rounds), func(i int) bool { return rounds[i] >= round })
	if i < len(rounds) && rounds[i] == round {
		return append(rounds[:i], rounds[i+1:]...)
	}
	return rounds
}

func appendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal entry")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open store file", goerr.V("path", path))
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return goerr.Wrap(err, "failed to append entry", goerr.V("path", path))
	}
	return nil
}

func (r *Local) PutNotebook(ctx context.Context, entry *model.NotebookEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := appendJSONL(filepath.Join(r.dataDir, notebookFile), entry); err != nil {
		return err
	}
	r.notebook[entry.Round] = entry
	r.notebookRounds = insertRound(r.notebookRounds, entry.Round)
	return nil
}

func (r *Local) GetNotebook(ctx context.Context, round int64) (*model.NotebookEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.notebook[round]
	if !ok {
		return nil, goerr.Wrap(ErrRoundNotFound, "no notebook entry", goerr.V("round", round))
	}
	return entry, nil
}

func (r *Local) RecentNotebook(ctx context.Context, n int) ([]*model.NotebookEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []*model.NotebookEntry
	for i := len(r.notebookRounds) - 1; i >= 0 && len(entries) < n; i-- {
		entries = append(entries, r.notebook[r.notebookRounds[i]])
	}
	return entries, nil
}

func (r *Local) ListNotebook(ctx context.Context, offset, limit int) ([]*model.NotebookEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*model.NotebookEntry, 0, len(r.notebook))
	for i := len(r.notebookRounds) - 1; i >= 0; i-- {
		all = append(all, r.notebook[r.notebookRounds[i]])
	}
	return paginate(all, offset, limit), len(all), nil
}

func (r *Local) PutTimeline(ctx context.Context, entry *model.TimelineEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := appendJSONL(filepath.Join(r.dataDir, timelineFile), entry); err != nil {
		return err
	}
	r.timeline[entry.Round] = entry
	r.timelineRounds = insertRound(r.timelineRounds, entry.Round)
	return nil
}

func (r *Local) GetTimeline(ctx context.Context, round int64) (*model.TimelineEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.timeline[round]
	if !ok {
		return nil, goerr.Wrap(ErrRoundNotFound, "no timeline entry", goerr.V("round", round))
	}
	return entry, nil
}

func (r *Local) ListTimeline(ctx context.Context, offset, limit int) ([]*model.TimelineEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*model.TimelineEntry, 0, len(r.timeline))
	for i := len(r.timelineRounds) - 1; i >= 0; i-- {
		all = append(all, r.timeline[r.timelineRounds[i]])
	}
	return paginate(all, offset, limit), len(all), nil
}

func paginate[T any](all []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}

func (r *Local) LastRound(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var last int64
	if n := len(r.timelineRounds); n > 0 {
		last = r.timelineRounds[n-1]
	}
	if n := len(r.notebookRounds); n > 0 && r.notebookRounds[n-1] > last {
		last = r.notebookRounds[n-1]
	}
	return last, nil
}

func (r *Local) DeleteRound(ctx context.Context, round int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, hasTimeline := r.timeline[round]
	_, hasNotebook := r.notebook[round]
	if !hasTimeline && !hasNotebook {
		return goerr.Wrap(ErrRoundNotFound, "nothing to delete", goerr.V("round", round))
	}

	// Rewrite files before touching the index so a failure leaves the
	// in-memory state matching what is on disk.
	if hasTimeline {
		entries := make([]any, 0, len(r.timeline))
		for _, rd := range r.timelineRounds {
			if rd != round {
				entries = append(entries, r.timeline[rd])
			}
		}
		if err := rewriteJSONL(filepath.Join(r.dataDir, timelineFile), entries); err != nil {
			return err
		}
	}
	if hasNotebook {
		entries := make([]any, 0, len(r.notebook))
		for _, rd := range r.notebookRounds {
			if rd != round {
				entries = append(entries, r.notebook[rd])
			}
		}
		if err := rewriteJSONL(filepath.Join(r.dataDir, notebookFile), entries); err != nil {
			return err
		}
	}

	delete(r.timeline, round)
	delete(r.notebook, round)
	r.timelineRounds = removeRound(r.timelineRounds, round)
	r.notebookRounds = removeRound(r.notebookRounds, round)
	return nil
}

func rewriteJSONL(path string, entries []any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return goerr.Wrap(err, "failed to create temp store file", goerr.V("path", tmp))
	}

	w := bufio.NewWriter(f)
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			f.Close()
			return goerr.Wrap(err, "failed to marshal entry")
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			f.Close()
			return goerr.Wrap(err, "failed to write entry")
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return goerr.Wrap(err, "failed to flush store file")
	}
	if err := f.Close(); err != nil {
		return goerr.Wrap(err, "failed to close store file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return goerr.Wrap(err, "failed to replace store file", goerr.V("path", path))
	}
	return nil
}

func (r *Local) PutInspiration(ctx context.Context, insp *model.Inspiration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(insp)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal inspiration")
	}
	path := filepath.Join(r.dataDir, inspirationFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write inspiration", goerr.V("path", path))
	}
	return nil
}

func (r *Local) TakeInspiration(ctx context.Context) (*model.Inspiration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.dataDir, inspirationFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read inspiration", goerr.V("path", path))
	}

	var insp model.Inspiration
	if err := json.Unmarshal(data, &insp); err != nil {
		// A corrupted slot is discarded, the operator can resubmit.
		_ = os.Remove(path)
		return nil, nil
	}
	if err := os.Remove(path); err != nil {
		return nil, goerr.Wrap(err, "failed to clear inspiration", goerr.V("path", path))
	}
	return &insp, nil
}
